// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// ReqLoggerKey is the gin context key holding the request-scoped logger.
	ReqLoggerKey = "reqLogger"
	// CorrelationIDKey is the gin context key holding the request correlation id.
	CorrelationIDKey = "correlationID"
)

// NewLogger builds the process logger. Debug selects the development config.
// Timestamps are RFC3339 UTC under "ts" and stacktraces are disabled.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	return cfg.Build()
}

// GetReqLogger returns the request-scoped sugared logger from gin.Context if present,
// otherwise the fallback.
func GetReqLogger(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return fallback
	}
	if v, ok := c.Get(ReqLoggerKey); ok {
		if l, ok2 := v.(*zap.SugaredLogger); ok2 {
			return l
		}
	}
	return fallback
}

// GetCorrelationID returns the correlation id stored by the API middleware, or "".
func GetCorrelationID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if v, ok := c.Get(CorrelationIDKey); ok {
		if id, ok2 := v.(string); ok2 {
			return id
		}
	}
	return ""
}

// EnrichReqLogger annotates the request-scoped logger with the correlation id
// and the cluster requested through the query string, when present.
func EnrichReqLogger(c *gin.Context, reqLogger *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil || reqLogger == nil {
		return reqLogger
	}
	if id := GetCorrelationID(c); id != "" {
		reqLogger = reqLogger.With("correlationID", id)
	}
	if c.Request != nil {
		if cluster := c.Query("cluster"); cluster != "" {
			reqLogger = reqLogger.With("cluster", cluster)
		}
	}
	return reqLogger
}

// ClusterFields returns key/value pairs for SugaredLogger.With. An empty
// cluster is rendered as "default" so log lines stay greppable.
func ClusterFields(cluster string, vmid int) []interface{} {
	if cluster == "" {
		cluster = "default"
	}
	if vmid == 0 {
		return []interface{}{"cluster", cluster}
	}
	return []interface{}{"cluster", cluster, "vmid", vmid}
}
