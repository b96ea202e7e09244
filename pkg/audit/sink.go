/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audit

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/telekom/proxmox-multicluster/pkg/metrics"
)

// Sink defines the interface for audit event destinations.
type Sink interface {
	// Write sends an audit event to the sink.
	Write(ctx context.Context, event *Event) error

	// Close releases any resources held by the sink.
	Close() error

	// Name returns the sink's identifier.
	Name() string
}

// LogSink writes audit events to a structured logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a new LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

// Write logs the audit event.
func (s *LogSink) Write(_ context.Context, event *Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.Time("timestamp", event.Timestamp),
		zap.String("operation", event.Operation),
		zap.String("outcome", string(event.Outcome)),
		zap.String("target_kind", event.Target.Kind),
	}

	if event.Cluster != "" {
		fields = append(fields, zap.String("cluster", event.Cluster))
	}
	if event.Target.Node != "" {
		fields = append(fields, zap.String("target_node", event.Target.Node))
	}
	if event.Target.VMID != 0 {
		fields = append(fields, zap.Int("target_vmid", event.Target.VMID))
	}
	if event.Target.Name != "" {
		fields = append(fields, zap.String("target_name", event.Target.Name))
	}
	if event.Actor.SourceIP != "" {
		fields = append(fields, zap.String("actor_ip", event.Actor.SourceIP))
	}
	if event.CorrelationID != "" {
		fields = append(fields, zap.String("correlation_id", event.CorrelationID))
	}
	if event.UPID != "" {
		fields = append(fields, zap.String("upid", event.UPID))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	if len(event.Details) > 0 {
		if detailsJSON, err := json.Marshal(event.Details); err == nil {
			fields = append(fields, zap.String("details", string(detailsJSON)))
		}
	}

	if event.Outcome == OutcomeFailure {
		s.logger.Warn("audit_event", fields...)
	} else {
		s.logger.Info("audit_event", fields...)
	}
	return nil
}

// Close flushes the underlying logger.
func (s *LogSink) Close() error {
	_ = s.logger.Sync()
	return nil
}

// Name returns the sink identifier.
func (s *LogSink) Name() string {
	return "log"
}

// MultiSink fans an event out to several sinks. A failing sink does not stop
// delivery to the others.
type MultiSink struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewMultiSink creates a MultiSink over sinks.
func NewMultiSink(sinks []Sink, logger *zap.Logger) *MultiSink {
	return &MultiSink{sinks: sinks, logger: logger}
}

// Write delivers event to every sink and joins their errors.
func (s *MultiSink) Write(ctx context.Context, event *Event) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, event); err != nil {
			metrics.AuditSinkErrors.WithLabelValues(sink.Name()).Inc()
			s.logger.Warn("audit sink write failed",
				zap.String("sink", sink.Name()),
				zap.String("event_id", event.ID),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		metrics.AuditEvents.WithLabelValues(sink.Name(), string(event.Type)).Inc()
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (s *MultiSink) Close() error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Name returns the sink identifier.
func (s *MultiSink) Name() string {
	return "multi"
}
