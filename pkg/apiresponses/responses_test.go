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

package apiresponses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/telekom/proxmox-multicluster/pkg/cluster"
	"github.com/telekom/proxmox-multicluster/pkg/pve"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var resp APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRespondNotFound(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondNotFound(c, "cluster", "qa")

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "cluster not found: qa", resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Code)
}

func TestRespondBadRequestWithDetails(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondBadRequestWithDetails(c, "invalid vmid", "must be a positive integer")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "BAD_REQUEST", resp.Code)
	assert.Equal(t, "must be a positive integer", resp.Details)
}

func TestRespondAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondAccepted(c, gin.H{"upid": "UPID:pve1:0001"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"upid":"UPID:pve1:0001"}`, w.Body.String())
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantKind   string
		candidates []string
	}{
		{
			name:       "cluster not found",
			err:        &cluster.NotFoundError{Cluster: "qa", Available: []string{"prod", "dev"}},
			wantStatus: http.StatusNotFound,
			wantCode:   "CLUSTER_NOT_FOUND",
			wantKind:   cluster.KindNotFound,
			candidates: []string{"prod", "dev"},
		},
		{
			name:       "ambiguous selection",
			err:        &cluster.AmbiguousSelectionError{Resource: "web-01", Candidates: []string{"dev", "staging"}},
			wantStatus: http.StatusConflict,
			wantCode:   "AMBIGUOUS_SELECTION",
			wantKind:   cluster.KindAmbiguous,
			candidates: []string{"dev", "staging"},
		},
		{
			name:       "connection",
			err:        &cluster.ConnectionError{Cluster: "prod", Err: errors.New("refused")},
			wantStatus: http.StatusBadGateway,
			wantCode:   "CLUSTER_UNREACHABLE",
			wantKind:   cluster.KindConnection,
		},
		{
			name:       "resource not found",
			err:        fmt.Errorf("vm web: %w", pve.ErrResourceNotFound),
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "ambiguous resource",
			err:        fmt.Errorf("vm web: %w", pve.ErrAmbiguousResource),
			wantStatus: http.StatusConflict,
			wantCode:   "AMBIGUOUS_RESOURCE",
		},
		{
			name:       "invalid argument",
			err:        fmt.Errorf("node: %w", pve.ErrInvalidArgument),
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "upstream client error passes through",
			err:        &pve.HTTPError{StatusCode: http.StatusForbidden, Message: "permission check failed"},
			wantStatus: http.StatusForbidden,
			wantCode:   "UPSTREAM_REJECTED",
			wantKind:   cluster.KindAuth,
		},
		{
			name:       "upstream server error becomes bad gateway",
			err:        &pve.HTTPError{StatusCode: http.StatusInternalServerError, Message: "VM is locked"},
			wantStatus: http.StatusBadGateway,
			wantCode:   "BAD_GATEWAY",
			wantKind:   cluster.KindUnknown,
		},
		{
			name:       "anything else",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
			wantKind:   cluster.KindTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ErrorStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantKind, body.Kind)
			assert.Equal(t, tt.candidates, body.Candidates)
		})
	}
}

func TestRespondErrorLogsServerFailuresOnly(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core).Sugar()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondError(c, "list vms", &cluster.NotFoundError{Cluster: "qa"}, log)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, logs.Len())

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	RespondError(c, "list vms", &cluster.ConnectionError{Cluster: "prod", Err: errors.New("refused")}, log)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Failed to list vms", logs.All()[0].Message)
}

func TestRespondInternalErrorSanitizes(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondInternalError(c, "render clusters", errors.New("secret detail"), zap.NewNop().Sugar())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "failed to render clusters", resp.Error)
	assert.NotContains(t, w.Body.String(), "secret detail")
}
