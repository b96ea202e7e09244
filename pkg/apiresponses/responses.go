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
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/proxmox-multicluster/pkg/cluster"
	"github.com/telekom/proxmox-multicluster/pkg/pve"
)

// APIError represents a standardized error response.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	// Kind is the cluster error classification, e.g. "auth" or "network"
	Kind string `json:"kind,omitempty"`
	// Candidates lists the clusters an ambiguous selection matched, or the
	// configured clusters when the requested one does not exist
	Candidates []string `json:"candidates,omitempty"`
}

// RespondNotFound sends a 404 Not Found response with a standardized message.
func RespondNotFound(c *gin.Context, resourceType, resourceName string) {
	c.JSON(http.StatusNotFound, APIError{
		Error: fmt.Sprintf("%s not found: %s", resourceType, resourceName),
		Code:  "NOT_FOUND",
	})
}

// RespondBadRequest sends a 400 Bad Request response.
// Use this for client errors like malformed JSON or invalid parameters.
func RespondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, APIError{
		Error: message,
		Code:  "BAD_REQUEST",
	})
}

// RespondBadRequestWithDetails sends a 400 Bad Request with additional details.
func RespondBadRequestWithDetails(c *gin.Context, message, details string) {
	c.JSON(http.StatusBadRequest, APIError{
		Error:   message,
		Code:    "BAD_REQUEST",
		Details: details,
	})
}

// RespondInternalError sends a 500 Internal Server Error response.
// It logs the error with full details but returns a sanitized message to the client.
func RespondInternalError(c *gin.Context, operation string, err error, log *zap.SugaredLogger) {
	if log != nil {
		log.Errorw(fmt.Sprintf("Failed to %s", operation), "error", err)
	}
	c.JSON(http.StatusInternalServerError, APIError{
		Error: fmt.Sprintf("failed to %s", operation),
		Code:  "INTERNAL_ERROR",
	})
}

// RespondOK sends a 200 OK response with the given data.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// RespondAccepted sends a 202 Accepted response. Proxmox mutations are
// asynchronous, so they answer with the task id to poll.
func RespondAccepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}

// RespondNoContent sends a 204 No Content response.
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// ErrorStatus maps an error from the registry, the router or a Proxmox client
// to the HTTP status and body the API answers with.
func ErrorStatus(err error) (int, APIError) {
	var (
		notFound  *cluster.NotFoundError
		ambiguous *cluster.AmbiguousSelectionError
		connErr   *cluster.ConnectionError
		httpErr   *pve.HTTPError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, APIError{Error: err.Error(), Code: "CLUSTER_NOT_FOUND", Kind: cluster.KindNotFound, Candidates: notFound.Available}
	case errors.As(err, &ambiguous):
		return http.StatusConflict, APIError{Error: err.Error(), Code: "AMBIGUOUS_SELECTION", Kind: cluster.KindAmbiguous, Candidates: ambiguous.Candidates}
	case errors.As(err, &connErr):
		return http.StatusBadGateway, APIError{Error: err.Error(), Code: "CLUSTER_UNREACHABLE", Kind: cluster.KindConnection}
	case errors.Is(err, pve.ErrResourceNotFound):
		return http.StatusNotFound, APIError{Error: err.Error(), Code: "NOT_FOUND"}
	case errors.Is(err, pve.ErrAmbiguousResource):
		return http.StatusConflict, APIError{Error: err.Error(), Code: "AMBIGUOUS_RESOURCE"}
	case errors.Is(err, pve.ErrInvalidArgument):
		return http.StatusBadRequest, APIError{Error: err.Error(), Code: "BAD_REQUEST"}
	case errors.As(err, &httpErr):
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
			return httpErr.StatusCode, APIError{Error: httpErr.Message, Code: "UPSTREAM_REJECTED", Kind: cluster.ErrorKind(err)}
		}
		return http.StatusBadGateway, APIError{Error: httpErr.Message, Code: "BAD_GATEWAY", Kind: cluster.ErrorKind(err)}
	}
	return http.StatusInternalServerError, APIError{Error: "internal error", Code: "INTERNAL_ERROR", Kind: cluster.ErrorKind(err)}
}

// RespondError writes the response ErrorStatus picks for err. Server-side
// failures are logged with the full error.
func RespondError(c *gin.Context, operation string, err error, log *zap.SugaredLogger) {
	status, body := ErrorStatus(err)
	if log != nil && status >= http.StatusInternalServerError {
		log.Errorw(fmt.Sprintf("Failed to %s", operation), "error", err, "status", status)
	}
	c.JSON(status, body)
}
