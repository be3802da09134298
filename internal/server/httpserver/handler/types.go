package handler

import (
	"time"

	"github.com/yndnr/tidekv/internal/infra/buildinfo"
	"github.com/yndnr/tidekv/internal/server/respserver"
	"github.com/yndnr/tidekv/internal/storage"
	"github.com/yndnr/tidekv/internal/storage/snapshot"
)

// Error codes carried in the response envelope and the X-Error-Code header.
const (
	CodeOK                  = "OK"
	CodeBadRequest          = "TK-SYS-4000"
	CodeUnauthorized        = "TK-SYS-4010"
	CodeNotReady            = "TK-SYS-5030"
	CodeInternal            = "TK-SYS-5000"
	CodeTooManyRequests     = "TK-SYS-4290"
	CodePersistenceDisabled = "TK-PERSIST-4040"
	CodeSaveInProgress      = "TK-PERSIST-4090"
	CodeSnapshotFailed      = "TK-PERSIST-5000"
)

// Response is the standard API response envelope. Every JSON response
// uses it; /metrics is served in the Prometheus text format instead.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      CodeOK,
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// KeyspaceStatus is the keyspace part of StatusResponse.
type KeyspaceStatus struct {
	Keys         int    `json:"keys"`
	VolatileKeys int    `json:"volatile_keys"`
	ExpiredKeys  uint64 `json:"expired_keys"`
}

// StatusResponse is the body of GET /admin/v1/status.
type StatusResponse struct {
	Build       buildinfo.Info    `json:"build"`
	StartedAt   time.Time         `json:"started_at"`
	Uptime      string            `json:"uptime"`
	Keyspace    KeyspaceStatus    `json:"keyspace"`
	Clients     *respserver.Stats `json:"clients,omitempty"`
	Persistence *storage.Status   `json:"persistence,omitempty"`
}

// SnapshotList is the body of GET /admin/v1/snapshots.
type SnapshotList struct {
	Snapshots []*snapshot.Info `json:"snapshots"`
	Total     int              `json:"total"`
}
