package handler

import "time"

// Response is the JSON envelope of every admin response except /metrics.
// Code is "OK" on success and a KV- error code otherwise.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func envelope(requestID, code, message string) *Response {
	return &Response{Code: code, Message: message, RequestID: requestID, Timestamp: time.Now().UnixMilli()}
}

// HealthResponse is the body of GET /healthz, or the error details when
// the last save failed.
type HealthResponse struct {
	Status        string    `json:"status"`
	Dirty         int64     `json:"changes_since_last_save"`
	LastSave      time.Time `json:"last_save"`
	LastSaveError string    `json:"last_save_error,omitempty"`
}

// InfoResponse is the body of GET /v1/info.
type InfoResponse struct {
	Version        string    `json:"version"`
	ServerVersion  string    `json:"server_version"`
	ReplID         string    `json:"replid"`
	Dirty          int64     `json:"changes_since_last_save"`
	LastSave       time.Time `json:"last_save"`
	LastSaveStatus string    `json:"last_save_status"`
	LastSaveError  string    `json:"last_save_error,omitempty"`
	SnapshotDir    string    `json:"snapshot_dir"`
}

// SaveResponse is the body of POST /v1/save.
type SaveResponse struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Keys     int    `json:"keys"`
	Duration string `json:"duration"`
}
