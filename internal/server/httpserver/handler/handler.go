package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/yndnr/memkv/internal/core/domain"
	"github.com/yndnr/memkv/internal/storage/snapshot"
	"github.com/yndnr/memkv/internal/telemetry/logger"
)

// Header names set on every response.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderErrorCode = "X-Error-Code"
)

// Error codes produced by the HTTP layer itself.
const (
	CodeInternal        = "KV-SYS-5000"
	CodeUnavailable     = "KV-SYS-5031"
	CodeTooManyRequests = "KV-SYS-4290"
)

// Engine is the part of the storage engine the handlers use.
type Engine interface {
	Save(ctx context.Context) (*snapshot.Info, error)
	Dirty() int64
	LastSave() time.Time
	LastSaveStatus() error
	ReplID(ctx context.Context) (string, error)
	Snapshots() *snapshot.Manager
}

// Handler serves the admin routes. Handlers log through the request
// context, where the RequestID middleware leaves a tagged logger.
type Handler struct {
	engine Engine
}

// New creates a handler.
func New(engine Engine) *Handler {
	return &Handler{engine: engine}
}

// Register adds the admin routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /v1/info", h.handleInfo)
	mux.HandleFunc("GET /v1/snapshots", h.handleListSnapshots)
	mux.HandleFunc("POST /v1/save", h.handleSave)
}

type requestIDKey struct{}

// WithRequestID stores the request ID in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request ID stored by WithRequestID.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestID(r *http.Request) string {
	if id := RequestIDFrom(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(HeaderRequestID)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	id := requestID(r)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderRequestID, id)
	w.WriteHeader(status)
	resp := envelope(id, "OK", "Success")
	resp.Data = data
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.FromContext(r.Context()).Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	id := requestID(r)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderErrorCode, code)
	w.Header().Set(HeaderRequestID, id)
	w.WriteHeader(status)
	resp := envelope(id, code, message)
	resp.Details = details
	_ = json.NewEncoder(w).Encode(resp)
}

// handleEngineError converts engine errors to HTTP responses.
func (h *Handler) handleEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, r, http.StatusServiceUnavailable, CodeUnavailable, err.Error(), nil)
	case domain.IsDomainError(err, ""):
		code := domain.GetErrorCode(err)
		h.writeError(w, r, errorCodeToHTTPStatus(code), code, err.Error(), nil)
	default:
		logger.FromContext(r.Context()).Error("internal error", "path", r.URL.Path, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, CodeInternal, "internal server error", nil)
	}
}

// errorCodeToHTTPStatus maps a KV-<AREA>-<NNNN> code to an HTTP status
// by its class digits. Classes without a matching response become 500.
func errorCodeToHTTPStatus(code string) int {
	switch c := domain.CodeClass(code); c {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict,
		http.StatusUnprocessableEntity, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return c
	}
	return http.StatusInternalServerError
}
