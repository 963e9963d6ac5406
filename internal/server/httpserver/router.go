package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/memkv/internal/server/httpserver/handler"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Engine handler.Engine

	// Metrics serves /metrics. The route is absent when nil.
	Metrics http.Handler

	Logger *slog.Logger

	// RateLimit is the per-client request rate. Zero disables limiting.
	RateLimit int

	// AccessLog enables one log line per request.
	AccessLog bool
}

// NewRouter builds the admin mux with its middleware chain.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	mux := http.NewServeMux()
	handler.New(cfg.Engine).Register(mux)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	// Order: Recover -> RequestID -> RateLimit -> AccessLog -> mux
	mws := []Middleware{Recover(log), RequestID(log)}
	if cfg.RateLimit > 0 {
		mws = append(mws, RateLimit(cfg.RateLimit))
	}
	if cfg.AccessLog {
		mws = append(mws, AccessLog(log))
	}
	return Chain(mux, mws...)
}
