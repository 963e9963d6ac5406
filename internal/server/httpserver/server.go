package httpserver

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// DefaultReadHeaderTimeout bounds how long a client may take to send
// request headers.
const DefaultReadHeaderTimeout = 5 * time.Second

// Server wraps http.Server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// New creates a server for addr.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
		},
		handler: handler,
	}
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// ListenAndServeTLS listens on the configured address and serves TLS
// using cfg, which must provide certificates or GetCertificate.
func (s *Server) ListenAndServeTLS(cfg *tls.Config) error {
	s.httpServer.TLSConfig = cfg
	return s.httpServer.ListenAndServeTLS("", "")
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	return s.httpServer.Serve(l)
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
