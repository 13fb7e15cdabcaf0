package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"job-relay/backend/global"
)

// HTTPServer wraps http.Server with the relay's timeouts.
type HTTPServer struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds the address so callers learn about port conflicts before
// serving starts.
func Listen(host string, port int, handler http.Handler) (*HTTPServer, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &HTTPServer{
		ln: ln,
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}, nil
}

func (s *HTTPServer) Addr() string { return s.ln.Addr().String() }

// Serve blocks until Shutdown.
func (s *HTTPServer) Serve() error {
	global.Logger.Info().Str("addr", s.Addr()).Msg("http server listening")
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
