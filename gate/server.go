// server.go
//
// HTTP server lifecycle: non-blocking start, graceful shutdown, and signal
// handling shared by the worker and gateway commands.

package gate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// Server wraps http.Server with non-blocking start and graceful shutdown.
type Server struct {
	name  string
	srv   *http.Server
	ln    net.Listener
	errCh chan error
}

// NewServer creates a named server for the given address and handler.
// Addr may use port 0 to let the OS pick a port (tests).
func NewServer(name, addr string, handler http.Handler) *Server {
	return &Server{
		name: name,
		srv: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		errCh: make(chan error, 1),
	}
}

// Start binds the listener and serves in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("%s: listen on %s: %w", s.name, s.srv.Addr, err)
	}
	s.ln = ln
	logrus.Infof("%s listening on http://%s", s.name, ln.Addr())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
		close(s.errCh)
	}()
	return nil
}

// Addr returns the bound address. Empty before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown drains in-flight requests within the context's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	logrus.Infof("%s shutting down", s.name)
	return s.srv.Shutdown(ctx)
}

// WaitForShutdown blocks until SIGINT/SIGTERM or a serve error, then performs
// a graceful shutdown with the given timeout.
func (s *Server) WaitForShutdown(timeout time.Duration) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logrus.Infof("%s received %s", s.name, sig)
	case err, ok := <-s.errCh:
		if ok && err != nil {
			return fmt.Errorf("%s: serve: %w", s.name, err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}
