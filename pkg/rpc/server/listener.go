package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"cosmossdk.io/log"
	"golang.org/x/net/netutil"
)

const shutdownTimeout = 5 * time.Second

// Server serves an HTTP handler until its context is cancelled.
type Server struct {
	logger   log.Logger
	addr     string
	maxConns int
	handler  http.Handler
}

// NewServer creates a server listening on addr. A positive maxConns limits
// the number of simultaneous connections.
func NewServer(logger log.Logger, addr string, maxConns int, handler http.Handler) *Server {
	return &Server{
		logger:   logger.With("module", "rpc-server"),
		addr:     addr,
		maxConns: maxConns,
		handler:  handler,
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s.maxConns > 0 {
		s.logger.Debug("limiting number of connections", "limit", s.maxConns)
		listener = netutil.LimitListener(listener, s.maxConns)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("rpc server started", "address", listener.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("rpc server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown timed out, closing connections", "error", err)
		_ = srv.Close()
	}
	s.logger.Info("rpc server stopped")
	return nil
}
