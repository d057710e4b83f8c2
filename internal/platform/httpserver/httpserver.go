package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

const defaultShutdownGrace = 10 * time.Second

type Option func(*http.Server)

// WithWriteTimeout bounds the whole response. It must stay above the
// per-request handler timeout or slow handlers lose their error body.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *http.Server) { s.WriteTimeout = d }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(s *http.Server) { s.IdleTimeout = d }
}

// New builds the API server. Bodies are small JSON documents, so reads are
// kept short.
func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Run listens on srv.Addr and serves until ctx is done.
func Run(ctx context.Context, srv *http.Server, grace time.Duration) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	return Serve(ctx, srv, ln, grace)
}

// Serve accepts on ln until ctx is done, then drains in-flight requests for
// at most grace. A clean shutdown returns nil.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration) error {
	if grace <= 0 {
		grace = defaultShutdownGrace
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
