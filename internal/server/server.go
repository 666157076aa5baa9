package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// Server is the localhost agent API.
type Server struct {
	http *http.Server
	hub  *Hub
}

// New builds a Server listening on addr.
func New(addr string, h *QueueHandler, hub *Hub) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(h, hub),
			ReadHeaderTimeout: 10 * time.Second,
		},
		hub: hub,
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	if s.hub != nil {
		go s.hub.Run(hubCtx)
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Agent API listening", map[string]interface{}{"addr": ln.Addr().String()})
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logging.Info("Agent API stopped")
	return nil
}
