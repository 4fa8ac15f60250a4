// Package server accepts peer connections and runs one session per stream.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/rudransh-shrivastava/peershare/internal/transport"
)

var ErrNoTransport = errors.New("server: no transport provider configured")

type Server struct {
	config   Config
	logger   *slog.Logger
	listener transport.Listener
	slots    chan struct{}
	nextID   atomic.Uint64
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Transport == nil {
		return nil, ErrNoTransport
	}

	ln, err := cfg.Transport.Listen(cfg.Addr)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   cfg,
		logger:   logger,
		listener: ln,
	}
	if cfg.MaxSessions > 0 {
		s.slots = make(chan struct{}, cfg.MaxSessions)
	}
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down peer server")
	err := s.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Start accepts connections until ctx is cancelled or the listener is closed.
// Sessions keep running after Start returns.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Peer server started", "addr", s.Addr(), "shared", s.config.SharedDir)

	stop := context.AfterFunc(ctx, func() { _ = s.listener.Close() })
	defer stop()

	for {
		if err := s.acquire(ctx); err != nil {
			return err
		}

		stream, err := s.listener.Accept(ctx)
		if err != nil {
			s.release()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("Failed to accept connection", "error", err)
			continue
		}

		go func() {
			defer s.release()
			s.handleSession(ctx, stream)
		}()
	}
}

func (s *Server) acquire(ctx context.Context) error {
	if s.slots == nil {
		return nil
	}
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) release() {
	if s.slots != nil {
		<-s.slots
	}
}
