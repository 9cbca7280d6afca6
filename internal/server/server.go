package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relaychat/internal/chat"
)

// Server assembles the relay: router, hub, metrics and HTTP surface.
type Server struct {
	cfg        Config
	log        *slog.Logger
	hub        *Hub
	metrics    *Metrics
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// New builds a Server from cfg. Nothing runs until Run or StartHub.
func New(cfg Config, log *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	censor, err := chat.NewCensor(cfg.Censored())
	if err != nil {
		return nil, fmt.Errorf("build censor: %w", err)
	}

	metrics := NewMetrics()
	router := chat.NewRouter(chat.NewMemoryRegistry(), log.With("component", "router"),
		chat.WithObserver(metrics),
		chat.WithCensor(censor),
		chat.WithMaxDisplayNameLength(cfg.MaxDisplayNameLength),
		chat.WithMaxBodyLength(cfg.MaxBodyLength),
	)
	origins := newOriginPolicy(cfg.Origins(), log)

	s := &Server{
		cfg:     cfg,
		log:     log,
		hub:     NewHub(router, log.With("component", "hub")),
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
	s.httpServer = CreateServer(cfg.Addr(), s.Routes())
	return s, nil
}

// Hub returns the server's hub for shutdown coordination and queries.
func (s *Server) Hub() *Hub {
	return s.hub
}

// StartHub starts the hub loop in its own goroutine.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.log.Info("Hub started and ready to manage WebSocket connections")
}

// Run serves until ctx is done or the listener fails, then shuts down the
// HTTP server and the hub.
func (s *Server) Run(ctx context.Context) error {
	s.StartHub()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- StartServer(s.httpServer, s.log)
	}()

	var err error
	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		s.log.Info("Shutdown signal received")
		if shutdownErr := ShutdownServer(s.httpServer, s.cfg.ShutdownTimeout, s.log); shutdownErr != nil {
			err = shutdownErr
		}
	}

	if hubErr := s.hub.Shutdown(s.cfg.ShutdownTimeout); hubErr != nil && err == nil {
		err = hubErr
	}
	return err
}
