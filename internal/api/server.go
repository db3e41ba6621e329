package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(addr string, handlers *Handlers, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	handlers.Register(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			// Language jobs block on engine calls under retry; suspension,
			// not a server write timeout, bounds them.
			WriteTimeout: 15 * time.Minute,
		},
		logger: logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
