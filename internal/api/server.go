package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/wonny/aegis-index/pkg/config"
	"github.com/wonny/aegis-index/pkg/logger"
)

const (
	readTimeout = 30 * time.Second
	idleTimeout = 60 * time.Second
	// 계산 타임아웃 이후 응답 직렬화 여유
	writeSlack = 15 * time.Second
)

// Server wraps http.Server with the engine's timeouts and logging
// ⭐ SSOT: API 서버 설정은 이 파일에서만
type Server struct {
	http *http.Server
	log  *logger.Logger
	env  string
}

// New builds a server listening on cfg.Port
func New(cfg *config.Config, log *logger.Logger, router http.Handler) *Server {
	return &Server{
		http: &http.Server{
			Addr:              net.JoinHostPort("", cfg.Port),
			Handler:           router,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: readTimeout,
			WriteTimeout:      cfg.API.RequestTimeout + writeSlack,
			IdleTimeout:       idleTimeout,
		},
		log: logger.OrNop(log).WithComponent("api"),
		env: cfg.Env,
	}
}

// Addr returns the listen address
func (s *Server) Addr() string { return s.http.Addr }

// Start blocks serving requests until Shutdown is called.
// A clean shutdown returns nil.
func (s *Server) Start() error {
	s.log.WithFields(map[string]interface{}{
		"addr": s.http.Addr,
		"env":  s.env,
	}).Info("Starting API server")

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("listen %s: %w", s.http.Addr, err)
}

// Shutdown stops accepting connections and waits for in-flight computations
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down API server")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
