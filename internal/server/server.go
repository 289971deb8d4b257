// Пакет server — HTTP-сервер cpsu. TLS завершается на reverse proxy.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sinnlosername/cpsu/internal/config"
)

// RouteRegistrar регистрирует маршруты cpsu (handlers.APIHandler).
type RouteRegistrar interface {
	Register(r chi.Router)
}

// Server — HTTP-сервер cpsu.
type Server struct {
	httpServer      *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New собирает роутер: сначала общие middleware в переданном порядке, затем маршруты.
func New(cfg *config.Config, logger *slog.Logger, routes RouteRegistrar, middlewares ...func(http.Handler) http.Handler) *Server {
	router := chi.NewRouter()
	router.Use(middlewares...)
	routes.Register(router)

	return &Server{
		httpServer: &http.Server{
			Addr:         net.JoinHostPort("", strconv.Itoa(cfg.Port)),
			Handler:      router,
			ReadTimeout:  cfg.HTTPReadTimeout,
			WriteTimeout: cfg.HTTPWriteTimeout,
			IdleTimeout:  cfg.HTTPIdleTimeout,
		},
		logger:          logger.With(slog.String("component", "http_server")),
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Handler возвращает корневой обработчик.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run обслуживает запросы до отмены ctx, затем дожидается активных запросов
// не дольше CPSU_SHUTDOWN_TIMEOUT. Ошибка прослушивания порта возвращается сразу.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("не удалось занять адрес %s: %w", s.httpServer.Addr, err)
	}
	return s.serve(ctx, ln)
}

// serve обслуживает ln до отмены ctx.
func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP-сервер принимает запросы", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.shutdownTimeout
	s.logger.Info("Остановка HTTP-сервера", slog.Duration("timeout", timeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("запросы не завершились за %s: %w", timeout, err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
