// Пакет server — HTTP-сервер сервиса документов с TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/docstore/internal/api/errors"
	"github.com/bigkaa/docstore/internal/api/middleware"
	"github.com/bigkaa/docstore/internal/api/openapi"
	"github.com/bigkaa/docstore/internal/config"
)

// Server — HTTP-сервер сервиса документов.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
// Порядок middleware: request id → логирование → метрики → заголовки
// безопасности → CORS → ограничение частоты.
func New(cfg *config.Config, logger *slog.Logger, handler openapi.ServerInterface) *Server {
	router := NewRouter(cfg, logger, handler)

	// WriteTimeout покрывает загрузку и отдачу файла целиком
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	if cfg.TLSEnabled() {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер со всеми middleware и маршрутами.
func NewRouter(cfg *config.Config, logger *slog.Logger, handler openapi.ServerInterface) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.SecurityHeaders(cfg.TLSEnabled()))
	if cfg.CORSEnabled {
		router.Use(middleware.CORS())
	}
	if cfg.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
			Requests: cfg.RateLimitRequests,
			Uploads:  cfg.RateLimitUploads,
			Window:   cfg.RateLimitWindow,
			Exempt:   []string{"/health/", "/metrics"},
		})
		router.Use(limiter.Middleware())
	}

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.NotFound(w, "Маршрут не найден")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.WriteError(w, http.StatusMethodNotAllowed, apierrors.CodeValidationError, "Метод не поддерживается")
	})

	openapi.HandlerWithOptions(handler, openapi.ChiServerOptions{
		BaseRouter: router,
		ErrorHandlerFunc: func(w http.ResponseWriter, _ *http.Request, err error) {
			apierrors.ValidationError(w, err.Error())
		},
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown с таймаутом
// DS_SHUTDOWN_TIMEOUT.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSEnabled()),
		)

		var err error
		if s.cfg.TLSEnabled() {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
