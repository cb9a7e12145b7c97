// Пакет server — HTTP-сервер SmartTalk с graceful shutdown.
// Без TLS — TLS termination на ingress.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	apihandlers "github.com/bigkaa/smarttalk/internal/api/handlers"
	"github.com/bigkaa/smarttalk/internal/api/middleware"
	"github.com/bigkaa/smarttalk/internal/config"
	"github.com/bigkaa/smarttalk/internal/domain/rbac"
	uihandlers "github.com/bigkaa/smarttalk/internal/ui/handlers"
	"github.com/bigkaa/smarttalk/internal/ui/i18n"
	uimiddleware "github.com/bigkaa/smarttalk/internal/ui/middleware"
	"github.com/bigkaa/smarttalk/internal/ui/static"
)

// Components — обработчики и middleware, из которых собирается роутер.
type Components struct {
	API        *apihandlers.APIHandler
	BearerAuth *middleware.BearerAuth
	UI         *uihandlers.Handler
	// ClientContext — привязка запросов UI к состоянию браузерного клиента
	ClientContext *uimiddleware.ClientContext
}

// Server — HTTP-сервер SmartTalk.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, c Components) *Server {
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     NewRouter(logger, c),
		ReadTimeout: 30 * time.Second,
		// SSE-обработчики снимают таймаут записи для своих соединений.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает роутер: health и метрики, публичные ключи,
// JSON API (Bearer id-токен или cookie клиента) и браузерный UI.
func NewRouter(logger *slog.Logger, c Components) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Health и metrics проверяются Kubernetes напрямую, без аутентификации.
	router.Get("/health/live", c.API.HealthLive)
	router.Get("/health/ready", c.API.HealthReady)
	router.Get("/metrics", c.API.GetMetrics)
	router.Get("/auth/jwks.json", c.API.GetJWKS)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(c.BearerAuth.Middleware())
		r.Get("/me", c.API.GetMe)
		r.Get("/messages", c.API.ListMessages)
		r.Post("/messages", c.API.SendMessage)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(rbac.RoleAdmin))
			r.Get("/admin/identities", c.API.ListIdentities)
			r.Get("/admin/identities/{id}/messages", c.API.HandleIdentityMessages)
		})
	})

	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(static.FileSystem())))

	router.Group(func(r chi.Router) {
		r.Use(i18n.Middleware())
		r.Use(c.ClientContext.Middleware())

		r.Get("/", c.UI.HandleRoot)
		r.Get("/login", c.UI.HandleLoginPage)
		r.Post("/login", c.UI.HandleLogin)
		r.Post("/signup", c.UI.HandleSignUp)
		r.Post("/logout", c.UI.HandleLogout)
		r.Post("/set-theme", c.UI.HandleSetTheme)
		r.Post("/set-language", uihandlers.HandleSetLanguage)

		// Поток событий открыт и без сессии: первым событием клиент
		// получает экран, на который нужно перейти.
		r.Get("/chat/events", c.UI.HandleChatEvents)

		r.Group(func(r chi.Router) {
			r.Use(uimiddleware.RequireSession)
			r.Get("/chat", c.UI.HandleChat)
			r.Post("/chat/messages", c.UI.HandleSendMessage)
		})

		r.Group(func(r chi.Router) {
			r.Use(uimiddleware.RequireAdmin)
			r.Get("/admin", c.UI.HandleAdmin)
			r.Get("/admin/events", c.UI.HandleAdminEvents)
		})
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}

// RegisterOnShutdown регистрирует функцию, вызываемую при начале shutdown
// (закрывает SSE-потоки, которые иначе держали бы Shutdown до таймаута).
func (s *Server) RegisterOnShutdown(f func()) {
	s.httpServer.RegisterOnShutdown(f)
}
