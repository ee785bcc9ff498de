// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"carwash-bot/pkg/logger"
)

// Webhooks are the push endpoints served next to the health checks.
type Webhooks struct {
	// TelegramPath is empty when updates are polled.
	TelegramPath string
	Telegram     http.HandlerFunc
	Stripe       http.HandlerFunc
}

type Server struct {
	server *http.Server
	logger *logger.Logger
}

func NewServer(port string, hooks Webhooks, logger *logger.Logger) *Server {
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(hooks),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		server: httpServer,
		logger: logger,
	}
}

func NewRouter(hooks Webhooks) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.Recoverer)

	// The hosting platform polls both paths.
	r.Get("/", health)
	r.Get("/health", health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if hooks.Stripe != nil {
		r.Post("/webhook/stripe", hooks.Stripe)
	}
	if hooks.TelegramPath != "" && hooks.Telegram != nil {
		r.Post(hooks.TelegramPath, hooks.Telegram)
	}
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Bot is running!"))
}

func (s *Server) Start() error {
	s.logger.Infow("Starting HTTP server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}
