// cmd/bot/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carwash-bot/internal/account"
	"carwash-bot/internal/bot"
	"carwash-bot/internal/config"
	"carwash-bot/internal/db"
	"carwash-bot/internal/payment"
	"carwash-bot/internal/reminder"
	"carwash-bot/internal/server"
	"carwash-bot/internal/session"
	"carwash-bot/pkg/logger"
)

const dbAttempts = 5

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer l.Sync() //nolint:errcheck
	l.Info("Starting car wash bot...")

	// PostgreSQL may still be starting; connecting and migrating are retried together.
	var database *db.PostgresDB
	err = retry(dbAttempts, time.Second, func() error {
		conn, err := db.NewPostgresDB(cfg.DB)
		if err != nil {
			return err
		}
		if cfg.DB.Migrate {
			if err := db.Migrate(cfg.DB.DSN()); err != nil {
				conn.Close()
				return err
			}
		}
		database = conn
		return nil
	}, func(attempt int, err error) {
		l.Errorw("Failed to prepare database, retrying...", "attempt", attempt, "error", err)
	})
	if err != nil {
		l.Fatalw("Failed to prepare database after multiple attempts", "error", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions, closeSessions := newSessionStore(ctx, cfg, l)
	defer closeSessions()

	var payments bot.PaymentProvider
	if cfg.Stripe.Enabled() {
		payments = payment.NewStripeClient(cfg.Stripe)
		l.Info("Stripe payments enabled")
	} else {
		l.Info("Stripe is not configured, subscriptions are free (test mode)")
	}

	accounts := account.NewService(database)

	telegramBot, err := bot.NewTelegramBot(cfg.Telegram, accounts, sessions, payments, l.Named("bot"))
	if err != nil {
		l.Fatalw("Failed to create Telegram bot", "error", err)
	}

	hooks := server.Webhooks{Stripe: telegramBot.HandleStripeWebhook}
	if telegramBot.UsesWebhook() {
		hooks.TelegramPath = telegramBot.WebhookPath()
		hooks.Telegram = telegramBot.HandleTelegramWebhook
	}
	httpServer := server.NewServer(cfg.Server.Port, hooks, l)
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	if err := telegramBot.Start(ctx); err != nil {
		l.Fatalw("Failed to start Telegram bot", "error", err)
	}
	l.Info("Telegram bot started successfully")

	var reminders *reminder.Service
	if cfg.Reminder.Schedule != "" {
		reminders = reminder.NewService(database, telegramBot, cfg.Reminder.Window, l.Named("reminder"))
		if err := reminders.Schedule(cfg.Reminder.Schedule); err != nil {
			l.Fatalw("Failed to schedule reminders", "error", err)
		}
		reminders.Start()
	}

	<-ctx.Done()
	l.Info("Shutting down bot...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if reminders != nil {
		reminders.Stop()
	}

	if err := httpServer.Stop(shutdownCtx); err != nil {
		l.Errorw("Error during HTTP server shutdown", "error", err)
	}

	if err := telegramBot.Stop(shutdownCtx); err != nil {
		l.Errorw("Error during bot shutdown", "error", err)
	}

	l.Info("Bot stopped successfully")
}

// retry calls fn up to attempts times, sleeping attempt*backoff between failures.
// It returns the last error when every attempt fails.
func retry(attempts int, backoff time.Duration, fn func() error, onRetry func(attempt int, err error)) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts {
			onRetry(i, err)
			time.Sleep(time.Duration(i) * backoff)
		}
	}
	return err
}

// newSessionStore prefers Redis when configured and falls back to process memory.
func newSessionStore(ctx context.Context, cfg *config.Config, l *logger.Logger) (session.Store, func()) {
	if cfg.Redis.Addr != "" {
		store, err := session.NewRedisStore(ctx, cfg.Redis, cfg.Session.TTL)
		if err != nil {
			l.Fatalw("Failed to connect to Redis", "error", err)
		}
		l.Infow("Using Redis session store", "addr", cfg.Redis.Addr)
		return store, func() { _ = store.Close() }
	}

	store := session.NewMemoryStore(cfg.Session.TTL)
	sweep := time.NewTicker(cfg.Session.TTL)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sweep.C:
				store.Sweep()
			case <-done:
				return
			}
		}
	}()
	l.Info("Using in-memory session store")
	return store, func() {
		sweep.Stop()
		close(done)
	}
}
