// Package reminder notifies account owners whose subscription is about to end.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"carwash-bot/internal/metrics"
	"carwash-bot/internal/models"
	"carwash-bot/pkg/logger"
)

type Source interface {
	ListExpiring(ctx context.Context, from, to time.Time) ([]models.Account, error)
}

type Notifier interface {
	NotifyExpiring(ctx context.Context, acc models.Account) error
}

type Service struct {
	source   Source
	notifier Notifier
	window   time.Duration
	now      func() time.Time
	logger   *logger.Logger
	cron     *cron.Cron
}

func NewService(source Source, notifier Notifier, window time.Duration, logger *logger.Logger) *Service {
	return &Service{
		source:   source,
		notifier: notifier,
		window:   window,
		now:      time.Now,
		logger:   logger,
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Run notifies every chat-linked account whose subscription ends within the window.
// It returns how many reminders were delivered.
func (s *Service) Run(ctx context.Context) (int, error) {
	now := s.now()
	accounts, err := s.source.ListExpiring(ctx, now, now.Add(s.window))
	if err != nil {
		return 0, fmt.Errorf("list expiring accounts: %w", err)
	}

	sent := 0
	for _, acc := range accounts {
		if err := s.notifier.NotifyExpiring(ctx, acc); err != nil {
			s.logger.Warnw("Failed to send reminder", "account_id", acc.ID, "error", err)
			continue
		}
		sent++
		metrics.RemindersSent.Inc()
	}
	return sent, nil
}

// Schedule registers Run under a six-field cron spec (with seconds).
func (s *Service) Schedule(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		sent, err := s.Run(ctx)
		if err != nil {
			s.logger.Errorw("Reminder run failed", "error", err)
			return
		}
		s.logger.Infow("Reminder run finished", "sent", sent)
	})
	if err != nil {
		return fmt.Errorf("schedule reminders %q: %w", spec, err)
	}
	return nil
}

func (s *Service) Start() {
	s.cron.Start()
}

func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}
