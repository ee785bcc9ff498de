package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carwash-bot/internal/account/accounttest"
	"carwash-bot/internal/models"
	"carwash-bot/pkg/logger"
)

type recordingNotifier struct {
	got  []string
	fail map[string]bool
}

func (n *recordingNotifier) NotifyExpiring(_ context.Context, acc models.Account) error {
	if n.fail[acc.Login] {
		return errors.New("blocked by user")
	}
	n.got = append(n.got, acc.Login)
	return nil
}

func int64Ptr(v int64) *int64 { return &v }

func TestRun(t *testing.T) {
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { v := now.Add(d); return &v }

	repo := accounttest.NewRepository()
	repo.Put(models.Account{Login: "Soon", ExternalUserID: int64Ptr(1), SubscriptionEnd: at(24 * time.Hour)})
	repo.Put(models.Account{Login: "Edge", ExternalUserID: int64Ptr(2), SubscriptionEnd: at(72 * time.Hour)})
	repo.Put(models.Account{Login: "Later", ExternalUserID: int64Ptr(3), SubscriptionEnd: at(10 * 24 * time.Hour)})
	repo.Put(models.Account{Login: "Expired", ExternalUserID: int64Ptr(4), SubscriptionEnd: at(-time.Hour)})
	repo.Put(models.Account{Login: "Unclaimed", SubscriptionEnd: at(time.Hour)})
	repo.Put(models.Account{Login: "Blocked", ExternalUserID: int64Ptr(6), SubscriptionEnd: at(2 * time.Hour)})

	notifier := &recordingNotifier{fail: map[string]bool{"Blocked": true}}
	svc := NewService(repo, notifier, 72*time.Hour, logger.NewNop())
	svc.now = func() time.Time { return now }

	sent, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"Soon", "Edge"}, notifier.got)
}

func TestRun_SourceError(t *testing.T) {
	repo := accounttest.NewRepository()
	repo.Err = errors.New("db down")
	svc := NewService(repo, &recordingNotifier{}, time.Hour, logger.NewNop())

	_, err := svc.Run(context.Background())
	assert.Error(t, err)
}

func TestSchedule(t *testing.T) {
	svc := NewService(accounttest.NewRepository(), &recordingNotifier{}, time.Hour, logger.NewNop())
	assert.NoError(t, svc.Schedule("0 0 10 * * *"))
	assert.Error(t, svc.Schedule("every now and then"))
}
