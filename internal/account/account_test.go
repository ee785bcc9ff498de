package account

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carwash-bot/internal/account/accounttest"
	"carwash-bot/internal/models"
	"carwash-bot/internal/subscription"
)

var now = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func newService(t *testing.T, opts ...Option) (*Service, *accounttest.Repository) {
	t.Helper()
	repo := accounttest.NewRepository()
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewService(repo, opts...), repo
}

func int64Ptr(v int64) *int64 { return &v }

func TestResolveLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("free base login", func(t *testing.T) {
		svc, _ := newService(t)
		login, err := svc.ResolveLogin(ctx, "Солнце")
		require.NoError(t, err)
		assert.Equal(t, "Solntse", login)
	})

	t.Run("collision appends suffix", func(t *testing.T) {
		svc, repo := newService(t, WithSuffixSource(func(lo, hi int) int { return 42 }))
		repo.Put(models.Account{Login: "Solntse"})

		login, err := svc.ResolveLogin(ctx, "Солнце")
		require.NoError(t, err)
		assert.Equal(t, "Solntse42", login)
	})

	t.Run("suffix collision retries with wider range", func(t *testing.T) {
		var calls [][2]int
		seq := []int{7, 7, 1234}
		svc, repo := newService(t, WithSuffixSource(func(lo, hi int) int {
			calls = append(calls, [2]int{lo, hi})
			v := seq[0]
			seq = seq[1:]
			return v
		}))
		repo.Put(models.Account{Login: "Mayak"})
		repo.Put(models.Account{Login: "Mayak7"})

		login, err := svc.ResolveLogin(ctx, "Маяк")
		require.NoError(t, err)
		assert.Equal(t, "Mayak1234", login)
		assert.Equal(t, [][2]int{{1, 99}, {1, 99}, {100, 9999}}, calls)
	})

	t.Run("exhausted attempts", func(t *testing.T) {
		svc, repo := newService(t, WithSuffixSource(func(lo, hi int) int { return 5 }))
		repo.Put(models.Account{Login: "Mayak"})
		repo.Put(models.Account{Login: "Mayak5"})

		_, err := svc.ResolveLogin(ctx, "Маяк")
		assert.ErrorIs(t, err, models.ErrLoginTaken)
	})

	t.Run("name without letters", func(t *testing.T) {
		svc, _ := newService(t)
		_, err := svc.ResolveLogin(ctx, "!!!")
		assert.ErrorIs(t, err, ErrInvalidName)
	})

	t.Run("storage failure", func(t *testing.T) {
		svc, repo := newService(t)
		repo.Err = errors.New("connection refused")
		_, err := svc.ResolveLogin(ctx, "Маяк")
		require.Error(t, err)
		assert.NotErrorIs(t, err, models.ErrLoginTaken)
	})
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	acc, err := svc.Register(ctx, RegisterInput{ExternalUserID: 100, BusinessName: " Солнце ", OwnerName: "Ivan", Login: "Solntse"})
	require.NoError(t, err)
	assert.Equal(t, "Solntse", acc.Login)
	assert.Equal(t, "Солнце", acc.BusinessName)
	assert.Equal(t, int64Ptr(100), acc.ExternalUserID)
	assert.Nil(t, acc.SubscriptionEnd)
	assert.Equal(t, now, acc.CreatedAt)
	assert.Len(t, acc.Password, PasswordLength)
	assert.Regexp(t, "^[a-zA-Z0-9]{8}$", acc.Password)

	_, err = svc.Register(ctx, RegisterInput{ExternalUserID: 100, BusinessName: "Другая", OwnerName: "Ivan", Login: "Drugaya"})
	assert.ErrorIs(t, err, models.ErrAlreadyRegistered)

	_, err = svc.Register(ctx, RegisterInput{ExternalUserID: 200, BusinessName: "Солнце", OwnerName: "Petr", Login: "Solntse"})
	assert.ErrorIs(t, err, models.ErrLoginTaken)
	assert.Equal(t, 1, repo.Len())
}

func TestNameLength(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	longName := strings.Repeat("Я", MaxNameLength+1)

	_, err := svc.Register(ctx, RegisterInput{ExternalUserID: 1, BusinessName: longName, OwnerName: "Ivan", Login: "Ya"})
	assert.ErrorIs(t, err, ErrNameTooLong)
	_, err = svc.Provision(ctx, ProvisionInput{BusinessName: "Маяк", OwnerName: longName, Login: "Mayak", Days: 10})
	assert.ErrorIs(t, err, ErrNameTooLong)
	assert.Equal(t, 0, repo.Len())

	acc, err := svc.Register(ctx, RegisterInput{ExternalUserID: 1, BusinessName: longName[:len(longName)-len("Я")], OwnerName: "Ivan", Login: "Ya"})
	require.NoError(t, err)
	assert.True(t, ValidNameLength(acc.BusinessName))
}

func TestProvision(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	acc, err := svc.Provision(ctx, ProvisionInput{BusinessName: "Маяк", OwnerName: "Petr", Login: "Mayak", Days: 90})
	require.NoError(t, err)
	assert.Nil(t, acc.ExternalUserID)
	require.NotNil(t, acc.SubscriptionEnd)
	assert.Equal(t, acc.CreatedAt.Add(90*24*time.Hour), *acc.SubscriptionEnd)

	for _, days := range []int{0, -1, 3651} {
		_, err := svc.Provision(ctx, ProvisionInput{BusinessName: "X", OwnerName: "Y", Login: "X", Days: days})
		assert.ErrorIs(t, err, ErrInvalidDays, "days=%d", days)
	}
}

func TestExtendAndCancel(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	repo.Put(models.Account{ExternalUserID: int64Ptr(7), Login: "Solntse"})

	acc, err := svc.Extend(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*subscription.Day), *acc.SubscriptionEnd)

	acc, err = svc.Extend(ctx, 7, 6)
	require.NoError(t, err)
	assert.Equal(t, now.Add(210*subscription.Day), *acc.SubscriptionEnd)

	wasActive, err := svc.Cancel(ctx, 7)
	require.NoError(t, err)
	assert.True(t, wasActive)

	wasActive, err = svc.Cancel(ctx, 7)
	require.NoError(t, err)
	assert.False(t, wasActive)

	got, err := svc.Lookup(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got.SubscriptionEnd)

	_, err = svc.Extend(ctx, 7, 0)
	assert.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = svc.Extend(ctx, 8, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = svc.Cancel(ctx, 8)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestApplyPayment(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	repo.Put(models.Account{ExternalUserID: int64Ptr(3), Login: "Paid"})

	acc, err := svc.ApplyPayment(ctx, "cs_1", 3, 6)
	require.NoError(t, err)
	assert.Equal(t, now.Add(180*subscription.Day), *acc.SubscriptionEnd)

	_, err = svc.ApplyPayment(ctx, "cs_1", 3, 6)
	assert.ErrorIs(t, err, models.ErrDuplicatePayment)

	acc, err = svc.Lookup(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, now.Add(180*subscription.Day), *acc.SubscriptionEnd)

	_, err = svc.ApplyPayment(ctx, "cs_2", 3, 0)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestCancel_ExpiredClearsEnd(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	past := now.Add(-subscription.Day)
	repo.Put(models.Account{ExternalUserID: int64Ptr(9), Login: "Old", SubscriptionEnd: &past})

	wasActive, err := svc.Cancel(ctx, 9)
	require.NoError(t, err)
	assert.False(t, wasActive)

	acc, status, err := svc.Status(ctx, 9)
	require.NoError(t, err)
	assert.Nil(t, acc.SubscriptionEnd)
	assert.Equal(t, subscription.StateNone, status.State)
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	end := now.Add(5 * subscription.Day)
	repo.Put(models.Account{ExternalUserID: int64Ptr(1), Login: "A", SubscriptionEnd: &end})

	_, status, err := svc.Status(ctx, 1)
	require.NoError(t, err)
	assert.True(t, status.Active())
	assert.Equal(t, 5, status.DaysLeft)

	_, _, err = svc.Status(ctx, 2)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	future := now.Add(subscription.Day)
	past := now.Add(-subscription.Day)
	repo.Put(models.Account{ExternalUserID: int64Ptr(1), Login: "A", SubscriptionEnd: &future})
	repo.Put(models.Account{ExternalUserID: int64Ptr(2), Login: "B", SubscriptionEnd: &past})
	repo.Put(models.Account{Login: "C", SubscriptionEnd: &future})

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Stats{Total: 3, Active: 2, Unclaimed: 1}, stats)
}

func TestParseDays(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "90", want: 90},
		{in: " 1 ", want: 1},
		{in: "3650", want: 3650},
		{in: "0", wantErr: true},
		{in: "3651", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "ten", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDays(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidDays, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestGeneratePassword(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		p, err := GeneratePassword(PasswordLength)
		require.NoError(t, err)
		assert.Regexp(t, "^[a-zA-Z0-9]{8}$", p)
		seen[p] = true
	}
	assert.Greater(t, len(seen), 45)
}
