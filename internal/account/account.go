// Package account implements registration, provisioning and the subscription
// lifecycle on top of an account repository.
package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	mrand "math/rand"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"carwash-bot/internal/metrics"
	"carwash-bot/internal/models"
	"carwash-bot/internal/subscription"
	"carwash-bot/internal/translit"
)

const (
	PasswordLength = 8
	MinDays        = 1
	MaxDays        = 3650
	// MaxNameLength is the width of the name columns, in characters.
	MaxNameLength  = 200

	// loginAttempts counts the base candidate plus suffixed retries.
	loginAttempts = 5
)

var (
	ErrInvalidName   = errors.New("name must contain letters or digits")
	ErrNameTooLong   = fmt.Errorf("name must be at most %d characters", MaxNameLength)
	ErrInvalidDays   = fmt.Errorf("day count must be an integer between %d and %d", MinDays, MaxDays)
	ErrInvalidPeriod = errors.New("unsupported subscription period")
)

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Repository is the persistence the service needs. Each call is its own transaction.
type Repository interface {
	CreateAccount(ctx context.Context, acc *models.Account) error
	GetByExternalID(ctx context.Context, externalID int64) (*models.Account, error)
	GetByLogin(ctx context.Context, login string) (*models.Account, error)
	// UpdateSubscription locks the account row, replaces subscription_end with fn(current) and returns the updated row.
	UpdateSubscription(ctx context.Context, externalID int64, fn func(current *time.Time) *time.Time) (*models.Account, error)
	// ApplyPayment records the payment and updates the subscription atomically.
	ApplyPayment(ctx context.Context, p models.Payment, fn func(current *time.Time) *time.Time) (*models.Account, error)
	Stats(ctx context.Context, now time.Time) (models.Stats, error)
}

type Service struct {
	repo   Repository
	now    func() time.Time
	suffix func(lo, hi int) int
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSuffixSource replaces the random login suffix generator. It must return a value in [lo, hi].
func WithSuffixSource(fn func(lo, hi int) int) Option {
	return func(s *Service) { s.suffix = fn }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		now:  time.Now,
		suffix: func(lo, hi int) int {
			return lo + mrand.Intn(hi-lo+1)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) Lookup(ctx context.Context, externalID int64) (*models.Account, error) {
	return s.repo.GetByExternalID(ctx, externalID)
}

// ResolveLogin derives a free login from the business name. The base slug is
// tried first, then slugs with a random numeric suffix.
func (s *Service) ResolveLogin(ctx context.Context, businessName string) (string, error) {
	base := translit.Login(businessName)
	if base == "" {
		return "", ErrInvalidName
	}

	candidate := base
	for attempt := 0; attempt < loginAttempts; attempt++ {
		if attempt > 0 {
			candidate = base + strconv.Itoa(s.suffixFor(attempt))
		}
		_, err := s.repo.GetByLogin(ctx, candidate)
		switch {
		case errors.Is(err, models.ErrNotFound):
			return candidate, nil
		case err != nil:
			return "", fmt.Errorf("check login %q: %w", candidate, err)
		}
	}
	return "", models.ErrLoginTaken
}

func (s *Service) suffixFor(attempt int) int {
	if attempt <= 2 {
		return s.suffix(1, 99)
	}
	return s.suffix(100, 9999)
}

type RegisterInput struct {
	ExternalUserID int64
	BusinessName   string
	OwnerName      string
	Login          string
}

// Register creates a chat-linked account with a generated password and no subscription.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	_, err := s.repo.GetByExternalID(ctx, in.ExternalUserID)
	switch {
	case err == nil:
		return nil, models.ErrAlreadyRegistered
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	acc, err := s.newAccount(in.BusinessName, in.OwnerName, in.Login)
	if err != nil {
		return nil, err
	}
	externalID := in.ExternalUserID
	acc.ExternalUserID = &externalID

	if err := s.repo.CreateAccount(ctx, acc); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	metrics.Registrations.Inc()
	return acc, nil
}

type ProvisionInput struct {
	BusinessName string
	OwnerName    string
	Login        string
	Days         int
}

// Provision creates an account without a chat link whose subscription ends Days from now.
func (s *Service) Provision(ctx context.Context, in ProvisionInput) (*models.Account, error) {
	if in.Days < MinDays || in.Days > MaxDays {
		return nil, ErrInvalidDays
	}

	acc, err := s.newAccount(in.BusinessName, in.OwnerName, in.Login)
	if err != nil {
		return nil, err
	}
	end := acc.CreatedAt.Add(time.Duration(in.Days) * subscription.Day)
	acc.SubscriptionEnd = &end

	if err := s.repo.CreateAccount(ctx, acc); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	metrics.Provisions.Inc()
	return acc, nil
}

func (s *Service) newAccount(businessName, ownerName, login string) (*models.Account, error) {
	businessName = strings.TrimSpace(businessName)
	ownerName = strings.TrimSpace(ownerName)
	if businessName == "" || ownerName == "" || login == "" {
		return nil, ErrInvalidName
	}
	if !ValidNameLength(businessName) || !ValidNameLength(ownerName) {
		return nil, ErrNameTooLong
	}

	password, err := GeneratePassword(PasswordLength)
	if err != nil {
		return nil, err
	}

	return &models.Account{
		Login:        login,
		Password:     password,
		BusinessName: businessName,
		OwnerName:    ownerName,
		CreatedAt:    s.now(),
	}, nil
}

// Extend adds months*30 days to the subscription, counting from now when it has lapsed.
func (s *Service) Extend(ctx context.Context, externalID int64, months int) (*models.Account, error) {
	if months <= 0 {
		return nil, ErrInvalidPeriod
	}
	now := s.now()
	acc, err := s.repo.UpdateSubscription(ctx, externalID, func(current *time.Time) *time.Time {
		end := subscription.Extend(now, current, months)
		return &end
	})
	if err != nil {
		return nil, err
	}
	metrics.ObserveExtension(months)
	return acc, nil
}

// ApplyPayment extends the subscription of a paid checkout. Redelivered
// checkouts return models.ErrDuplicatePayment.
func (s *Service) ApplyPayment(ctx context.Context, sessionID string, externalID int64, months int) (*models.Account, error) {
	if months <= 0 {
		return nil, ErrInvalidPeriod
	}
	now := s.now()
	p := models.Payment{SessionID: sessionID, ExternalUserID: externalID, Months: months, CreatedAt: now}
	acc, err := s.repo.ApplyPayment(ctx, p, func(current *time.Time) *time.Time {
		end := subscription.Extend(now, current, months)
		return &end
	})
	if err != nil {
		return nil, err
	}
	metrics.ObserveExtension(months)
	return acc, nil
}

// Cancel clears the subscription end. It reports whether a subscription was active before the call.
func (s *Service) Cancel(ctx context.Context, externalID int64) (bool, error) {
	now := s.now()
	var wasActive bool
	_, err := s.repo.UpdateSubscription(ctx, externalID, func(current *time.Time) *time.Time {
		wasActive = current != nil && current.After(now)
		return nil
	})
	if err != nil {
		return false, err
	}
	if wasActive {
		metrics.Cancellations.Inc()
	}
	return wasActive, nil
}

// Status loads the account of externalID together with its derived subscription status.
func (s *Service) Status(ctx context.Context, externalID int64) (*models.Account, subscription.Status, error) {
	acc, err := s.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, subscription.Status{}, err
	}
	return acc, subscription.Classify(s.now(), acc.SubscriptionEnd), nil
}

func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	return s.repo.Stats(ctx, s.now())
}

// ValidNameLength reports whether name fits the name columns.
func ValidNameLength(name string) bool {
	return utf8.RuneCountInString(name) <= MaxNameLength
}

// ParseDays validates a free-form day count.
func ParseDays(text string) (int, error) {
	days, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || days < MinDays || days > MaxDays {
		return 0, ErrInvalidDays
	}
	return days, nil
}

// GeneratePassword returns n characters drawn uniformly from [a-zA-Z0-9].
func GeneratePassword(n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		buf[i] = passwordAlphabet[idx.Int64()]
	}
	return string(buf), nil
}
