// Package accounttest provides an in-memory account repository for tests.
package accounttest

import (
	"context"
	"sort"
	"sync"
	"time"

	"carwash-bot/internal/models"
)

// Repository mirrors the unique constraints of the accounts table.
type Repository struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]*models.Account
	payments map[string]models.Payment

	// Err, when set, is returned by every call.
	Err error
}

func NewRepository() *Repository {
	return &Repository{
		accounts: make(map[int64]*models.Account),
		payments: make(map[string]models.Payment),
	}
}

func (r *Repository) CreateAccount(_ context.Context, acc *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}

	for _, existing := range r.accounts {
		if existing.Login == acc.Login {
			return models.ErrLoginTaken
		}
		if acc.ExternalUserID != nil && existing.ExternalUserID != nil && *existing.ExternalUserID == *acc.ExternalUserID {
			return models.ErrAlreadyRegistered
		}
	}

	r.nextID++
	acc.ID = r.nextID
	stored := clone(acc)
	r.accounts[acc.ID] = stored
	return nil
}

func (r *Repository) GetByExternalID(_ context.Context, externalID int64) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	if acc := r.byExternalID(externalID); acc != nil {
		return clone(acc), nil
	}
	return nil, models.ErrNotFound
}

func (r *Repository) GetByLogin(_ context.Context, login string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, acc := range r.accounts {
		if acc.Login == login {
			return clone(acc), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *Repository) UpdateSubscription(_ context.Context, externalID int64, fn func(current *time.Time) *time.Time) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	acc := r.byExternalID(externalID)
	if acc == nil {
		return nil, models.ErrNotFound
	}
	acc.SubscriptionEnd = copyTime(fn(copyTime(acc.SubscriptionEnd)))
	return clone(acc), nil
}

func (r *Repository) ApplyPayment(_ context.Context, p models.Payment, fn func(current *time.Time) *time.Time) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	if _, seen := r.payments[p.SessionID]; seen {
		return nil, models.ErrDuplicatePayment
	}
	acc := r.byExternalID(p.ExternalUserID)
	if acc == nil {
		return nil, models.ErrNotFound
	}
	r.payments[p.SessionID] = p
	acc.SubscriptionEnd = copyTime(fn(copyTime(acc.SubscriptionEnd)))
	return clone(acc), nil
}

func (r *Repository) Stats(_ context.Context, now time.Time) (models.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return models.Stats{}, r.Err
	}
	var s models.Stats
	for _, acc := range r.accounts {
		s.Total++
		if acc.Subscribed(now) {
			s.Active++
		}
		if acc.ExternalUserID == nil {
			s.Unclaimed++
		}
	}
	return s, nil
}

func (r *Repository) ListExpiring(_ context.Context, from, to time.Time) ([]models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var out []models.Account
	for _, acc := range r.accounts {
		if acc.ExternalUserID == nil || acc.SubscriptionEnd == nil {
			continue
		}
		if acc.SubscriptionEnd.After(from) && !acc.SubscriptionEnd.After(to) {
			out = append(out, *clone(acc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put stores acc as-is, bypassing constraint checks. Useful for seeding.
func (r *Repository) Put(acc models.Account) *models.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	acc.ID = r.nextID
	r.accounts[acc.ID] = clone(&acc)
	return clone(&acc)
}

func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

func (r *Repository) byExternalID(externalID int64) *models.Account {
	for _, acc := range r.accounts {
		if acc.ExternalUserID != nil && *acc.ExternalUserID == externalID {
			return acc
		}
	}
	return nil
}

func clone(acc *models.Account) *models.Account {
	c := *acc
	if acc.ExternalUserID != nil {
		id := *acc.ExternalUserID
		c.ExternalUserID = &id
	}
	c.SubscriptionEnd = copyTime(acc.SubscriptionEnd)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
