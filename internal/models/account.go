// internal/models/account.go
package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("account not found")
	ErrLoginTaken        = errors.New("login already taken")
	ErrAlreadyRegistered = errors.New("telegram user already has an account")
)

// Account is one car-wash business. ExternalUserID is nil for accounts
// provisioned by the administrator.
type Account struct {
	ID              int64      `json:"id"`
	ExternalUserID  *int64     `json:"external_user_id,omitempty"`
	Login           string     `json:"login"`
	Password        string     `json:"-"`
	BusinessName    string     `json:"business_name"`
	OwnerName       string     `json:"owner_name"`
	SubscriptionEnd *time.Time `json:"subscription_end,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Subscribed reports whether the subscription end lies strictly after now.
func (a *Account) Subscribed(now time.Time) bool {
	return a.SubscriptionEnd != nil && a.SubscriptionEnd.After(now)
}

type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Unclaimed int `json:"unclaimed"`
}

var ErrDuplicatePayment = errors.New("payment already applied")

// Payment records a completed checkout so that redelivered webhooks are applied once.
type Payment struct {
	SessionID      string    `json:"session_id"`
	ExternalUserID int64     `json:"external_user_id"`
	Months         int       `json:"months"`
	CreatedAt      time.Time `json:"created_at"`
}
