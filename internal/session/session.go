// Package session keeps per-chat conversation state between updates.
package session

import (
	"context"

	"carwash-bot/internal/models"
)

// Store loads and saves conversation sessions keyed by chat id.
// Get never reports a missing session: absent or expired entries come back idle.
type Store interface {
	Get(ctx context.Context, chatID int64) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, chatID int64) error
}
