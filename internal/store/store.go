// Package store persists accounts and advisory history.
package store

import (
	"context"
	"errors"

	"github.com/kjstillabower/irrigation-advisor/internal/models"
)

var (
	ErrDuplicateUsername = errors.New("username already exists")
	ErrNotFound          = errors.New("not found")
	ErrInvalidID         = errors.New("invalid id")
)

// DefaultHistoryLimit is the number of records returned by a history listing.
const DefaultHistoryLimit = 10

// AccountStore persists registered users. Usernames are unique.
type AccountStore interface {
	// CreateAccount assigns an ID and stores the account. Returns ErrDuplicateUsername
	// when the username is taken.
	CreateAccount(ctx context.Context, acct models.Account) (models.Account, error)
	AccountByUsername(ctx context.Context, username string) (models.Account, error)
	AccountByID(ctx context.Context, id string) (models.Account, error)
}

// HistoryStore persists advisory results per user.
type HistoryStore interface {
	// AddRecord assigns an ID and a creation time when unset.
	AddRecord(ctx context.Context, rec models.HistoryRecord) (models.HistoryRecord, error)
	// RecentRecords returns up to limit records for userID, newest first.
	RecentRecords(ctx context.Context, userID string, limit int) ([]models.HistoryRecord, error)
	// DeleteRecord removes a record by id. Deleting an unknown id is not an error.
	DeleteRecord(ctx context.Context, id string) error
}

// Store is the full persistence surface used by the service.
type Store interface {
	AccountStore
	HistoryStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
