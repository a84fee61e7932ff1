// Package accounts declares the repository contract for account rows and
// its PostgreSQL implementation.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Repository is the account storage contract. Lookups return
// common.ErrorNotFound for missing rows; email and username comparisons are
// case-insensitive.
type Repository interface {
	// Create inserts a and fills its ID and timestamps. A unique-index race
	// surfaces as *common.DuplicateError.
	Create(ctx context.Context, a *models.Account) (*models.Account, error)

	// FindConflict reports which field ("username" or "email") already
	// exists, or "" when both are free.
	FindConflict(ctx context.Context, username, email string) (string, error)

	GetByID(ctx context.Context, id int64) (*models.Account, error)

	// GetByIDForUpdate reads the row and holds an exclusive lock on it until
	// the enclosing transaction ends.
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Account, error)

	GetActiveByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)

	// List returns all accounts, newest first.
	List(ctx context.Context) ([]*models.Account, error)

	// UpdateRole is a compare-and-swap: it never demotes an admin and
	// reports false when the row was not changed for that reason (or is gone).
	UpdateRole(ctx context.Context, id int64, role models.Role, at time.Time) (bool, error)

	UpdatePassword(ctx context.Context, id int64, hash string, at time.Time) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error

	// Anonymize replaces personal data, clears company/phone and deactivates
	// the account. The role is left untouched.
	Anonymize(ctx context.Context, id int64, anon models.Anonymized, at time.Time) error

	// Delete removes a non-admin account and reports whether a row went away.
	Delete(ctx context.Context, id int64) (bool, error)
}
