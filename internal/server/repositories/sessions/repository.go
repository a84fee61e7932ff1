// Package sessions declares the repository contract for login sessions and
// its PostgreSQL implementation.
package sessions

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Repository stores and revokes login sessions.
type Repository interface {
	// Create inserts s and fills its ID and CreatedAt.
	Create(ctx context.Context, s *models.Session) (*models.Session, error)

	// Find returns the session with the given token, or common.ErrorNotFound.
	Find(ctx context.Context, token string) (*models.Session, error)

	// Revoke marks the session inactive. Revoking an unknown or already
	// revoked token is not an error.
	Revoke(ctx context.Context, token string) error
}
