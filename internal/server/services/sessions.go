package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
)

const sessionTokenBytes = 32

// SessionRegistry records logins as revocable sessions. Revoking a session
// does not invalidate bearer tokens that were already issued.
type SessionRegistry struct {
	base
	validity time.Duration
}

func NewSessionRegistry(t dbx.Transactor, m repomanager.RepositoryManager, validity time.Duration, logger logging.Logger) *SessionRegistry {
	return &SessionRegistry{
		base:     newBase(t, m, logger, "sessions"),
		validity: validity,
	}
}

// Create opens a session inside the caller's transaction.
func (r *SessionRegistry) Create(ctx context.Context, tx dbx.DBTX, accountID int64, ip, userAgent string) (*models.Session, error) {
	token, err := common.MakeRandToken(sessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	return r.repomanager.Sessions(tx).Create(ctx, &models.Session{
		AccountID: accountID,
		Token:     token,
		IP:        ip,
		UserAgent: userAgent,
		ExpiresAt: r.now().Add(r.validity),
	})
}

// Revoke is idempotent: unknown and already revoked tokens succeed.
func (r *SessionRegistry) Revoke(ctx context.Context, token string) error {
	return r.withTx(ctx, "revoke session", func(ctx context.Context, tx dbx.DBTX) error {
		return r.repomanager.Sessions(tx).Revoke(ctx, token)
	})
}
