package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
)

// DefaultAuditLimit is the page size used when the caller asks for none.
const DefaultAuditLimit = 100

// AuditLog appends records inside the transaction of the mutation they
// describe, so a failed append fails the mutation too.
type AuditLog struct {
	base
	maxLimit int
}

func NewAuditLog(t dbx.Transactor, m repomanager.RepositoryManager, maxLimit int, logger logging.Logger) *AuditLog {
	return &AuditLog{
		base:     newBase(t, m, logger, "audit"),
		maxLimit: maxLimit,
	}
}

func (a *AuditLog) Append(ctx context.Context, tx dbx.DBTX, rec *models.AuditRecord) error {
	if rec.TargetType == "" {
		rec.TargetType = models.TargetAccount
	}
	return a.repomanager.AuditLogs(tx).Append(ctx, rec)
}

// Query returns the newest records for an admin actor. Anyone else, including
// an unknown actor, gets an empty list.
func (a *AuditLog) Query(ctx context.Context, actorID int64, limit int) ([]models.AuditRecord, error) {
	list := []models.AuditRecord{}
	err := a.withTx(ctx, "query audit log", func(ctx context.Context, tx dbx.DBTX) error {
		ok, err := isActingAdmin(ctx, a.repomanager.Accounts(tx), actorID)
		if err != nil || !ok {
			return err
		}
		list, err = a.repomanager.AuditLogs(tx).List(ctx, a.clamp(limit))
		return err
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// Since returns records with ID > afterID, oldest first, up to the first
// record inserted less than settle ago. It is meant for system consumers
// such as the archiver: it performs no role check and ignores the query cap.
func (a *AuditLog) Since(ctx context.Context, afterID int64, settle time.Duration, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}

	var list []models.AuditRecord
	err := a.withTx(ctx, "read audit log", func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		list, err = a.repomanager.AuditLogs(tx).ListAfter(ctx, afterID, settle, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (a *AuditLog) clamp(limit int) int {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	if a.maxLimit > 0 && limit > a.maxLimit {
		limit = a.maxLimit
	}
	return limit
}

// isActingAdmin reports whether id names an active admin account.
func isActingAdmin(ctx context.Context, repo accounts.Repository, id int64) (bool, error) {
	actor, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	return actor.IsAdmin() && actor.Active, nil
}

func newRecord(actorID int64, action string, targetID int64, oldValues, newValues map[string]any, ip, userAgent string) *models.AuditRecord {
	return &models.AuditRecord{
		ActorID:    &actorID,
		Action:     action,
		TargetType: models.TargetAccount,
		TargetID:   &targetID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IP:         ip,
		UserAgent:  userAgent,
	}
}

// snapshot is the personal and status data recorded around lifecycle changes.
func snapshot(a *models.Account) map[string]any {
	return map[string]any{
		"username":   a.Username,
		"email":      a.Email,
		"first_name": a.Profile.FirstName,
		"last_name":  a.Profile.LastName,
		"company":    a.Profile.Company,
		"phone":      a.Profile.Phone,
		"role":       string(a.Role),
		"is_active":  a.Active,
	}
}
