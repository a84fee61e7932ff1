package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
)

var (
	errAdminDemotion     = fmt.Errorf("%w: administrator accounts cannot be demoted", common.ErrInvariantViolation)
	errAdminDeletion     = fmt.Errorf("%w: administrator accounts cannot be deleted", common.ErrInvariantViolation)
	errAdminSelfDeletion = fmt.Errorf("%w: administrators cannot delete their own account, anonymize it instead", common.ErrInvariantViolation)
	errSelfAnonymization = fmt.Errorf("%w: you cannot anonymize your own account", common.ErrInvariantViolation)
)

// RoleGuard performs the admin-only account transitions. The target row is
// locked for the whole check-and-write, and the writes themselves refuse to
// demote or delete an admin, so the protection holds under concurrency.
type RoleGuard struct {
	base
	audit *AuditLog
}

func NewRoleGuard(t dbx.Transactor, m repomanager.RepositoryManager, audit *AuditLog, logger logging.Logger) *RoleGuard {
	return &RoleGuard{
		base:  newBase(t, m, logger, "roleguard"),
		audit: audit,
	}
}

func (g *RoleGuard) requireAdmin(ctx context.Context, repo accounts.Repository, actorID int64) error {
	ok, err := isActingAdmin(ctx, repo, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrForbidden
	}
	return nil
}

func lockTarget(ctx context.Context, repo accounts.Repository, id int64) (*models.Account, error) {
	target, err := repo.GetByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("account %d: %w", id, common.ErrorNotFound)
		}
		return nil, err
	}
	return target, nil
}

func (g *RoleGuard) UpdateRole(ctx context.Context, req UpdateRoleRequest) error {
	return g.withTx(ctx, "update role", func(ctx context.Context, tx dbx.DBTX) error {
		repo := g.repomanager.Accounts(tx)

		if err := g.requireAdmin(ctx, repo, req.ActorID); err != nil {
			return err
		}

		role, err := models.ParseRole(req.NewRole)
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrValidation, err)
		}

		target, err := lockTarget(ctx, repo, req.TargetID)
		if err != nil {
			return err
		}
		if target.IsAdmin() && role != models.RoleAdmin {
			return errAdminDemotion
		}
		if target.Role == role {
			return nil
		}

		applied, err := repo.UpdateRole(ctx, target.ID, role, g.now())
		if err != nil {
			return err
		}
		if !applied {
			return errAdminDemotion
		}

		err = g.audit.Append(ctx, tx, newRecord(req.ActorID, models.ActionRoleChange, target.ID,
			map[string]any{"role": string(target.Role)},
			map[string]any{"role": string(role)},
			req.IP, req.UserAgent))
		if err != nil {
			return err
		}

		g.logger.Info(ctx, "role changed", "actor_id", req.ActorID, "account_id", target.ID, "role", role)
		return nil
	})
}

// DeleteAccount removes a member account on behalf of an admin.
func (g *RoleGuard) DeleteAccount(ctx context.Context, req DeleteAccountRequest) error {
	return g.withTx(ctx, "delete account", func(ctx context.Context, tx dbx.DBTX) error {
		repo := g.repomanager.Accounts(tx)

		if err := g.requireAdmin(ctx, repo, req.ActorID); err != nil {
			return err
		}
		if req.TargetID == req.ActorID {
			return errAdminSelfDeletion
		}

		target, err := lockTarget(ctx, repo, req.TargetID)
		if err != nil {
			return err
		}
		if target.IsAdmin() {
			return errAdminDeletion
		}

		return g.remove(ctx, tx, repo, target, req.ActorID, models.ActionUserDelete, req.IP, req.UserAgent)
	})
}

// DeleteOwnAccount lets a member close their own account.
func (g *RoleGuard) DeleteOwnAccount(ctx context.Context, req DeleteOwnAccountRequest) error {
	return g.withTx(ctx, "delete own account", func(ctx context.Context, tx dbx.DBTX) error {
		repo := g.repomanager.Accounts(tx)

		target, err := lockTarget(ctx, repo, req.AccountID)
		if err != nil {
			return err
		}
		if target.IsAdmin() {
			return errAdminSelfDeletion
		}

		return g.remove(ctx, tx, repo, target, target.ID, models.ActionUserSelfDelete, req.IP, req.UserAgent)
	})
}

// remove writes the audit record first: once the row is gone nothing is
// left to describe.
func (g *RoleGuard) remove(ctx context.Context, tx dbx.DBTX, repo accounts.Repository, target *models.Account,
	actorID int64, action, ip, userAgent string) error {

	err := g.audit.Append(ctx, tx, newRecord(actorID, action, target.ID,
		map[string]any{"username": target.Username, "email": target.Email, "role": string(target.Role)},
		nil, ip, userAgent))
	if err != nil {
		return err
	}

	deleted, err := repo.Delete(ctx, target.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return errAdminDeletion
	}

	g.logger.Info(ctx, "account deleted", "actor_id", actorID, "account_id", target.ID, "action", action)
	return nil
}

// AnonymizeAccount replaces the personal data of any account, admins
// included, with placeholders derived from its id and deactivates it. The
// role is kept.
func (g *RoleGuard) AnonymizeAccount(ctx context.Context, req AnonymizeRequest) (*AnonymizeResult, error) {
	var result *AnonymizeResult
	err := g.withTx(ctx, "anonymize account", func(ctx context.Context, tx dbx.DBTX) error {
		repo := g.repomanager.Accounts(tx)

		if err := g.requireAdmin(ctx, repo, req.ActorID); err != nil {
			return err
		}
		if req.TargetID == req.ActorID {
			return errSelfAnonymization
		}

		target, err := lockTarget(ctx, repo, req.TargetID)
		if err != nil {
			return err
		}

		anon := models.AnonymizedFor(target.ID, target.Role)
		if err := repo.Anonymize(ctx, target.ID, anon, g.now()); err != nil {
			return err
		}

		after := *target
		after.Username = anon.Username
		after.Email = anon.Email
		after.Profile = models.Profile{FirstName: anon.FirstName, LastName: anon.LastName}
		after.Active = false

		err = g.audit.Append(ctx, tx, newRecord(req.ActorID, models.ActionUserAnonymize, target.ID,
			snapshot(target), snapshot(&after), req.IP, req.UserAgent))
		if err != nil {
			return err
		}

		result = &AnonymizeResult{AccountID: target.ID, Username: anon.Username, Email: anon.Email}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info(ctx, "account anonymized", "actor_id", req.ActorID, "account_id", req.TargetID)
	return result, nil
}

// ListUsers returns every account, newest first, to an active admin and an
// empty list to anyone else.
func (g *RoleGuard) ListUsers(ctx context.Context, actorID int64) ([]models.AccountView, error) {
	views := []models.AccountView{}
	err := g.withTx(ctx, "list users", func(ctx context.Context, tx dbx.DBTX) error {
		repo := g.repomanager.Accounts(tx)

		ok, err := isActingAdmin(ctx, repo, actorID)
		if err != nil || !ok {
			return err
		}

		list, err := repo.List(ctx)
		if err != nil {
			return err
		}
		for _, a := range list {
			views = append(views, a.View())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}
