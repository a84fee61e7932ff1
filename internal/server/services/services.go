// Package services contains the identity and access-control logic: account
// lifecycle, role changes, sessions and the audit trail. Every operation runs
// as one short transaction obtained from a dbx.Transactor, with repositories
// vended by a repomanager.RepositoryManager bound to that transaction.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
)

type base struct {
	transactor  dbx.Transactor
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time
}

func newBase(t dbx.Transactor, m repomanager.RepositoryManager, logger logging.Logger, module string) base {
	return base{
		transactor:  t,
		repomanager: m,
		logger:      logger.With("module", module),
		now:         time.Now,
	}
}

// withTx runs fn in a transaction and passes the outcome through fail.
func (b *base) withTx(ctx context.Context, op string, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return b.fail(ctx, op, b.transactor.WithTx(ctx, fn))
}

// fail returns domain errors unchanged. Anything else is logged with its
// cause and replaced by a StoreError.
func (b *base) fail(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if common.KindOf(err) != common.KindStore || errors.Is(err, common.ErrStore) {
		return err
	}
	b.logger.Error(ctx, "store failure", "op", op, "error", err)
	return common.NewStoreError(op, err)
}
