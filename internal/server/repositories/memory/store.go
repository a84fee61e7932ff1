// Package memory is an in-process implementation of the repository manager
// and transactor, selected with the memory:// DSN. Transactions are
// serialized by one mutex and work on a private copy of the data that
// replaces the committed state only when the callback succeeds.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/auditlogs"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/sessions"
)

var (
	errNoSQL         = errors.New("memory: SQL statements are not supported")
	errForeignKey    = errors.New("memory: foreign key violation")
	errForeignHandle = errors.New("memory: repository bound to a handle that is not a memory transaction")
)

type state struct {
	accounts map[int64]models.Account
	sessions map[string]models.Session
	audit    []models.AuditRecord

	nextAccountID int64
	nextSessionID int64
	nextAuditID   int64
}

func newState() *state {
	return &state{
		accounts: map[int64]models.Account{},
		sessions: map[string]models.Session{},
	}
}

func (s *state) clone() *state {
	c := *s
	c.accounts = maps.Clone(s.accounts)
	c.sessions = maps.Clone(s.sessions)
	c.audit = append([]models.AuditRecord(nil), s.audit...)
	return &c
}

// Store implements repomanager.RepositoryManager and dbx.Transactor.
type Store struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{data: newState(), now: time.Now}
}

// WithTx runs fn against a snapshot of the data and commits it when fn
// returns nil. A cancelled context aborts before or after fn.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{st: s.data.clone(), now: s.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = tx.st
	return nil
}

func (s *Store) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (s *Store) Accounts(db dbx.DBTX) accounts.Repository {
	return &accountRepo{tx: mustTx(db)}
}

func (s *Store) Sessions(db dbx.DBTX) sessions.Repository {
	return &sessionRepo{tx: mustTx(db)}
}

func (s *Store) AuditLogs(db dbx.DBTX) auditlogs.Repository {
	return &auditRepo{tx: mustTx(db)}
}

// Tx is the handle passed to WithTx callbacks. It satisfies dbx.DBTX so the
// same service code runs on both stores, but it does not execute SQL.
type Tx struct {
	st  *state
	now func() time.Time
}

func (t *Tx) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errNoSQL
}

func (t *Tx) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errNoSQL
}

// QueryRowContext cannot build a *sql.Row carrying an error from outside
// database/sql; callers must not reach it.
func (t *Tx) QueryRowContext(context.Context, string, ...any) *sql.Row {
	panic(errNoSQL)
}

func mustTx(db dbx.DBTX) *Tx {
	tx, ok := db.(*Tx)
	if !ok {
		panic(errForeignHandle)
	}
	return tx
}
