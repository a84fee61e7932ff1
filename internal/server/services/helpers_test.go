package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/credentials"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/auditlogs"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "s3cret-pass"

type fixture struct {
	store    *memory.Store
	accounts *AccountService
	guard    *RoleGuard
	audit    *AuditLog
	sessions *SessionRegistry
	tokens   *auth.TokenService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	return newFixtureWith(t, store, store)
}

func newFixtureWith(t *testing.T, tr dbx.Transactor, m repomanager.RepositoryManager) *fixture {
	t.Helper()
	logger := logging.NewNopLogger()

	audit := NewAuditLog(tr, m, 1000, logger)
	sessions := NewSessionRegistry(tr, m, 24*time.Hour, logger)
	tokens := auth.NewTokenService([]byte("test-secret"), 24*time.Hour, 30*time.Second)
	hasher := credentials.NewHasher(bcrypt.MinCost)

	f := &fixture{
		accounts: NewAccountService(tr, m, hasher, tokens, sessions, audit, logger),
		guard:    NewRoleGuard(tr, m, audit, logger),
		audit:    audit,
		sessions: sessions,
		tokens:   tokens,
	}
	if s, ok := tr.(*memory.Store); ok {
		f.store = s
	}
	return f
}

func (f *fixture) register(t *testing.T, username string) int64 {
	t.Helper()
	id, err := f.accounts.Register(context.Background(), RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
		Profile:  models.Profile{FirstName: "First " + username, LastName: "Last", Company: "ACME", Phone: "+100"},
		IP:       "10.0.0.1",
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) bootstrapAdmin(t *testing.T, username string) int64 {
	t.Helper()
	id, err := f.accounts.BootstrapAdmin(context.Background(), RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) account(t *testing.T, id int64) *models.AccountView {
	t.Helper()
	v, err := f.accounts.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return v
}

// actions returns the audit actions recorded so far, oldest first.
func (f *fixture) actions(t *testing.T) []string {
	t.Helper()
	recs, err := f.audit.Since(context.Background(), 0, 0, 1000)
	require.NoError(t, err)
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Action)
	}
	return out
}

// faultyManager wraps the memory store to inject failures.
type faultyManager struct {
	*memory.Store
	auditErr        error
	ignoreConflicts bool
	accountCalls    *[]accountCall
}

func (m *faultyManager) Accounts(db dbx.DBTX) accounts.Repository {
	repo := m.Store.Accounts(db)
	if m.ignoreConflicts {
		return noConflictAccounts{Repository: repo}
	}
	if m.accountCalls != nil {
		return recordingAccounts{Repository: repo, db: db, calls: m.accountCalls}
	}
	return repo
}

func (m *faultyManager) AuditLogs(db dbx.DBTX) auditlogs.Repository {
	if m.auditErr != nil {
		return failingAudit{Repository: m.Store.AuditLogs(db), err: m.auditErr}
	}
	return m.Store.AuditLogs(db)
}

// noConflictAccounts skips the pre-check so inserts race into the unique
// constraint.
type noConflictAccounts struct {
	accounts.Repository
}

func (noConflictAccounts) FindConflict(context.Context, string, string) (string, error) {
	return "", nil
}

type accountCall struct {
	method string
	db     dbx.DBTX
}

// recordingAccounts logs the account reads and password writes with the
// handle they ran on.
type recordingAccounts struct {
	accounts.Repository
	db    dbx.DBTX
	calls *[]accountCall
}

func (r recordingAccounts) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	*r.calls = append(*r.calls, accountCall{"GetByID", r.db})
	return r.Repository.GetByID(ctx, id)
}

func (r recordingAccounts) GetByIDForUpdate(ctx context.Context, id int64) (*models.Account, error) {
	*r.calls = append(*r.calls, accountCall{"GetByIDForUpdate", r.db})
	return r.Repository.GetByIDForUpdate(ctx, id)
}

func (r recordingAccounts) UpdatePassword(ctx context.Context, id int64, hash string, at time.Time) error {
	*r.calls = append(*r.calls, accountCall{"UpdatePassword", r.db})
	return r.Repository.UpdatePassword(ctx, id, hash, at)
}

type failingAudit struct {
	auditlogs.Repository
	err error
}

func (f failingAudit) Append(context.Context, *models.AuditRecord) error {
	return f.err
}
