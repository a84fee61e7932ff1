// Package server assembles the gatekeeper process: it opens the store,
// builds the identity services and runs the gRPC endpoint and the audit
// archiver until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auditexport"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/credentials"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"

	gs "github.com/dmitrijs2005/gatekeeper/internal/server/grpc"
)

// sqlOpen is a test seam for sql.Open.
var sqlOpen = sql.Open

// minArchiveSettle is the settle window used when transactions are unbounded.
const minArchiveSettle = 30 * time.Second

// archiveSettle is how old an audit record must be before it is archived.
// StatementTimeout bounds every transaction, so twice that leaves every id
// below a settled record committed or rolled back.
func archiveSettle(c config.Config) time.Duration {
	return max(2*c.StatementTimeout, minArchiveSettle)
}

type App struct {
	config   config.Config
	logger   logging.Logger
	db       *sql.DB
	accounts *services.AccountService
	guard    *services.RoleGuard
	audit    *services.AuditLog
}

// NewApp opens the configured store, applies migrations and builds the
// services. DSN config.MemoryDSN selects the in-memory store.
func NewApp(ctx context.Context, c config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: c, logger: logger}

	var (
		t dbx.Transactor
		m repomanager.RepositoryManager
	)

	if c.DatabaseDSN == config.MemoryDSN {
		logger.Warn(ctx, "using in-memory store, data is lost on exit")
		store := memory.NewStore()
		t, m = store, store
	} else {
		db, err := sqlOpen("pgx", c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		pm := repomanager.NewPostgresRepositoryManager()
		if err := pm.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrations error: %w", err)
		}
		app.db = db
		t, m = dbx.NewSQLTransactor(db, c.StatementTimeout), pm
	}

	if c.SecretKey == config.DefaultSecretKey {
		logger.Warn(ctx, "default token secret in use, set GATEKEEPER_SECRET_KEY")
	}

	hasher := credentials.NewHasher(c.BcryptCost)
	tokens := auth.NewTokenService([]byte(c.SecretKey), c.TokenValidityDuration, c.TokenLeeway)
	sessions := services.NewSessionRegistry(t, m, c.SessionValidityDuration, logger)
	app.audit = services.NewAuditLog(t, m, c.AuditQueryMaxLimit, logger)
	app.guard = services.NewRoleGuard(t, m, app.audit, logger)
	app.accounts = services.NewAccountService(t, m, hasher, tokens, sessions, app.audit, logger)

	return app, nil
}

func (app *App) Accounts() *services.AccountService { return app.accounts }

func (app *App) RoleGuard() *services.RoleGuard { return app.guard }

func (app *App) AuditLog() *services.AuditLog { return app.audit }

// Close releases the database handle, if any.
func (app *App) Close() error {
	if app.db == nil {
		return nil
	}
	return app.db.Close()
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	directory := gs.NewDirectoryService(app.accounts, app.guard, app.audit)
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.accounts, gs.DirectoryPolicy,
		gs.RegisterDirectory(directory))

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startArchiver(ctx context.Context) {
	if app.config.AuditArchiveInterval <= 0 || app.config.S3Bucket == "" {
		app.logger.Info(ctx, "audit archiver disabled")
		return
	}

	client, err := auditexport.NewS3Client(ctx, app.config)
	if err != nil {
		app.logger.Error(ctx, "audit archiver not started", "error", err)
		return
	}

	a := auditexport.NewArchiver(app.audit, client, app.config.S3Bucket,
		app.config.AuditArchiveInterval, archiveSettle(app.config), auditexport.DefaultBatchSize, app.logger)
	if err := a.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startArchiver(ctx)
	}()

	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
