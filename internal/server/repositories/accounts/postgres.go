package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const selectColumns = `id, username, email, password_hash, role, is_active, email_verified,
		first_name, last_name, company, phone, consent_given_at, privacy_accepted_at,
		last_login_at, created_at, updated_at`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (username, email, password_hash, role, is_active, email_verified,
		     first_name, last_name, company, phone, consent_given_at, privacy_accepted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		a.Username, a.Email, a.PasswordHash, string(a.Role), a.Active, a.EmailVerified,
		nullString(a.Profile.FirstName), nullString(a.Profile.LastName),
		nullString(a.Profile.Company), nullString(a.Profile.Phone),
		a.ConsentGivenAt, a.PrivacyAcceptedAt,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, duplicateFromConstraint(pgErr.ConstraintName)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

func duplicateFromConstraint(name string) *common.DuplicateError {
	if strings.Contains(name, "username") {
		return &common.DuplicateError{Field: "username"}
	}
	return &common.DuplicateError{Field: "email"}
}

func (r *PostgresRepository) FindConflict(ctx context.Context, username, email string) (string, error) {
	query :=
		`SELECT lower(username) = lower($1), lower(email) = lower($2) FROM accounts
		 WHERE lower(username) = lower($1) OR lower(email) = lower($2)`

	rows, err := r.db.QueryContext(ctx, query, username, email)
	if err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	field := ""
	for rows.Next() {
		var sameUsername, sameEmail bool
		if err := rows.Scan(&sameUsername, &sameEmail); err != nil {
			return "", fmt.Errorf("db error: %w", err)
		}
		// username wins when both collide, even across different rows
		if sameUsername {
			field = "username"
		} else if sameEmail && field == "" {
			field = "email"
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}

	return field, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) GetActiveByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM accounts WHERE lower(email) = lower($1) AND is_active = TRUE`, email)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+selectColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM accounts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var list []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return list, nil
}

func (r *PostgresRepository) UpdateRole(ctx context.Context, id int64, role models.Role, at time.Time) (bool, error) {
	query :=
		`UPDATE accounts SET role = $2, updated_at = $3
		 WHERE id = $1 AND (role <> 'admin' OR $2 = 'admin')`

	res, err := r.db.ExecContext(ctx, query, id, string(role), at)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id int64, hash string, at time.Time) error {
	return r.execOne(ctx, `UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
}

func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return r.execOne(ctx, `UPDATE accounts SET last_login_at = $2 WHERE id = $1`, id, at)
}

func (r *PostgresRepository) Anonymize(ctx context.Context, id int64, anon models.Anonymized, at time.Time) error {
	query :=
		`UPDATE accounts SET username = $2, email = $3, first_name = $4, last_name = $5,
		     company = NULL, phone = NULL, is_active = FALSE, updated_at = $6
		 WHERE id = $1`

	return r.execOne(ctx, query, id, anon.Username, anon.Email, anon.FirstName, anon.LastName, at)
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1 AND role <> 'admin'`, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// execOne runs an UPDATE that must hit exactly one row.
func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return duplicateFromConstraint(pgErr.ConstraintName)
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a                                   models.Account
		role                                string
		firstName, lastName, company, phone sql.NullString
		lastLogin                           sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &role, &a.Active, &a.EmailVerified,
		&firstName, &lastName, &company, &phone, &a.ConsentGivenAt, &a.PrivacyAcceptedAt,
		&lastLogin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Role = models.Role(role)
	a.Profile = models.Profile{
		FirstName: firstName.String,
		LastName:  lastName.String,
		Company:   company.String,
		Phone:     phone.String,
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLoginAt = &t
	}
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
