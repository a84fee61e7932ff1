package auditlogs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

const selectColumns = `l.id, l.actor_id, l.action, l.target_type, l.target_id, l.old_values, l.new_values,
		COALESCE(l.ip_address, ''), COALESCE(l.user_agent, ''), l.created_at, COALESCE(a.username, '')`

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, rec *models.AuditRecord) error {
	oldValues, err := encodeValues(rec.OldValues)
	if err != nil {
		return fmt.Errorf("encode old values: %w", err)
	}
	newValues, err := encodeValues(rec.NewValues)
	if err != nil {
		return fmt.Errorf("encode new values: %w", err)
	}

	query := `
		INSERT INTO audit_logs (actor_id, action, target_type, target_id, old_values, new_values, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		nullInt64(rec.ActorID), rec.Action, rec.TargetType, nullInt64(rec.TargetID),
		oldValues, newValues, rec.IP, rec.UserAgent,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	query := `SELECT ` + selectColumns + `
		FROM audit_logs l
		LEFT JOIN accounts a ON a.id = l.actor_id
		ORDER BY l.created_at DESC, l.id DESC
		LIMIT $1`
	return r.query(ctx, query, limit)
}

func (r *PostgresRepository) ListAfter(ctx context.Context, afterID int64, settle time.Duration, limit int) ([]models.AuditRecord, error) {
	query := `SELECT ` + selectColumns + `
		FROM audit_logs l
		LEFT JOIN accounts a ON a.id = l.actor_id
		WHERE l.id > $1
		  AND NOT EXISTS (
			SELECT 1 FROM audit_logs u
			WHERE u.id > $1 AND u.id <= l.id
			  AND u.created_at >= now() - make_interval(secs => $2)
		  )
		ORDER BY l.id ASC
		LIMIT $3`
	return r.query(ctx, query, afterID, settle.Seconds(), limit)
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]models.AuditRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	list := []models.AuditRecord{}
	for rows.Next() {
		var (
			rec                  models.AuditRecord
			actorID, targetID    sql.NullInt64
			oldValues, newValues []byte
		)
		err := rows.Scan(&rec.ID, &actorID, &rec.Action, &rec.TargetType, &targetID, &oldValues, &newValues,
			&rec.IP, &rec.UserAgent, &rec.CreatedAt, &rec.ActorUsername)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if actorID.Valid {
			rec.ActorID = &actorID.Int64
		}
		if targetID.Valid {
			rec.TargetID = &targetID.Int64
		}
		if rec.OldValues, err = decodeValues(oldValues); err != nil {
			return nil, fmt.Errorf("decode old values of record %d: %w", rec.ID, err)
		}
		if rec.NewValues, err = decodeValues(newValues); err != nil {
			return nil, fmt.Errorf("decode new values of record %d: %w", rec.ID, err)
		}
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return list, nil
}

// encodeValues returns nil (SQL NULL) for an empty snapshot.
func encodeValues(v map[string]any) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeValues(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
