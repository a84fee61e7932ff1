// Package auditlogs declares the repository contract for the append-only
// audit trail and its PostgreSQL implementation.
package auditlogs

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Repository appends and reads audit records. There is no update or delete.
type Repository interface {
	// Append inserts rec and fills its ID and CreatedAt.
	Append(ctx context.Context, rec *models.AuditRecord) error

	// List returns up to limit records, newest first, with ActorUsername
	// resolved from the actor's current row.
	List(ctx context.Context, limit int) ([]models.AuditRecord, error)

	// ListAfter returns up to limit records with ID > afterID, oldest first.
	// The page ends before the first record inserted less than settle ago:
	// ids are taken at insert time and commit in any order, so only ids
	// below a settled record are final.
	ListAfter(ctx context.Context, afterID int64, settle time.Duration, limit int) ([]models.AuditRecord, error)
}
