// Package auditexport copies the audit trail to object storage as JSON-lines
// batches, one object per batch.
package auditexport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/google/uuid"
)

// DefaultBatchSize bounds the records per uploaded object.
const DefaultBatchSize = 500

// Source pages through the audit trail in id order, stopping before the
// first record younger than settle.
type Source interface {
	Since(ctx context.Context, afterID int64, settle time.Duration, limit int) ([]models.AuditRecord, error)
}

// Uploader is the subset of *s3.Client the archiver needs.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var newObjectID = uuid.NewString

// Archiver keeps a cursor over the audit trail and uploads everything past
// it. The cursor only moves after a successful upload and lives in memory,
// so a restart uploads the trail again from the beginning.
//
// Records are only read once they are older than settle, which must exceed
// the longest a store transaction can stay open. Until then a lower id may
// still be uncommitted.
type Archiver struct {
	source   Source
	uploader Uploader
	bucket   string
	interval time.Duration
	settle   time.Duration
	batch    int
	logger   logging.Logger
	now      func() time.Time

	cursor int64
}

func NewArchiver(src Source, up Uploader, bucket string, interval, settle time.Duration, batch int, l logging.Logger) *Archiver {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Archiver{
		source:   src,
		uploader: up,
		bucket:   bucket,
		interval: interval,
		settle:   settle,
		batch:    batch,
		logger:   l.With("module", "audit_archiver"),
		now:      time.Now,
	}
}

// Cursor is the id of the last archived record.
func (a *Archiver) Cursor() int64 {
	return a.cursor
}

// Run archives once per interval until ctx is cancelled. Upload errors are
// logged and retried on the next tick.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info(ctx, "Starting audit archiver", "bucket", a.bucket, "interval", a.interval.String())

	for {
		select {
		case <-ctx.Done():
			a.logger.Info(ctx, "Stopping audit archiver...")
			return nil
		case <-ticker.C:
			if err := a.Drain(ctx); err != nil && ctx.Err() == nil {
				a.logger.Error(ctx, "audit archive failed", "cursor", a.cursor, "error", err)
			}
		}
	}
}

// Drain uploads batches until the trail is exhausted.
func (a *Archiver) Drain(ctx context.Context) error {
	for {
		n, err := a.ArchiveOnce(ctx)
		if err != nil {
			return err
		}
		if n < a.batch {
			return nil
		}
	}
}

// ArchiveOnce uploads at most one batch and returns the number of records in
// it.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int, error) {
	records, err := a.source.Since(ctx, a.cursor, a.settle, a.batch)
	if err != nil {
		return 0, fmt.Errorf("read audit log: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return 0, fmt.Errorf("encode audit record %d: %w", records[i].ID, err)
		}
	}

	key := ObjectKey(a.now(), newObjectID())
	_, err = a.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return 0, fmt.Errorf("upload %s: %w", key, err)
	}

	a.cursor = records[len(records)-1].ID
	a.logger.Info(ctx, "audit batch archived", "key", key, "records", len(records), "cursor", a.cursor)
	return len(records), nil
}

// ObjectKey is audit/YYYY/MM/DD/<id>.jsonl in UTC.
func ObjectKey(t time.Time, id string) string {
	return fmt.Sprintf("audit/%s/%s.jsonl", t.UTC().Format("2006/01/02"), id)
}
