package memory

import (
	"context"
	"maps"
	"sort"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

type auditRepo struct {
	tx *Tx
}

func (r *auditRepo) Append(_ context.Context, rec *models.AuditRecord) error {
	st := r.tx.st
	if rec.ActorID != nil {
		if _, ok := st.accounts[*rec.ActorID]; !ok {
			return errForeignKey
		}
	}

	st.nextAuditID++
	rec.ID = st.nextAuditID
	rec.CreatedAt = r.tx.now()

	stored := *rec
	stored.ActorUsername = ""
	stored.ActorID = clonePtr(rec.ActorID)
	stored.TargetID = clonePtr(rec.TargetID)
	stored.OldValues = maps.Clone(rec.OldValues)
	stored.NewValues = maps.Clone(rec.NewValues)
	st.audit = append(st.audit, stored)
	return nil
}

func (r *auditRepo) List(_ context.Context, limit int) ([]models.AuditRecord, error) {
	list := r.resolved(r.tx.st.audit)
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *auditRepo) ListAfter(_ context.Context, afterID int64, settle time.Duration, limit int) ([]models.AuditRecord, error) {
	// records are appended in id order
	all := r.tx.st.audit
	start := sort.Search(len(all), func(i int) bool { return all[i].ID > afterID })
	cutoff := r.tx.now().Add(-settle)

	end := start
	for end < len(all) && end-start < limit && !all[end].CreatedAt.After(cutoff) {
		end++
	}
	return r.resolved(all[start:end]), nil
}

func (r *auditRepo) resolved(records []models.AuditRecord) []models.AuditRecord {
	out := make([]models.AuditRecord, 0, len(records))
	for _, rec := range records {
		rec.ActorID = clonePtr(rec.ActorID)
		rec.TargetID = clonePtr(rec.TargetID)
		rec.OldValues = maps.Clone(rec.OldValues)
		rec.NewValues = maps.Clone(rec.NewValues)
		if rec.ActorID != nil {
			rec.ActorUsername = r.tx.st.accounts[*rec.ActorID].Username
		}
		out = append(out, rec)
	}
	return out
}

func clonePtr(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
