package auditlogs

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var recordColumns = []string{"id", "actor_id", "action", "target_type", "target_id", "old_values", "new_values",
	"ip_address", "user_agent", "created_at", "username"}

func TestAppend_EncodesSnapshots(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	actor, target := int64(1), int64(2)
	q := `(?s)^\s*INSERT\s+INTO\s+audit_logs\s*\(actor_id,\s*action,\s*target_type,\s*target_id,\s*old_values,\s*new_values,\s*ip_address,\s*user_agent\)\s*VALUES\s*\(\$1,.*\$8\)\s*RETURNING\s+id,\s*created_at\s*$`

	mock.ExpectQuery(q).
		WithArgs(sql.NullInt64{Int64: 1, Valid: true}, models.ActionRoleChange, models.TargetAccount,
			sql.NullInt64{Int64: 2, Valid: true}, `{"role":"member"}`, `{"role":"admin"}`, "127.0.0.1", "test").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), now))

	rec := &models.AuditRecord{
		ActorID: &actor, Action: models.ActionRoleChange, TargetType: models.TargetAccount, TargetID: &target,
		OldValues: map[string]any{"role": "member"}, NewValues: map[string]any{"role": "admin"},
		IP: "127.0.0.1", UserAgent: "test",
	}
	if err := repo.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if rec.ID != 5 || !rec.CreatedAt.Equal(now) {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppend_NilSnapshotsAndActor(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+audit_logs`).
		WithArgs(sql.NullInt64{}, models.ActionLoginFailed, models.TargetAccount, sql.NullInt64{}, nil, nil, "", "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	rec := &models.AuditRecord{Action: models.ActionLoginFailed, TargetType: models.TargetAccount}
	if err := repo.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append error: %v", err)
	}
}

func TestAppend_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+audit_logs`).WillReturnError(errors.New("append-only"))

	err := repo.Append(context.Background(), &models.AuditRecord{Action: "X"})
	if err == nil || !regexp.MustCompile(`db error: .*append-only`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestList_NewestFirstWithActorName(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(recordColumns).
		AddRow(int64(2), int64(1), models.ActionRoleChange, models.TargetAccount, int64(3),
			[]byte(`{"role":"member"}`), []byte(`{"role":"admin"}`), "1.1.1.1", "ua", now, "root").
		AddRow(int64(1), nil, models.ActionRegister, models.TargetAccount, int64(3),
			nil, []byte(`{"email":"a@x.io"}`), "", "", now.Add(-time.Minute), "")
	mock.ExpectQuery(`(?s)LEFT\s+JOIN\s+accounts\s+a\s+ON\s+a\.id\s*=\s*l\.actor_id\s+ORDER\s+BY\s+l\.created_at\s+DESC,\s*l\.id\s+DESC\s+LIMIT\s+\$1`).
		WithArgs(100).
		WillReturnRows(rows)

	got, err := repo.List(context.Background(), 100)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 records, got %d", len(got))
	}
	if got[0].ActorID == nil || *got[0].ActorID != 1 || got[0].ActorUsername != "root" {
		t.Fatalf("unexpected first record: %+v", got[0])
	}
	if got[0].OldValues["role"] != "member" || got[0].NewValues["role"] != "admin" {
		t.Fatalf("unexpected snapshots: %+v", got[0])
	}
	if got[1].ActorID != nil || got[1].OldValues != nil {
		t.Fatalf("unexpected second record: %+v", got[1])
	}
}

func TestList_EmptyIsNotNil(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+audit_logs`).WithArgs(10).WillReturnRows(sqlmock.NewRows(recordColumns))

	got, err := repo.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty slice, got %#v", got)
	}
}

func TestList_CorruptSnapshot(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(recordColumns).
		AddRow(int64(1), nil, "X", models.TargetAccount, nil, []byte(`{`), nil, "", "", time.Now(), "")
	mock.ExpectQuery(`FROM\s+audit_logs`).WillReturnRows(rows)

	if _, err := repo.List(context.Background(), 10); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestListAfter_OldestFirst(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(recordColumns).
		AddRow(int64(8), nil, "A", models.TargetAccount, nil, nil, nil, "", "", now, "").
		AddRow(int64(9), nil, "B", models.TargetAccount, nil, nil, nil, "", "", now, "")
	mock.ExpectQuery(`(?s)WHERE\s+l\.id\s*>\s*\$1.*ORDER\s+BY\s+l\.id\s+ASC\s+LIMIT\s+\$3`).
		WithArgs(int64(7), float64(0), 2).
		WillReturnRows(rows)

	got, err := repo.ListAfter(context.Background(), 7, 0, 2)
	if err != nil {
		t.Fatalf("ListAfter error: %v", err)
	}
	if len(got) != 2 || got[0].ID != 8 || got[1].ID != 9 {
		t.Fatalf("unexpected page: %+v", got)
	}
}

func TestListAfter_StopsBeforeUnsettledRecords(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)WHERE\s+l\.id\s*>\s*\$1\s+AND\s+NOT\s+EXISTS\s*\(\s*SELECT\s+1\s+FROM\s+audit_logs\s+u\s+` +
		`WHERE\s+u\.id\s*>\s*\$1\s+AND\s+u\.id\s*<=\s*l\.id\s+` +
		`AND\s+u\.created_at\s*>=\s*now\(\)\s*-\s*make_interval\(secs\s*=>\s*\$2\)\s*\)`
	mock.ExpectQuery(q).
		WithArgs(int64(0), float64(30), 5).
		WillReturnRows(sqlmock.NewRows(recordColumns))

	got, err := repo.ListAfter(context.Background(), 0, 30*time.Second, 5)
	if err != nil {
		t.Fatalf("ListAfter error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty page, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListAfter_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+audit_logs`).WillReturnError(errors.New("gone"))

	_, err := repo.ListAfter(context.Background(), 0, time.Second, 10)
	if err == nil || !regexp.MustCompile(`db error: .*gone`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
