package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"

	"moex-bond-screener/internal/bond"
)

type mockSession struct {
	pgxmock.PgxConnIface
	src *mockSource
}

func (s mockSession) Release() { s.src.released++ }

type mockSource struct {
	conn     pgxmock.PgxConnIface
	err      error
	acquired int
	released int
}

func (m *mockSource) Acquire(context.Context) (Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.acquired++
	return mockSession{PgxConnIface: m.conn, src: m}, nil
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxConnIface, *mockSource) {
	t.Helper()
	conn, err := pgxmock.NewConn()
	if err != nil {
		t.Fatalf("create pgxmock: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(context.Background()) })
	src := &mockSource{conn: conn}
	return NewStoreWithSource(src), conn, src
}

func sampleRecord(secid string, price string) bond.Record {
	desc := bond.Descriptor{
		SecID:            secid,
		ShortName:        "Bond " + secid,
		FaceUnit:         "SUR",
		ListLevel:        2,
		DaysToRedemption: 365,
		FaceValue:        decimal.NewFromInt(1000),
		Type:             "corporate_bond",
	}
	snap := bond.Snapshot{
		Price:      decimal.RequireFromString(price),
		AccruedInt: decimal.NewFromInt(2),
		MoexYield:  decimal.NewFromInt(11),
	}
	rec := bond.NewRecord(desc, snap, bond.Cashflow{SumCoupon: decimal.NewFromInt(80)})
	rec.YearPercent = decimal.RequireFromString("11.4")
	return rec
}

// upsertArgs matches any bond upsert whose price argument equals price.
func upsertArgs(price string) []any {
	args := make([]any, 23)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	args[16] = price
	return args
}

func TestUpsertBatchIsIdempotentBySecID(t *testing.T) {
	store, mock, src := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO bonds`).
		WithArgs(upsertArgs("95")...).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`ON CONFLICT \(secid\) DO UPDATE`).
		WithArgs(upsertArgs("97.5")...).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))
	mock.ExpectCommit()

	first, err := store.UpsertBatch(ctx, []bond.Record{sampleRecord("RU1", "95")})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.Inserted != 1 || first.Updated != 0 {
		t.Fatalf("first upsert should insert, got %+v", first)
	}

	second, err := store.UpsertBatch(ctx, []bond.Record{sampleRecord("RU1", "97.5")})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Inserted != 0 || second.Updated != 1 {
		t.Fatalf("second upsert should update in place, got %+v", second)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
	if src.acquired != 2 || src.released != 2 {
		t.Fatalf("sessions acquired=%d released=%d", src.acquired, src.released)
	}
}

func TestUpsertBatchIsolatesFailures(t *testing.T) {
	store, mock, src := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO bonds`).
		WithArgs(upsertArgs("95")...).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO bonds`).
		WithArgs(upsertArgs("96")...).
		WillReturnError(errors.New("numeric field overflow"))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO bonds`).
		WithArgs(upsertArgs("97")...).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))
	mock.ExpectCommit()

	matured := sampleRecord("RU0", "100")
	matured.DaysToRedemption = 0

	records := []bond.Record{
		sampleRecord("RU1", "95"),
		sampleRecord("RU2", "96"),
		matured,
		sampleRecord("RU3", "97"),
	}
	result, err := store.UpsertBatch(context.Background(), records)
	if err != nil {
		t.Fatalf("batch must not fail as a whole: %v", err)
	}
	if result.Inserted != 1 || result.Updated != 1 {
		t.Fatalf("unexpected counts %+v", result)
	}
	if len(result.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(result.Failures))
	}
	if result.Failures[0].SecID != "RU2" || result.Failures[1].SecID != "RU0" {
		t.Fatalf("unexpected failures %v", result.Failures)
	}
	if result.Persisted() != 2 {
		t.Fatalf("persisted = %d", result.Persisted())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
	if src.released != src.acquired {
		t.Fatalf("session leaked: acquired=%d released=%d", src.acquired, src.released)
	}
}

func TestUpsertBatchAcquireFailure(t *testing.T) {
	store := NewStoreWithSource(&mockSource{err: errors.New("pool exhausted")})
	if _, err := store.UpsertBatch(context.Background(), []bond.Record{sampleRecord("RU1", "95")}); err == nil {
		t.Fatal("expected acquire error")
	}
}

func TestUpsertBatchEmptyDoesNotAcquire(t *testing.T) {
	store, _, src := newMockStore(t)
	if _, err := store.UpsertBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if src.acquired != 0 {
		t.Fatal("empty batch should not check out a session")
	}
}

func TestStoreNotConfigured(t *testing.T) {
	var store *Store
	if _, err := store.CountBonds(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSelectReturnsColumnsAndRows(t *testing.T) {
	store, mock, src := newMockStore(t)

	mock.ExpectQuery(`SELECT "secid", "year_percent" FROM bonds`).
		WithArgs(5.0, 20.0).
		WillReturnRows(pgxmock.NewRows([]string{"secid", "year_percent"}).
			AddRow("RU1", 14.2).
			AddRow("RU2", 9.1))

	columns, rows, err := store.Select(context.Background(),
		`SELECT "secid", "year_percent" FROM bonds WHERE year_percent BETWEEN $1 AND $2`, 5.0, 20.0)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(columns) != 2 || columns[0] != "secid" || columns[1] != "year_percent" {
		t.Fatalf("unexpected columns %v", columns)
	}
	if len(rows) != 2 || rows[0][0] != "RU1" || rows[1][1] != 9.1 {
		t.Fatalf("unexpected rows %v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
	if src.released != 1 {
		t.Fatal("select should release its session")
	}
}

func TestRecordRun(t *testing.T) {
	store, mock, _ := newMockStore(t)
	started := time.Date(2026, 10, 16, 7, 0, 0, 0, time.UTC)
	run := RunRecord{
		ID:         uuid.New(),
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Minute),
		Pages:      4,
		Listed:     312,
		Inserted:   10,
		Updated:    280,
		Dropped:    20,
		Failed:     2,
		Status:     RunCompleted,
	}

	mock.ExpectExec(`INSERT INTO ingestion_runs`).
		WithArgs(run.ID, run.StartedAt, run.FinishedAt, 4, 312, 10, 280, 20, 2, 0, "completed", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.RecordRun(context.Background(), run); err != nil {
		t.Fatalf("record run: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTryAdvisoryLock(t *testing.T) {
	store, mock, src := newMockStore(t)

	mock.ExpectQuery(`pg_try_advisory_lock`).
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(`pg_advisory_unlock`).
		WithArgs(int64(42)).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	unlock, acquired, err := store.TryAdvisoryLock(context.Background(), 42)
	if err != nil || !acquired {
		t.Fatalf("expected lock, acquired=%v err=%v", acquired, err)
	}
	if src.released != 0 {
		t.Fatal("lock session must stay checked out while held")
	}
	unlock()
	if src.released != 1 {
		t.Fatal("unlock should release the session")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTryAdvisoryLockBusy(t *testing.T) {
	store, mock, src := newMockStore(t)

	mock.ExpectQuery(`pg_try_advisory_lock`).
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	_, acquired, err := store.TryAdvisoryLock(context.Background(), 42)
	if err != nil || acquired {
		t.Fatalf("expected busy lock, acquired=%v err=%v", acquired, err)
	}
	if src.released != 1 {
		t.Fatal("busy lock should release the session immediately")
	}
}
