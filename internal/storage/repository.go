package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moex-bond-screener/internal/bond"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

// Only market-driven columns are refreshed on conflict. Identity columns and
// the cashflow flags keep the values of the first insert.
const (
	upsertBondSQL = `INSERT INTO bonds (
        secid,
        shortname,
        isin,
        matdate,
        face_unit,
        list_level,
        days_to_redemption,
        face_value,
        initial_face_value,
        coupon_frequency,
        coupon_date,
        coupon_percent,
        coupon_value,
        high_risk,
        type,
        bond_group,
        price,
        accrued_int,
        moex_yield,
        sum_coupon,
        amortizing,
        floater,
        year_percent
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23
    )
    ON CONFLICT (secid) DO UPDATE
    SET
        list_level         = EXCLUDED.list_level,
        days_to_redemption = EXCLUDED.days_to_redemption,
        face_value         = EXCLUDED.face_value,
        coupon_date        = EXCLUDED.coupon_date,
        coupon_percent     = EXCLUDED.coupon_percent,
        coupon_value       = EXCLUDED.coupon_value,
        sum_coupon         = EXCLUDED.sum_coupon,
        high_risk          = EXCLUDED.high_risk,
        price              = EXCLUDED.price,
        accrued_int        = EXCLUDED.accrued_int,
        moex_yield         = EXCLUDED.moex_yield,
        year_percent       = EXCLUDED.year_percent,
        updated_at         = now()
    RETURNING (xmax = 0) AS inserted;`

	countBondsSQL = `SELECT COUNT(*) FROM bonds;`

	insertRunSQL = `INSERT INTO ingestion_runs (
        id,
        started_at,
        finished_at,
        pages,
        listed,
        inserted,
        updated,
        dropped,
        failed,
        persist_failed,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    );`

	listRecentRunsSQL = `SELECT
        id,
        started_at,
        finished_at,
        pages,
        listed,
        inserted,
        updated,
        dropped,
        failed,
        persist_failed,
        status,
        error
    FROM ingestion_runs
    ORDER BY started_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// BondWriter persists enriched bond records.
type BondWriter interface {
	UpsertBatch(ctx context.Context, records []bond.Record) (BatchResult, error)
}

// RunRecorder keeps the ingestion ledger.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunRecord) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to bonds and the ingestion ledger.
type Store struct {
	sessions SessionSource
	close    func()
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		return &Store{}
	}
	return &Store{sessions: poolSource{pool: pool}, close: pool.Close}
}

// NewStoreWithSource builds a Store over an arbitrary session source.
func NewStoreWithSource(src SessionSource) *Store {
	return &Store{sessions: src}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.close == nil {
		return
	}
	s.close()
}

func (s *Store) acquire(ctx context.Context) (Session, error) {
	if s == nil || s.sessions == nil {
		return nil, ErrNotConfigured
	}
	sess, err := s.sessions.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return sess, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	sess, err := s.acquire(ctx)
	if err != nil {
		return nil, false, err
	}

	var acquired bool
	if err := sess.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		sess.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		sess.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the lock dies with the connection anyway
		_, _ = sess.Exec(ctxUnlock, advisoryUnlockSQL, key)
		sess.Release()
	}
	return unlock, true, nil
}

func withTx(ctx context.Context, sess Session, fn func(pgx.Tx) error) (err error) {
	tx, err := sess.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpsertBatch persists records on one session, each in its own transaction.
// A failing record is reported in the result and does not affect the others.
// The returned error is set only when no session could be obtained.
func (s *Store) UpsertBatch(ctx context.Context, records []bond.Record) (BatchResult, error) {
	var result BatchResult
	if len(records) == 0 {
		return result, nil
	}

	sess, err := s.acquire(ctx)
	if err != nil {
		return result, err
	}
	defer sess.Release()

	for _, rec := range records {
		if !rec.Scorable() {
			result.Failures = append(result.Failures, PersistenceError{
				SecID: rec.SecID,
				Err:   fmt.Errorf("days to redemption %d is not positive", rec.DaysToRedemption),
			})
			continue
		}

		var inserted bool
		err := withTx(ctx, sess, func(tx pgx.Tx) error {
			return tx.QueryRow(ctx, upsertBondSQL, bondArgs(rec)...).Scan(&inserted)
		})
		if err != nil {
			result.Failures = append(result.Failures, PersistenceError{SecID: rec.SecID, Err: err})
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}
	return result, nil
}

func bondArgs(rec bond.Record) []any {
	return []any{
		rec.SecID,
		rec.ShortName,
		nullableString(rec.ISIN),
		rec.MatDate,
		rec.FaceUnit,
		rec.ListLevel,
		rec.DaysToRedemption,
		rec.FaceValue.String(),
		rec.InitialFaceValue.String(),
		rec.CouponFrequency,
		rec.CouponDate,
		rec.CouponPercent.String(),
		rec.CouponValue.String(),
		rec.HighRisk,
		rec.Type,
		nullableString(rec.Group),
		rec.Price.String(),
		rec.AccruedInt.String(),
		rec.MoexYield.String(),
		rec.SumCoupon.String(),
		rec.Amortizing,
		rec.Floater,
		rec.YearPercent.String(),
	}
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// CountBonds counts stored bonds.
func (s *Store) CountBonds(ctx context.Context) (int64, error) {
	sess, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer sess.Release()

	var count int64
	if scanErr := sess.QueryRow(ctx, countBondsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count bonds: %w", scanErr)
	}
	return count, nil
}

// Select runs a read-only query and returns column names with raw row values.
func (s *Store) Select(ctx context.Context, query string, args ...any) ([]string, [][]any, error) {
	sess, err := s.acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer sess.Release()

	rows, err := sess.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("select bonds: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	out := make([][]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("read row: %w", err)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("select bonds: %w", err)
	}
	return columns, out, nil
}

// RecordRun appends a cycle to the ingestion ledger.
func (s *Store) RecordRun(ctx context.Context, run RunRecord) error {
	sess, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer sess.Release()

	_, execErr := sess.Exec(ctx, insertRunSQL,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		run.Pages,
		run.Listed,
		run.Inserted,
		run.Updated,
		run.Dropped,
		run.Failed,
		run.PersistFailed,
		string(run.Status),
		run.Error,
	)
	if execErr != nil {
		return fmt.Errorf("record run: %w", execErr)
	}
	return nil
}

// ListRecentRuns lists the latest ledger entries, newest first.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	sess, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Release()

	rows, queryErr := sess.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0, limit)
	for rows.Next() {
		var (
			run    RunRecord
			status string
		)
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Pages,
			&run.Listed,
			&run.Inserted,
			&run.Updated,
			&run.Dropped,
			&run.Failed,
			&run.PersistFailed,
			&status,
			&run.Error,
		); err != nil {
			return nil, err
		}
		run.Status = RunStatus(status)
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

var (
	_ BondWriter     = (*Store)(nil)
	_ RunRecorder    = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
