// Package pipeline runs the ingestion cycle: list, enrich, score, persist.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"moex-bond-screener/internal/alerting"
	"moex-bond-screener/internal/bond"
	"moex-bond-screener/internal/iss"
	"moex-bond-screener/internal/scheduler"
	"moex-bond-screener/internal/storage"
	"moex-bond-screener/internal/yield"
)

// DefaultConcurrency bounds in-flight enrichments when Options leave it unset.
const DefaultConcurrency = 16

// Sources groups the exchange fetchers used by one cycle.
type Sources struct {
	Lister      iss.InstrumentLister
	Descriptors iss.DescriptorFetcher
	Snapshots   iss.SnapshotFetcher
	Cashflows   iss.CashflowFetcher
}

// Options tune a cycle.
type Options struct {
	Concurrency   int
	DropZeroPrice bool
	LockKey       int64

	// Yield overrides the fee and tax rates; nil keeps yield.DefaultParams.
	Yield *yield.Params

	AlertsEnabled bool
	ThresholdPct  decimal.Decimal
	Channels      []string
}

// Orchestrator enriches listed bonds page by page and hands each page to the store.
type Orchestrator struct {
	scheduler *scheduler.Scheduler
	src       Sources
	store     storage.BondWriter
	runs      storage.RunRecorder
	locker    storage.AdvisoryLocker
	notifier  alerting.Notifier
	opts      Options
	rates     yield.Params
	logger    zerolog.Logger
	now       func() time.Time
}

// New constructs the orchestrator. The run ledger and advisory lock are used
// when store implements them.
func New(opts Options, sched *scheduler.Scheduler, src Sources, store storage.BondWriter, notifier alerting.Notifier, logger zerolog.Logger) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	rates := yield.DefaultParams()
	if opts.Yield != nil {
		rates = *opts.Yield
	}

	o := &Orchestrator{
		scheduler: sched,
		src:       src,
		store:     store,
		notifier:  notifier,
		opts:      opts,
		rates:     rates,
		logger:    logger.With().Str("component", "pipeline").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	if r, ok := store.(storage.RunRecorder); ok {
		o.runs = r
	}
	if l, ok := store.(storage.AdvisoryLocker); ok {
		o.locker = l
	}
	return o
}

// YieldParams returns the rates records are scored with.
func (o *Orchestrator) YieldParams() yield.Params {
	return o.rates
}

// Run drives cycles from the scheduler until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return o.scheduler.Run(ctx, o.Tick)
}

// Tick adapts RunCycle to the scheduler callback.
func (o *Orchestrator) Tick(ctx context.Context, at time.Time) error {
	_, err := o.RunCycle(ctx)
	return err
}

// RunCycle performs one full ingestion pass. Enrichment and persistence
// failures are counted in the report; only a lister failure is returned, after
// the pages already listed have been persisted.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleReport, error) {
	report := newReport(o.now())
	logger := o.logger.With().Str("run_id", report.RunID.String()).Logger()

	unlock, proceed, err := o.acquireLock(ctx)
	if err != nil {
		return report, err
	}
	if !proceed {
		report.Skipped = true
		report.FinishedAt = o.now()
		logger.Info().Msg("skip cycle because advisory lock held elsewhere")
		return report, nil
	}
	if unlock != nil {
		defer unlock()
	}

	logger.Info().Msg("ingestion cycle started")

	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			report.ListErr = err
			break
		}

		ids, err := o.src.Lister.ListPage(ctx, page)
		if err != nil {
			report.ListErr = fmt.Errorf("list page %d: %w", page, err)
			logger.Error().Err(err).Int("page", page).Msg("listing stopped")
			break
		}
		if len(ids) == 0 {
			break
		}

		report.Pages++
		report.Listed += len(ids)
		records := o.enrichPage(ctx, logger, ids, &report)
		o.persist(ctx, logger, page, records, &report)
	}

	report.FinishedAt = o.now()
	logger.Info().
		Int("pages", report.Pages).
		Int("listed", report.Listed).
		Int("inserted", report.Inserted).
		Int("updated", report.Updated).
		Int("dropped", report.DroppedTotal()).
		Int("failed", report.Failed).
		Int("persist_failed", report.PersistFailed).
		Dur("elapsed", report.Elapsed()).
		Msg("ingestion cycle finished")

	o.recordRun(ctx, logger, report)
	o.notify(ctx, logger, report)

	return report, report.ListErr
}

// enrichPage runs every identifier through the stages with bounded
// concurrency and returns the records that survived, in listing order.
func (o *Orchestrator) enrichPage(ctx context.Context, logger zerolog.Logger, ids []string, report *CycleReport) []bond.Record {
	outcomes := make([]Result[bond.Record], len(ids))

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, secid := range ids {
		i, secid := i, secid
		g.Go(func() error {
			outcomes[i] = o.Enrich(ctx, secid)
			return nil
		})
	}
	_ = g.Wait()

	records := make([]bond.Record, 0, len(ids))
	for i, out := range outcomes {
		switch {
		case out.IsFailed():
			report.Failed++
			logger.Warn().Err(out.Err).
				Str("secid", ids[i]).
				Bool("transient", iss.IsTransient(out.Err)).
				Msg("enrichment failed")
		case out.IsDropped():
			report.Dropped[out.Reason]++
			logger.Debug().Str("secid", ids[i]).Stringer("reason", out.Reason).Msg("bond filtered out")
		default:
			records = append(records, out.Value)
		}
	}
	return records
}

// Enrich fetches and scores a single bond. The snapshot and cashflow are only
// requested for bonds that pass the descriptor filters.
func (o *Orchestrator) Enrich(ctx context.Context, secid string) Result[bond.Record] {
	desc := o.describe(ctx, secid)
	if !desc.IsOk() {
		return carry[bond.Record](desc)
	}

	snap := o.snapshot(ctx, secid)
	if !snap.IsOk() {
		return carry[bond.Record](snap)
	}

	flow := o.cashflow(ctx, secid)
	if !flow.IsOk() {
		return carry[bond.Record](flow)
	}

	return o.score(bond.NewRecord(desc.Value, snap.Value, flow.Value))
}

func (o *Orchestrator) describe(ctx context.Context, secid string) Result[bond.Descriptor] {
	desc, reason, err := o.src.Descriptors.FetchDescriptor(ctx, secid)
	switch {
	case err != nil:
		return Failed[bond.Descriptor](fmt.Errorf("descriptor %s: %w", secid, err))
	case reason.Filtered():
		return Dropped[bond.Descriptor](reason)
	}
	return Ok(desc)
}

func (o *Orchestrator) snapshot(ctx context.Context, secid string) Result[bond.Snapshot] {
	snap, err := o.src.Snapshots.FetchSnapshot(ctx, secid)
	if err != nil {
		return Failed[bond.Snapshot](fmt.Errorf("snapshot %s: %w", secid, err))
	}
	return Ok(snap)
}

func (o *Orchestrator) cashflow(ctx context.Context, secid string) Result[bond.Cashflow] {
	flow, err := o.src.Cashflows.FetchCashflow(ctx, secid)
	if err != nil {
		return Failed[bond.Cashflow](fmt.Errorf("cashflow %s: %w", secid, err))
	}
	return Ok(flow)
}

func (o *Orchestrator) score(rec bond.Record) Result[bond.Record] {
	if !rec.Scorable() {
		return Dropped[bond.Record](bond.ReasonMaturityWindow)
	}
	if rec.FaceValue.Sign() <= 0 {
		return Failed[bond.Record](fmt.Errorf("score %s: face value %s is not positive", rec.SecID, rec.FaceValue))
	}
	if rec.Price.IsZero() && o.opts.DropZeroPrice {
		return Dropped[bond.Record](bond.ReasonZeroPrice)
	}

	rec.YearPercent = yield.Calculate(yield.Inputs{
		Price:            rec.Price,
		AccruedInt:       rec.AccruedInt,
		FaceValue:        rec.FaceValue,
		DaysToRedemption: rec.DaysToRedemption,
		SumCoupon:        rec.SumCoupon,
	}, o.rates).YearPercent
	return Ok(rec)
}

func (o *Orchestrator) persist(ctx context.Context, logger zerolog.Logger, page int, records []bond.Record, report *CycleReport) {
	if len(records) == 0 || o.store == nil {
		return
	}

	result, err := o.store.UpsertBatch(ctx, records)
	if err != nil {
		report.PersistFailed += len(records)
		logger.Error().Err(err).Int("page", page).Int("records", len(records)).Msg("failed to upsert page")
		return
	}

	report.Inserted += result.Inserted
	report.Updated += result.Updated
	report.PersistFailed += len(result.Failures)
	for _, f := range result.Failures {
		logger.Error().Err(f.Err).Str("secid", f.SecID).Msg("failed to upsert bond")
	}
	logger.Info().
		Int("page", page).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("failed", len(result.Failures)).
		Msg("page persisted")
}

func (o *Orchestrator) recordRun(ctx context.Context, logger zerolog.Logger, report CycleReport) {
	if o.runs == nil {
		return
	}
	// record even when the cycle itself was cancelled
	ctxLedger, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.runs.RecordRun(ctxLedger, report.RunRecord()); err != nil {
		logger.Error().Err(err).Msg("failed to record ingestion run")
	}
}

func (o *Orchestrator) notify(ctx context.Context, logger zerolog.Logger, report CycleReport) {
	if !o.opts.AlertsEnabled || o.notifier == nil {
		return
	}

	rate := failureRate(report)
	if report.ListErr == nil && !o.opts.ThresholdPct.IsZero() && !rate.GreaterThan(o.opts.ThresholdPct) {
		return
	}

	note := alerting.Notification{
		RunID:          report.RunID.String(),
		StartedAt:      report.StartedAt,
		Elapsed:        report.Elapsed(),
		Status:         string(report.Status()),
		Pages:          report.Pages,
		Listed:         report.Listed,
		Inserted:       report.Inserted,
		Updated:        report.Updated,
		Dropped:        report.DroppedTotal(),
		Failed:         report.Failed,
		PersistFailed:  report.PersistFailed,
		FailureRatePct: rate,
		ThresholdPct:   o.opts.ThresholdPct,
		Channels:       o.opts.Channels,
	}
	if report.ListErr != nil {
		note.AdditionalMsg = "Listing error: " + report.ListErr.Error()
	}
	if err := o.notifier.Notify(ctx, note); err != nil {
		logger.Error().Err(err).Msg("failed to dispatch cycle report")
	}
}

// failureRate is the share of listed bonds that failed enrichment or persistence, in percent.
func failureRate(report CycleReport) decimal.Decimal {
	if report.Listed == 0 {
		return decimal.Zero
	}
	failed := decimal.NewFromInt(int64(report.Failed + report.PersistFailed))
	return failed.Div(decimal.NewFromInt(int64(report.Listed))).Mul(decimal.NewFromInt(100)).Round(2)
}

func (o *Orchestrator) acquireLock(ctx context.Context) (func(), bool, error) {
	if o.opts.LockKey == 0 || o.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := o.locker.TryAdvisoryLock(ctx, o.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
