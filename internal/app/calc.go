package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"moex-bond-screener/internal/bond"
	"moex-bond-screener/internal/iss"
	"moex-bond-screener/internal/pipeline"
	"moex-bond-screener/internal/yield"
)

const manualSecID = "MANUAL"

// Calc prints the step-by-step yield breakdown either for manual inputs or
// for a live bond fetched from the exchange.
func (a *App) Calc(ctx context.Context, opts CalcOptions) error {
	src := a.newSources()
	secid := opts.SecID
	if secid == "" {
		if opts.Inputs.Price.IsNegative() || opts.Inputs.FaceValue.Sign() <= 0 {
			return errors.New("--price must be non-negative and --face positive")
		}
		static := &staticBond{inputs: opts.Inputs}
		src = pipeline.Sources{Descriptors: static, Snapshots: static, Cashflows: static}
		secid = manualSecID
	}

	popts := a.pipelineOptions()
	popts.DropZeroPrice = false
	orch := pipeline.New(popts, nil, src, nil, nil, a.Logger)

	out := orch.Enrich(ctx, secid)
	switch {
	case out.IsFailed():
		return out.Err
	case out.IsDropped():
		return fmt.Errorf("%s is not scored: %s", secid, out.Reason)
	}

	rec := out.Value
	b := yield.Calculate(yield.Inputs{
		Price:            rec.Price,
		AccruedInt:       rec.AccruedInt,
		FaceValue:        rec.FaceValue,
		DaysToRedemption: rec.DaysToRedemption,
		SumCoupon:        rec.SumCoupon,
	}, orch.YieldParams())

	writeBreakdown(a.Out, rec, b)
	return nil
}

func writeBreakdown(w io.Writer, rec bond.Record, b yield.Breakdown) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if rec.SecID != manualSecID {
		fmt.Fprintf(tw, "Bond\t%s %s\n", rec.SecID, rec.ShortName)
	}
	fmt.Fprintf(tw, "Price (%% of face)\t%s\n", rec.Price.String())
	fmt.Fprintf(tw, "Accrued interest\t%s\n", rec.AccruedInt.String())
	fmt.Fprintf(tw, "Face value\t%s\n", rec.FaceValue.String())
	fmt.Fprintf(tw, "Days to redemption\t%d\n", rec.DaysToRedemption)
	fmt.Fprintf(tw, "Remaining coupons\t%s\n", rec.SumCoupon.String())
	fmt.Fprintf(tw, "Buy price\t%s\n", b.BuyPrice.StringFixed(4))
	fmt.Fprintf(tw, "Price with commission\t%s\n", b.FinalPrice.StringFixed(4))
	fmt.Fprintf(tw, "Capital gain\t%s\n", b.CapitalGain.StringFixed(4))
	fmt.Fprintf(tw, "Capital gain tax\t%s\n", b.CapitalGainTax.StringFixed(4))
	fmt.Fprintf(tw, "Coupon tax\t%s\n", b.CouponTax.StringFixed(4))
	fmt.Fprintf(tw, "Net income\t%s\n", b.NetIncome.StringFixed(4))
	fmt.Fprintf(tw, "Total return %%\t%s\n", b.TotalReturnPct.StringFixed(4))
	fmt.Fprintf(tw, "Year %%\t%s\n", b.YearPercent.StringFixed(2))
	tw.Flush()
}

// staticBond serves manual inputs through the fetcher interfaces so the
// calculator follows the same scoring path as ingestion.
type staticBond struct {
	inputs yield.Inputs
}

func (s *staticBond) FetchDescriptor(ctx context.Context, secid string) (bond.Descriptor, bond.FilterReason, error) {
	desc := bond.Descriptor{
		SecID:            secid,
		FaceValue:        s.inputs.FaceValue,
		DaysToRedemption: s.inputs.DaysToRedemption,
	}
	if desc.DaysToRedemption < 1 {
		return desc, bond.ReasonMaturityWindow, nil
	}
	return desc, bond.ReasonNone, nil
}

func (s *staticBond) FetchSnapshot(ctx context.Context, secid string) (bond.Snapshot, error) {
	return bond.Snapshot{Price: s.inputs.Price, AccruedInt: s.inputs.AccruedInt, MoexYield: decimal.Zero}, nil
}

func (s *staticBond) FetchCashflow(ctx context.Context, secid string) (bond.Cashflow, error) {
	return bond.Cashflow{SumCoupon: s.inputs.SumCoupon}, nil
}

var _ iss.DescriptorFetcher = (*staticBond)(nil)
var _ iss.SnapshotFetcher = (*staticBond)(nil)
var _ iss.CashflowFetcher = (*staticBond)(nil)
