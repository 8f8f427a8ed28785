package cli

import (
	"github.com/spf13/cobra"

	"moex-bond-screener/internal/screening"
)

// queryFlags override the configured screening filters; unset flags keep the
// config values.
type queryFlags struct {
	fields       []string
	yearMin      float64
	yearMax      float64
	levelMin     int
	levelMax     int
	daysMin      int
	daysMax      int
	amortizing   bool
	floater      bool
	minSumCoupon float64
	ofz          bool
	limit        int
}

func (f *queryFlags) register(cmd *cobra.Command, withLimit bool) {
	flags := cmd.Flags()
	flags.StringSliceVar(&f.fields, "fields", nil, "Columns to return")
	flags.Float64Var(&f.yearMin, "year-min", 0, "Minimum net annual yield, percent")
	flags.Float64Var(&f.yearMax, "year-max", 0, "Maximum net annual yield, percent")
	flags.IntVar(&f.levelMin, "level-min", 0, "Minimum listing level")
	flags.IntVar(&f.levelMax, "level-max", 0, "Maximum listing level")
	flags.IntVar(&f.daysMin, "days-min", 0, "Minimum days to redemption")
	flags.IntVar(&f.daysMax, "days-max", 0, "Maximum days to redemption")
	flags.BoolVar(&f.amortizing, "amortizing", false, "Select amortizing bonds instead of bullet ones")
	flags.BoolVar(&f.floater, "floater", false, "Select floaters instead of fixed coupons")
	flags.Float64Var(&f.minSumCoupon, "min-sum-coupon", 0, "Remaining coupons must exceed this amount")
	flags.BoolVar(&f.ofz, "ofz", false, "Only federal loan bonds (OFZ)")
	if withLimit {
		flags.IntVar(&f.limit, "limit", 0, "Maximum rows to return")
	}
}

func (f *queryFlags) apply(cmd *cobra.Command, q screening.Query) screening.Query {
	flags := cmd.Flags()
	if flags.Changed("fields") {
		q.Fields = f.fields
	}
	if flags.Changed("year-min") {
		q.YearPercent.Min = f.yearMin
	}
	if flags.Changed("year-max") {
		q.YearPercent.Max = f.yearMax
	}
	if flags.Changed("level-min") {
		q.ListLevel.Min = f.levelMin
	}
	if flags.Changed("level-max") {
		q.ListLevel.Max = f.levelMax
	}
	if flags.Changed("days-min") {
		q.DaysToRedemption.Min = f.daysMin
	}
	if flags.Changed("days-max") {
		q.DaysToRedemption.Max = f.daysMax
	}
	if flags.Changed("amortizing") {
		q.Amortizing = f.amortizing
	}
	if flags.Changed("floater") {
		q.Floater = f.floater
	}
	if flags.Changed("min-sum-coupon") {
		q.MinSumCoupon = f.minSumCoupon
	}
	if flags.Lookup("limit") != nil && flags.Changed("limit") {
		q.Limit = f.limit
	}
	if f.ofz {
		q = q.OFZOnly()
	}
	return q
}
