// Package yield computes the net annualised return of buying a bond at the
// current market price and holding it to redemption.
package yield

import (
	"github.com/shopspring/decimal"
)

const daysInYear = 365

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)

	// DefaultCommission is the broker fee charged on the purchase amount (0.3%).
	DefaultCommission = decimal.RequireFromString("0.003")
	// DefaultTax is the income tax rate applied to coupons and capital gain (13%).
	DefaultTax = decimal.RequireFromString("0.13")
)

// Params are the fee and tax rates expressed as fractions.
type Params struct {
	Commission decimal.Decimal
	Tax        decimal.Decimal
}

// DefaultParams returns the retail brokerage defaults.
func DefaultParams() Params {
	return Params{Commission: DefaultCommission, Tax: DefaultTax}
}

// Inputs describe one bond at purchase time.
type Inputs struct {
	Price            decimal.Decimal // percent of face value
	AccruedInt       decimal.Decimal
	FaceValue        decimal.Decimal
	DaysToRedemption int
	SumCoupon        decimal.Decimal
}

// Breakdown keeps every intermediate step of the calculation.
type Breakdown struct {
	BuyPrice       decimal.Decimal
	FinalPrice     decimal.Decimal
	CapitalGain    decimal.Decimal
	CapitalGainTax decimal.Decimal
	CouponTax      decimal.Decimal
	NetIncome      decimal.Decimal
	TotalReturnPct decimal.Decimal
	DailyPct       decimal.Decimal
	YearPercent    decimal.Decimal
}

// Calculate runs the full calculation. A zero price short-circuits to an empty
// breakdown and a non-positive purchase cost leaves the percentages at zero.
// DaysToRedemption must be at least one; callers filter matured bonds.
func Calculate(in Inputs, p Params) Breakdown {
	if in.Price.IsZero() {
		return Breakdown{}
	}
	if in.DaysToRedemption < 1 {
		panic("yield: days to redemption must be positive")
	}

	var b Breakdown
	b.BuyPrice = in.FaceValue.Mul(in.Price).Div(hundred).Add(in.AccruedInt)
	b.FinalPrice = b.BuyPrice.Mul(one.Add(p.Commission))
	b.CapitalGain = in.FaceValue.Sub(b.FinalPrice)
	b.CapitalGainTax = decimal.Max(decimal.Zero, b.CapitalGain.Mul(p.Tax))
	b.CouponTax = in.SumCoupon.Mul(p.Tax)
	b.NetIncome = b.CapitalGain.Add(in.SumCoupon).Sub(b.CapitalGainTax.Add(b.CouponTax))
	if b.FinalPrice.Sign() <= 0 {
		return b
	}
	b.TotalReturnPct = b.NetIncome.Div(b.FinalPrice).Mul(hundred)
	b.DailyPct = b.TotalReturnPct.Div(decimal.NewFromInt(int64(in.DaysToRedemption)))
	b.YearPercent = b.DailyPct.Mul(decimal.NewFromInt(daysInYear)).Round(2)
	return b
}

// YearPercent returns the rounded annual percent using the default rates.
func YearPercent(in Inputs) decimal.Decimal {
	return Calculate(in, DefaultParams()).YearPercent
}
