package yield

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculateReferenceBond(t *testing.T) {
	in := Inputs{
		Price:            dec("95"),
		AccruedInt:       dec("2"),
		FaceValue:        dec("1000"),
		DaysToRedemption: 365,
		SumCoupon:        dec("80"),
	}

	b := Calculate(in, DefaultParams())

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"buy price", b.BuyPrice, "952"},
		{"final price", b.FinalPrice, "954.856"},
		{"capital gain", b.CapitalGain, "45.144"},
		{"capital gain tax", b.CapitalGainTax, "5.86872"},
		{"coupon tax", b.CouponTax, "10.4"},
		{"net income", b.NetIncome, "108.87528"},
		{"year percent", b.YearPercent, "11.4"},
	}
	for _, c := range checks {
		if !c.got.Equal(dec(c.want)) {
			t.Fatalf("%s: want %s, got %s", c.name, c.want, c.got.String())
		}
	}
}

func TestYearPercentShortDatedPremiumBond(t *testing.T) {
	got := YearPercent(Inputs{
		Price:            dec("101.5"),
		AccruedInt:       dec("10"),
		FaceValue:        dec("1000"),
		DaysToRedemption: 200,
		SumCoupon:        dec("50"),
	})
	if !got.Equal(dec("2.74")) {
		t.Fatalf("want 2.74, got %s", got.String())
	}
}

func TestZeroPriceAlwaysZero(t *testing.T) {
	inputs := []Inputs{
		{Price: decimal.Zero, FaceValue: dec("1000"), DaysToRedemption: 10, SumCoupon: dec("80")},
		{Price: decimal.Zero, AccruedInt: dec("55.3"), FaceValue: dec("500"), DaysToRedemption: 1},
		// days are never consulted for a zero price
		{Price: decimal.Zero, FaceValue: dec("1000"), DaysToRedemption: 0},
	}
	for i, in := range inputs {
		if got := YearPercent(in); !got.IsZero() {
			t.Fatalf("case %d: zero price must score 0, got %s", i, got.String())
		}
	}
}

func TestCapitalLossIsNotTaxed(t *testing.T) {
	b := Calculate(Inputs{
		Price:            dec("110"),
		AccruedInt:       dec("15"),
		FaceValue:        dec("1000"),
		DaysToRedemption: 400,
		SumCoupon:        dec("120"),
	}, DefaultParams())

	if !b.CapitalGain.IsNegative() {
		t.Fatalf("expected a capital loss, got %s", b.CapitalGain.String())
	}
	if !b.CapitalGainTax.IsZero() {
		t.Fatalf("loss must not be taxed, got %s", b.CapitalGainTax.String())
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	in := Inputs{
		Price:            dec("87.345"),
		AccruedInt:       dec("12.07"),
		FaceValue:        dec("1000"),
		DaysToRedemption: 913,
		SumCoupon:        dec("311.6"),
	}
	first := YearPercent(in)
	for i := 0; i < 50; i++ {
		if got := YearPercent(in); !got.Equal(first) {
			t.Fatalf("run %d: want %s, got %s", i, first.String(), got.String())
		}
	}
}

func TestCustomParams(t *testing.T) {
	in := Inputs{
		Price:            dec("100"),
		FaceValue:        dec("1000"),
		DaysToRedemption: 365,
		SumCoupon:        dec("100"),
	}
	b := Calculate(in, Params{Commission: decimal.Zero, Tax: decimal.Zero})
	if !b.YearPercent.Equal(dec("10")) {
		t.Fatalf("without fees and tax want 10, got %s", b.YearPercent.String())
	}
}

func TestNonPositivePurchaseCostScoresZero(t *testing.T) {
	b := Calculate(Inputs{
		Price:            dec("95"),
		FaceValue:        decimal.Zero,
		DaysToRedemption: 365,
		SumCoupon:        dec("80"),
	}, DefaultParams())
	if !b.YearPercent.IsZero() || !b.TotalReturnPct.IsZero() {
		t.Fatalf("zero purchase cost must score 0, got %+v", b)
	}
}

func TestCalculatePanicsOnMaturedBond(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero days to redemption")
		}
	}()
	Calculate(Inputs{Price: dec("99"), FaceValue: dec("1000")}, DefaultParams())
}
