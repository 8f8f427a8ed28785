package bond

import (
	"time"

	"github.com/shopspring/decimal"
)

// Descriptor holds the static fields of a bond issue as published by the exchange.
type Descriptor struct {
	SecID            string
	ShortName        string
	ISIN             string
	MatDate          *time.Time
	FaceUnit         string
	ListLevel        int
	DaysToRedemption int
	FaceValue        decimal.Decimal
	InitialFaceValue decimal.Decimal
	CouponFrequency  int
	CouponDate       *time.Time
	CouponPercent    decimal.Decimal
	CouponValue      decimal.Decimal
	HighRisk         bool
	Type             string
	Group            string
	QualifiedOnly    bool
}

// Snapshot is the current market view of a bond. A zero price means the bond
// had no trades in the lookback window.
type Snapshot struct {
	Price      decimal.Decimal
	AccruedInt decimal.Decimal
	MoexYield  decimal.Decimal
}

// Cashflow summarises the remaining coupon and amortization schedule.
type Cashflow struct {
	SumCoupon  decimal.Decimal
	Amortizing bool
	Floater    bool
}

// Record is the enriched, scored bond persisted by the store.
type Record struct {
	Descriptor
	Snapshot
	Cashflow
	YearPercent decimal.Decimal
}

// NewRecord joins the three fetched views into a record without a score.
func NewRecord(desc Descriptor, snap Snapshot, flow Cashflow) Record {
	return Record{Descriptor: desc, Snapshot: snap, Cashflow: flow}
}

// Scorable reports whether the yield calculation is defined for the record.
func (r Record) Scorable() bool {
	return r.DaysToRedemption > 0
}
