package iss

import (
	"context"

	"moex-bond-screener/internal/bond"
)

// InstrumentLister pages through tradable bond identifiers.
type InstrumentLister interface {
	ListPage(ctx context.Context, page int) ([]string, error)
}

// DescriptorFetcher retrieves the static description of one bond. A non-empty
// reason with a nil error means the bond is filtered out.
type DescriptorFetcher interface {
	FetchDescriptor(ctx context.Context, secid string) (bond.Descriptor, bond.FilterReason, error)
}

// SnapshotFetcher retrieves the current price view of one bond.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, secid string) (bond.Snapshot, error)
}

// CashflowFetcher reduces the coupon and amortization schedule of one bond.
type CashflowFetcher interface {
	FetchCashflow(ctx context.Context, secid string) (bond.Cashflow, error)
}
