package iss

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"moex-bond-screener/internal/bond"
)

// BondizationFetcher reduces the coupon and amortization schedule of a bond.
type BondizationFetcher struct {
	client *Client
	now    func() time.Time
}

// NewBondizationFetcher builds a schedule fetcher. now defaults to time.Now.
func NewBondizationFetcher(client *Client, now func() time.Time) *BondizationFetcher {
	if now == nil {
		now = time.Now
	}
	return &BondizationFetcher{client: client, now: now}
}

// FetchCashflow loads the full schedule and sums coupons dated strictly after
// the current exchange calendar day. A future coupon without a value marks the bond as a floater
// and contributes nothing to the sum.
func (f *BondizationFetcher) FetchCashflow(ctx context.Context, secid string) (bond.Cashflow, error) {
	params := url.Values{}
	params.Set("iss.meta", "off")
	params.Set("iss.only", "amortizations,coupons")
	params.Set("amortizations.columns", "facevalue")
	params.Set("coupons.columns", "coupondate,value")
	params.Set("limit", "unlimited")

	const op = "bondization"
	today := exchangeDate(f.now())
	blocks, err := f.client.get(ctx, op, "/iss/securities/"+url.PathEscape(secid)+"/bondization.json", params)
	if err != nil {
		return bond.Cashflow{}, err
	}

	amortizations, err := block(blocks, op, "amortizations")
	if err != nil {
		return bond.Cashflow{}, err
	}
	coupons, err := block(blocks, op, "coupons")
	if err != nil {
		return bond.Cashflow{}, err
	}

	flow := bond.Cashflow{Amortizing: amortizations.Len() > 1}
	sum := decimal.Zero
	for row := 0; row < coupons.Len(); row++ {
		rawDate, ok := coupons.Value(row, "coupondate")
		if !ok {
			return bond.Cashflow{}, malformed(op, "coupondate", errMissing)
		}
		date, err := asDate(rawDate)
		if err != nil {
			return bond.Cashflow{}, malformed(op, "coupondate", err)
		}
		if date == nil || !date.After(today) {
			continue
		}

		rawValue, _ := coupons.Value(row, "value")
		value, present, err := asDecimal(rawValue)
		if err != nil {
			return bond.Cashflow{}, malformed(op, "value", fmt.Errorf("coupon %s: %w", date.Format(dateLayout), err))
		}
		if !present {
			flow.Floater = true
			continue
		}
		sum = sum.Add(value)
	}
	flow.SumCoupon = sum.Round(2)
	return flow, nil
}

var _ CashflowFetcher = (*BondizationFetcher)(nil)

// exchangeZone is the calendar ISS schedule dates are published in.
var exchangeZone = loadExchangeZone()

func loadExchangeZone() *time.Location {
	if loc, err := time.LoadLocation("Europe/Moscow"); err == nil {
		return loc
	}
	return time.FixedZone("MSK", 3*60*60)
}

// exchangeDate returns the exchange calendar day of t in the form asDate parses to.
func exchangeDate(t time.Time) time.Time {
	y, m, d := t.In(exchangeZone).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
