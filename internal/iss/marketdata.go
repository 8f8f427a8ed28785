package iss

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"moex-bond-screener/internal/bond"
)

// MarketFetcher reads the current market data of a bond on its primary board.
type MarketFetcher struct {
	client *Client
}

// NewMarketFetcher builds a market data fetcher on top of a shared client.
func NewMarketFetcher(client *Client) *MarketFetcher {
	return &MarketFetcher{client: client}
}

// FetchSnapshot returns the last trade price, falling back to the previous
// day's market price when there were no trades today.
func (f *MarketFetcher) FetchSnapshot(ctx context.Context, secid string) (bond.Snapshot, error) {
	params := url.Values{}
	params.Set("iss.meta", "off")
	params.Set("iss.only", "securities,marketdata")
	params.Set("marketdata.columns", "LAST,MARKETPRICE,YIELD")
	params.Set("securities.columns", "ACCRUEDINT")
	params.Set("marketprice_board", "1")

	const op = "market snapshot"
	path := "/iss/engines/stock/markets/bonds/securities/" + url.PathEscape(secid) + ".json"
	blocks, err := f.client.get(ctx, op, path, params)
	if err != nil {
		return bond.Snapshot{}, err
	}

	securities, err := block(blocks, op, "securities")
	if err != nil {
		return bond.Snapshot{}, err
	}
	marketdata, err := block(blocks, op, "marketdata")
	if err != nil {
		return bond.Snapshot{}, err
	}
	if securities.Len() == 0 || marketdata.Len() == 0 {
		return bond.Snapshot{}, malformed(op, "", fmt.Errorf("no board rows for %s", secid))
	}

	accrued, err := requiredNumber(op, securities, "ACCRUEDINT")
	if err != nil {
		return bond.Snapshot{}, err
	}
	moexYield, err := requiredNumber(op, marketdata, "YIELD")
	if err != nil {
		return bond.Snapshot{}, err
	}
	last, err := optionalNumber(op, marketdata, "LAST")
	if err != nil {
		return bond.Snapshot{}, err
	}
	marketPrice, err := optionalNumber(op, marketdata, "MARKETPRICE")
	if err != nil {
		return bond.Snapshot{}, err
	}

	price := last
	if price.IsZero() {
		price = marketPrice
	}

	return bond.Snapshot{
		Price:      price,
		AccruedInt: accrued,
		MoexYield:  moexYield,
	}, nil
}

func requiredNumber(op string, t Table, column string) (decimal.Decimal, error) {
	v, ok := t.Value(0, column)
	if !ok {
		return decimal.Zero, malformed(op, column, errMissing)
	}
	d, present, err := asDecimal(v)
	if err != nil {
		return decimal.Zero, malformed(op, column, err)
	}
	if !present {
		return decimal.Zero, malformed(op, column, fmt.Errorf("null value"))
	}
	return d, nil
}

// optionalNumber treats a missing column or null as zero.
func optionalNumber(op string, t Table, column string) (decimal.Decimal, error) {
	v, _ := t.Value(0, column)
	d, _, err := asDecimal(v)
	if err != nil {
		return decimal.Zero, malformed(op, column, err)
	}
	return d, nil
}

var _ SnapshotFetcher = (*MarketFetcher)(nil)
