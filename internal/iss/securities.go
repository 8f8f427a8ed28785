package iss

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// PageSize is the number of securities ISS returns per listing page.
const PageSize = 100

const securitiesPath = "/iss/securities.json"

// Lister pages through bonds currently trading on the stock engine.
type Lister struct {
	client *Client
}

// NewLister builds a lister on top of a shared client.
func NewLister(client *Client) *Lister {
	return &Lister{client: client}
}

// ListPage returns the identifiers on the zero-based page. An empty slice means
// there are no more tradable bonds at that offset.
func (l *Lister) ListPage(ctx context.Context, page int) ([]string, error) {
	if page < 0 {
		return nil, fmt.Errorf("page must not be negative, got %d", page)
	}

	params := url.Values{}
	params.Set("iss.meta", "off")
	params.Set("iss.only", "securities")
	params.Set("securities.columns", "secid")
	params.Set("engine", "stock")
	params.Set("market", "bonds")
	params.Set("is_trading", "1")
	params.Set("start", strconv.Itoa(page*PageSize))

	const op = "list securities"
	blocks, err := l.client.get(ctx, op, securitiesPath, params)
	if err != nil {
		return nil, err
	}

	table, err := block(blocks, op, "securities")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, table.Len())
	for row := 0; row < table.Len(); row++ {
		v, ok := table.Value(row, "secid")
		if !ok {
			return nil, malformed(op, "secid", errMissing)
		}
		if id := asString(v); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

var _ InstrumentLister = (*Lister)(nil)
