// Package screening filters and ranks stored bonds for presentation.
package screening

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgsql"
	"github.com/jackc/pgx/v5"
)

const (
	table = "bonds"

	// OFZType is the instrument type of Russian federal loan bonds.
	OFZType = "ofz_bond"

	// MaxLimit caps a single screening page.
	MaxLimit = 1000
)

// allowedFields lists the columns a caller may project.
var allowedFields = map[string]struct{}{
	"secid":              {},
	"shortname":          {},
	"isin":               {},
	"matdate":            {},
	"face_unit":          {},
	"list_level":         {},
	"days_to_redemption": {},
	"face_value":         {},
	"initial_face_value": {},
	"coupon_frequency":   {},
	"coupon_date":        {},
	"coupon_percent":     {},
	"coupon_value":       {},
	"high_risk":          {},
	"type":               {},
	"bond_group":         {},
	"price":              {},
	"accrued_int":        {},
	"moex_yield":         {},
	"sum_coupon":         {},
	"amortizing":         {},
	"floater":            {},
	"year_percent":       {},
	"updated_at":         {},
}

// DefaultFields is the projection used when the caller does not supply one.
var DefaultFields = []string{
	"shortname",
	"secid",
	"matdate",
	"face_unit",
	"list_level",
	"days_to_redemption",
	"face_value",
	"accrued_int",
	"price",
	"sum_coupon",
	"year_percent",
}

// Range is an inclusive numeric interval.
type Range struct {
	Min float64
	Max float64
}

// IntRange is an inclusive integer interval.
type IntRange struct {
	Min int
	Max int
}

// Query describes one screening request. Results are always ordered by
// year_percent descending.
type Query struct {
	Fields           []string
	YearPercent      Range
	ListLevel        IntRange
	DaysToRedemption IntRange
	Amortizing       bool
	Floater          bool
	MinSumCoupon     float64
	// Type restricts the instrument type when non-empty.
	Type  string
	Limit int
}

// DefaultQuery returns the stock screener: mid-yield, listed, fixed-coupon
// bullet bonds maturing in roughly one and a half to four years.
func DefaultQuery() Query {
	return Query{
		Fields:           append([]string(nil), DefaultFields...),
		YearPercent:      Range{Min: 5, Max: 20},
		ListLevel:        IntRange{Min: 1, Max: 3},
		DaysToRedemption: IntRange{Min: 500, Max: 1500},
		Amortizing:       false,
		Floater:          false,
		MinSumCoupon:     10,
		Limit:            50,
	}
}

// OFZOnly restricts the query to federal loan bonds.
func (q Query) OFZOnly() Query {
	q.Type = OFZType
	return q
}

// Validate checks the projection and ranges.
func (q Query) Validate() error {
	if len(q.Fields) == 0 {
		return errors.New("at least one field is required")
	}
	seen := make(map[string]struct{}, len(q.Fields))
	for _, f := range q.Fields {
		if _, ok := allowedFields[f]; !ok {
			return fmt.Errorf("unknown field %q", f)
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("duplicate field %q", f)
		}
		seen[f] = struct{}{}
	}
	if q.YearPercent.Min > q.YearPercent.Max {
		return fmt.Errorf("year_percent range %v..%v is empty", q.YearPercent.Min, q.YearPercent.Max)
	}
	if q.ListLevel.Min > q.ListLevel.Max {
		return fmt.Errorf("list_level range %d..%d is empty", q.ListLevel.Min, q.ListLevel.Max)
	}
	if q.DaysToRedemption.Min > q.DaysToRedemption.Max {
		return fmt.Errorf("days_to_redemption range %d..%d is empty", q.DaysToRedemption.Min, q.DaysToRedemption.Max)
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		return fmt.Errorf("limit must be within 1..%d, got %d", MaxLimit, q.Limit)
	}
	return nil
}

// BuildQuery renders q into a parameterised SELECT.
func BuildQuery(q Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	stmt := &pgsql.SelectStatement{}
	for _, f := range q.Fields {
		stmt.Select(pgx.Identifier{f}.Sanitize())
	}
	stmt.From(pgx.Identifier{table}.Sanitize())

	between := func(column string, lo, hi any) {
		k := pgx.Identifier{column}.Sanitize()
		stmt.Where(fmt.Sprintf("%s >= ?", k), lo)
		stmt.Where(fmt.Sprintf("%s <= ?", k), hi)
	}
	between("year_percent", q.YearPercent.Min, q.YearPercent.Max)
	between("list_level", q.ListLevel.Min, q.ListLevel.Max)
	between("days_to_redemption", q.DaysToRedemption.Min, q.DaysToRedemption.Max)

	stmt.Where(`"high_risk" = false`)
	stmt.Where(`"amortizing" = ?`, q.Amortizing)
	stmt.Where(`"floater" = ?`, q.Floater)
	stmt.Where(`"sum_coupon" > ?`, q.MinSumCoupon)
	if t := strings.TrimSpace(q.Type); t != "" {
		stmt.Where(`"type" = ?`, t)
	}

	stmt.Order(`"year_percent" DESC`)

	sql, args := pgsql.Build(stmt)
	args = append(args, q.Limit)
	sql = fmt.Sprintf("%s LIMIT $%d", sql, len(args))
	return sql, args, nil
}
