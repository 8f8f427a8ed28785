package iss

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Table is one columnar ISS block: {"columns": [...], "data": [[...], ...]}.
type Table struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

// Len returns the number of data rows.
func (t Table) Len() int {
	return len(t.Data)
}

// Index returns the position of a column, matching names case-insensitively.
func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Value returns the cell at row/column. ok is false when the column or row is
// missing; a present JSON null is returned as (nil, true).
func (t Table) Value(row int, column string) (any, bool) {
	idx := t.Index(column)
	if idx < 0 || row < 0 || row >= len(t.Data) {
		return nil, false
	}
	r := t.Data[row]
	if idx >= len(r) {
		return nil, false
	}
	return r[idx], true
}

// Pairs folds a two-column name/value table into a map keyed by upper-cased name.
func (t Table) Pairs(nameCol, valueCol string) (map[string]any, error) {
	ni, vi := t.Index(nameCol), t.Index(valueCol)
	if ni < 0 || vi < 0 {
		return nil, fmt.Errorf("columns %q/%q not present in %v", nameCol, valueCol, t.Columns)
	}
	out := make(map[string]any, len(t.Data))
	for _, row := range t.Data {
		if ni >= len(row) || vi >= len(row) {
			continue
		}
		name, ok := row[ni].(string)
		if !ok {
			continue
		}
		out[strings.ToUpper(name)] = row[vi]
	}
	return out, nil
}

func asDecimal(v any) (decimal.Decimal, bool, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, false, nil
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil, err
	case float64:
		return decimal.NewFromFloat(x), true, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return decimal.Zero, false, nil
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil, err
	default:
		return decimal.Zero, false, fmt.Errorf("unexpected numeric value %T", v)
	}
}

func asInt(v any) (int, bool, error) {
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case json.Number:
		n, err := strconv.Atoi(x.String())
		if err != nil {
			d, derr := decimal.NewFromString(x.String())
			if derr != nil {
				return 0, false, err
			}
			return int(d.IntPart()), true, nil
		}
		return n, true, nil
	case float64:
		return int(x), true, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(s)
		return n, err == nil, err
	default:
		return 0, false, fmt.Errorf("unexpected integer value %T", v)
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// asDate parses ISS dates. The exchange uses "0000-00-00" for unknown dates.
func asDate(v any) (*time.Time, error) {
	s := asString(v)
	if s == "" || s == "0000-00-00" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
