package screening

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
)

// Selector executes read-only queries.
type Selector interface {
	Select(ctx context.Context, query string, args ...any) ([]string, [][]any, error)
}

// Result is a column list plus a row matrix in the same order.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Engine serves screening requests from the bond store.
type Engine struct {
	db     Selector
	logger zerolog.Logger
}

// NewEngine builds a screening engine.
func NewEngine(db Selector, logger zerolog.Logger) *Engine {
	return &Engine{
		db:     db,
		logger: logger.With().Str("component", "screening").Logger(),
	}
}

// Select returns bonds matching q ordered by year_percent descending.
func (e *Engine) Select(ctx context.Context, q Query) (Result, error) {
	sql, args, err := BuildQuery(q)
	if err != nil {
		return Result{}, fmt.Errorf("build screening query: %w", err)
	}

	started := time.Now()
	columns, rows, err := e.db.Select(ctx, sql, args...)
	if err != nil {
		return Result{}, err
	}
	for _, row := range rows {
		for i, v := range row {
			row[i] = normalize(v)
		}
	}

	e.logger.Debug().
		Int("rows", len(rows)).
		Dur("elapsed", time.Since(started)).
		Msg("screening query served")

	return Result{Columns: columns, Rows: rows}, nil
}

// normalize converts driver values into plain presentation types.
func normalize(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}
