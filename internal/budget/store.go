// Package budget enforces the monthly spend ceiling for paid extraction and
// normalization calls. Spend is tracked against a sliding 30-day window on
// the ai_usage table, so the limit cannot be gamed at month boundaries.
package budget

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

const usageSchema = `
CREATE TABLE IF NOT EXISTS ai_usage (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	provider      TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	tokens_input  INTEGER NOT NULL DEFAULT 0,
	tokens_output INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL,
	cached        INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_ai_usage_created_at ON ai_usage(created_at);
`

// UsageRecord is one billable call.
type UsageRecord struct {
	Provider     string
	Model        string
	TokensInput  int
	TokensOutput int
	CostUSD      float64
	Cached       bool
}

// Store persists usage rows and answers sliding-window spend queries.
type Store struct {
	db *sql.DB
}

func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, usageSchema); err != nil {
		return nil, errors.Wrap(err, "create ai_usage schema")
	}
	return &Store{db: db}, nil
}

// Record inserts one usage row.
func (s *Store) Record(ctx context.Context, rec UsageRecord) error {
	cached := 0
	if rec.Cached {
		cached = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_usage (provider, model, tokens_input, tokens_output, cost_usd, cached)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Provider, rec.Model, rec.TokensInput, rec.TokensOutput, rec.CostUSD, cached)
	if err != nil {
		return errors.Wrap(err, "insert ai_usage row")
	}
	return nil
}

// MonthlySpend returns total cost and call count over the last 30 days.
func (s *Store) MonthlySpend(ctx context.Context) (totalCost float64, calls int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0), COUNT(*)
		FROM ai_usage
		WHERE created_at >= datetime('now', '-30 days')`).Scan(&totalCost, &calls)
	if err != nil {
		return 0, 0, errors.Wrap(err, "query monthly spend")
	}
	return totalCost, calls, nil
}

// SpendByProvider returns per-provider cost over the last 30 days.
func (s *Store) SpendByProvider(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, COALESCE(SUM(cost_usd), 0)
		FROM ai_usage
		WHERE created_at >= datetime('now', '-30 days')
		GROUP BY provider`)
	if err != nil {
		return nil, errors.Wrap(err, "query spend by provider")
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var provider string
		var cost float64
		if err := rows.Scan(&provider, &cost); err != nil {
			return nil, errors.Wrap(err, "scan spend row")
		}
		out[provider] = cost
	}
	return out, rows.Err()
}
