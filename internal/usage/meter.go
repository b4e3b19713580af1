// Package usage meters per-user feature usage against monthly limits. The
// check and the increment are one SQL statement, so concurrent requests for
// the same user can never both pass the last remaining unit.
package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"leviosa/internal/logging"
)

// Feature names a metered capability.
type Feature string

const (
	FeatureNameOptimization Feature = "name_optimization"
	FeatureCoverGeneration  Feature = "cover_generation"
)

// LimitError reports that a feature's allowance is used up.
type LimitError struct {
	Feature Feature
	Used    int
	Limit   int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("Usage limit reached (%d/%d)", e.Used, e.Limit)
}

// ErrLimitReached matches any LimitError via errors.Is.
var ErrLimitReached = errors.New("usage limit reached")

// Is lets errors.Is(err, ErrLimitReached) match.
func (e *LimitError) Is(target error) bool {
	return target == ErrLimitReached
}

// Result is the counter state after a successful increment.
type Result struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// Counter is one stored usage row.
type Counter struct {
	Feature Feature `json:"feature"`
	Period  string  `json:"period"`
	Used    int     `json:"used"`
	Limit   int     `json:"limit"`
}

const schema = `
CREATE TABLE IF NOT EXISTS usage_counters (
	user_id     TEXT    NOT NULL,
	feature     TEXT    NOT NULL,
	period      TEXT    NOT NULL,
	used        INTEGER NOT NULL DEFAULT 0,
	limit_value INTEGER NOT NULL,
	updated_at  TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	PRIMARY KEY (user_id, feature, period)
);
`

// Meter is the SQLite-backed usage counter.
type Meter struct {
	db  *sql.DB
	now func() time.Time

	mu     sync.RWMutex
	limits map[Feature]int
}

// Open opens (creating if needed) the meter database at path.
func Open(path string, limits map[string]int) (*Meter, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("usage: mkdir: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("usage: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("usage: init schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("usage: ping: %w", err)
	}

	m := &Meter{db: db, now: time.Now}
	m.SetLimits(limits)
	logging.Usage("usage meter opened at %s", path)
	return m, nil
}

// Close closes the database.
func (m *Meter) Close() error {
	return m.db.Close()
}

// SetLimits replaces the monthly allowances. Counters pick up the new limit
// on their next check.
func (m *Meter) SetLimits(limits map[string]int) {
	next := make(map[Feature]int, len(limits))
	for k, v := range limits {
		next[Feature(k)] = v
	}
	m.mu.Lock()
	m.limits = next
	m.mu.Unlock()
}

// Limit returns the configured allowance for a feature. Unknown features have none.
func (m *Meter) Limit(feature Feature) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits[feature]
}

// Period returns the metering period containing t (UTC calendar month).
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// CheckAndIncrement consumes one unit of feature for userID. When the
// allowance is exhausted it returns a *LimitError and changes nothing.
func (m *Meter) CheckAndIncrement(ctx context.Context, userID string, feature Feature) (Result, error) {
	period := Period(m.now())
	limit := m.Limit(feature)

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO usage_counters (user_id, feature, period, used, limit_value)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (user_id, feature, period) DO UPDATE SET limit_value = excluded.limit_value`,
		userID, string(feature), period, limit)
	if err != nil {
		return Result{}, fmt.Errorf("usage: seed counter: %w", err)
	}

	var res Result
	err = m.db.QueryRowContext(ctx, `
		UPDATE usage_counters
		SET used = used + 1, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE user_id = ? AND feature = ? AND period = ? AND used < limit_value
		RETURNING used, limit_value`,
		userID, string(feature), period).Scan(&res.Used, &res.Limit)
	if errors.Is(err, sql.ErrNoRows) {
		var lim LimitError
		lim.Feature = feature
		if err := m.db.QueryRowContext(ctx,
			`SELECT used, limit_value FROM usage_counters WHERE user_id = ? AND feature = ? AND period = ?`,
			userID, string(feature), period).Scan(&lim.Used, &lim.Limit); err != nil {
			return Result{}, fmt.Errorf("usage: read counter: %w", err)
		}
		logging.Usage("limit reached for %s/%s: %d/%d", userID, feature, lim.Used, lim.Limit)
		return Result{}, &lim
	}
	if err != nil {
		return Result{}, fmt.Errorf("usage: increment: %w", err)
	}

	logging.UsageDebug("%s/%s now %d/%d", userID, feature, res.Used, res.Limit)
	return res, nil
}

// Counters returns userID's counters for the current period. Features
// without a row yet are reported with zero usage.
func (m *Meter) Counters(ctx context.Context, userID string) ([]Counter, error) {
	period := Period(m.now())
	rows, err := m.db.QueryContext(ctx,
		`SELECT feature, used FROM usage_counters WHERE user_id = ? AND period = ? ORDER BY feature`,
		userID, period)
	if err != nil {
		return nil, fmt.Errorf("usage: query counters: %w", err)
	}
	defer rows.Close()

	used := map[Feature]int{}
	for rows.Next() {
		var f string
		var n int
		if err := rows.Scan(&f, &n); err != nil {
			return nil, fmt.Errorf("usage: scan counter: %w", err)
		}
		used[Feature(f)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := []Counter{}
	for _, f := range []Feature{FeatureCoverGeneration, FeatureNameOptimization} {
		out = append(out, Counter{Feature: f, Period: period, Used: used[f], Limit: m.Limit(f)})
	}
	return out, nil
}
