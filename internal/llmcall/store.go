package llmcall

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS llm_calls (
	id             TEXT PRIMARY KEY,
	timestamp      TEXT NOT NULL,
	run_id         TEXT NOT NULL DEFAULT '',
	document       TEXT NOT NULL DEFAULT '',
	unit           TEXT NOT NULL DEFAULT '',
	site           TEXT NOT NULL DEFAULT '',
	backend        TEXT NOT NULL DEFAULT '',
	model          TEXT NOT NULL,
	attempts       INTEGER NOT NULL,
	latency_ms     INTEGER NOT NULL,
	prompt_hash    TEXT NOT NULL DEFAULT '',
	response_chars INTEGER NOT NULL,
	success        INTEGER NOT NULL,
	error          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_llm_calls_run ON llm_calls(run_id, site);

CREATE TABLE IF NOT EXISTS document_outcomes (
	run_id          TEXT NOT NULL,
	key             TEXT NOT NULL,
	request_id      TEXT NOT NULL DEFAULT '',
	kind            TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	failure         TEXT NOT NULL DEFAULT '',
	attempts        INTEGER NOT NULL,
	elapsed_seconds REAL NOT NULL,
	from_checkpoint INTEGER NOT NULL,
	timestamp       TEXT NOT NULL,
	PRIMARY KEY (run_id, key)
);
`

// Store provides access to the call ledger in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens the ledger at path, creating it if needed. ":memory:" opens
// a private in-memory ledger.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	// One connection serialises writers and keeps :memory: a single database.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertCall stores one call.
func (s *Store) InsertCall(ctx context.Context, c *Call) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_calls (id, timestamp, run_id, document, unit, site, backend, model,
			attempts, latency_ms, prompt_hash, response_chars, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, formatTime(c.Timestamp), c.RunID, c.Document, c.Unit, c.Site, c.Backend, c.Model,
		c.Attempts, c.LatencyMs, c.PromptHash, c.ResponseChars, c.Success, c.Error)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// InsertOutcome stores one outcome, replacing an earlier row for the same
// run and key.
func (s *Store) InsertOutcome(ctx context.Context, o *Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO document_outcomes (run_id, key, request_id, kind, status, failure,
			attempts, elapsed_seconds, from_checkpoint, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.Key, o.RequestID, o.Kind, o.Status, o.Failure,
		o.Attempts, o.ElapsedSeconds, o.FromCheckpoint, formatTime(o.Timestamp))
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// QueryFilter specifies filters for listing calls.
type QueryFilter struct {
	RunID    string
	Document string
	Site     string
	Model    string
	Success  *bool
	Limit    int
}

// ListCalls returns calls matching the filter, newest first.
func (s *Store) ListCalls(ctx context.Context, filter QueryFilter) ([]Call, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, v any) {
		conditions = append(conditions, cond)
		args = append(args, v)
	}
	if filter.RunID != "" {
		add("run_id = ?", filter.RunID)
	}
	if filter.Document != "" {
		add("document = ?", filter.Document)
	}
	if filter.Site != "" {
		add("site = ?", filter.Site)
	}
	if filter.Model != "" {
		add("model = ?", filter.Model)
	}
	if filter.Success != nil {
		add("success = ?", *filter.Success)
	}

	query := `SELECT id, timestamp, run_id, document, unit, site, backend, model, attempts,
		latency_ms, prompt_hash, response_chars, success, error FROM llm_calls`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var (
			c  Call
			ts string
		)
		if err := rows.Scan(&c.ID, &ts, &c.RunID, &c.Document, &c.Unit, &c.Site, &c.Backend, &c.Model,
			&c.Attempts, &c.LatencyMs, &c.PromptHash, &c.ResponseChars, &c.Success, &c.Error); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		c.Timestamp = parseTime(ts)
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// SiteStats aggregates calls for one call site.
type SiteStats struct {
	Site         string  `json:"site" yaml:"site"`
	Calls        int     `json:"calls" yaml:"calls"`
	Failures     int     `json:"failures" yaml:"failures"`
	Attempts     int     `json:"attempts" yaml:"attempts"`
	AvgLatencyMs float64 `json:"avg_latency_ms" yaml:"avg_latency_ms"`
}

// SuccessRate is the fraction of calls that returned text.
func (s SiteStats) SuccessRate() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Calls-s.Failures) / float64(s.Calls)
}

// Summary aggregates one run, or every run when RunID is empty.
type Summary struct {
	RunID     string         `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Sites     []SiteStats    `json:"sites" yaml:"sites"`
	Documents map[string]int `json:"documents" yaml:"documents"`
}

// Summary returns per-site call counts and per-status document counts.
func (s *Store) Summary(ctx context.Context, runID string) (*Summary, error) {
	where, args := "", []any{}
	if runID != "" {
		where, args = " WHERE run_id = ?", []any{runID}
	}

	sum := &Summary{RunID: runID, Documents: map[string]int{}}
	rows, err := s.db.QueryContext(ctx, `
		SELECT site, COUNT(*), SUM(CASE WHEN success THEN 0 ELSE 1 END), SUM(attempts), AVG(latency_ms)
		FROM llm_calls`+where+` GROUP BY site ORDER BY site`, args...)
	if err != nil {
		return nil, fmt.Errorf("summarise calls: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st SiteStats
		if err := rows.Scan(&st.Site, &st.Calls, &st.Failures, &st.Attempts, &st.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan site stats: %w", err)
		}
		sum.Sites = append(sum.Sites, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	orows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM document_outcomes`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("summarise outcomes: %w", err)
	}
	defer orows.Close()
	for orows.Next() {
		var (
			status string
			n      int
		)
		if err := orows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan outcome counts: %w", err)
		}
		sum.Documents[status] = n
	}
	return sum, orows.Err()
}

// LatestRun returns the run id of the most recent outcome, or "" when the
// ledger is empty.
func (s *Store) LatestRun(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id FROM document_outcomes ORDER BY timestamp DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest run: %w", err)
	}
	return runID, nil
}

// timeLayout is fixed width so text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
