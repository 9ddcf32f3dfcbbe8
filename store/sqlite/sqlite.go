/*
Package sqlite provides the SQLite-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements ledger.Store plus the conversation and trace persistence
  used by the NLQ layer. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  facts:          Append-only fact ledger (the audit trail)
  metrics:        Derived per-period summaries, UNIQUE(period_end, source)
  conversations:  NLQ conversation registry
  messages:       Per-conversation user/assistant messages
  ai_traces:      One observability record per answered question

UPSERT SEMANTICS:
  metrics rows are fully replaced on conflict; gross_profit is always
  recomputed as revenue - cogs on write, so the identity holds after
  every upsert regardless of caller input.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode. Fact replaces
  and metric upserts for different periods never conflict; concurrent
  upserts for the same (period_end, source) resolve last-writer-wins
  through the ON CONFLICT clause.

USAGE:
  store, err := sqlite.New("./data/finance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: interface definition
  - statement/ingest.go: the writer driving ReplacePeriodFacts
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/finsight/finance-engine/ledger"
)

// Store implements ledger.Store and the NLQ persistence using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Facts (append-only observation ledger)
	CREATE TABLE IF NOT EXISTS facts (
		id INTEGER PRIMARY KEY,
		period_start TEXT,
		period_end TEXT,
		month_key TEXT,
		source TEXT NOT NULL,
		account TEXT NOT NULL,
		category TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS ix_facts_month ON facts(month_key);
	CREATE INDEX IF NOT EXISTS ix_facts_src ON facts(source);
	-- Composite index for the per-period aggregation hot path
	CREATE INDEX IF NOT EXISTS ix_facts_src_month ON facts(source, month_key);
	CREATE INDEX IF NOT EXISTS ix_facts_category ON facts(category);

	-- Metrics (derived projection, one row per period and source)
	CREATE TABLE IF NOT EXISTS metrics (
		id INTEGER PRIMARY KEY,
		period_end TEXT NOT NULL,
		source TEXT NOT NULL,
		revenue REAL,
		cogs REAL,
		gross_profit REAL,
		expenses REAL,
		net_profit REAL,
		UNIQUE(period_end, source)
	);

	-- Conversations and messages (NLQ history)
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		created_at TEXT
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY,
		conv_id TEXT,
		role TEXT,
		content TEXT,
		ts TEXT
	);

	CREATE INDEX IF NOT EXISTS ix_messages_conv ON messages(conv_id);

	-- AI traces (one record per answered question)
	CREATE TABLE IF NOT EXISTS ai_traces (
		id INTEGER PRIMARY KEY,
		ts TEXT,
		conversation_id TEXT,
		question TEXT,
		answer TEXT,
		model TEXT,
		tokens_prompt INTEGER,
		tokens_completion INTEGER,
		latency_ms REAL,
		tool_calls TEXT
	);

	CREATE INDEX IF NOT EXISTS ix_ai_traces_ts ON ai_traces(ts);
	CREATE INDEX IF NOT EXISTS ix_ai_traces_conv ON ai_traces(conversation_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// FACT STORE (ledger.Store interface)
// =============================================================================

// InsertFact appends a fact, deriving the month key from the period end
// when the caller left it empty.
func (s *Store) InsertFact(ctx context.Context, f ledger.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertFact(ctx, s.db, f)
}

func (s *Store) insertFact(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, f ledger.Fact) error {
	monthKey := f.MonthKey
	if monthKey == "" && f.PeriodEnd != "" {
		mk, err := ledger.MonthKey(f.PeriodEnd)
		if err != nil {
			return fmt.Errorf("failed to derive month key: %w", err)
		}
		monthKey = mk
	}

	query := `
		INSERT INTO facts (period_start, period_end, month_key, source, account, category, kind, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		nullString(f.PeriodStart),
		nullString(f.PeriodEnd),
		nullString(monthKey),
		string(f.Source),
		f.Account,
		string(f.Category),
		string(f.Kind),
		f.Amount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fact: %w", err)
	}
	return nil
}

// ReplacePeriodFacts atomically swaps the fact set for one
// (source, month_key).
func (s *Store) ReplacePeriodFacts(ctx context.Context, source ledger.Source, monthKey string, facts []ledger.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM facts WHERE source = ? AND month_key = ?",
		string(source), monthKey,
	); err != nil {
		return fmt.Errorf("failed to clear period facts: %w", err)
	}

	for _, f := range facts {
		if err := s.insertFact(ctx, tx, f); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CategoryTotals sums fact amounts per category for one source+month.
func (s *Store) CategoryTotals(ctx context.Context, source ledger.Source, monthKey string) (ledger.CategoryTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT SUM(CASE WHEN category = 'revenue' THEN amount ELSE 0 END),
		       SUM(CASE WHEN category = 'cogs' THEN amount ELSE 0 END),
		       SUM(CASE WHEN category = 'expense' THEN amount ELSE 0 END)
		FROM facts
		WHERE source = ? AND month_key = ?
	`

	var revenue, cogs, expenses sql.NullFloat64
	err := s.db.QueryRowContext(ctx, query, string(source), monthKey).
		Scan(&revenue, &cogs, &expenses)
	if err != nil {
		return ledger.CategoryTotals{}, fmt.Errorf("failed to aggregate facts: %w", err)
	}

	return ledger.CategoryTotals{
		Revenue:  revenue.Float64,
		COGS:     cogs.Float64,
		Expenses: expenses.Float64,
	}, nil
}

// =============================================================================
// METRIC STORE
// =============================================================================

// UpsertMetric inserts or fully replaces a metric row. Gross profit is
// recomputed from revenue and cogs on every write.
func (s *Store) UpsertMetric(ctx context.Context, m ledger.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gross := m.Revenue - m.COGS

	query := `
		INSERT INTO metrics (period_end, source, revenue, cogs, gross_profit, expenses, net_profit)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(period_end, source) DO UPDATE SET
			revenue = excluded.revenue,
			cogs = excluded.cogs,
			gross_profit = excluded.gross_profit,
			expenses = excluded.expenses,
			net_profit = excluded.net_profit
	`

	_, err := s.db.ExecContext(ctx, query,
		m.PeriodEnd, string(m.Source), m.Revenue, m.COGS, gross, m.Expenses, m.NetProfit,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert metric: %w", err)
	}
	return nil
}

// Summary returns metric rows ordered by period end ascending.
func (s *Store) Summary(ctx context.Context, year int, source ledger.Source) ([]ledger.Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT period_end, source, revenue, cogs, gross_profit, expenses, net_profit FROM metrics"
	where, args := metricFilters(year, source)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY period_end"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	metrics := []ledger.Metric{}
	for rows.Next() {
		var m ledger.Metric
		var revenue, cogs, gross, expenses, net sql.NullFloat64
		if err := rows.Scan(&m.PeriodEnd, &m.Source, &revenue, &cogs, &gross, &expenses, &net); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		m.Revenue = revenue.Float64
		m.COGS = cogs.Float64
		m.GrossProfit = gross.Float64
		m.Expenses = expenses.Float64
		if net.Valid {
			v := net.Float64
			m.NetProfit = &v
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// Trend returns the time series for one metric column. Only enumerated
// metric names are accepted; the name is interpolated into SQL.
func (s *Store) Trend(ctx context.Context, metric string, year int, source ledger.Source) (ledger.Trend, error) {
	if !ledger.ValidMetricName(metric) {
		return ledger.Trend{}, fmt.Errorf("invalid metric name %q", metric)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf("SELECT period_end, %s, source FROM metrics", metric)
	where, args := metricFilters(year, source)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY period_end"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ledger.Trend{}, fmt.Errorf("failed to query trend: %w", err)
	}
	defer rows.Close()

	tr := ledger.Trend{Metric: metric, Points: []ledger.TrendPoint{}}
	for rows.Next() {
		var p ledger.TrendPoint
		var value sql.NullFloat64
		if err := rows.Scan(&p.PeriodEnd, &value, &p.Source); err != nil {
			return ledger.Trend{}, fmt.Errorf("failed to scan trend point: %w", err)
		}
		if value.Valid {
			v := value.Float64
			p.Value = &v
		}
		tr.Points = append(tr.Points, p)
	}
	return tr, rows.Err()
}

// SumBetween aggregates metric columns over an inclusive month range of
// one year. Null net_profit values contribute zero; an empty window
// yields all zeros.
func (s *Store) SumBetween(ctx context.Context, monthBegin, monthEnd, year int, source ledger.Source) (ledger.PeriodSums, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT SUM(revenue), SUM(cogs), SUM(gross_profit), SUM(expenses), SUM(COALESCE(net_profit, 0))
		FROM metrics
		WHERE substr(period_end, 1, 4) = ?
		  AND CAST(substr(period_end, 6, 2) AS INTEGER) BETWEEN ? AND ?
	`
	args := []any{strconv.Itoa(year), monthBegin, monthEnd}
	if source != "" {
		query += " AND source = ?"
		args = append(args, string(source))
	}

	var revenue, cogs, gross, expenses, net sql.NullFloat64
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&revenue, &cogs, &gross, &expenses, &net)
	if err != nil {
		return ledger.PeriodSums{}, fmt.Errorf("failed to sum metrics: %w", err)
	}

	return ledger.PeriodSums{
		Revenue:     revenue.Float64,
		COGS:        cogs.Float64,
		GrossProfit: gross.Float64,
		Expenses:    expenses.Float64,
		NetProfit:   net.Float64,
	}, nil
}

// ExpensesIncreaseTop ranks expense accounts by the amount change
// between the year's first and last expense-bearing months. A month an
// account is missing from counts as zero. Ties on increase fall back to
// SQLite's natural row order, which is insertion-derived.
func (s *Store) ExpensesIncreaseTop(ctx context.Context, year int, source ledger.Source, limit int) (ledger.ExpenseIncreaseReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := ledger.ExpenseIncreaseReport{Year: year, Top: []ledger.ExpenseIncrease{}}

	srcClause := ""
	boundsArgs := []any{strconv.Itoa(year)}
	if source != "" {
		srcClause = " AND source = ?"
		boundsArgs = append(boundsArgs, string(source))
	}

	var first, last sql.NullString
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT MIN(month_key), MAX(month_key)
		FROM facts
		WHERE category = 'expense' AND substr(month_key, 1, 4) = ?%s
	`, srcClause), boundsArgs...).Scan(&first, &last)
	if err != nil {
		return report, fmt.Errorf("failed to find expense window: %w", err)
	}
	if !first.Valid || !last.Valid {
		return report, nil
	}
	report.FirstMonth = &first.String
	report.LastMonth = &last.String

	args := []any{strconv.Itoa(year)}
	if source != "" {
		args = append(args, string(source))
	}
	args = append(args, first.String, last.String, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		WITH per_month AS (
			SELECT account, month_key, SUM(amount) AS amt
			FROM facts
			WHERE category = 'expense' AND substr(month_key, 1, 4) = ?%s
			GROUP BY account, month_key
		),
		edges AS (
			SELECT a.account,
			       (SELECT amt FROM per_month WHERE account = a.account AND month_key = ?) AS first_amt,
			       (SELECT amt FROM per_month WHERE account = a.account AND month_key = ?) AS last_amt
			FROM (SELECT DISTINCT account FROM per_month) a
		)
		SELECT account,
		       COALESCE(last_amt, 0) - COALESCE(first_amt, 0) AS increase,
		       COALESCE(first_amt, 0),
		       COALESCE(last_amt, 0)
		FROM edges
		ORDER BY increase DESC
		LIMIT ?
	`, srcClause), args...)
	if err != nil {
		return report, fmt.Errorf("failed to rank expense increases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e ledger.ExpenseIncrease
		if err := rows.Scan(&e.Account, &e.Increase, &e.First, &e.Last); err != nil {
			return report, fmt.Errorf("failed to scan expense increase: %w", err)
		}
		report.Top = append(report.Top, e)
	}
	return report, rows.Err()
}

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// EnsureConversation registers a conversation id, generating one when
// empty, and returns the id in use.
func (s *Store) EnsureConversation(ctx context.Context, convID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if convID == "" {
		convID = "conv_" + time.Now().UTC().Format("20060102150405.000000")
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO conversations (id, created_at) VALUES (?, ?)",
		convID, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("failed to ensure conversation: %w", err)
	}
	return convID, nil
}

// AddMessage appends a message to a conversation.
func (s *Store) AddMessage(ctx context.Context, convID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (conv_id, role, content, ts) VALUES (?, ?, ?, ?)",
		convID, role, content, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to add message: %w", err)
	}
	return nil
}

// =============================================================================
// TRACE STORE
// =============================================================================

// TraceRecord is one observability record for an answered question.
type TraceRecord struct {
	ID               int64            `json:"id,omitempty"`
	TS               string           `json:"ts"`
	ConversationID   string           `json:"conversation_id"`
	Question         string           `json:"question"`
	Answer           string           `json:"answer"`
	Model            *string          `json:"model"`
	TokensPrompt     int              `json:"tokens_prompt"`
	TokensCompletion int              `json:"tokens_completion"`
	LatencyMS        float64          `json:"latency_ms"`
	ToolCalls        []map[string]any `json:"tool_calls"`
}

// LogTrace inserts a trace record.
func (s *Store) LogTrace(ctx context.Context, t TraceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	toolCallsJSON, _ := json.Marshal(t.ToolCalls)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_traces (ts, conversation_id, question, answer, model, tokens_prompt, tokens_completion, latency_ms, tool_calls)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.TS, t.ConversationID, t.Question, t.Answer, t.Model,
		t.TokensPrompt, t.TokensCompletion, t.LatencyMS, string(toolCallsJSON))
	if err != nil {
		return fmt.Errorf("failed to log trace: %w", err)
	}
	return nil
}

// RecentTraces returns the most recent trace records, newest first.
func (s *Store) RecentTraces(ctx context.Context, limit int) ([]TraceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTraces(ctx,
		"SELECT id, ts, conversation_id, question, answer, model, tokens_prompt, tokens_completion, latency_ms, tool_calls FROM ai_traces ORDER BY ts DESC LIMIT ?",
		limit)
}

// TracesByConversation returns all trace records for one conversation,
// newest first.
func (s *Store) TracesByConversation(ctx context.Context, convID string) ([]TraceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTraces(ctx,
		"SELECT id, ts, conversation_id, question, answer, model, tokens_prompt, tokens_completion, latency_ms, tool_calls FROM ai_traces WHERE conversation_id = ? ORDER BY ts DESC",
		convID)
}

func (s *Store) queryTraces(ctx context.Context, query string, args ...any) ([]TraceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query traces: %w", err)
	}
	defer rows.Close()

	traces := []TraceRecord{}
	for rows.Next() {
		var t TraceRecord
		var model sql.NullString
		var toolCallsJSON sql.NullString
		if err := rows.Scan(&t.ID, &t.TS, &t.ConversationID, &t.Question, &t.Answer,
			&model, &t.TokensPrompt, &t.TokensCompletion, &t.LatencyMS, &toolCallsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan trace: %w", err)
		}
		if model.Valid {
			t.Model = &model.String
		}
		t.ToolCalls = []map[string]any{}
		if toolCallsJSON.Valid && toolCallsJSON.String != "" {
			json.Unmarshal([]byte(toolCallsJSON.String), &t.ToolCalls)
		}
		traces = append(traces, t)
	}
	return traces, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"facts", "metrics", "messages", "conversations", "ai_traces"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// FactsByMonth returns the stored facts for one (source, month_key),
// ordered by account (for audits and tests).
func (s *Store) FactsByMonth(ctx context.Context, source ledger.Source, monthKey string) ([]ledger.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT period_start, period_end, month_key, source, account, category, kind, amount
		FROM facts
		WHERE source = ? AND month_key = ?
		ORDER BY account, id
	`, string(source), monthKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	facts := []ledger.Fact{}
	for rows.Next() {
		var f ledger.Fact
		var start sql.NullString
		if err := rows.Scan(&start, &f.PeriodEnd, &f.MonthKey, &f.Source, &f.Account, &f.Category, &f.Kind, &f.Amount); err != nil {
			return nil, err
		}
		f.PeriodStart = start.String
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// CountFacts returns the number of stored facts, optionally filtered by
// source (for admin/introspection views).
func (s *Store) CountFacts(ctx context.Context, source ledger.Source) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT COUNT(*) FROM facts"
	var args []any
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, string(source))
	}

	var count int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// Helper functions

func metricFilters(year int, source ledger.Source) (string, []any) {
	var where string
	var args []any
	if year != 0 {
		where = "substr(period_end, 1, 4) = ?"
		args = append(args, strconv.Itoa(year))
	}
	if source != "" {
		if where != "" {
			where += " AND "
		}
		where += "source = ?"
		args = append(args, string(source))
	}
	return where, args
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
