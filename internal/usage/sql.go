package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"slotgateway/internal/logger"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS usage_records (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	request_id TEXT NOT NULL,
	trace_id TEXT NOT NULL,
	api_key_name TEXT NOT NULL,
	incoming_api TEXT NOT NULL,
	task_class TEXT NOT NULL,
	prompt_id TEXT NOT NULL,
	slot_id INTEGER NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	status TEXT NOT NULL,
	error_kind TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL
)`

const postgresSchema = `CREATE TABLE IF NOT EXISTS usage_records (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	request_id TEXT NOT NULL,
	trace_id TEXT NOT NULL,
	api_key_name TEXT NOT NULL,
	incoming_api TEXT NOT NULL,
	task_class TEXT NOT NULL,
	prompt_id TEXT NOT NULL,
	slot_id INTEGER NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	status TEXT NOT NULL,
	error_kind TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL
)`

const columns = `id, created_at, request_id, trace_id, api_key_name, incoming_api, task_class, prompt_id,
	slot_id, provider, model, status, error_kind, attempts, duration_ms, prompt_tokens, completion_tokens, total_tokens`

// SQLStore persists records to SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	driver  string
	timeout time.Duration
	log     *slog.Logger
	// OnWrite, when set, observes the outcome of every insert.
	OnWrite func(err error)
}

// OpenSQL opens the database and creates the table if needed.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var schema string
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = "slotgateway.db"
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
		schema = sqliteSchema
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("PostgreSQL DSN is required")
		}
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported usage database driver: %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating usage_records table: %w", err)
	}

	return &SQLStore{
		db:      db,
		driver:  driver,
		timeout: 5 * time.Second,
		log:     logger.WithComponent("usage"),
	}, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Insert writes one record. A record whose id is already stored is skipped,
// so replayed dispatch events are harmless.
func (s *SQLStore) Insert(ctx context.Context, r Record) error {
	query := s.rebind(`INSERT INTO usage_records (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Timestamp.UTC(), r.RequestID, r.TraceID, r.APIKeyName, r.IncomingAPI, r.TaskClass, r.PromptID,
		r.SlotID, r.Provider, r.Model, r.Status, r.ErrorKind, r.Attempts, r.DurationMs,
		r.Usage.PromptTokens, r.Usage.CompletionTokens, r.Usage.TotalTokens,
	)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+columns+` FROM usage_records ORDER BY created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("querying usage records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.Timestamp, &r.RequestID, &r.TraceID, &r.APIKeyName, &r.IncomingAPI, &r.TaskClass, &r.PromptID,
			&r.SlotID, &r.Provider, &r.Model, &r.Status, &r.ErrorKind, &r.Attempts, &r.DurationMs,
			&r.Usage.PromptTokens, &r.Usage.CompletionTokens, &r.Usage.TotalTokens,
		); err != nil {
			return nil, fmt.Errorf("scanning usage record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Add implements Sink. Write failures are logged, never returned to the request path.
func (s *SQLStore) Add(r Record) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	err := s.Insert(ctx, r)
	if err != nil {
		s.log.Error("usage record not persisted", "request_id", r.RequestID, "error", err.Error())
	}
	if s.OnWrite != nil {
		s.OnWrite(err)
	}
}

// List implements Sink.
func (s *SQLStore) List(limit int) []Record {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	out, err := s.Recent(ctx, limit)
	if err != nil {
		s.log.Error("usage records unavailable", "error", err.Error())
		return nil
	}
	return out
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
