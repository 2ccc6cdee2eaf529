// Package history records one row per extraction run.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type Run struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	Column      string    `json:"column"`
	UniqueTerms int       `json:"unique_terms"`
	Chunks      int       `json:"chunks"`
	ChunksDone  int       `json:"chunks_done"`
	Terms       int       `json:"terms"`
	Status      string    `json:"status"`
	Aborted     bool      `json:"aborted"`
	Reason      string    `json:"reason,omitempty"`
	OutputPath  string    `json:"output_path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// fixed width so started_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db     *sql.DB
	driver string
}

const schema = `CREATE TABLE IF NOT EXISTS extraction_runs (
	id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	column_name TEXT,
	unique_terms INTEGER NOT NULL DEFAULT 0,
	chunks INTEGER NOT NULL DEFAULT 0,
	chunks_done INTEGER NOT NULL DEFAULT 0,
	terms INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	aborted INTEGER NOT NULL DEFAULT 0,
	reason TEXT,
	output_path TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL
)`

// Open connects to the run store. driver is "sqlite3" (dsn is a file path
// or ":memory:") or "postgres".
func Open(driver, dsn string) (*Store, error) {
	if driver == "sqlite3" && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if driver == "sqlite3" {
		// a second pooled connection to :memory: would see an empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history table: %w", err)
	}
	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Record(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO extraction_runs (id, file_name, column_name, unique_terms, chunks, chunks_done, terms, status, aborted, reason, output_path, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.FileName, r.Column, r.UniqueTerms, r.Chunks, r.ChunksDone, r.Terms, r.Status,
		boolInt(r.Aborted), r.Reason, r.OutputPath,
		r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, file_name, column_name, unique_terms, chunks, chunks_done, terms, status, aborted, reason, output_path, started_at, finished_at
		FROM extraction_runs ORDER BY started_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                   Run
			column, reason, out sql.NullString
			aborted             int
			started, finished   string
		)
		if err := rows.Scan(&r.ID, &r.FileName, &column, &r.UniqueTerms, &r.Chunks, &r.ChunksDone, &r.Terms,
			&r.Status, &aborted, &reason, &out, &started, &finished); err != nil {
			return nil, err
		}
		r.Column, r.Reason, r.OutputPath = column.String, reason.String, out.String
		r.Aborted = aborted != 0
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.FinishedAt, _ = time.Parse(timeLayout, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders as $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
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

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
