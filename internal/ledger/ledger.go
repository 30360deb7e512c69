// Package ledger records the outcome of every run in a SQLite file. It holds
// no selection state; each run still starts from an empty registry.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"

	// Fixed width so started_at sorts lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

type Ledger struct {
	conn *sql.DB
	log  zerolog.Logger
}

type Run struct {
	ID         string
	Project    string
	Mode       string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Clips      int
	Skipped    int
	FinalPath  string
	Error      string
}

// Outcome is what Finish records for a run.
type Outcome struct {
	Clips     int
	Skipped   int
	FinalPath string
	Err       error
	At        time.Time
}

func Open(path string, log zerolog.Logger) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create dir: %w", err)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ledger: %s: %w", pragma, err)
		}
	}

	l := &Ledger{conn: conn, log: log.With().Str("component", "ledger").Logger()}
	if err := l.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: migrate: %w", err)
	}
	if err := l.markInterrupted(); err != nil {
		l.log.Warn().Err(err).Msg("mark interrupted runs")
	}
	return l, nil
}

func (l *Ledger) Close() error { return l.conn.Close() }

func (l *Ledger) migrate() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if l.applied(name) {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := l.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("exec %s: %w", name, err)
		}
		if _, err := l.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("record %s: %w", name, err)
		}
		l.log.Debug().Str("name", name).Msg("applied migration")
	}
	return nil
}

func (l *Ledger) applied(name string) bool {
	var n int
	if err := l.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&n); err != nil {
		return false
	}
	err := l.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&n)
	return err == nil && n == 1
}

// markInterrupted fails runs left running by a process that died.
func (l *Ledger) markInterrupted() error {
	_, err := l.conn.Exec(
		`UPDATE runs SET status = ?, error = 'interrupted', finished_at = ? WHERE status = ?`,
		StatusFailed, formatTime(time.Now()), StatusRunning)
	return err
}

func (l *Ledger) Start(ctx context.Context, id, project, mode string, at time.Time) error {
	_, err := l.conn.ExecContext(ctx,
		`INSERT INTO runs (id, project, mode, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, project, mode, StatusRunning, formatTime(at))
	if err != nil {
		return fmt.Errorf("ledger: start %s: %w", id, err)
	}
	return nil
}

func (l *Ledger) Finish(ctx context.Context, id string, o Outcome) error {
	status, msg := StatusSucceeded, ""
	if o.Err != nil {
		status, msg = StatusFailed, o.Err.Error()
	}
	res, err := l.conn.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, clips = ?, skipped = ?, final_path = ?, error = ? WHERE id = ?`,
		status, formatTime(o.At), o.Clips, o.Skipped, o.FinalPath, msg, id)
	if err != nil {
		return fmt.Errorf("ledger: finish %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("ledger: finish %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// List returns the newest runs first. An empty project lists every project.
func (l *Ledger) List(ctx context.Context, project string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.conn.QueryContext(ctx,
		`SELECT id, project, mode, status, started_at, COALESCE(finished_at, ''), clips, skipped, final_path, error
		 FROM runs WHERE (? = '' OR project = ?) ORDER BY started_at DESC, id LIMIT ?`,
		project, project, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Project, &r.Mode, &r.Status, &started, &finished, &r.Clips, &r.Skipped, &r.FinalPath, &r.Error); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.New("ledger: bad timestamp " + s)
	}
	return t, nil
}
