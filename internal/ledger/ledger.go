// Package ledger keeps a local SQLite history of rekeying runs so that an
// operator can see which assemblies and studies were already processed and
// how each run ended.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/contig-rekey/contig-rekey/internal/model"
)

// ErrNotFound is returned by Get when no run has the requested ID.
var ErrNotFound = errors.New("ledger: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id            TEXT PRIMARY KEY,
	assembly          TEXT NOT NULL,
	studies           TEXT NOT NULL,
	started_at        TEXT NOT NULL,
	finished_at       TEXT NOT NULL,
	outcome           TEXT NOT NULL,
	severity          TEXT NOT NULL,
	failure_kind      TEXT NOT NULL DEFAULT '',
	error             TEXT NOT NULL DEFAULT '',
	checked           INTEGER NOT NULL,
	already_canonical INTEGER NOT NULL,
	inserted          INTEGER NOT NULL,
	deleted           INTEGER NOT NULL,
	staged            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_assembly_started ON runs (assembly, started_at);
`

const columns = `run_id, assembly, studies, started_at, finished_at, outcome, severity,
	failure_kind, error, checked, already_canonical, inserted, deleted, staged`

// Ledger records run reports in a SQLite database. It is safe for
// concurrent use.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the ledger database at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	logger.Debug("ledger opened", "path", path)
	return &Ledger{db: db, logger: logger}, nil
}

// Record stores report, replacing any earlier entry with the same run ID.
func (l *Ledger) Record(ctx context.Context, report *model.RunReport) error {
	if report == nil {
		return fmt.Errorf("report must not be nil")
	}
	s := report.Summary
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.Assembly,
		report.StudyList(),
		formatTime(report.StartedAt),
		formatTime(report.FinishedAt),
		string(report.Outcome),
		string(report.Severity),
		report.FailureKind,
		report.Error,
		s.Checked, s.AlreadyCanonical, s.Inserted, s.Deleted, s.Staged,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", report.RunID, err)
	}
	l.logger.Debug("run recorded in ledger", "run_id", report.RunID, "outcome", report.Outcome)
	return nil
}

// Get returns the run with the given ID.
func (l *Ledger) Get(ctx context.Context, runID string) (*model.RunReport, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+columns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", runID, err)
	}
	return r, nil
}

// Recent returns up to limit runs, most recent first. An empty assembly
// selects runs of every assembly.
func (l *Ledger) Recent(ctx context.Context, assembly string, limit int) ([]*model.RunReport, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be >= 1, got %d", limit)
	}
	query := `SELECT ` + columns + ` FROM runs`
	args := []any{}
	if assembly != "" {
		query += ` WHERE assembly = ?`
		args = append(args, assembly)
	}
	query += ` ORDER BY started_at DESC, run_id LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []*model.RunReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("reading run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(s scanner) (*model.RunReport, error) {
	var (
		r                 model.RunReport
		studies           string
		started, finished string
		outcome, severity string
	)
	err := s.Scan(
		&r.RunID, &r.Assembly, &studies, &started, &finished, &outcome, &severity,
		&r.FailureKind, &r.Error,
		&r.Summary.Checked, &r.Summary.AlreadyCanonical, &r.Summary.Inserted, &r.Summary.Deleted, &r.Summary.Staged,
	)
	if err != nil {
		return nil, err
	}
	if studies != "" {
		r.Studies = strings.Split(studies, ",")
	}
	r.Outcome = model.Outcome(outcome)
	r.Severity = model.Severity(severity)
	if r.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if r.FinishedAt, err = parseTime(finished); err != nil {
		return nil, err
	}
	return &r, nil
}

// Times are stored as fixed-width UTC text so that they sort correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}
