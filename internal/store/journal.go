package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "jobshell/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Outcome labels a journal row.
const (
	OutcomeCompleted = "completed"
	OutcomeVetoed    = "vetoed"
)

// Config configures the journal database.
type Config struct {
	Path        string
	BusyTimeout time.Duration
	// Retain bounds journal history; rows older than this are pruned
	// opportunistically. 0 keeps everything.
	Retain time.Duration
}

// Entry is one journal row.
type Entry struct {
	At          time.Time
	JobName     string
	JobType     string
	TriggerName string
	Outcome     string
	Instruction string
	RunTime     time.Duration
	Err         string
}

// Journal is the sqlite-backed firing journal.
type Journal struct {
	db  *sql.DB
	log logx.Logger

	retain     time.Duration
	opCount    atomic.Uint64
	pruneEvery uint64
}

// Open opens (or creates) the journal database and runs migrations.
func Open(cfg Config, log logx.Logger) (*Journal, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("journal path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	j := &Journal{db: db, log: log, retain: cfg.Retain, pruneEvery: 500}
	if err := j.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, string(b))
	return err
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append writes one row. The caller decides what a failure means; the journal
// itself never retries.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO firings(at, job_name, job_type, trigger_name, outcome, instruction, run_ms, err)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.JobName, e.JobType, e.TriggerName,
		e.Outcome, e.Instruction, e.RunTime.Milliseconds(), nullStr(e.Err),
	)
	if err == nil && j.retain > 0 && j.opCount.Add(1)%j.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if perr := j.pruneOld(pctx); perr != nil {
			j.log.Warn("journal.prune_failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

// RecordComplete journals a completed firing.
func (j *Journal) RecordComplete(ctx context.Context, e Entry) error {
	e.Outcome = OutcomeCompleted
	return j.Append(ctx, e)
}

// RecordVetoed journals a vetoed firing.
func (j *Journal) RecordVetoed(ctx context.Context, e Entry) error {
	e.Outcome = OutcomeVetoed
	return j.Append(ctx, e)
}

// Recent returns the newest n rows, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT at, job_name, job_type, trigger_name, outcome, instruction, run_ms, err
		 FROM firings ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at string
		var runMS int64
		var errText sql.NullString
		if err := rows.Scan(&at, &e.JobName, &e.JobType, &e.TriggerName, &e.Outcome, &e.Instruction, &runMS, &errText); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.RunTime = time.Duration(runMS) * time.Millisecond
		e.Err = errText.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) pruneOld(ctx context.Context) error {
	cutoff := time.Now().Add(-j.retain).Format(time.RFC3339Nano)
	_, err := j.db.ExecContext(ctx, `DELETE FROM firings WHERE at < ?`, cutoff)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
