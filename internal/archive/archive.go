// Package archive keeps every loaded reading in SQLite so history outlives
// the local cache folder.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"thermochart/internal/reading"
)

//go:embed sql/upsert-reading.sql
var upsertReadingSQL string

//go:embed sql/get-readings.sql
var getReadingsSQL string

//go:embed sql/get-latest-reading.sql
var getLatestReadingSQL string

//go:embed sql/get-readings-count.sql
var getReadingsCountSQL string

//go:embed sql/insert-run.sql
var insertRunSQL string

type Run struct {
	StartedAt time.Time
	Duration  time.Duration
	Copied    int
	Rows      int
	ChartPath string
}

type Repository interface {
	// Upsert stores readings keyed by timestamp and returns how many rows
	// were inserted or changed.
	Upsert(ctx context.Context, readings []reading.Reading) (int, error)
	Readings(ctx context.Context, from, to time.Time, limit int) ([]reading.Reading, error)
	Latest(ctx context.Context) (reading.Reading, bool, error)
	Count(ctx context.Context) (int, error)
	RecordRun(ctx context.Context, run Run) error
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repositoryImpl{db: db}
}

// tsLayout is fixed width so timestamps compare correctly as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func (r *repositoryImpl) Upsert(ctx context.Context, readings []reading.Reading) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, upsertReadingSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	changed := 0
	for _, rd := range readings {
		on := 0
		if rd.On {
			on = 1
		}
		res, err := stmt.ExecContext(ctx, formatTS(rd.Time), rd.Desired, rd.Actual, on)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("upsert reading %s: %w", rd.Time, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		changed += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return changed, nil
}

// Readings returns archived readings between from and to, oldest first. A
// zero from or to leaves that side open.
func (r *repositoryImpl) Readings(ctx context.Context, from, to time.Time, limit int) ([]reading.Reading, error) {
	var fromStr, toStr string
	if !from.IsZero() {
		fromStr = formatTS(from)
	}
	if !to.IsZero() {
		toStr = formatTS(to)
	}
	rows, err := r.db.QueryContext(ctx, getReadingsSQL, fromStr, toStr, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close readings rows", "error", err)
		}
	}()

	var out []reading.Reading
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) Latest(ctx context.Context) (reading.Reading, bool, error) {
	rd, err := scanReading(r.db.QueryRowContext(ctx, getLatestReadingSQL))
	if errors.Is(err, sql.ErrNoRows) {
		return reading.Reading{}, false, nil
	}
	if err != nil {
		return reading.Reading{}, false, err
	}
	return rd, true, nil
}

func (r *repositoryImpl) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, getReadingsCountSQL).Scan(&n)
	return n, err
}

func (r *repositoryImpl) RecordRun(ctx context.Context, run Run) error {
	_, err := r.db.ExecContext(ctx, insertRunSQL,
		formatTS(run.StartedAt),
		run.Duration.Milliseconds(),
		run.Copied,
		run.Rows,
		run.ChartPath,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReading(s scanner) (reading.Reading, error) {
	var (
		rd reading.Reading
		ts string
		on int
	)
	if err := s.Scan(&ts, &rd.Desired, &rd.Actual, &on); err != nil {
		return reading.Reading{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return reading.Reading{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	rd.Time = t.Local()
	rd.On = on != 0
	return rd, nil
}
