// Package pipeline runs one refresh: sync the export folder, load and sort
// the readings, plot them, and mirror the chart back to the shared drive.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"thermochart/internal/archive"
	"thermochart/internal/filesync"
	"thermochart/internal/plot"
	"thermochart/internal/reading"
)

type Config struct {
	SourceDir   string
	LocalDir    string
	ChartPath   string
	MirrorPath  string // empty disables the mirror copy
	SkipInvalid bool
	Chart       plot.Options
}

// Archiver stores readings and run history.
type Archiver interface {
	Upsert(ctx context.Context, readings []reading.Reading) (int, error)
	RecordRun(ctx context.Context, run archive.Run) error
}

// Publisher announces the newest reading.
type Publisher interface {
	PublishLatest(r reading.Reading) error
}

type Report struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Copied     int           `json:"copied"`
	Rows       int           `json:"rows"`
	Archived   int           `json:"archived"`
	ChartPath  string        `json:"chart_path"`
	MirrorPath string        `json:"mirror_path,omitempty"`
}

type Pipeline struct {
	cfg       Config
	logger    *slog.Logger
	archiver  Archiver
	publisher Publisher

	mu      sync.RWMutex
	last    Report
	hasLast bool
}

type Option func(*Pipeline)

func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

func New(cfg Config, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run performs one refresh. The chart is written before the optional archive
// and publish steps; an archive failure fails the run, a publish failure is
// only logged.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	rep := Report{StartedAt: time.Now(), ChartPath: p.cfg.ChartPath, MirrorPath: p.cfg.MirrorPath}

	p.logger.Info("refreshing data", "source", p.cfg.SourceDir, "local", p.cfg.LocalDir)
	res, err := filesync.Sync(ctx, p.cfg.SourceDir, p.cfg.LocalDir)
	if err != nil {
		return rep, fmt.Errorf("sync %s: %w", p.cfg.SourceDir, err)
	}
	rep.Copied = res.Copied
	p.logger.Info(fmt.Sprintf("retrieved %d new files", res.Copied), "copied", res.Copied, "skipped", res.Skipped)

	p.logger.Info("loading data", "dir", p.cfg.LocalDir)
	readings, err := reading.LoadDir(ctx, p.cfg.LocalDir, reading.LoadOptions{
		SkipInvalid: p.cfg.SkipInvalid,
		Logger:      p.logger,
	})
	if err != nil {
		return rep, err
	}
	reading.Sort(readings)
	rep.Rows = len(readings)

	if err := ctx.Err(); err != nil {
		return rep, err
	}

	p.logger.Info("plotting data", "rows", rep.Rows, "chart", p.cfg.ChartPath)
	if err := plot.WriteFile(p.cfg.ChartPath, plot.BuildFigure(readings), p.cfg.Chart); err != nil {
		return rep, fmt.Errorf("write chart %s: %w", p.cfg.ChartPath, err)
	}
	if p.cfg.MirrorPath != "" {
		if err := filesync.CopyFile(p.cfg.ChartPath, p.cfg.MirrorPath); err != nil {
			return rep, fmt.Errorf("mirror chart to %s: %w", p.cfg.MirrorPath, err)
		}
	}

	if p.archiver != nil {
		n, err := p.archiver.Upsert(ctx, readings)
		if err != nil {
			return rep, fmt.Errorf("archive readings: %w", err)
		}
		rep.Archived = n
	}

	if p.publisher != nil && len(readings) > 0 {
		latest := readings[len(readings)-1]
		if err := p.publisher.PublishLatest(latest); err != nil {
			p.logger.Warn("publish latest reading failed", "error", err)
		}
	}

	rep.Duration = time.Since(rep.StartedAt)

	if p.archiver != nil {
		err := p.archiver.RecordRun(ctx, archive.Run{
			StartedAt: rep.StartedAt,
			Duration:  rep.Duration,
			Copied:    rep.Copied,
			Rows:      rep.Rows,
			ChartPath: rep.ChartPath,
		})
		if err != nil {
			return rep, fmt.Errorf("record run: %w", err)
		}
	}

	p.mu.Lock()
	p.last, p.hasLast = rep, true
	p.mu.Unlock()

	p.logger.Info("done",
		"copied", rep.Copied,
		"rows", rep.Rows,
		"archived", rep.Archived,
		"duration", rep.Duration,
	)
	return rep, nil
}

// LastRun returns the report of the most recent successful run.
func (p *Pipeline) LastRun() (Report, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.hasLast
}
