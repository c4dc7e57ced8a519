package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"thermochart/internal/archive"
	"thermochart/internal/config"
	"thermochart/internal/httpapi"
	"thermochart/internal/pipeline"
	"thermochart/internal/plot"
	"thermochart/internal/publish"
	"thermochart/internal/schedule"
)

type Options struct {
	// Schedule repeats the pipeline every cfg.ScheduleInterval until ctx ends.
	Schedule bool
	// DelayFirstRun waits one interval before the first scheduled run.
	DelayFirstRun bool
}

func Run(ctx context.Context, cfg config.Config, opts Options) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"sourceDir", cfg.SourceDir,
		"localDir", cfg.LocalDir,
		"chartPath", cfg.ChartPath,
		"chartMirrorPath", cfg.ChartMirrorPath,
		"schedule", opts.Schedule,
		"scheduleInterval", cfg.ScheduleInterval,
		"skipInvalidFiles", cfg.SkipInvalidFiles,
		"sqlitePath", cfg.SQLitePath,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
		"httpAddr", cfg.HTTPAddr,
	)

	var (
		pipelineOpts []pipeline.Option
		store        httpapi.ReadingStore
	)

	if cfg.SQLitePath != "" {
		dbConn, err := archive.Open(ctx, cfg.SQLitePath, slog.Default())
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := archive.Close(dbConn); closeErr != nil {
				slog.Error("db close", "error", closeErr)
			}
		}()
		repo := archive.NewRepository(dbConn)
		pipelineOpts = append(pipelineOpts, pipeline.WithArchiver(repo))
		store = repo
		slog.Info("reading archive enabled", "path", cfg.SQLitePath)
	}

	if cfg.MQTTBroker != "" {
		publisher := publish.NewPublisher(cfg, slog.Default())

		// Short timeout so an unreachable broker does not block the chart.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err := publisher.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
		defer publisher.Disconnect()
		pipelineOpts = append(pipelineOpts, pipeline.WithPublisher(publisher))
	}

	p := pipeline.New(pipeline.Config{
		SourceDir:   cfg.SourceDir,
		LocalDir:    cfg.LocalDir,
		ChartPath:   cfg.ChartPath,
		MirrorPath:  cfg.ChartMirrorPath,
		SkipInvalid: cfg.SkipInvalidFiles,
		Chart: plot.Options{
			Title:      cfg.ChartTitle,
			AssetsHost: cfg.ChartAssetsHost,
		},
	}, slog.Default(), pipelineOpts...)

	if !opts.Schedule {
		if cfg.HTTPAddr != "" {
			slog.Warn("HTTP_ADDR ignored without --schedule", "httpAddr", cfg.HTTPAddr)
		}
		_, err := p.Run(ctx)
		return err
	}

	sched := schedule.New(cfg.ScheduleInterval, slog.Default(), schedule.WithRunAtStart(!opts.DelayFirstRun))
	job := func(ctx context.Context) error {
		_, err := p.Run(ctx)
		return err
	}

	if cfg.HTTPAddr == "" {
		return sched.Run(ctx, "export", job)
	}
	return runWithServer(ctx, cfg.HTTPAddr, httpapi.NewMux(cfg.ChartPath, p, store), sched, job)
}

func runWithServer(ctx context.Context, addr string, mux *http.ServeMux, sched *schedule.Scheduler, job schedule.Job) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := httpapi.NewServer(addr, mux, slog.Default())

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	schedCh := make(chan error, 1)
	go func() {
		schedCh <- sched.Run(runCtx, "export", job)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		cancel()
		<-schedCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	// Let an in-flight run finish before the server goes away.
	<-schedCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err := <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
