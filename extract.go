package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/astei/anvil2voxel/anvil"
	"github.com/astei/anvil2voxel/config"
	"github.com/astei/anvil2voxel/loader"
	"github.com/astei/anvil2voxel/logx"
	"github.com/astei/anvil2voxel/voxel"
	"github.com/astei/anvil2voxel/voxfile"
)

var dimensionFlag = &cli.StringFlag{
	Name:  "dimension",
	Usage: "dimension directory relative to the world root, empty for the overworld",
}

var registryFlag = &cli.StringFlag{
	Name:  "registry",
	Usage: "block state registry log",
	Value: config.Default().Registry,
}

func extractFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: []string{config.EnvConfigPath}},
		&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "number of workers, 0 for one per CPU"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "directory receiving .vox files"},
		&cli.StringFlag{Name: "registry", Usage: "block state registry log"},
		&cli.StringFlag{Name: "checkpoint", Usage: "resume database, defaults to OUTPUT/progress.db"},
		dimensionFlag,
		&cli.IntFlag{Name: "max-sections", Usage: "vertical sections kept per chunk"},
		&cli.BoolFlag{Name: "retry-failed", Usage: "process files that failed in an earlier run again"},
		&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
	}
}

// extractConfig layers command line flags over the config file.
func extractConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.NArg() > 0 {
		cfg.World = c.Args().First()
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}
	if c.IsSet("registry") {
		cfg.Registry = c.String("registry")
	}
	if c.IsSet("checkpoint") {
		cfg.Checkpoint = c.String("checkpoint")
	}
	if c.IsSet("dimension") {
		cfg.Dimension = c.String("dimension")
	}
	if c.IsSet("max-sections") {
		cfg.MaxSections = c.Int("max-sections")
	}
	if c.IsSet("retry-failed") {
		cfg.RetryFailed = c.Bool("retry-failed")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if cfg.World == "" {
		return nil, errors.New("need a world to work with")
	}
	return cfg, nil
}

func runExtract(c *cli.Context) error {
	cfg, err := extractConfig(c)
	if err != nil {
		return err
	}
	if workers := cfg.WorkerCount(); workers <= 0 {
		return fmt.Errorf("%w: got %d", loader.ErrInvalidWorkers, workers)
	}
	log := logx.NewLogger(cfg.LogLevel, os.Stderr)

	metrics := loader.NewMetrics()
	checkpoint, err := loader.OpenSQLiteCheckpoint(cfg.CheckpointPath())
	if err != nil {
		return err
	}
	defer checkpoint.Close()

	l, err := loader.New(loader.Options{
		Workers:     cfg.WorkerCount(),
		Checkpoint:  checkpoint,
		RetryFailed: cfg.RetryFailed,
		Metrics:     metrics,
		Log:         log,
	})
	if err != nil {
		return err
	}

	world, err := anvil.OpenWorld(cfg.World, cfg.Dimension, log)
	if err != nil {
		return err
	}
	registry, err := voxel.OpenRegistry(cfg.Registry)
	if err != nil {
		return err
	}
	defer registry.Close()
	metrics.SetRegistryStates(registry.Len())

	sink, err := voxfile.NewDir(cfg.Output, log)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server stopped")
			}
		}()
	}

	minY, maxY := world.VerticalBounds()
	opts := voxel.AssemblerOptions{MinY: minY, MaxY: maxY, MaxSections: cfg.MaxSections}
	log.Info().
		Str("world", cfg.World).
		Int("min_y", minY).
		Int("max_y", maxY).
		Int("workers", cfg.WorkerCount()).
		Int("registry_states", registry.Len()).
		Msg("extracting regions")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go reportProgress(l, log, done)
	summary, err := l.Run(ctx, world.Regions(), loader.RegionTask(registry, opts, sink, metrics, log))
	close(done)
	if err != nil {
		return err
	}

	event := log.Info()
	if summary.Interrupted {
		event = log.Warn()
	}
	event.
		Int("processed", summary.Processed).
		Int("failed", summary.Failed).
		Int("abandoned", summary.Abandoned).
		Int("resumed", summary.Resumed).
		Int("registry_states", registry.Len()).
		Bool("interrupted", summary.Interrupted).
		Msg("extraction finished")
	return nil
}

func reportProgress(l *loader.Loader, log zerolog.Logger, done <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			log.Info().
				Str("completed", humanize.Comma(l.Completed())).
				Str("total", humanize.Comma(l.Total())).
				Msg("progress")
		}
	}
}
