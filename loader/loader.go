package loader

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/astei/anvil2voxel/anvil"
)

// Task processes one region file. It is handed a context that is never
// cancelled, so a unit that has started always runs to completion.
type Task func(ctx context.Context, file anvil.RegionFile) error

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks a task error as one that must stop the whole run instead of
// being logged and skipped.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

type Options struct {
	Workers int
	// Checkpoint is optional; without it every file is processed.
	Checkpoint  Checkpoint
	RetryFailed bool
	Metrics     *Metrics
	Log         zerolog.Logger
}

// Summary describes a finished run.
type Summary struct {
	Pending     int
	Resumed     int
	Processed   int
	Failed      int
	Abandoned   int
	Interrupted bool
}

// Loader runs a Task over region files on a fixed pool of workers. Each
// worker owns one contiguous batch and works through it in order.
type Loader struct {
	opts      Options
	completed atomic.Int64
	total     atomic.Int64

	processed atomic.Int64
	failed    atomic.Int64
	abandoned atomic.Int64
}

func New(opts Options) (*Loader, error) {
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkers, opts.Workers)
	}
	return &Loader{opts: opts}, nil
}

// Completed is the number of files finished in the current run, including
// failed and abandoned ones. It only grows.
func (l *Loader) Completed() int64 {
	return l.completed.Load()
}

// Total is the number of files the current run set out to process.
func (l *Loader) Total() int64 {
	return l.total.Load()
}

func (l *Loader) pending(ctx context.Context, files []anvil.RegionFile) ([]anvil.RegionFile, int, error) {
	if l.opts.Checkpoint == nil {
		return files, 0, nil
	}
	seen, err := l.opts.Checkpoint.Completed(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("loader: reading checkpoints: %w", err)
	}
	pending := make([]anvil.RegionFile, 0, len(files))
	for _, f := range files {
		switch seen[f.Path] {
		case StatusDone:
			continue
		case StatusFailed:
			if !l.opts.RetryFailed {
				continue
			}
		}
		pending = append(pending, f)
	}
	return pending, len(files) - len(pending), nil
}

// Run processes every file not already recorded in the checkpoint. Cancelling
// ctx stops workers from starting new files; files already started finish and
// are checkpointed. The returned error is non-nil only for fatal task errors
// and checkpoint failures.
func (l *Loader) Run(ctx context.Context, files []anvil.RegionFile, task Task) (Summary, error) {
	pending, resumed, err := l.pending(ctx, files)
	if err != nil {
		return Summary{}, err
	}
	batches, err := Batch(pending, l.opts.Workers)
	if err != nil {
		return Summary{}, err
	}

	l.completed.Store(0)
	l.processed.Store(0)
	l.failed.Store(0)
	l.abandoned.Store(0)
	l.total.Store(int64(len(pending)))
	l.opts.Log.Info().
		Int("pending", len(pending)).
		Int("resumed", resumed).
		Int("batches", len(batches)).
		Msg("starting region run")

	g, stop := errgroup.WithContext(ctx)
	unitCtx := context.WithoutCancel(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			return l.runBatch(stop, unitCtx, i, batch, task)
		})
	}
	err = g.Wait()

	summary := Summary{
		Pending:     len(pending),
		Resumed:     resumed,
		Processed:   int(l.processed.Load()),
		Failed:      int(l.failed.Load()),
		Abandoned:   int(l.abandoned.Load()),
		Interrupted: ctx.Err() != nil,
	}
	return summary, err
}

func (l *Loader) runBatch(stop, unitCtx context.Context, batchIndex int, batch []anvil.RegionFile, task Task) (err error) {
	next := 0
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		// the file that panicked and everything after it are left for the next run
		for _, f := range batch[next:] {
			l.opts.Log.Error().
				Interface("panic", r).
				Int("batch", batchIndex).
				Str("path", f.Path).
				Msg("worker crashed, file left unprocessed")
			l.abandoned.Add(1)
			l.markCompleted()
		}
		err = nil
	}()

	for next < len(batch) {
		if stop.Err() != nil {
			return nil
		}
		if err := l.process(unitCtx, batch[next], task); err != nil {
			return err
		}
		next++
	}
	return nil
}

func (l *Loader) process(ctx context.Context, file anvil.RegionFile, task Task) error {
	log := l.opts.Log.With().Str("path", file.Path).Int("region_x", file.X).Int("region_z", file.Z).Logger()

	if l.opts.Metrics != nil {
		l.opts.Metrics.inFlight.Inc()
		defer l.opts.Metrics.inFlight.Dec()
	}

	status := StatusDone
	if err := task(ctx, file); err != nil {
		if IsFatal(err) {
			log.Error().Err(err).Msg("fatal error, stopping run")
			return err
		}
		log.Warn().Err(err).Msg("skipping region file")
		status = StatusFailed
		l.failed.Add(1)
		if l.opts.Metrics != nil {
			l.opts.Metrics.failed.Inc()
		}
	} else {
		l.processed.Add(1)
	}

	if l.opts.Checkpoint != nil {
		if err := l.opts.Checkpoint.Mark(ctx, file, status); err != nil {
			return fmt.Errorf("loader: recording checkpoint for %s: %w", file.Path, err)
		}
	}
	l.markCompleted()
	return nil
}

func (l *Loader) markCompleted() {
	l.completed.Add(1)
	if l.opts.Metrics != nil {
		l.opts.Metrics.completed.Inc()
	}
}
