package selfplay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/gridsnake/agent"
	"github.com/brensch/gridsnake/engine"
	"github.com/brensch/gridsnake/rules"
	"github.com/brensch/gridsnake/store"
)

type Config struct {
	Workers int
	// Episodes stops the run after this many games across all workers. Zero
	// runs until the context is cancelled.
	Episodes      int
	FlushEpisodes int
	FlushEvery    time.Duration
	OutDir        string
	// LedgerPath, when set, records flushed episode IDs so a restarted run
	// never writes the same episode twice.
	LedgerPath string
	Source     string
	// TickRate throttles worker 0 so it can be watched.
	TickRate   int
	StatsEvery time.Duration
}

type RunnerOptions struct {
	// Presenter receives worker 0's frames.
	Presenter engine.Presenter
	Logger    *slog.Logger
}

// Stats are running totals for a Runner.
type Stats struct {
	Episodes  int64
	Steps     int64
	Rows      int64
	Files     int64
	BestScore int64
}

// Runner plays episodes on a pool of workers and flushes them to Parquet
// batches through a single writer.
type Runner struct {
	factory    *engine.Factory
	newChooser func(worker int) agent.Chooser
	cfg        Config
	presenter  engine.Presenter
	logger     *slog.Logger

	started  atomic.Int64
	episodes atomic.Int64
	steps    atomic.Int64
	rows     atomic.Int64
	files    atomic.Int64
	best     atomic.Int64
}

// NewRunner builds a runner. newChooser is called once per worker; choosers
// are never shared between workers.
func NewRunner(f *engine.Factory, newChooser func(worker int) agent.Chooser, cfg Config, opts RunnerOptions) (*Runner, error) {
	if f == nil || newChooser == nil {
		return nil, errors.New("factory and chooser are required")
	}
	if cfg.OutDir == "" {
		return nil, errors.New("output dir is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.FlushEpisodes <= 0 {
		cfg.FlushEpisodes = 100
	}
	if cfg.StatsEvery <= 0 {
		cfg.StatsEvery = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		factory:    f,
		newChooser: newChooser,
		cfg:        cfg,
		presenter:  opts.Presenter,
		logger:     opts.Logger,
	}, nil
}

func (r *Runner) Stats() Stats {
	return Stats{
		Episodes:  r.episodes.Load(),
		Steps:     r.steps.Load(),
		Rows:      r.rows.Load(),
		Files:     r.files.Load(),
		BestScore: r.best.Load(),
	}
}

// Run plays until the episode limit is reached or ctx is cancelled, then
// flushes whatever is buffered. Games interrupted by cancellation are
// dropped. Cancellation is not reported as an error.
func (r *Runner) Run(ctx context.Context) error {
	var ledger *store.EpisodeLedger
	if r.cfg.LedgerPath != "" {
		l, err := store.OpenEpisodeLedger(r.cfg.LedgerPath)
		if err != nil {
			return err
		}
		defer l.Close()
		ledger = l
		r.logger.Info("episode ledger opened", "path", r.cfg.LedgerPath, "episodes", l.Count())
	}

	out := make(chan Episode, r.cfg.Workers*4)
	writerDone := make(chan error, 1)
	go func() {
		writerDone <- r.writeLoop(out, ledger)
	}()

	r.logger.Info("starting self-play", "workers", r.cfg.Workers, "episodes", r.cfg.Episodes, "out_dir", r.cfg.OutDir)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.Workers; i++ {
		g.Go(func() error {
			return r.work(gctx, i, out)
		})
	}
	err := g.Wait()
	close(out)
	werr := <-writerDone

	st := r.Stats()
	r.logger.Info("self-play finished",
		"episodes", st.Episodes,
		"rows", st.Rows,
		"files", st.Files,
		"best_score", st.BestScore,
	)
	return errors.Join(err, werr)
}

func (r *Runner) claim() bool {
	if r.cfg.Episodes <= 0 {
		return true
	}
	return r.started.Add(1) <= int64(r.cfg.Episodes)
}

type episodeEnder interface{ EndEpisode() }

func (r *Runner) work(ctx context.Context, id int, out chan<- Episode) error {
	c := r.newChooser(id)
	opts := PlayOptions{Source: r.cfg.Source}
	if id == 0 {
		opts.Presenter = r.presenter
		opts.TickRate = r.cfg.TickRate
	}
	logger := r.logger.With("worker", id)
	logger.Debug("worker started")

	for ctx.Err() == nil && r.claim() {
		ep, err := PlayEpisode(ctx, r.factory, c, opts)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			// A board too full for food ends the game but the episode is
			// still good data.
			if !errors.Is(err, rules.ErrFoodPlacement) || len(ep.Rows) == 0 {
				return fmt.Errorf("worker %d: %w", id, err)
			}
			logger.Warn("episode ended without food", "episode", ep.ID, "error", err)
		}
		if e, ok := c.(episodeEnder); ok {
			e.EndEpisode()
		}

		total := r.episodes.Add(1)
		r.steps.Add(int64(ep.Steps))
		for {
			best := r.best.Load()
			if int64(ep.Score) <= best || r.best.CompareAndSwap(best, int64(ep.Score)) {
				break
			}
		}
		logger.Debug("episode finished",
			"number", total,
			"episode", ep.ID,
			"score", ep.Score,
			"reward", ep.Reward,
			"steps", ep.Steps,
			"reason", ep.Termination.String(),
		)
		out <- ep
	}
	return nil
}

// writeLoop owns the batch writer. It drains in until it is closed so
// workers never block on a failed flush; failures are logged and the last
// one is returned.
func (r *Runner) writeLoop(in <-chan Episode, ledger *store.EpisodeLedger) error {
	var (
		w       *store.BatchWriter
		lastErr error
	)

	flush := func(reason string) {
		if w == nil {
			return
		}
		path, rows, ids, err := w.Finalize()
		w = nil
		if err != nil {
			lastErr = err
			r.logger.Error("parquet flush failed", "reason", reason, "error", err)
			return
		}
		if path == "" {
			return
		}
		r.rows.Add(int64(rows))
		r.files.Add(1)
		r.logger.Info("parquet flush ok", "reason", reason, "path", path, "episodes", len(ids), "rows", rows)
		if ledger != nil {
			if err := ledger.Record(filepath.Base(path), ids); err != nil {
				lastErr = err
				r.logger.Error("ledger record failed", "path", path, "error", err)
			}
		}
	}

	// writeAlone saves an episode into its own file when the batch writer
	// cannot take it.
	writeAlone := func(ep Episode) {
		path, err := store.WriteBatchParquetAtomic(r.cfg.OutDir, ep.Rows)
		if err != nil {
			lastErr = err
			r.logger.Error("episode lost", "episode", ep.ID, "error", err)
			return
		}
		r.rows.Add(int64(len(ep.Rows)))
		r.files.Add(1)
		if ledger != nil {
			if err := ledger.Record(filepath.Base(path), []string{ep.ID}); err != nil {
				lastErr = err
			}
		}
	}

	var flushTick <-chan time.Time
	if r.cfg.FlushEvery > 0 {
		t := time.NewTicker(r.cfg.FlushEvery)
		defer t.Stop()
		flushTick = t.C
	}
	statsTick := time.NewTicker(r.cfg.StatsEvery)
	defer statsTick.Stop()
	start := time.Now()

	for {
		select {
		case ep, ok := <-in:
			if !ok {
				flush("final")
				return lastErr
			}
			if len(ep.Rows) == 0 {
				continue
			}
			if ledger != nil && ledger.Has(ep.ID) {
				r.logger.Warn("episode already stored", "episode", ep.ID)
				continue
			}
			if w == nil {
				nw, err := store.NewBatchWriter(r.cfg.OutDir)
				if err != nil {
					r.logger.Error("open batch writer failed", "error", err)
					writeAlone(ep)
					continue
				}
				w = nw
			}
			if err := w.WriteEpisode(ep.ID, ep.Rows); err != nil {
				r.logger.Error("buffer episode failed", "episode", ep.ID, "error", err)
				flush("error")
				writeAlone(ep)
				continue
			}
			if w.BufferedEpisodes() >= r.cfg.FlushEpisodes {
				flush("episodes")
			}

		case <-flushTick:
			flush("interval")

		case <-statsTick.C:
			st := r.Stats()
			secs := time.Since(start).Seconds()
			r.logger.Info("self-play stats",
				"episodes", st.Episodes,
				"episodes_per_sec", float64(st.Episodes)/secs,
				"steps_per_sec", float64(st.Steps)/secs,
				"rows_written", st.Rows,
				"files", st.Files,
				"best_score", st.BestScore,
			)
		}
	}
}
