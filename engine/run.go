package engine

import (
	"context"
	"log/slog"
	"time"
)

// Step asks c for a heading, applies it (reversals are dropped silently) and
// advances one tick.
func Step(s *Session, c Controller) error {
	if c != nil {
		if d, ok := c.ProposeDirection(s); ok {
			s.UpdateDirection(d)
		}
	}
	return s.Tick()
}

// RunOptions configure Run. The zero value runs unthrottled with no
// presenter.
type RunOptions struct {
	// TickRate is frames per second. Zero or less runs as fast as possible.
	TickRate  int
	Presenter Presenter
	Logger    *slog.Logger

	// BeforeTick is called before the controller is consulted.
	BeforeTick func(s *Session)

	// AfterTick is called once the tick has been applied and presented.
	AfterTick func(s *Session)
}

// Run steps s with c until the game ends or ctx is cancelled. Cancellation
// is only observed between ticks, so a tick is never half applied. The
// returned error is the food placement failure from Tick, or ctx.Err().
func Run(ctx context.Context, s *Session, c Controller, opts RunOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = s.Logger()
	}

	var tick <-chan time.Time
	if opts.TickRate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(opts.TickRate))
		defer ticker.Stop()
		tick = ticker.C
	}

	for !s.IsGameOver() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if opts.BeforeTick != nil {
			opts.BeforeTick(s)
		}
		err := Step(s, c)

		if opts.Presenter != nil {
			if perr := opts.Presenter.Present(s.Frame()); perr != nil {
				logger.Warn("present frame failed", "tick", s.Iterations(), "error", perr)
			}
		}
		if opts.AfterTick != nil {
			opts.AfterTick(s)
		}
		if err != nil {
			return err
		}

		if tick != nil && !s.IsGameOver() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
	}
	return nil
}
