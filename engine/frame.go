package engine

import (
	"errors"

	"github.com/brensch/gridsnake/game"
)

// Frame is a render snapshot of a session after a tick.
type Frame struct {
	SessionID      string       `json:"session_id,omitempty"`
	Tick           int          `json:"tick"`
	Score          int          `json:"score"`
	Snake          []game.Point `json:"snake"`
	Food           game.Point   `json:"food"`
	Direction      string       `json:"direction"`
	GameOver       bool         `json:"game_over"`
	Termination    string       `json:"termination,omitempty"`
	Width          int          `json:"width"`
	Height         int          `json:"height"`
	OuterBlockSize int          `json:"outer_block_size"`
	InnerBlockSize int          `json:"inner_block_size"`
}

// Frame snapshots the session. The snake slice is a copy.
func (s *Session) Frame() Frame {
	f := Frame{
		SessionID:      s.id,
		Tick:           s.iterations,
		Score:          s.score,
		Snake:          s.snake.Cells(),
		Food:           s.food.Position(),
		Direction:      s.direction.String(),
		GameOver:       s.IsGameOver(),
		Width:          s.cfg.Width,
		Height:         s.cfg.Height,
		OuterBlockSize: s.cfg.OuterBlockSize,
		InnerBlockSize: s.cfg.InnerBlockSize,
	}
	if s.termination != TerminationNone {
		f.Termination = s.termination.String()
	}
	return f
}

// Presenter receives a frame after every tick. Errors are logged by the
// loop and never stop the game.
type Presenter interface {
	Present(f Frame) error
}

// PresenterFunc adapts a plain function to Presenter.
type PresenterFunc func(f Frame) error

func (p PresenterFunc) Present(f Frame) error { return p(f) }

// MultiPresenter fans a frame out to every presenter, in order. All
// presenters run even if an earlier one fails; the errors are joined.
type MultiPresenter []Presenter

func (m MultiPresenter) Present(f Frame) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Present(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
