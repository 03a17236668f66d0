// Package engine runs a single snake game as a per-tick state machine and
// drives it from pluggable controllers.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/brensch/gridsnake/events"
	"github.com/brensch/gridsnake/game"
	"github.com/brensch/gridsnake/rules"
)

// State is the coarse lifecycle of a session.
type State uint8

const (
	StateRunning State = iota
	StateGameOver
)

func (s State) String() string {
	if s == StateGameOver {
		return "game_over"
	}
	return "running"
}

// Termination records why a session ended.
type Termination uint8

const (
	TerminationNone Termination = iota
	TerminationCollision
	TerminationStalled
	TerminationFoodPlacement
)

func (t Termination) String() string {
	switch t {
	case TerminationCollision:
		return "collision"
	case TerminationStalled:
		return "stalled"
	case TerminationFoodPlacement:
		return "food_placement"
	default:
		return "none"
	}
}

// Options tune a session. The zero value is valid.
type Options struct {
	// StallFactor ends the game once Iterations exceeds StallFactor times
	// the snake length. Zero disables the guard.
	StallFactor int
	Logger      *slog.Logger
	ID          string
}

// Session is one game from start to game over. It is not safe for
// concurrent use; drive it from a single goroutine.
type Session struct {
	id        string
	cfg       game.Config
	snake     *game.SnakeHandler
	food      *game.FoodHandler
	collision *rules.CollisionChecker
	publisher *events.Publisher
	logger    *slog.Logger

	stallFactor int

	direction   game.Direction
	score       int
	iterations  int
	state       State
	termination Termination
}

// New assembles a session around already-built collaborators. The food is
// used where it currently is; callers that want a random start should run
// rules.PlaceFood first (Factory does).
func New(cfg game.Config, snake *game.SnakeHandler, food *game.FoodHandler, pub *events.Publisher, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = events.NewPublisher()
	}
	if opts.ID != "" {
		logger = logger.With("session", opts.ID)
	}
	return &Session{
		id:          opts.ID,
		cfg:         cfg,
		snake:       snake,
		food:        food,
		collision:   rules.NewCollisionChecker(cfg, snake),
		publisher:   pub,
		logger:      logger,
		stallFactor: opts.StallFactor,
		direction:   game.Right,
	}
}

// UpdateDirection changes the heading used by the next tick. A 180 degree
// reversal is ignored and reported as false. Proposals after game over are
// also ignored.
func (s *Session) UpdateDirection(d game.Direction) bool {
	if s.state == StateGameOver || rules.IsReverse(s.direction, d) {
		return false
	}
	s.direction = d
	return true
}

// Tick advances the game by one step. The only error is a failure to place
// food after the snake has eaten, which also ends the game.
func (s *Session) Tick() error {
	if s.state == StateGameOver {
		return nil
	}

	s.iterations++
	s.snake.Move(s.direction)

	if s.collision.CollisionDetected() {
		s.end(TerminationCollision)
		s.publisher.Publish(events.EventCollisionDetected)
		return nil
	}

	if s.snake.Head() == s.food.Position() {
		s.score++
		s.snake.Extend()
		s.publisher.Publish(events.EventFoodReached)

		attempts, err := rules.PlaceFood(s.food, s.snake)
		if err != nil {
			s.end(TerminationFoodPlacement)
			return fmt.Errorf("tick %d: %w", s.iterations, err)
		}
		s.logger.Debug("food reached",
			"score", s.score,
			"length", s.snake.Len(),
			"next_food", s.food.Position().String(),
			"placement_attempts", attempts,
		)
	}

	if s.stallFactor > 0 && s.iterations > s.stallFactor*s.snake.Len() {
		s.end(TerminationStalled)
	}
	return nil
}

func (s *Session) end(reason Termination) {
	s.state = StateGameOver
	s.termination = reason
	s.logger.Info("game over",
		"reason", reason.String(),
		"score", s.score,
		"length", s.snake.Len(),
		"iterations", s.iterations,
	)
}

func (s *Session) IsGameOver() bool             { return s.state == StateGameOver }
func (s *Session) State() State                 { return s.state }
func (s *Session) Termination() Termination     { return s.termination }
func (s *Session) Score() int                   { return s.score }
func (s *Session) Direction() game.Direction    { return s.direction }
func (s *Session) FoodPosition() game.Point     { return s.food.Position() }
func (s *Session) Iterations() int              { return s.iterations }
func (s *Session) Config() game.Config          { return s.cfg }
func (s *Session) ID() string                   { return s.id }
func (s *Session) Publisher() *events.Publisher { return s.publisher }
func (s *Session) Logger() *slog.Logger         { return s.logger }
func (s *Session) SnakeLen() int                { return s.snake.Len() }

// SnakeCells returns a copy of the snake, head first.
func (s *Session) SnakeCells() []game.Point { return s.snake.Cells() }
