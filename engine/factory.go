package engine

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brensch/gridsnake/events"
	"github.com/brensch/gridsnake/game"
	"github.com/brensch/gridsnake/rules"
)

// FactoryOptions configure every session a Factory builds.
type FactoryOptions struct {
	// Rand drives food placement. Nil means a time-seeded source.
	Rand        *rand.Rand
	StallFactor int
	Logger      *slog.Logger

	// Subscribers, when set, is called once per session and its result is
	// registered on the new session's publisher in order.
	Subscribers func() []events.Subscriber
}

// Factory builds fresh sessions. Restarting a game means asking the factory
// for a new one; a finished session is never revived.
//
// A Factory may be shared between goroutines. Each session gets its own
// random source drawn from the factory's, so sessions can run in parallel.
type Factory struct {
	cfg  game.Config
	opts FactoryOptions

	mu  sync.Mutex
	rng *rand.Rand
}

func NewFactory(cfg game.Config, opts FactoryOptions) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Factory{cfg: cfg, opts: opts, rng: rng}, nil
}

// Config is the configuration shared by all sessions from this factory.
func (f *Factory) Config() game.Config { return f.cfg }

// NewSession builds a new snake, food and publisher, places the first food
// off the snake and returns the assembled session.
func (f *Factory) NewSession() (*Session, error) {
	snake := game.NewSnakeHandler(game.NewSnake(f.cfg))
	f.mu.Lock()
	seed := f.rng.Int63()
	f.mu.Unlock()
	food := game.NewFoodHandler(game.NewFood(f.cfg), f.cfg, rand.New(rand.NewSource(seed)))
	if _, err := rules.PlaceFood(food, snake); err != nil {
		return nil, fmt.Errorf("initial food: %w", err)
	}

	pub := events.NewPublisher()
	if f.opts.Subscribers != nil {
		for _, sub := range f.opts.Subscribers() {
			pub.AddSubscriber(sub)
		}
	}

	return New(f.cfg, snake, food, pub, Options{
		StallFactor: f.opts.StallFactor,
		Logger:      f.opts.Logger,
		ID:          uuid.NewString(),
	}), nil
}
