package agent

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/brensch/gridsnake/engine"
	"github.com/brensch/gridsnake/game"
)

// Predictor maps one feature vector to NumActions Q-values.
type Predictor interface {
	Predict(features []float32) ([]float32, error)
}

// PredictorFunc adapts a plain function to Predictor.
type PredictorFunc func(features []float32) ([]float32, error)

func (f PredictorFunc) Predict(features []float32) ([]float32, error) { return f(features) }

// Exploration defaults: while fewer than ExploreGames episodes have been
// played, a random action is taken with probability
// (ExploreGames-episodes)/(ExploreRange+1).
const (
	DefaultExploreGames = 80
	DefaultExploreRange = 200
)

type PolicyOptions struct {
	Rand         *rand.Rand
	ExploreGames int
	ExploreRange int
	// Episodes seeds the episode counter, e.g. when resuming.
	Episodes int
	Logger   *slog.Logger
}

// Policy picks the argmax Q-value action with epsilon-greedy exploration.
// Prediction failures fall back to Greedy for that tick.
type Policy struct {
	predictor Predictor
	fallback  *Greedy
	rng       *rand.Rand
	logger    *slog.Logger

	exploreGames int
	exploreRange int
	episodes     int

	last     Action
	explored bool
}

func NewPolicy(p Predictor, opts PolicyOptions) *Policy {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ExploreRange <= 0 {
		opts.ExploreRange = DefaultExploreRange
	}
	return &Policy{
		predictor:    p,
		fallback:     NewGreedy(),
		rng:          opts.Rand,
		logger:       opts.Logger,
		exploreGames: opts.ExploreGames,
		exploreRange: opts.ExploreRange,
		episodes:     opts.Episodes,
	}
}

func (p *Policy) ProposeDirection(v engine.View) (game.Direction, bool) {
	a := p.Choose(v, Extract(v))
	return a.Apply(v.Direction()), true
}

// Choose picks an action given precomputed features.
func (p *Policy) Choose(v engine.View, f Features) Action {
	p.explored = false
	if p.explore() {
		p.explored = true
		p.last = Actions[p.rng.Intn(NumActions)]
		return p.last
	}

	q, err := p.predictor.Predict(f.Floats())
	if err == nil && len(q) < NumActions {
		err = fmt.Errorf("predictor returned %d values, want %d", len(q), NumActions)
	}
	if err != nil {
		p.logger.Warn("policy prediction failed, using greedy", "error", err)
		p.last = p.fallback.Choose(v, f)
		return p.last
	}
	p.last = argmax(q[:NumActions])
	return p.last
}

func (p *Policy) explore() bool {
	threshold := p.exploreGames - p.episodes
	if threshold <= 0 {
		return false
	}
	return p.rng.Intn(p.exploreRange+1) < threshold
}

// Epsilon is the current exploration probability.
func (p *Policy) Epsilon() float64 {
	threshold := p.exploreGames - p.episodes
	if threshold <= 0 {
		return 0
	}
	if threshold > p.exploreRange+1 {
		return 1
	}
	return float64(threshold) / float64(p.exploreRange+1)
}

// EndEpisode advances the exploration schedule.
func (p *Policy) EndEpisode() { p.episodes++ }

func (p *Policy) Episodes() int      { return p.episodes }
func (p *Policy) LastAction() Action { return p.last }

// Explored reports whether the last action was a random exploration move.
func (p *Policy) Explored() bool { return p.explored }

func argmax(q []float32) Action {
	best := 0
	for i := 1; i < len(q); i++ {
		if q[i] > q[best] {
			best = i
		}
	}
	return Action(best)
}
