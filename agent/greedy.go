package agent

import (
	"github.com/brensch/gridsnake/engine"
	"github.com/brensch/gridsnake/game"
)

// Chooser picks a relative action from precomputed features.
type Chooser interface {
	Choose(v engine.View, f Features) Action
}

// Greedy steers toward the food along the shortest Manhattan path, avoiding
// cells that would kill the snake on the next tick. With no safe move it
// goes straight.
type Greedy struct {
	last Action
}

func NewGreedy() *Greedy {
	return &Greedy{}
}

func (g *Greedy) ProposeDirection(v engine.View) (game.Direction, bool) {
	a := g.Choose(v, Extract(v))
	return a.Apply(v.Direction()), true
}

// Choose picks an action given precomputed features.
func (g *Greedy) Choose(v engine.View, f Features) Action {
	cells := v.SnakeCells()
	if len(cells) == 0 {
		g.last = ActionStraight
		return g.last
	}
	head, food, step := cells[0], v.FoodPosition(), v.Config().OuterBlockSize
	hazards := f.Hazards()

	best, bestDist := ActionStraight, -1
	for _, a := range Actions {
		if hazards[a] {
			continue
		}
		dx, dy := a.Apply(v.Direction()).Delta(step)
		d := manhattan(head.Add(dx, dy), food)
		if bestDist < 0 || d < bestDist {
			best, bestDist = a, d
		}
	}
	g.last = best
	return best
}

// LastAction is the action chosen by the most recent proposal.
func (g *Greedy) LastAction() Action { return g.last }

func manhattan(a, b game.Point) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
