// Package agent contains the controllers that steer a session and the
// feature encoding they share with the recorded training data.
package agent

import (
	"github.com/brensch/gridsnake/engine"
	"github.com/brensch/gridsnake/game"
	"github.com/brensch/gridsnake/rules"
)

// NumFeatures is the width of the state vector fed to the Q-network.
const NumFeatures = 11

// Action is a move relative to the current heading.
type Action uint8

const (
	ActionStraight Action = iota
	ActionRightTurn
	ActionLeftTurn
)

// NumActions is the width of the Q-network output.
const NumActions = 3

// Actions lists every action in output order.
var Actions = [NumActions]Action{ActionStraight, ActionRightTurn, ActionLeftTurn}

func (a Action) String() string {
	switch a {
	case ActionStraight:
		return "straight"
	case ActionRightTurn:
		return "right"
	case ActionLeftTurn:
		return "left"
	default:
		return "unknown"
	}
}

// Apply returns the absolute heading reached by taking a while facing d.
func (a Action) Apply(d game.Direction) game.Direction {
	switch a {
	case ActionRightTurn:
		return rules.TurnRight(d)
	case ActionLeftTurn:
		return rules.TurnLeft(d)
	default:
		return d
	}
}

// ActionFor maps an absolute heading back to the relative action from cur.
// A reversal has no relative action and reports false.
func ActionFor(cur, next game.Direction) (Action, bool) {
	for _, a := range Actions {
		if a.Apply(cur) == next {
			return a, true
		}
	}
	return ActionStraight, false
}

// Features is the 11-value state encoding:
//
//	[0..2]  hazard straight, right, left
//	[3..6]  heading one-hot Right, Left, Up, Down
//	[7..10] food left, right, above, below the head
type Features [NumFeatures]bool

// Extract computes the features of v's current state.
func Extract(v engine.View) Features {
	var f Features
	cells := v.SnakeCells()
	if len(cells) == 0 {
		return f
	}
	head := cells[0]
	dir := v.Direction()
	cfg := v.Config()
	bounds := rules.BoundsOf(cfg)

	// The tail leaves its cell on the next move, so it is not a hazard.
	body := cells[1 : len(cells)-1]
	if len(cells) == 1 {
		body = nil
	}
	hazard := func(d game.Direction) bool {
		dx, dy := d.Delta(cfg.OuterBlockSize)
		p := head.Add(dx, dy)
		if bounds.BoundaryCollision(p) {
			return true
		}
		for _, b := range body {
			if b == p {
				return true
			}
		}
		return false
	}

	for i, a := range Actions {
		f[i] = hazard(a.Apply(dir))
	}
	for i, d := range game.Directions {
		f[3+i] = dir == d
	}

	food := v.FoodPosition()
	f[7] = food.X < head.X
	f[8] = food.X > head.X
	f[9] = food.Y < head.Y
	f[10] = food.Y > head.Y
	return f
}

// Hazards returns the hazard flags indexed by Action.
func (f Features) Hazards() [NumActions]bool {
	return [NumActions]bool{f[0], f[1], f[2]}
}

// Floats encodes f for the network input.
func (f Features) Floats() []float32 {
	out := make([]float32, NumFeatures)
	for i, b := range f {
		if b {
			out[i] = 1
		}
	}
	return out
}

// Ints encodes f for storage.
func (f Features) Ints() []int32 {
	out := make([]int32, NumFeatures)
	for i, b := range f {
		if b {
			out[i] = 1
		}
	}
	return out
}
