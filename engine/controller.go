package engine

import "github.com/brensch/gridsnake/game"

// View is the read-only surface a controller may inspect. *Session
// implements it.
type View interface {
	IsGameOver() bool
	Score() int
	SnakeCells() []game.Point
	Direction() game.Direction
	FoodPosition() game.Point
	Config() game.Config
}

// Controller proposes the next heading. Returning false means "no opinion"
// and keeps the current heading. Controllers never see engine internals and
// the engine never asks what kind of controller it is driving.
type Controller interface {
	ProposeDirection(v View) (game.Direction, bool)
}

// ControllerFunc adapts a plain function to Controller.
type ControllerFunc func(v View) (game.Direction, bool)

func (f ControllerFunc) ProposeDirection(v View) (game.Direction, bool) { return f(v) }

// Straight is a controller that never changes direction.
var Straight = ControllerFunc(func(View) (game.Direction, bool) { return 0, false })

// Script replays a fixed sequence of headings, one per call, then keeps
// going straight.
func Script(dirs ...game.Direction) Controller {
	i := 0
	return ControllerFunc(func(View) (game.Direction, bool) {
		if i >= len(dirs) {
			return 0, false
		}
		d := dirs[i]
		i++
		return d, true
	})
}
