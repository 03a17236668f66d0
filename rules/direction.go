package rules

import "github.com/brensch/gridsnake/game"

// IsReverse reports whether proposed would send the snake straight back
// into its own neck. Such proposals are ignored rather than rejected with
// an error.
func IsReverse(current, proposed game.Direction) bool {
	return current.Opposite() == proposed
}

// TurnRight rotates d a quarter turn clockwise as seen on screen.
func TurnRight(d game.Direction) game.Direction {
	switch d {
	case game.Right:
		return game.Down
	case game.Down:
		return game.Left
	case game.Left:
		return game.Up
	default:
		return game.Right
	}
}

// TurnLeft rotates d a quarter turn anticlockwise as seen on screen.
func TurnLeft(d game.Direction) game.Direction {
	switch d {
	case game.Right:
		return game.Up
	case game.Up:
		return game.Left
	case game.Left:
		return game.Down
	default:
		return game.Right
	}
}
