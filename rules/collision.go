// Package rules holds the pure game rules: collision predicates, the
// direction reversal policy and bounded food placement.
package rules

import (
	"github.com/brensch/gridsnake/game"
)

// Bounds is the playable area. A cell at (x, y) is inside when
// 0 <= x <= Width-Cell and 0 <= y <= Height-Cell.
type Bounds struct {
	Width  int
	Height int
	Cell   int
}

// BoundsOf returns the bounds described by cfg.
func BoundsOf(cfg game.Config) Bounds {
	return Bounds{Width: cfg.Width, Height: cfg.Height, Cell: cfg.OuterBlockSize}
}

// TopCollision reports whether p is above the board.
func (b Bounds) TopCollision(p game.Point) bool { return p.Y < 0 }

// BottomCollision reports whether p is below the last full row.
func (b Bounds) BottomCollision(p game.Point) bool { return p.Y > b.Height-b.Cell }

// LeftCollision reports whether p is left of the board.
func (b Bounds) LeftCollision(p game.Point) bool { return p.X < 0 }

// RightCollision reports whether p is right of the last full column.
func (b Bounds) RightCollision(p game.Point) bool { return p.X > b.Width-b.Cell }

// BoundaryCollision reports whether p lies outside the board on any side.
func (b Bounds) BoundaryCollision(p game.Point) bool {
	return b.TopCollision(p) || b.BottomCollision(p) || b.LeftCollision(p) || b.RightCollision(p)
}

// CollisionChecker answers whether the snake it watches is dead.
type CollisionChecker struct {
	Bounds
	snake *game.SnakeHandler
}

// NewCollisionChecker watches snake on the board described by cfg.
func NewCollisionChecker(cfg game.Config, snake *game.SnakeHandler) *CollisionChecker {
	return &CollisionChecker{Bounds: BoundsOf(cfg), snake: snake}
}

// CollisionDetected is true when the head is on a body cell or off the board.
func (c *CollisionChecker) CollisionDetected() bool {
	return c.snake.BitesItself() || c.BoundaryCollision(c.snake.Head())
}
