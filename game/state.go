// Package game defines the core value types for the snake simulation.
//
// Coordinates are screen coordinates measured in pixels: (0,0) is the
// top-left corner and Y grows downwards. Every position the simulation
// produces is a multiple of the configured outer block size.
package game

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid game config")

// Point is a board coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Add returns p translated by (dx, dy).
func (p Point) Add(dx, dy int) Point {
	return Point{X: p.X + dx, Y: p.Y + dy}
}

// Direction is one of the four grid headings.
//
// The declaration order is the order used for the one-hot direction
// features: Right, Left, Up, Down.
type Direction uint8

const (
	Right Direction = iota
	Left
	Up
	Down
)

// Directions lists all headings in feature order.
var Directions = [4]Direction{Right, Left, Up, Down}

func (d Direction) String() string {
	switch d {
	case Right:
		return "Right"
	case Left:
		return "Left"
	case Up:
		return "Up"
	case Down:
		return "Down"
	default:
		return "Unknown"
	}
}

// Opposite returns the 180 degree reverse of d.
func (d Direction) Opposite() Direction {
	switch d {
	case Right:
		return Left
	case Left:
		return Right
	case Up:
		return Down
	default:
		return Up
	}
}

// Delta returns the translation for one step of the given size.
func (d Direction) Delta(step int) (dx, dy int) {
	switch d {
	case Right:
		return step, 0
	case Left:
		return -step, 0
	case Up:
		return 0, -step
	case Down:
		return 0, step
	}
	return 0, 0
}

// Config is the board configuration. It is immutable for the lifetime of a
// game and shared (by value) with every session created from it.
type Config struct {
	Width          int `json:"width"`
	Height         int `json:"height"`
	OuterBlockSize int `json:"outer_block_size"`
	InnerBlockSize int `json:"inner_block_size"`
	StartLength    int `json:"start_length"`
	TickRate       int `json:"tick_rate"`
}

// DefaultConfig mirrors the stock window: 640x480 with 20px cells.
var DefaultConfig = Config{
	Width:          640,
	Height:         480,
	OuterBlockSize: 20,
	InnerBlockSize: 12,
	StartLength:    2,
	TickRate:       10,
}

// Validate checks that the configuration describes a playable board.
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: board %dx%d must be positive", ErrInvalidConfig, c.Width, c.Height)
	case c.OuterBlockSize <= 0 || c.InnerBlockSize <= 0:
		return fmt.Errorf("%w: block sizes %d/%d must be positive", ErrInvalidConfig, c.OuterBlockSize, c.InnerBlockSize)
	case c.InnerBlockSize > c.OuterBlockSize:
		return fmt.Errorf("%w: inner block %d larger than outer block %d", ErrInvalidConfig, c.InnerBlockSize, c.OuterBlockSize)
	case c.StartLength <= 0:
		return fmt.Errorf("%w: start length %d must be positive", ErrInvalidConfig, c.StartLength)
	case c.TickRate <= 0:
		return fmt.Errorf("%w: tick rate %d must be positive", ErrInvalidConfig, c.TickRate)
	case c.Width < c.OuterBlockSize || c.Height < c.OuterBlockSize:
		return fmt.Errorf("%w: board %dx%d smaller than one %dpx cell", ErrInvalidConfig, c.Width, c.Height, c.OuterBlockSize)
	}

	center := c.Center()
	if tail := center.X - c.StartLength*c.OuterBlockSize; tail < 0 {
		return fmt.Errorf("%w: start length %d does not fit left of centre x=%d", ErrInvalidConfig, c.StartLength, center.X)
	}
	return nil
}

// Columns is the number of block-aligned columns a whole cell fits in.
func (c Config) Columns() int {
	return (c.Width-c.OuterBlockSize)/c.OuterBlockSize + 1
}

// Rows is the number of block-aligned rows a whole cell fits in.
func (c Config) Rows() int {
	return (c.Height-c.OuterBlockSize)/c.OuterBlockSize + 1
}

// Cells is the number of block-aligned cells food can be placed on.
func (c Config) Cells() int {
	return c.Columns() * c.Rows()
}

// Center returns the board centre snapped down to the block grid.
func (c Config) Center() Point {
	return Point{
		X: (c.Width / 2) / c.OuterBlockSize * c.OuterBlockSize,
		Y: (c.Height / 2) / c.OuterBlockSize * c.OuterBlockSize,
	}
}

// TickInterval is the wall-clock duration of one frame at TickRate.
func (c Config) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.TickRate)
}
