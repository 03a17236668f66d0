// food.go implements the single active food item and its random placement.

package game

import (
	"math/rand"
	"time"
)

// Food is the one active food item.
type Food struct {
	Position  Point
	BlockSize int
}

// NewFood creates food for cfg. Its position is meaningless until the first
// call to FoodHandler.MoveToRandomPosition.
func NewFood(cfg Config) *Food {
	return &Food{BlockSize: cfg.OuterBlockSize}
}

// FoodHandler owns a Food and moves it to uniformly random, block-aligned
// cells that lie fully inside the board.
type FoodHandler struct {
	food    *Food
	columns int
	rows    int
	rng     *rand.Rand
}

// NewFoodHandler creates a handler. If rng is nil a time-seeded source is
// used; placement is not meant to be reproducible across runs.
func NewFoodHandler(food *Food, cfg Config, rng *rand.Rand) *FoodHandler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &FoodHandler{
		food:    food,
		columns: cfg.Columns(),
		rows:    cfg.Rows(),
		rng:     rng,
	}
}

// MoveToRandomPosition draws a new cell. It does not look at the snake; the
// caller is responsible for rejecting cells the snake occupies.
func (h *FoodHandler) MoveToRandomPosition() {
	h.food.Position = Point{
		X: h.rng.Intn(h.columns) * h.food.BlockSize,
		Y: h.rng.Intn(h.rows) * h.food.BlockSize,
	}
}

// Position is the current food cell.
func (h *FoodHandler) Position() Point {
	return h.food.Position
}

// SetPosition pins the food to p. Used by tests and scripted scenarios.
func (h *FoodHandler) SetPosition(p Point) {
	h.food.Position = p
}
