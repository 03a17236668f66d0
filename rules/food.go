package rules

import (
	"errors"
	"fmt"

	"github.com/brensch/gridsnake/game"
)

// MaxFoodPlacementAttempts bounds the number of random draws PlaceFood makes
// before giving up.
const MaxFoodPlacementAttempts = 100

// ErrFoodPlacement is returned when no free cell was drawn within
// MaxFoodPlacementAttempts. In practice this means the board is full or
// nearly so.
var ErrFoodPlacement = errors.New("food placement failed")

// PlaceFood moves food to a random cell not occupied by snake. It returns the
// number of draws used. Draws that land on the snake are retried silently.
func PlaceFood(food *game.FoodHandler, snake *game.SnakeHandler) (int, error) {
	for attempt := 1; attempt <= MaxFoodPlacementAttempts; attempt++ {
		food.MoveToRandomPosition()
		if !snake.Contains(food.Position()) {
			return attempt, nil
		}
	}
	return MaxFoodPlacementAttempts, fmt.Errorf("%w: %d attempts, snake length %d",
		ErrFoodPlacement, MaxFoodPlacementAttempts, snake.Len())
}
