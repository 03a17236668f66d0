package agent

import (
	"sync"

	"github.com/brensch/gridsnake/engine"
	"github.com/brensch/gridsnake/game"
)

// Human is a keyboard-driven controller. Input handlers call Press from any
// goroutine; the game loop picks up the most recent press once.
type Human struct {
	mu      sync.Mutex
	pending game.Direction
	has     bool
}

func NewHuman() *Human {
	return &Human{}
}

// Press records d as the next heading, replacing any unread press.
func (h *Human) Press(d game.Direction) {
	h.mu.Lock()
	h.pending = d
	h.has = true
	h.mu.Unlock()
}

func (h *Human) ProposeDirection(engine.View) (game.Direction, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.has {
		return 0, false
	}
	h.has = false
	return h.pending, true
}

// Reset discards an unread press, e.g. when a new game starts.
func (h *Human) Reset() {
	h.mu.Lock()
	h.has = false
	h.mu.Unlock()
}
