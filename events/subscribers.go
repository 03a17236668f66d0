package events

import (
	"sort"
	"sync"
)

// Food and collision reward shaping used by RewardSubscriber.
const (
	FoodReward       = 50
	CollisionPenalty = 10
)

// Remuneration is the running tally shared by pointer between the score and
// reward subscribers of one session.
type Remuneration struct {
	Score  int `json:"score"`
	Reward int `json:"reward"`
}

// handlerTable maps events to handlers. Built once per subscriber.
type handlerTable map[Event]func()

func (h handlerTable) dispatch(event Event) {
	if fn, ok := h[event]; ok {
		fn()
	}
}

func (h handlerTable) types() []Event {
	out := make([]Event, 0, len(h))
	for e := range h {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ScoreSubscriber counts food eaten.
type ScoreSubscriber struct {
	remuneration *Remuneration
	handlers     handlerTable
}

// NewScoreSubscriber returns a subscriber that adds one to r.Score per food.
func NewScoreSubscriber(r *Remuneration) *ScoreSubscriber {
	s := &ScoreSubscriber{remuneration: r}
	s.handlers = handlerTable{
		EventFoodReached: func() { s.remuneration.Score++ },
	}
	return s
}

func (s *ScoreSubscriber) Notify(event Event)  { s.handlers.dispatch(event) }
func (s *ScoreSubscriber) EventTypes() []Event { return s.handlers.types() }

// RewardSubscriber accumulates the training reward: +FoodReward per food,
// -CollisionPenalty on death.
type RewardSubscriber struct {
	remuneration *Remuneration
	handlers     handlerTable
}

// NewRewardSubscriber returns a subscriber that shapes r.Reward.
func NewRewardSubscriber(r *Remuneration) *RewardSubscriber {
	s := &RewardSubscriber{remuneration: r}
	s.handlers = handlerTable{
		EventFoodReached:       func() { s.remuneration.Reward += FoodReward },
		EventCollisionDetected: func() { s.remuneration.Reward -= CollisionPenalty },
	}
	return s
}

func (s *RewardSubscriber) Notify(event Event)  { s.handlers.dispatch(event) }
func (s *RewardSubscriber) EventTypes() []Event { return s.handlers.types() }

// Recorder keeps every event it is notified of. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *Recorder) EventTypes() []Event {
	return []Event{EventCollisionDetected, EventFoodReached}
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many times event was recorded.
func (r *Recorder) Count(event Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
