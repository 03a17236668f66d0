// Package events is the in-process notification bus between the game engine
// and the observers that keep score.
package events

// Event is a payload-free domain notification.
type Event uint8

const (
	EventCollisionDetected Event = iota
	EventFoodReached
)

func (e Event) String() string {
	switch e {
	case EventCollisionDetected:
		return "collision_detected"
	case EventFoodReached:
		return "food_reached"
	default:
		return "unknown"
	}
}

// Subscriber receives every published event.
type Subscriber interface {
	// Notify handles a single event. Events the subscriber has no interest
	// in must be ignored.
	Notify(event Event)

	// EventTypes lists the events the subscriber reacts to. The publisher
	// does not filter on it.
	EventTypes() []Event
}

// Publisher fans events out to its subscribers. Dispatch is synchronous on
// the caller's goroutine, in registration order, and every subscriber sees
// every event. A Publisher belongs to one session and is not safe for
// concurrent use.
type Publisher struct {
	subscribers []Subscriber
}

// NewPublisher returns a publisher with no subscribers.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// AddSubscriber appends s to the dispatch list.
func (p *Publisher) AddSubscriber(s Subscriber) {
	p.subscribers = append(p.subscribers, s)
}

// Publish notifies every subscriber of event.
func (p *Publisher) Publish(event Event) {
	for _, s := range p.subscribers {
		s.Notify(event)
	}
}

// Subscribers returns a copy of the registered subscribers in dispatch order.
func (p *Publisher) Subscribers() []Subscriber {
	out := make([]Subscriber, len(p.subscribers))
	copy(out, p.subscribers)
	return out
}
