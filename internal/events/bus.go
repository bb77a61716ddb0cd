// Package events provides the in-process pub/sub bus that connects the
// staking engine, market feed and news aggregator to the WebSocket push
// layer.
package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventPositionCreated   EventType = "POSITION_CREATED"
	EventRewardAccrued     EventType = "REWARD_ACCRUED"
	EventPositionWithdrawn EventType = "POSITION_WITHDRAWN"
	EventSweepCompleted    EventType = "SWEEP_COMPLETED"
	EventPriceUpdate       EventType = "PRICE_UPDATE"
	EventNewsUpdate        EventType = "NEWS_UPDATE"
	EventHoldingChanged    EventType = "HOLDING_CHANGED"
	EventError             EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions. Delivery is
// synchronous in the publisher's goroutine; subscribers must not block.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a handler for a specific event type
func (b *EventBus) Subscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
}

// SubscribeAll registers a handler for every event type
func (b *EventBus) SubscribeAll(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, sub)
}

// Publish delivers an event to all matching subscribers
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers[event.Type])+len(b.allSubs))
	subs = append(subs, b.subscribers[event.Type]...)
	subs = append(subs, b.allSubs...)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub(event)
	}
}
