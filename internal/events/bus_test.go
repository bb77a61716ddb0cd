package events

import (
	"testing"
	"time"
)

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewEventBus()

	var received []Event
	bus.Subscribe(EventRewardAccrued, func(e Event) {
		received = append(received, e)
	})

	bus.Publish(Event{Type: EventRewardAccrued, Timestamp: time.Now()})
	bus.Publish(Event{Type: EventPriceUpdate, Timestamp: time.Now()})

	if len(received) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(received))
	}
	if received[0].Type != EventRewardAccrued {
		t.Errorf("Expected REWARD_ACCRUED, got %s", received[0].Type)
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	bus := NewEventBus()

	count := 0
	bus.SubscribeAll(func(e Event) { count++ })

	bus.Publish(Event{Type: EventRewardAccrued})
	bus.Publish(Event{Type: EventPriceUpdate})
	bus.Publish(Event{Type: EventSweepCompleted})

	if count != 3 {
		t.Errorf("Expected 3 events, got %d", count)
	}
}

func TestMultipleSubscribersAllFire(t *testing.T) {
	bus := NewEventBus()

	a, b := 0, 0
	bus.Subscribe(EventHoldingChanged, func(e Event) { a++ })
	bus.Subscribe(EventHoldingChanged, func(e Event) { b++ })

	bus.Publish(Event{Type: EventHoldingChanged})

	if a != 1 || b != 1 {
		t.Errorf("Expected both subscribers to fire once, got %d and %d", a, b)
	}
}

func TestPublishWithNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	// Must not panic
	bus.Publish(Event{Type: EventNewsUpdate})
}
