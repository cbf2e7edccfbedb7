package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func receive(t *testing.T, sub *Subscription) *Event {
	t.Helper()
	select {
	case evt, ok := <-sub.Events:
		if !ok {
			t.Fatalf("subscription channel closed unexpectedly")
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return nil
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := NewEventBus(10, 10)
	defer bus.Close()

	first := bus.Subscribe()
	second := bus.Subscribe()
	if bus.SubscriberCount() != 2 {
		t.Fatalf("SubscriberCount() = %d, want 2", bus.SubscriberCount())
	}

	err := bus.Publish(context.Background(), &Event{
		Name:    TaskCreated,
		ActorID: "user-1",
		TaskIDs: []string{"task-1"},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	for _, sub := range []*Subscription{first, second} {
		evt := receive(t, sub)
		if evt.Name != TaskCreated {
			t.Errorf("event name = %s, want %s", evt.Name, TaskCreated)
		}
		if evt.ID == "" {
			t.Errorf("event id should be assigned on publish")
		}
		if evt.Timestamp.IsZero() {
			t.Errorf("event timestamp should be assigned on publish")
		}
	}
}

func TestPublishRejectsInvalidEvents(t *testing.T) {
	bus := NewEventBus(1, 1)
	defer bus.Close()

	if err := bus.Publish(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil event")
	}
	if err := bus.Publish(context.Background(), &Event{}); err == nil {
		t.Fatalf("expected error for event without name")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus(10, 10)
	defer bus.Close()

	sub := bus.Subscribe()
	sub.Unsubscribe()

	if _, ok := <-sub.Events; ok {
		t.Fatalf("expected closed channel after Unsubscribe")
	}
	if bus.SubscriberCount() != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0", bus.SubscriberCount())
	}

	// second call is a no-op
	sub.Unsubscribe()
}

func TestPublishAfterCloseReturnsErrBusClosed(t *testing.T) {
	bus := NewEventBus(10, 10)
	sub := bus.Subscribe()

	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !bus.IsClosed() {
		t.Fatalf("IsClosed() = false after Close")
	}

	err := bus.Publish(context.Background(), &Event{Name: TaskDeleted})
	if !errors.Is(err, ErrBusClosed) {
		t.Fatalf("Publish() after close error = %v, want ErrBusClosed", err)
	}
	if _, ok := <-sub.Events; ok {
		t.Fatalf("subscriber channel should be closed by Close")
	}

	late := bus.Subscribe()
	if _, ok := <-late.Events; ok {
		t.Fatalf("subscription on closed bus should be closed immediately")
	}
}

func TestCloseDeliversQueuedEvents(t *testing.T) {
	bus := NewEventBus(10, 10)
	sub := bus.Subscribe()

	for i := 0; i < 3; i++ {
		if err := bus.Publish(context.Background(), &Event{Name: TaskUpdated}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	_ = bus.Close()

	count := 0
	for range sub.Events {
		count++
	}
	if count != 3 {
		t.Fatalf("received %d events, want 3", count)
	}
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	bus := NewEventBus(64, 1)
	defer bus.Close()

	_ = bus.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			_ = bus.Publish(context.Background(), &Event{Name: TaskUpdated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publisher blocked by slow subscriber")
	}
}

func TestIsSystemEvent(t *testing.T) {
	if !(&Event{Name: TaskOverdue}).IsSystemEvent() {
		t.Errorf("event without actor should be a system event")
	}
	if (&Event{Name: TaskCreated, ActorID: "u"}).IsSystemEvent() {
		t.Errorf("event with actor should not be a system event")
	}
}
