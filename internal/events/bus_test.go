package events

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/savrin/operato/internal/domain"
)

func collect(ch <-chan domain.WorkflowEvent, n int, t *testing.T) []domain.WorkflowEvent {
	t.Helper()
	out := make([]domain.WorkflowEvent, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d of %d events", len(out), n)
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d of %d", len(out), n)
		}
	}
	return out
}

func TestBus_OrderPreserved(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ch, unsub := bus.Subscribe()
	defer unsub()

	executionID := uuid.New()
	types := []domain.EventType{
		domain.EventWorkflowStarted,
		domain.EventStepCompleted,
		domain.EventWorkflowCompleted,
	}
	for _, typ := range types {
		bus.Publish(domain.WorkflowEvent{ID: uuid.New(), Type: typ, ExecutionID: executionID})
	}

	got := collect(ch, len(types), t)
	for i, ev := range got {
		if ev.Type != types[i] {
			t.Errorf("event %d: expected %s, got %s", i, types[i], ev.Type)
		}
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ch1, unsub1 := bus.Subscribe()
	defer unsub1()
	ch2, unsub2 := bus.Subscribe()
	defer unsub2()

	bus.Publish(domain.WorkflowEvent{ID: uuid.New(), Type: domain.EventWorkflowStarted})

	for _, ch := range []<-chan domain.WorkflowEvent{ch1, ch2} {
		got := collect(ch, 1, t)
		if got[0].Type != domain.EventWorkflowStarted {
			t.Errorf("expected workflow_started, got %s", got[0].Type)
		}
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ch, unsub := bus.Subscribe()
	unsub()

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after unsubscribe")
	}

	// Публикация после отписки не должна паниковать
	bus.Publish(domain.WorkflowEvent{ID: uuid.New(), Type: domain.EventStepStarted})
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	// Подписчик, который никогда не читает
	_, unsub := bus.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < DefaultBuffer*2; i++ {
			bus.Publish(domain.WorkflowEvent{ID: uuid.New(), Type: domain.EventStepCompleted})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	bus := NewBus(nil)
	ch, _ := bus.Subscribe()

	bus.Close()
	bus.Close()

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after bus close")
	}

	// Подписка на закрытую шину возвращает закрытый канал
	ch2, _ := bus.Subscribe()
	if _, ok := <-ch2; ok {
		t.Error("expected closed channel from closed bus")
	}
}
