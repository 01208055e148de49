package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLocalBus_DeliversToStreamSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewLocalBus(4, zap.NewNop())
	got := make(chan Event, 4)
	if err := bus.Subscribe(ctx, StreamClient, func(e Event) { got <- e }); err != nil {
		t.Fatal(err)
	}
	other := make(chan Event, 4)
	_ = bus.Subscribe(ctx, "other", func(e Event) { other <- e })

	_ = bus.Publish(ctx, StreamClient, Event{Type: EventSessionChanged, Payload: map[string]any{"phase": "authenticated"}})

	select {
	case e := <-got:
		if e.Type != EventSessionChanged || e.Payload["phase"] != "authenticated" {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case e := <-other:
		t.Errorf("event leaked to another stream: %+v", e)
	case <-time.After(20 * time.Millisecond):
	}
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, string, Event) error { return f.err }

func TestMultiPublisher_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	bus := NewLocalBus(1, zap.NewNop())
	m := MultiPublisher{bus, failingPublisher{boom}}

	if err := m.Publish(context.Background(), StreamClient, Event{Type: EventForcedLogout}); !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if err := (MultiPublisher{bus}).Publish(context.Background(), StreamClient, Event{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
