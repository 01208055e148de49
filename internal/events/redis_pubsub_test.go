package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestRedisPubSub_RoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sub := NewRedisSubscriber(client, zap.NewNop())
	got := make(chan Event, 4)
	if err := sub.Subscribe(ctx, StreamClient, func(e Event) { got <- e }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// a payload from something other than a client process is skipped
	mr.Publish(StreamClient, "not json")

	pub := NewRedisPublisher(client, zap.NewNop())
	err := pub.Publish(ctx, StreamClient, Event{Type: EventUploadProgress, Payload: map[string]any{"current": 3.0}})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case e := <-got:
		if e.Type != EventUploadProgress || e.Payload["current"] != 3.0 {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case e := <-got:
		t.Errorf("extra event delivered: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisSubscriber_FailsWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := NewRedisSubscriber(client, zap.NewNop()).Subscribe(ctx, StreamClient, func(Event) {}); err == nil {
		t.Fatal("expected subscribe error")
	}
}
