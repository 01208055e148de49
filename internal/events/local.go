package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LocalBus delivers events in process. Each subscriber has its own buffered
// queue; a subscriber that falls behind loses events instead of blocking
// publishers.
type LocalBus struct {
	log    *zap.Logger
	buffer int

	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan Event
}

func NewLocalBus(buffer int, log *zap.Logger) *LocalBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &LocalBus{log: log, buffer: buffer, subs: make(map[string]map[int]chan Event)}
}

func (b *LocalBus) Publish(_ context.Context, stream string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[stream] {
		select {
		case ch <- event:
		default:
			b.log.Warn("event dropped for slow subscriber", zap.String("stream", stream), zap.String("type", event.Type))
		}
	}
	return nil
}

// Subscribe runs handler on its own goroutine until ctx is done.
func (b *LocalBus) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[stream] == nil {
		b.subs[stream] = make(map[int]chan Event)
	}
	b.subs[stream][id] = ch
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.subs[stream], id)
			b.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				handler(ev)
			}
		}
	}()
	return nil
}
