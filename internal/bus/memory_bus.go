// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
	"github.com/fleetguard/patrolcore/internal/log"
	"github.com/fleetguard/patrolcore/internal/metrics"
)

const subscriberQueueDepth = 64

// MemoryBus is the in-process EventBus (C2): non-blocking, drop-oldest
// backpressure per subscriber so a slow subscriber never stalls a publisher
// (§4.2, §8 property 8).
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]*subscription
}

// NewMemoryBus constructs an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*subscription)}
}

// Publish fans out event to every current subscriber of topic. It never
// blocks: a subscriber whose queue is full loses its oldest queued event to
// make room for the new one, deterministically.
func (b *MemoryBus) Publish(ctx context.Context, topic string, event any) error {
	if ctx == nil {
		return fmt.Errorf("bus: publish context is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(topic, event)
	}
	return nil
}

// Subscribe returns a live handle receiving every subsequent Publish to
// topic.
func (b *MemoryBus) Subscribe(_ context.Context, topic string) (ports.Subscription, error) {
	sub := &subscription{ch: make(chan any, subscriberQueueDepth)}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return &handle{bus: b, topic: topic, sub: sub}, nil
}

type subscription struct {
	mu sync.Mutex
	ch chan any
}

// deliver is non-blocking: if the subscriber's queue is full, the oldest
// queued event is discarded to make room, and the drop is recorded.
func (s *subscription) deliver(topic string, event any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.ch <- event:
		return
	default:
	}
	select {
	case <-s.ch:
		metrics.IncBusDropReason(topic, "queue_full")
	default:
	}
	select {
	case s.ch <- event:
	default:
		// Another deliver raced us; give up silently rather than block.
		metrics.IncBusDropReason(topic, "queue_full")
	}
}

type handle struct {
	bus   *MemoryBus
	topic string
	sub   *subscription
}

func (h *handle) C() <-chan any { return h.sub.ch }

func (h *handle) Close() error {
	h.bus.mu.Lock()
	defer h.bus.mu.Unlock()
	list := h.bus.subs[h.topic]
	out := list[:0]
	for _, s := range list {
		if s != h.sub {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		delete(h.bus.subs, h.topic)
	} else {
		h.bus.subs[h.topic] = out
	}
	close(h.sub.ch)
	log.L().Debug().Str("topic", h.topic).Msg("bus subscriber closed")
	return nil
}

var _ ports.Bus = (*MemoryBus)(nil)
