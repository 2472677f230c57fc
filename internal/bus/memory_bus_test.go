// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryBus_PublishDeliversToSubscriber(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "robot.connected")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, "robot.connected", map[string]any{"robotId": int64(1)}))

	select {
	case evt := <-sub.C():
		require.Equal(t, int64(1), evt.(map[string]any)["robotId"])
	case <-time.After(time.Second):
		t.Fatal("expected event delivery")
	}
}

func TestMemoryBus_PublishIgnoresOtherTopics(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "robot.connected")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, "robot.disconnected", "payload"))

	select {
	case <-sub.C():
		t.Fatal("subscriber to a different topic must not receive the event")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestMemoryBus_SlowSubscriberDropsOldest exercises §8 property 8: Publish
// never blocks, and a subscriber whose queue is full loses its oldest queued
// event rather than stalling the publisher.
func TestMemoryBus_SlowSubscriberDropsOldest(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "patrol.status")
	require.NoError(t, err)
	defer sub.Close()

	total := subscriberQueueDepth + 10
	for i := 0; i < total; i++ {
		require.NoError(t, b.Publish(ctx, "patrol.status", i))
	}

	first := <-sub.C()
	require.NotEqual(t, 0, first, "the oldest events must have been dropped to make room")
	require.Equal(t, total-subscriberQueueDepth, first)
}

func TestMemoryBus_CloseRemovesSubscriberAndClosesChannel(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "robot.battery")
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	require.NoError(t, b.Publish(ctx, "robot.battery", "ignored"))

	_, open := <-sub.C()
	require.False(t, open, "closed subscription's channel must be closed")
}

func TestMemoryBus_PublishWithCancelledContextErrors(t *testing.T) {
	b := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Publish(ctx, "robot.connected", "x")
	require.Error(t, err)
}

func TestMemoryBus_MultipleSubscribersEachReceive(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	subA, err := b.Subscribe(ctx, "robot.status")
	require.NoError(t, err)
	defer subA.Close()
	subB, err := b.Subscribe(ctx, "robot.status")
	require.NoError(t, err)
	defer subB.Close()

	require.NoError(t, b.Publish(ctx, "robot.status", "hello"))

	require.Equal(t, "hello", <-subA.C())
	require.Equal(t, "hello", <-subB.C())
}
