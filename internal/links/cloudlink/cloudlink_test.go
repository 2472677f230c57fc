// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cloudlink

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fleetguard/patrolcore/internal/bus"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestCloudLink_PublishBeforeConnectedIsUnavailable(t *testing.T) {
	_, client := setupMiniRedis(t)
	link := New(client, Config{}, bus.NewMemoryBus())

	err := link.PublishPipelineControl(context.Background(), "pause")
	require.ErrorIs(t, err, ports.ErrUnavailable)
}

func TestCloudLink_ConnectThenPublishSucceeds(t *testing.T) {
	_, client := setupMiniRedis(t)
	link := New(client, Config{}, bus.NewMemoryBus())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, link.Connect(ctx))
	require.Eventually(t, link.IsConnected, time.Second, 10*time.Millisecond)

	require.NoError(t, link.PublishPipelineControl(context.Background(), "pause"))
	require.NoError(t, link.Disconnect())
}

func TestCloudLink_DisconnectLeavesNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	_, client := setupMiniRedis(t)
	link := New(client, Config{}, bus.NewMemoryBus())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, link.Connect(ctx))
	require.Eventually(t, link.IsConnected, time.Second, 10*time.Millisecond)
	require.NoError(t, link.Disconnect())
}

func TestCloudLink_DispatchesDetectionSummary(t *testing.T) {
	mr, client := setupMiniRedis(t)
	link := New(client, Config{}, bus.NewMemoryBus())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, link.Connect(ctx))
	require.Eventually(t, link.IsConnected, time.Second, 10*time.Millisecond)

	mr.Publish("cloud/violations/summary", `{"total_violations":3}`)

	select {
	case evt := <-link.Events():
		require.Equal(t, ports.EventDetectionSummary, evt.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("expected dispatched detection summary event")
	}
	require.NoError(t, link.Disconnect())
}
