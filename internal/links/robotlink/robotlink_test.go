// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package robotlink

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fleetguard/patrolcore/internal/bus"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func testRobot() model.Robot {
	return model.Robot{ID: 1, Serial: "R1-SERIAL", HomeWaypoint: "dock"}
}

func TestRobotLink_ConnectPublishesRobotConnected(t *testing.T) {
	_, client := setupMiniRedis(t)
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), ports.TopicRobotConnected)
	require.NoError(t, err)

	link := New(client, testRobot(), b)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, link.Connect(ctx))

	select {
	case <-sub.C():
	case <-time.After(2 * time.Second):
		t.Fatal("expected robot.connected event")
	}
	require.Eventually(t, link.IsConnected, time.Second, 10*time.Millisecond)
	require.NoError(t, link.Disconnect())
}

func TestRobotLink_PublishBeforeConnectedIsUnavailable(t *testing.T) {
	_, client := setupMiniRedis(t)
	link := New(client, testRobot(), bus.NewMemoryBus())

	err := link.GoHome(context.Background())
	require.ErrorIs(t, err, ports.ErrUnavailable)
}

func TestRobotLink_CommandsRejectOutOfRangeInputs(t *testing.T) {
	_, client := setupMiniRedis(t)
	link := New(client, testRobot(), bus.NewMemoryBus())

	require.ErrorIs(t, link.SetVolume(context.Background(), 11), ports.ErrValidation)
	require.ErrorIs(t, link.Tilt(context.Background(), 90), ports.ErrValidation)
	require.ErrorIs(t, link.Turn(context.Background(), 400), ports.ErrValidation)
}

func TestRobotLink_DisconnectLeavesNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	_, client := setupMiniRedis(t)
	link := New(client, testRobot(), bus.NewMemoryBus())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, link.Connect(ctx))
	require.Eventually(t, link.IsConnected, time.Second, 10*time.Millisecond)
	require.NoError(t, link.Disconnect())
}

func TestRobotLink_DispatchesWaypointArrivedEvent(t *testing.T) {
	mr, client := setupMiniRedis(t)
	b := bus.NewMemoryBus()
	link := New(client, testRobot(), b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, link.Connect(ctx))
	require.Eventually(t, link.IsConnected, time.Second, 10*time.Millisecond)

	mr.Publish("temi/R1-SERIAL/event/waypoint_arrived", `{"waypoint":"dockA"}`)

	select {
	case evt := <-link.Events():
		require.Equal(t, ports.EventWaypointArrived, evt.Kind)
		require.Equal(t, "dockA", evt.Payload["waypoint"])
	case <-time.After(2 * time.Second):
		t.Fatal("expected dispatched event")
	}
	require.NoError(t, link.Disconnect())
}
