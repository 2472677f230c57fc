// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fleetguard/patrolcore/internal/bus"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/store"
	"github.com/stretchr/testify/require"
)

// fakeSink records every event delivered to it, standing in for the
// Supervisor's ExecutorSink without pulling in a live PatrolExecutor.
type fakeSink struct {
	mu   sync.Mutex
	seen []ports.InboundEvent
}

func (f *fakeSink) Deliver(robotID int64, event ports.InboundEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, event)
	return true
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// fakeSource lets a test hand-feed InboundEvents to a Router as though they
// arrived from a RobotLink/CloudLink.
type fakeSource struct {
	ch chan ports.InboundEvent
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan ports.InboundEvent, 16)}
}

func (f *fakeSource) Events() <-chan ports.InboundEvent { return f.ch }

func newTestRouter(t *testing.T, highThreshold int) (*Router, *bus.MemoryBus, *fakeSink, ports.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	b := bus.NewMemoryBus()
	proj := NewMemoryProjectionStore()
	sink := &fakeSink{}
	return New(st, b, proj, sink, highThreshold), b, sink, st
}

func drainOne(t *testing.T, sub ports.Subscription) any {
	t.Helper()
	select {
	case evt := <-sub.C():
		return evt
	case <-time.After(time.Second):
		t.Fatal("expected an event on the bus")
		return nil
	}
}

func TestRouter_BatteryEventUpdatesProjectionAndPublishes(t *testing.T) {
	r, b, sink, _ := newTestRouter(t, 3)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, ports.TopicRobotBattery)
	require.NoError(t, err)
	defer sub.Close()

	src := newFakeSource()
	r.AttachRobotLink(ctx, 7, src)
	src.ch <- ports.InboundEvent{
		RobotID: 7, Kind: ports.EventBattery,
		Payload: map[string]any{"batteryPercent": 42.0, "charging": true},
	}

	drainOne(t, sub)

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	proj := r.proj.Get(7)
	require.Equal(t, 42, proj.BatteryPercent)
	require.True(t, proj.Charging)
}

func TestRouter_WaypointArrivedUpdatesCurrentLocation(t *testing.T) {
	r, b, _, _ := newTestRouter(t, 3)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, ports.TopicRobotWaypoint)
	require.NoError(t, err)
	defer sub.Close()

	src := newFakeSource()
	r.AttachRobotLink(ctx, 3, src)
	src.ch <- ports.InboundEvent{
		RobotID: 3, Kind: ports.EventWaypointArrived,
		Payload: map[string]any{"waypoint": "dock-a"},
	}

	drainOne(t, sub)
	require.Eventually(t, func() bool {
		return r.proj.Get(3).CurrentLocation == "dock-a"
	}, time.Second, 5*time.Millisecond)
}

func TestRouter_ConnectedAndDisconnectedTogglesProjectionAndEmitsPairedEvents(t *testing.T) {
	r, b, _, _ := newTestRouter(t, 3)
	ctx := context.Background()

	connectedSub, err := b.Subscribe(ctx, ports.TopicRobotConnected)
	require.NoError(t, err)
	defer connectedSub.Close()
	disconnectedSub, err := b.Subscribe(ctx, ports.TopicRobotDisconnected)
	require.NoError(t, err)
	defer disconnectedSub.Close()

	src := newFakeSource()
	r.AttachRobotLink(ctx, 9, src)

	src.ch <- ports.InboundEvent{RobotID: 9, Kind: ports.EventConnected}
	drainOne(t, connectedSub)
	require.Eventually(t, func() bool { return r.proj.Get(9).Connected }, time.Second, 5*time.Millisecond)

	src.ch <- ports.InboundEvent{RobotID: 9, Kind: ports.EventDisconnected}
	drainOne(t, disconnectedSub)
	require.Eventually(t, func() bool { return !r.proj.Get(9).Connected }, time.Second, 5*time.Millisecond)
}

func TestRouter_DetectionSummaryRecordsViolationWhenCountPositive(t *testing.T) {
	r, b, _, st := newTestRouter(t, 3)
	ctx := context.Background()

	violationSub, err := b.Subscribe(ctx, ports.TopicViolationNew)
	require.NoError(t, err)
	defer violationSub.Close()

	r.AttachCloudLink(ctx, cloudSource(ports.InboundEvent{
		Kind: ports.EventDetectionSummary,
		Payload: map[string]any{
			"total_violations": 5.0,
			"total_people":     2.0,
			"location":         "lobby",
		},
	}))

	evt := drainOne(t, violationSub)
	v := evt.(model.Violation)
	require.Equal(t, model.SeverityHigh, v.Severity) // 5 >= highThreshold(3)
	require.Equal(t, 5, v.Count)
	require.Equal(t, "lobby", v.Location)

	all, err := st.ListViolations(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestRouter_DetectionSummaryIgnoresZeroCount(t *testing.T) {
	r, b, _, st := newTestRouter(t, 3)
	ctx := context.Background()

	summarySub, err := b.Subscribe(ctx, ports.TopicDetectionSummary)
	require.NoError(t, err)
	defer summarySub.Close()

	r.AttachCloudLink(ctx, cloudSource(ports.InboundEvent{
		Kind:    ports.EventDetectionSummary,
		Payload: map[string]any{"total_violations": 0.0},
	}))

	drainOne(t, summarySub) // the raw summary is still published

	require.Never(t, func() bool {
		all, _ := st.ListViolations(ctx, nil)
		return len(all) > 0
	}, 100*time.Millisecond, 10*time.Millisecond)
}

// cloudSource wraps a single pre-built event into a one-shot Source, closing
// its channel after delivery so AttachCloudLink's reader goroutine exits
// cleanly at test end.
func cloudSource(evt ports.InboundEvent) Source {
	ch := make(chan ports.InboundEvent, 1)
	ch <- evt
	close(ch)
	return chanSource{ch}
}

type chanSource struct {
	ch chan ports.InboundEvent
}

func (c chanSource) Events() <-chan ports.InboundEvent { return c.ch }
