// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetguard/patrolcore/internal/bus"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/executor"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/store"
)

// stubLink is the minimal ports.RobotLink a supervisor test needs: GoTo
// answers every call with an immediate waypoint-arrived event so the patrol
// runs to completion without real I/O.
type stubLink struct {
	arrivals chan string
}

func newStubLink() *stubLink { return &stubLink{arrivals: make(chan string, 32)} }

func (l *stubLink) Connect(context.Context) error { return nil }
func (l *stubLink) Disconnect() error             { return nil }
func (l *stubLink) IsConnected() bool             { return true }
func (l *stubLink) GoTo(_ context.Context, waypoint string) error {
	l.arrivals <- waypoint
	return nil
}
func (l *stubLink) GoHome(_ context.Context) error {
	l.arrivals <- "home"
	return nil
}
func (l *stubLink) Stop(context.Context) error                                 { return nil }
func (l *stubLink) Speak(context.Context, string) error                        { return nil }
func (l *stubLink) ShowWebview(context.Context, string) error                  { return nil }
func (l *stubLink) CloseWebview(context.Context) error                         { return nil }
func (l *stubLink) PlayVideo(context.Context, string) error                    { return nil }
func (l *stubLink) SetVolume(context.Context, int) error                      { return nil }
func (l *stubLink) Tilt(context.Context, int) error                           { return nil }
func (l *stubLink) Turn(context.Context, int) error                           { return nil }
func (l *stubLink) Joystick(context.Context, float64, float64, float64) error { return nil }
func (l *stubLink) SetGoToSpeed(context.Context, string) error                { return nil }
func (l *stubLink) RequestWaypoints(context.Context) error                    { return nil }
func (l *stubLink) RequestBattery(context.Context) error                      { return nil }
func (l *stubLink) RequestPosition(context.Context) error                     { return nil }
func (l *stubLink) RequestMapImage(context.Context, string, int) error        { return nil }
func (l *stubLink) Restart(context.Context) error                             { return nil }
func (l *stubLink) Shutdown(context.Context) error                            { return nil }

var _ ports.RobotLink = (*stubLink)(nil)

type stubBattery struct {
	known map[string]struct{}
}

func (b stubBattery) Get(robotID int64) model.RobotProjection {
	return model.RobotProjection{RobotID: robotID, BatteryPercent: 90, KnownWaypoints: b.known}
}

// stubLinks implements LinkProvider over a small fixed set registered by
// the test, so a Router integration is unnecessary for these tests.
type stubLinks struct {
	mu    sync.Mutex
	links map[int64]ports.RobotLink
}

func newStubLinks() *stubLinks { return &stubLinks{links: make(map[int64]ports.RobotLink)} }

func (s *stubLinks) add(robotID int64, l ports.RobotLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[robotID] = l
}

func (s *stubLinks) LinkFor(robotID int64) (ports.RobotLink, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[robotID]
	return l, ok
}

type stubConfig struct{ cfg executor.Config }

func (c stubConfig) ExecutorConfig() executor.Config { return c.cfg }

func testConfig() executor.Config {
	return executor.Config{
		DetectionTimeout:       5 * time.Second,
		NoViolationHold:        3 * time.Second,
		HighViolationThreshold: 3,
		PatrolStopHomeTimeout:  5 * time.Second,
		YoloShutdownTimeout:    10 * time.Second,
		LowBatteryPercent:      15,
		ArrivalTimeout:         5 * time.Second,
		ReturnTimeout:          5 * time.Second,
	}
}

// deliverArrivals drains a stubLink's GoTo/GoHome channel and replies with a
// matching waypoint-arrived event through sink.Deliver, simulating a Router
// forwarding real robot traffic.
func deliverArrivals(sink interface {
	Deliver(robotID int64, event ports.InboundEvent) bool
}, robotID int64, link *stubLink, done <-chan struct{}) {
	for {
		select {
		case wp := <-link.arrivals:
			sink.Deliver(robotID, ports.InboundEvent{Kind: ports.EventWaypointArrived, RobotID: robotID, Payload: map[string]any{"waypoint": wp}})
		case <-done:
			return
		}
	}
}

// TestStartPatrolRejectsSecondStart verifies the registry enforces at most
// one running executor per robot, mirroring the Store's own invariant.
func TestStartPatrolRejectsSecondStart(t *testing.T) {
	st := store.NewMemoryStore()
	b := bus.NewMemoryBus()
	links := newStubLinks()
	link := newStubLink()
	links.add(7, link)

	route, err := st.CreateRoute(context.Background(), model.Route{
		Name:           "loop-a",
		OwnerRobotID:   7,
		LoopCount:      1,
		ReturnWaypoint: "home",
		Steps: []model.WaypointStep{
			{SequenceOrder: 1, WaypointName: "A", DwellSeconds: 0},
			{SequenceOrder: 2, WaypointName: "B", DwellSeconds: 0},
		},
	})
	require.NoError(t, err)

	sup := New(context.Background(), st, b, ports.RealClock, stubBattery{known: map[string]struct{}{"A": {}, "B": {}, "home": {}}}, links, stubConfig{cfg: testConfig()})

	done := make(chan struct{})
	defer close(done)
	go deliverArrivals(sup, 7, link, done)

	_, err = sup.StartPatrol(context.Background(), 7, route.ID)
	require.NoError(t, err)

	_, err = sup.StartPatrol(context.Background(), 7, route.ID)
	require.Error(t, err)

	require.Eventually(t, func() bool { return !sup.ActivePatrol(7) }, 2*time.Second, 5*time.Millisecond)
}

// TestDeliverAndPauseWithoutActivePatrol verifies Deliver returns false and
// Pause returns an error for a robot that has no running patrol.
func TestDeliverAndPauseWithoutActivePatrol(t *testing.T) {
	st := store.NewMemoryStore()
	b := bus.NewMemoryBus()
	links := newStubLinks()

	sup := New(context.Background(), st, b, ports.RealClock, stubBattery{}, links, stubConfig{cfg: testConfig()})

	ok := sup.Deliver(99, ports.InboundEvent{Kind: ports.EventWaypointArrived})
	require.False(t, ok)

	err := sup.Pause(99)
	require.Error(t, err)
}
