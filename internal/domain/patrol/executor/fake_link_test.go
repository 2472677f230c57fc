// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package executor

import (
	"context"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
)

// fakeLink is a minimal ports.RobotLink test double that surfaces GoTo/GoHome
// calls on channels so a test can synchronize with the executor's own
// goroutine without real network I/O.
type fakeLink struct {
	goToCh   chan string
	goHomeCh chan struct{}
	stopCh   chan struct{}
	speakCh  chan string
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		goToCh:   make(chan string, 8),
		goHomeCh: make(chan struct{}, 8),
		stopCh:   make(chan struct{}, 8),
		speakCh:  make(chan string, 8),
	}
}

func (f *fakeLink) Connect(context.Context) error  { return nil }
func (f *fakeLink) Disconnect() error               { return nil }
func (f *fakeLink) IsConnected() bool               { return true }

func (f *fakeLink) GoTo(_ context.Context, waypoint string) error {
	f.goToCh <- waypoint
	return nil
}
func (f *fakeLink) GoHome(context.Context) error {
	f.goHomeCh <- struct{}{}
	return nil
}
func (f *fakeLink) Stop(context.Context) error {
	f.stopCh <- struct{}{}
	return nil
}
func (f *fakeLink) Speak(_ context.Context, text string) error {
	f.speakCh <- text
	return nil
}
func (f *fakeLink) ShowWebview(context.Context, string) error               { return nil }
func (f *fakeLink) CloseWebview(context.Context) error                     { return nil }
func (f *fakeLink) PlayVideo(context.Context, string) error                { return nil }
func (f *fakeLink) SetVolume(context.Context, int) error                   { return nil }
func (f *fakeLink) Tilt(context.Context, int) error                        { return nil }
func (f *fakeLink) Turn(context.Context, int) error                        { return nil }
func (f *fakeLink) Joystick(context.Context, float64, float64, float64) error { return nil }
func (f *fakeLink) SetGoToSpeed(context.Context, string) error             { return nil }
func (f *fakeLink) RequestWaypoints(context.Context) error                 { return nil }
func (f *fakeLink) RequestBattery(context.Context) error                   { return nil }
func (f *fakeLink) RequestPosition(context.Context) error                  { return nil }
func (f *fakeLink) RequestMapImage(context.Context, string, int) error     { return nil }
func (f *fakeLink) Restart(context.Context) error                         { return nil }
func (f *fakeLink) Shutdown(context.Context) error                        { return nil }

var _ ports.RobotLink = (*fakeLink)(nil)

// fakeBattery is a BatteryReader test double with a fixed known-waypoint set
// and mutable battery level.
type fakeBattery struct {
	known   map[string]struct{}
	percent int
}

func newFakeBattery(waypoints ...string) *fakeBattery {
	known := make(map[string]struct{}, len(waypoints))
	for _, w := range waypoints {
		known[w] = struct{}{}
	}
	return &fakeBattery{known: known, percent: 80}
}

func (f *fakeBattery) Get(robotID int64) model.RobotProjection {
	return model.RobotProjection{RobotID: robotID, BatteryPercent: f.percent, KnownWaypoints: f.known}
}

var _ BatteryReader = (*fakeBattery)(nil)
