// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetguard/patrolcore/internal/bus"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/executor"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/store"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/supervisor"
)

// noopLink is a ports.RobotLink that never issues real I/O, enough to let a
// Supervisor's executor run without a live broker.
type noopLink struct{}

func (noopLink) Connect(context.Context) error                          { return nil }
func (noopLink) Disconnect() error                                      { return nil }
func (noopLink) IsConnected() bool                                      { return true }
func (noopLink) GoTo(context.Context, string) error                     { return nil }
func (noopLink) GoHome(context.Context) error                           { return nil }
func (noopLink) Stop(context.Context) error                             { return nil }
func (noopLink) Speak(context.Context, string) error                    { return nil }
func (noopLink) ShowWebview(context.Context, string) error               { return nil }
func (noopLink) CloseWebview(context.Context) error                     { return nil }
func (noopLink) PlayVideo(context.Context, string) error                { return nil }
func (noopLink) SetVolume(context.Context, int) error                   { return nil }
func (noopLink) Tilt(context.Context, int) error                        { return nil }
func (noopLink) Turn(context.Context, int) error                        { return nil }
func (noopLink) Joystick(context.Context, float64, float64, float64) error { return nil }
func (noopLink) SetGoToSpeed(context.Context, string) error             { return nil }
func (noopLink) RequestWaypoints(context.Context) error                 { return nil }
func (noopLink) RequestBattery(context.Context) error                   { return nil }
func (noopLink) RequestPosition(context.Context) error                  { return nil }
func (noopLink) RequestMapImage(context.Context, string, int) error     { return nil }
func (noopLink) Restart(context.Context) error                          { return nil }
func (noopLink) Shutdown(context.Context) error                         { return nil }

var _ ports.RobotLink = noopLink{}

type fixedLinks struct{}

func (fixedLinks) LinkFor(int64) (ports.RobotLink, bool) { return noopLink{}, true }

type fixedBattery struct{ known map[string]struct{} }

func (b fixedBattery) Get(robotID int64) model.RobotProjection {
	return model.RobotProjection{RobotID: robotID, BatteryPercent: 90, KnownWaypoints: b.known}
}

type fixedConfig struct{}

func (fixedConfig) ExecutorConfig() executor.Config {
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

func newTestServer(t *testing.T) (*Server, ports.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	b := bus.NewMemoryBus()
	sup := supervisor.New(context.Background(), st, b, ports.RealClock, fixedBattery{known: map[string]struct{}{"A": {}, "B": {}, "home": {}}}, fixedLinks{}, fixedConfig{})
	srv, err := New(st, sup, Config{})
	require.NoError(t, err)
	return srv, st
}

func TestHandleListRobots_Empty(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/robots/", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var robots []model.Robot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &robots))
	require.Empty(t, robots)
}

func TestHandleGetRobot_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/robots/999", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetRobot_InvalidID(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/robots/not-a-number", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStartPatrol_AcceptsAndConflictsOnSecond(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	robot, err := st.UpsertRobot(ctx, model.Robot{Serial: "r1", HomeWaypoint: "home"})
	require.NoError(t, err)
	route, err := st.CreateRoute(ctx, model.Route{
		Name:           "loop-a",
		OwnerRobotID:   robot.ID,
		LoopCount:      1,
		ReturnWaypoint: "home",
		Steps: []model.WaypointStep{
			{SequenceOrder: 1, WaypointName: "A"},
			{SequenceOrder: 2, WaypointName: "B"},
		},
	})
	require.NoError(t, err)

	body, _ := json.Marshal(startPatrolRequest{RobotID: robot.ID, RouteID: route.ID})
	req := httptest.NewRequest(http.MethodPost, "/patrols/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/patrols/", bytes.NewReader(body))
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusConflict, rec2.Code)
}

func TestHandleSetSpeed_RejectsUnknownTier(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"speedTier": "ludicrous"})
	req := httptest.NewRequest(http.MethodPost, "/patrols/1/speed", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePause_NotFoundForUnknownRobot(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/patrols/42/pause", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
