// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
)

func TestMemoryStore_UpsertRobotRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	want := model.Robot{
		DisplayName:    "Lobby Bot",
		Serial:         "R1-SERIAL",
		BrokerEndpoint: "10.0.0.5",
		Port:           6379,
		HomeWaypoint:   "dock",
	}
	created, err := s.UpsertRobot(ctx, want)
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := s.GetRobot(ctx, created.ID)
	require.NoError(t, err)

	if diff := cmp.Diff(created, got, cmpopts.IgnoreFields(model.Robot{}, "CreatedAt")); diff != "" {
		t.Fatalf("round-tripped robot differs (-created +got):\n%s", diff)
	}

	bySerial, err := s.GetRobotBySerial(ctx, "R1-SERIAL")
	require.NoError(t, err)
	require.Equal(t, created.ID, bySerial.ID)
}

func TestMemoryStore_OpenSessionThenAdvanceAndClose(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	robot, err := s.UpsertRobot(ctx, model.Robot{Serial: "R1", HomeWaypoint: "dock"})
	require.NoError(t, err)
	route, err := s.CreateRoute(ctx, model.Route{
		Name: "loop-a",
		Steps: []model.WaypointStep{
			{SequenceOrder: 1, WaypointName: "a"},
			{SequenceOrder: 2, WaypointName: "b"},
		},
	})
	require.NoError(t, err)

	sess, err := s.OpenSession(ctx, route.ID, robot.ID)
	require.NoError(t, err)
	require.Equal(t, model.SessionRunning, sess.Status)

	require.NoError(t, s.AdvanceSession(ctx, sess.ID, 1, 0))
	advanced, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 1, advanced.CurrentStepIndex)

	require.NoError(t, s.SetSessionStatus(ctx, sess.ID, model.SessionCompleted, model.ReasonCompleted))
	closed, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, model.SessionCompleted, closed.Status)

	active, err := s.GetActiveSession(ctx, robot.ID)
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestMemoryStore_DeleteRobotRemovesIt(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	robot, err := s.UpsertRobot(ctx, model.Robot{Serial: "R1", HomeWaypoint: "dock"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteRobot(ctx, robot.ID))
	_, err = s.GetRobot(ctx, robot.ID)
	require.Error(t, err)
}
