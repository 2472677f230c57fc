// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ports

import (
	"context"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
)

// Store is the durable relational state contract (C1). All multi-row writes
// are atomic; readers see a consistent snapshot.
type Store interface {
	UpsertRobot(ctx context.Context, r model.Robot) (model.Robot, error)
	DeleteRobot(ctx context.Context, id int64) error
	GetRobot(ctx context.Context, id int64) (model.Robot, error)
	GetRobotBySerial(ctx context.Context, serial string) (model.Robot, error)
	ListRobots(ctx context.Context) ([]model.Robot, error)

	CreateRoute(ctx context.Context, route model.Route) (model.Route, error)
	UpdateRoute(ctx context.Context, route model.Route) (model.Route, error)
	DeleteRoute(ctx context.Context, id int64) error
	GetRoute(ctx context.Context, id int64) (model.Route, error)
	ListRoutes(ctx context.Context) ([]model.Route, error)

	// OpenSession atomically asserts no active session exists for robotID;
	// on violation it returns an error wrapping ErrConflict.
	OpenSession(ctx context.Context, routeID, robotID int64) (model.PatrolSession, error)
	GetActiveSession(ctx context.Context, robotID int64) (*model.PatrolSession, error)
	GetSession(ctx context.Context, sessionID string) (model.PatrolSession, error)
	ListSessions(ctx context.Context) ([]model.PatrolSession, error)
	// AdvanceSession is idempotent: re-applying with the same (step, loop) is
	// a no-op.
	AdvanceSession(ctx context.Context, sessionID string, step, loop int) error
	SetSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus, reason model.ReasonForEnd) error
	RecordInspection(ctx context.Context, inspection model.WaypointInspection) error
	RecordViolation(ctx context.Context, violation model.Violation) (model.Violation, error)
	ListViolations(ctx context.Context, robotID *int64) ([]model.Violation, error)
	ListInspections(ctx context.Context, sessionID string) ([]model.WaypointInspection, error)

	GetSettings(ctx context.Context) (model.SettingsMap, error)
	SetSettings(ctx context.Context, settings model.SettingsMap) error
}
