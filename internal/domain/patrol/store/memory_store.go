// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
	"github.com/google/uuid"
)

// MemoryStore is an in-process Store implementation for unit tests that do
// not need SQLite's durability, mirroring the SqliteStore contract exactly.
type MemoryStore struct {
	mu          sync.Mutex
	nextRobotID int64
	nextRouteID int64
	robots      map[int64]model.Robot
	routes      map[int64]model.Route
	sessions    map[string]model.PatrolSession
	inspections map[string][]model.WaypointInspection
	violations  []model.Violation
	settings    model.SettingsMap
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		robots:      map[int64]model.Robot{},
		routes:      map[int64]model.Route{},
		sessions:    map[string]model.PatrolSession{},
		inspections: map[string][]model.WaypointInspection{},
		settings:    model.SettingsMap{},
	}
}

func (m *MemoryStore) UpsertRobot(_ context.Context, r model.Robot) (model.Robot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Serial == "" {
		return model.Robot{}, fmt.Errorf("%w: serial required", ports.ErrValidation)
	}
	for _, other := range m.robots {
		if other.Serial == r.Serial && other.ID != r.ID {
			return model.Robot{}, fmt.Errorf("%w: serial %s already used", ports.ErrConflict, r.Serial)
		}
	}
	if r.ID == 0 {
		m.nextRobotID++
		r.ID = m.nextRobotID
		r.CreatedAt = time.Now()
	}
	m.robots[r.ID] = r
	return r, nil
}

func (m *MemoryStore) DeleteRobot(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RobotID == id && s.Status.IsActive() {
			return fmt.Errorf("%w: robot has an active patrol session", ports.ErrInUse)
		}
	}
	if _, ok := m.robots[id]; !ok {
		return fmt.Errorf("%w: robot %d", ports.ErrNotFound, id)
	}
	delete(m.robots, id)
	return nil
}

func (m *MemoryStore) GetRobot(_ context.Context, id int64) (model.Robot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.robots[id]
	if !ok {
		return model.Robot{}, fmt.Errorf("%w: robot %d", ports.ErrNotFound, id)
	}
	return r, nil
}

func (m *MemoryStore) GetRobotBySerial(_ context.Context, serial string) (model.Robot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.robots {
		if r.Serial == serial {
			return r, nil
		}
	}
	return model.Robot{}, fmt.Errorf("%w: robot %s", ports.ErrNotFound, serial)
}

func (m *MemoryStore) ListRobots(_ context.Context) ([]model.Robot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Robot, 0, len(m.robots))
	for _, r := range m.robots {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreateRoute(_ context.Context, route model.Route) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := validateRouteSteps(route.Steps); err != nil {
		return model.Route{}, err
	}
	for _, other := range m.routes {
		if other.Name == route.Name {
			return model.Route{}, fmt.Errorf("%w: route name %s already used", ports.ErrConflict, route.Name)
		}
	}
	m.nextRouteID++
	route.ID = m.nextRouteID
	route.CreatedAt = time.Now()
	m.routes[route.ID] = route
	return route, nil
}

func (m *MemoryStore) UpdateRoute(_ context.Context, route model.Route) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := validateRouteSteps(route.Steps); err != nil {
		return model.Route{}, err
	}
	if _, ok := m.routes[route.ID]; !ok {
		return model.Route{}, fmt.Errorf("%w: route %d", ports.ErrNotFound, route.ID)
	}
	m.routes[route.ID] = route
	return route, nil
}

func (m *MemoryStore) DeleteRoute(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RouteID == id && s.Status.IsActive() {
			return fmt.Errorf("%w: route has an active patrol session", ports.ErrInUse)
		}
	}
	if _, ok := m.routes[id]; !ok {
		return fmt.Errorf("%w: route %d", ports.ErrNotFound, id)
	}
	delete(m.routes, id)
	return nil
}

func (m *MemoryStore) GetRoute(_ context.Context, id int64) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return model.Route{}, fmt.Errorf("%w: route %d", ports.ErrNotFound, id)
	}
	return r, nil
}

func (m *MemoryStore) ListRoutes(_ context.Context) ([]model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Route, 0, len(m.routes))
	for _, r := range m.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) OpenSession(_ context.Context, routeID, robotID int64) (model.PatrolSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	route, ok := m.routes[routeID]
	if !ok {
		return model.PatrolSession{}, fmt.Errorf("%w: route %d", ports.ErrNotFound, routeID)
	}
	for _, s := range m.sessions {
		if s.RobotID == robotID && s.Status.IsActive() {
			return model.PatrolSession{}, fmt.Errorf("%w: robot %d already has an active patrol", ports.ErrConflict, robotID)
		}
	}
	sess := model.PatrolSession{
		ID:                uuid.NewString(),
		RouteID:           routeID,
		RobotID:           robotID,
		StartedAt:         time.Now(),
		Status:            model.SessionRunning,
		TotalLoopsPlanned: route.LoopCount,
	}
	m.sessions[sess.ID] = sess
	return sess, nil
}

func (m *MemoryStore) GetActiveSession(_ context.Context, robotID int64) (*model.PatrolSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RobotID == robotID && s.Status.IsActive() {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (model.PatrolSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return model.PatrolSession{}, fmt.Errorf("%w: session %s", ports.ErrNotFound, sessionID)
	}
	return s, nil
}

func (m *MemoryStore) ListSessions(_ context.Context) ([]model.PatrolSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PatrolSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *MemoryStore) AdvanceSession(_ context.Context, sessionID string, step, loop int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: session %s", ports.ErrNotFound, sessionID)
	}
	if s.CurrentStepIndex == step && s.CurrentLoop == loop {
		return nil
	}
	s.CurrentStepIndex = step
	s.CurrentLoop = loop
	m.sessions[sessionID] = s
	return nil
}

func (m *MemoryStore) SetSessionStatus(_ context.Context, sessionID string, status model.SessionStatus, reason model.ReasonForEnd) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: session %s", ports.ErrNotFound, sessionID)
	}
	s.Status = status
	s.ReasonForEnd = reason
	if status.IsTerminal() {
		now := time.Now()
		s.EndedAt = &now
	}
	m.sessions[sessionID] = s
	return nil
}

func (m *MemoryStore) RecordInspection(_ context.Context, insp model.WaypointInspection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if insp.ID == "" {
		insp.ID = uuid.NewString()
	}
	list := m.inspections[insp.SessionID]
	for i, existing := range list {
		if existing.StepSequence == insp.StepSequence {
			list[i] = insp
			m.inspections[insp.SessionID] = list
			return nil
		}
	}
	m.inspections[insp.SessionID] = append(list, insp)
	return nil
}

func (m *MemoryStore) ListInspections(_ context.Context, sessionID string) ([]model.WaypointInspection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append([]model.WaypointInspection(nil), m.inspections[sessionID]...)
	sort.Slice(list, func(i, j int) bool { return list[i].StepSequence < list[j].StepSequence })
	return list, nil
}

func (m *MemoryStore) RecordViolation(_ context.Context, v model.Violation) (model.Violation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.ObservedAt.IsZero() {
		v.ObservedAt = time.Now()
	}
	m.violations = append(m.violations, v)
	return v, nil
}

func (m *MemoryStore) ListViolations(_ context.Context, robotID *int64) ([]model.Violation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Violation, 0, len(m.violations))
	for _, v := range m.violations {
		if robotID != nil && (v.RobotID == nil || *v.RobotID != *robotID) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.After(out[j].ObservedAt) })
	return out, nil
}

func (m *MemoryStore) GetSettings(_ context.Context) (model.SettingsMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := model.SettingsMap{}
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

// SetSettings replaces the entire settings map with settings, mirroring
// SqliteStore's whole-map-replace contract: a key missing from settings is
// removed, not left in place.
func (m *MemoryStore) SetSettings(_ context.Context, settings model.SettingsMap) error {
	for k, v := range settings {
		if err := model.ValidateSetting(k, v); err != nil {
			return fmt.Errorf("%w: %v", ports.ErrValidation, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = make(model.SettingsMap, len(settings))
	for k, v := range settings {
		m.settings[k] = v
	}
	return nil
}

var _ ports.Store = (*MemoryStore)(nil)
var _ ports.Store = (*SqliteStore)(nil)
