// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package router

import (
	"sync"
	"time"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
)

// MemoryProjectionStore is an in-process ProjectionStore for tests.
type MemoryProjectionStore struct {
	mu    sync.Mutex
	procs map[int64]model.RobotProjection
}

// NewMemoryProjectionStore constructs an empty MemoryProjectionStore.
func NewMemoryProjectionStore() *MemoryProjectionStore {
	return &MemoryProjectionStore{procs: map[int64]model.RobotProjection{}}
}

func (s *MemoryProjectionStore) get(robotID int64) model.RobotProjection {
	p, ok := s.procs[robotID]
	if !ok {
		p = model.RobotProjection{RobotID: robotID, KnownWaypoints: map[string]struct{}{}}
	}
	return p
}

func (s *MemoryProjectionStore) SetConnected(robotID int64, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.get(robotID)
	p.Connected = connected
	p.LastSeenAt = time.Now()
	s.procs[robotID] = p
}

func (s *MemoryProjectionStore) SetBattery(robotID int64, percent int, charging bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.get(robotID)
	p.BatteryPercent = percent
	p.Charging = charging
	p.LastSeenAt = time.Now()
	s.procs[robotID] = p
}

func (s *MemoryProjectionStore) SetCurrentLocation(robotID int64, location string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.get(robotID)
	p.CurrentLocation = location
	p.LastSeenAt = time.Now()
	s.procs[robotID] = p
}

func (s *MemoryProjectionStore) SetKnownWaypoints(robotID int64, waypoints []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.get(robotID)
	known := make(map[string]struct{}, len(waypoints))
	for _, w := range waypoints {
		known[w] = struct{}{}
	}
	p.KnownWaypoints = known
	s.procs[robotID] = p
}

func (s *MemoryProjectionStore) Get(robotID int64) model.RobotProjection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(robotID)
}

var _ ProjectionStore = (*MemoryProjectionStore)(nil)
