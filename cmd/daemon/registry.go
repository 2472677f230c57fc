// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"sync"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
)

// linkRegistry is the process's LinkProvider (supervisor.LinkProvider):
// it tracks the one live RobotLink per configured robot so the Supervisor
// can hand a just-started PatrolExecutor the link it needs without
// constructing links itself (§4.8, §9 cyclic-reference note).
type linkRegistry struct {
	mu    sync.RWMutex
	links map[int64]ports.RobotLink
}

func newLinkRegistry() *linkRegistry {
	return &linkRegistry{links: make(map[int64]ports.RobotLink)}
}

func (r *linkRegistry) set(robotID int64, link ports.RobotLink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[robotID] = link
}

// LinkFor implements supervisor.LinkProvider.
func (r *linkRegistry) LinkFor(robotID int64) (ports.RobotLink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.links[robotID]
	return l, ok
}
