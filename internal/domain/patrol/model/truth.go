// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// LifecycleState is a coarse, UI-facing summary of a robot's connectivity and
// patrol involvement, derived from the runtime projection and the active
// session (if any). It is never itself the source of truth.
type LifecycleState string

const (
	LifecycleOffline   LifecycleState = "offline"
	LifecycleIdle      LifecycleState = "idle"
	LifecyclePatrolling LifecycleState = "patrolling"
	LifecyclePaused    LifecycleState = "paused"
	LifecycleLowBattery LifecycleState = "low_battery"
)

// DeriveLifecycleState applies a priority-ordered derivation: disconnected
// beats low battery beats active session beats idle. now is injected for
// testability; it is not currently load-bearing but keeps the signature
// consistent with the rest of the derivation surface.
func DeriveLifecycleState(proj RobotProjection, session *PatrolSession, lowBatteryThreshold int, now time.Time) LifecycleState {
	if !proj.Connected {
		return LifecycleOffline
	}
	if proj.BatteryPercent > 0 && proj.BatteryPercent <= lowBatteryThreshold {
		return LifecycleLowBattery
	}
	if session != nil {
		switch session.Status {
		case SessionRunning:
			return LifecyclePatrolling
		case SessionPaused:
			return LifecyclePaused
		}
	}
	return LifecycleIdle
}
