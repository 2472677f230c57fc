// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package executor

import (
	"time"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
)

// Config carries the process-wide §6 settings an executor needs, resolved
// once by the Supervisor from the typed configuration structure before the
// executor is constructed.
type Config struct {
	ArrivalActionDelay       time.Duration
	TTSWait                  time.Duration
	DisplayWait              time.Duration
	WebviewCloseDelay        time.Duration
	DetectionTimeout         time.Duration
	NoViolationHold          time.Duration
	HighViolationThreshold   int
	PatrolStopHomeTimeout    time.Duration
	PatrolStopAlwaysSendHome bool
	YoloShutdownTimeout      time.Duration
	LowBatteryPercent        int
	ViolationWindowSeconds   int
	ViolationSmoothing       float64
	OutlierZ                 float64
	DefaultMovementSpeedTier model.SpeedTier
	HomeBaseWaypoint         string
	ArrivalTimeout           time.Duration
	ReturnTimeout            time.Duration
	LinkLostGrace            time.Duration
}

// stepDetectionTimeout resolves the per-step override over the process
// default (§6: "defaults overridable per step").
func (c Config) stepDetectionTimeout(step model.WaypointStep) time.Duration {
	if step.DetectionTimeoutSeconds > 0 {
		return time.Duration(step.DetectionTimeoutSeconds) * time.Second
	}
	return c.DetectionTimeout
}

func (c Config) stepNoViolationHold(step model.WaypointStep) time.Duration {
	if step.NoViolationHoldSeconds > 0 {
		return time.Duration(step.NoViolationHoldSeconds) * time.Second
	}
	return c.NoViolationHold
}
