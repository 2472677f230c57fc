// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// SessionStatus is the client-visible lifecycle of a PatrolSession.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionStopped   SessionStatus = "stopped"
	SessionError     SessionStatus = "error"
)

// IsActive reports whether the status counts toward the one-active-patrol-
// per-robot invariant.
func (s SessionStatus) IsActive() bool {
	return s == SessionRunning || s == SessionPaused
}

// IsTerminal reports whether the status is a final outcome.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionStopped, SessionError:
		return true
	}
	return false
}

// Verdict is the debounced outcome of one waypoint inspection.
type Verdict string

const (
	VerdictClear     Verdict = "clear"
	VerdictViolation Verdict = "violation"
	VerdictTimeout   Verdict = "timeout"
	VerdictSkipped   Verdict = "skipped"
)

// Severity classifies a persisted Violation.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// DeriveSeverity implements the deterministic derivation of §8 property 6:
// high iff count >= highThreshold, else medium iff count >= 1, else low.
func DeriveSeverity(count, highThreshold int) Severity {
	switch {
	case count >= highThreshold:
		return SeverityHigh
	case count >= 1:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ArrivalDisplay is the on-arrival action kind for a waypoint step.
type ArrivalDisplay string

const (
	DisplayNone    ArrivalDisplay = "none"
	DisplayWebview ArrivalDisplay = "webview"
	DisplayVideo   ArrivalDisplay = "video"
)

// ViolationAction is the on-violation action kind for a waypoint step.
type ViolationAction string

const (
	ActionNone    ViolationAction = "none"
	ActionSpeech  ViolationAction = "speech"
	ActionWebview ViolationAction = "webview"
	ActionVideo   ViolationAction = "video"
)

// SpeedTier is the configured default movement speed for GoTo commands.
type SpeedTier string

const (
	SpeedLow    SpeedTier = "low"
	SpeedMedium SpeedTier = "medium"
	SpeedHigh   SpeedTier = "high"
)

// ReasonForEnd is a compact, typed termination reason for a PatrolSession,
// mirroring the stable client-visible reason codes of the parent executor.
type ReasonForEnd string

const (
	ReasonNone            ReasonForEnd = ""
	ReasonCompleted       ReasonForEnd = "completed"
	ReasonOperatorStopped ReasonForEnd = "operator_stopped"
	ReasonEmergencyStop   ReasonForEnd = "emergency_stop"
	ReasonLowBattery      ReasonForEnd = "low_battery"
	ReasonLinkLost        ReasonForEnd = "link_lost"
	ReasonConfigError     ReasonForEnd = "config_error"
	ReasonStoreFailure    ReasonForEnd = "store_failure"
	ReasonUnknown         ReasonForEnd = "unknown"
)

// Robot is the identity and static configuration for one physical device.
type Robot struct {
	ID              int64
	DisplayName     string
	Serial          string
	BrokerEndpoint  string
	Port            int
	Credentials     string
	UseTLS          bool
	HomeWaypoint    string
	CreatedAt       time.Time
}

// RobotProjection is the runtime-only, non-persisted-every-tick view of a
// Robot, owned exclusively by the Router.
type RobotProjection struct {
	RobotID         int64
	Connected       bool
	BatteryPercent  int
	Charging        bool
	CurrentLocation string
	KnownWaypoints  map[string]struct{}
	LastSeenAt      time.Time
}

// Route is an ordered recipe of waypoint visits.
type Route struct {
	ID             int64
	Name           string
	OwnerRobotID   int64
	LoopCount      int // 0 = unbounded
	ReturnWaypoint string
	CreatedAt      time.Time
	Steps          []WaypointStep
}

// WaypointStep is one stop on a Route.
type WaypointStep struct {
	SequenceOrder            int
	WaypointName             string
	DwellSeconds             int
	DetectionEnabled         bool
	DetectionTimeoutSeconds  int
	NoViolationHoldSeconds   int
	OnArrivalDisplay         ArrivalDisplay
	OnArrivalDisplayContent  string
	OnArrivalSpeech          string
	OnViolationAction        ViolationAction
	OnViolationActionContent string
	WebviewCloseDelaySeconds int
}

// PatrolSession is one run of a Route on a Robot.
type PatrolSession struct {
	ID                string
	RouteID           int64
	RobotID           int64
	StartedAt         time.Time
	EndedAt           *time.Time
	Status            SessionStatus
	CurrentLoop       int
	CurrentStepIndex  int
	TotalLoopsPlanned int
	ReasonForEnd      ReasonForEnd
}

// WaypointInspection is the per-stop outcome inside a PatrolSession.
type WaypointInspection struct {
	ID                 string
	SessionID          string
	StepSequence       int
	WaypointName       string
	StartedAt          time.Time
	EndedAt            time.Time
	DetectionsObserved int
	PeopleObserved     int
	Verdict            Verdict
	SmoothedConfidence float64
}

// Violation is a persisted record materialized from a violation verdict or a
// standalone cloud detection event.
type Violation struct {
	ID             string
	RobotID        *int64
	SessionID      *string
	Location       string
	Kind           string
	Severity       Severity
	Count          int
	PeopleCount    int
	Confidence     float64
	ObservedAt     time.Time
	Acknowledged   bool
	AcknowledgedBy string
	AcknowledgedAt *time.Time
	Details        map[string]string
}
