// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ports

import "context"

// RobotLink is the per-robot session to the local broker (C4).
type RobotLink interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	GoTo(ctx context.Context, waypoint string) error
	GoHome(ctx context.Context) error
	Stop(ctx context.Context) error
	Speak(ctx context.Context, text string) error
	ShowWebview(ctx context.Context, url string) error
	CloseWebview(ctx context.Context) error
	PlayVideo(ctx context.Context, url string) error
	SetVolume(ctx context.Context, level int) error
	Tilt(ctx context.Context, degrees int) error
	Turn(ctx context.Context, degrees int) error
	Joystick(ctx context.Context, x, y, theta float64) error
	SetGoToSpeed(ctx context.Context, tier string) error
	RequestWaypoints(ctx context.Context) error
	RequestBattery(ctx context.Context) error
	RequestPosition(ctx context.Context) error
	RequestMapImage(ctx context.Context, format string, chunkSize int) error
	Restart(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// CloudLink is the single session to the shared detection/event bus (C5).
type CloudLink interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	PublishPipelineControl(ctx context.Context, command string) error
}

// InboundEvent is the typed, discriminated event produced by Router's
// topic-to-event parser from a raw link message.
type InboundEvent struct {
	Source    string // "robot" or "cloud"
	RobotID   int64  // 0 for cloud-only events with no robot association
	Serial    string
	Kind      InboundEventKind
	Topic     string
	Payload   map[string]any
}

// InboundEventKind enumerates the discriminated inbound event sum.
type InboundEventKind string

const (
	EventConnected        InboundEventKind = "connected"
	EventDisconnected     InboundEventKind = "disconnected"
	EventWaypointArrived  InboundEventKind = "waypoint_arrived"
	EventWaypointFailed   InboundEventKind = "waypoint_failed"
	EventBattery          InboundEventKind = "battery"
	EventHealth           InboundEventKind = "health"
	EventLocation         InboundEventKind = "location"
	EventKnownWaypoints   InboundEventKind = "known_waypoints"
	EventDetectionSample  InboundEventKind = "detection_sample"
	EventDetectionSummary InboundEventKind = "detection_summary"
	EventUnknown          InboundEventKind = "unknown"
)
