// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for patrolcore.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Patrol session attributes
	RobotIDKey   = "patrol.robot_id"
	SessionIDKey = "patrol.session_id"
	RouteIDKey   = "patrol.route_id"

	// Waypoint/detection attributes
	WaypointNameKey = "waypoint.name"
	VerdictKey      = "inspection.verdict"
	ConfidenceKey   = "inspection.confidence"

	// Link attributes
	LinkComponentKey = "link.component"
	LinkSerialKey    = "link.serial"
	LinkAttemptKey   = "link.attempt"

	// Job attributes
	JobTypeKey     = "job.type"
	JobStatusKey   = "job.status"
	JobDurationKey = "job.duration_ms"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// PatrolAttributes creates span attributes identifying one patrol session,
// attached to the session-lifetime span the Executor opens in Run.
func PatrolAttributes(robotID int64, sessionID string, routeID int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(RobotIDKey, robotID),
		attribute.String(SessionIDKey, sessionID),
		attribute.Int64(RouteIDKey, routeID),
	}
}

// InspectionAttributes creates span attributes describing one waypoint
// inspection outcome.
func InspectionAttributes(waypoint, verdict string, confidence float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(WaypointNameKey, waypoint),
		attribute.String(VerdictKey, verdict),
		attribute.Float64(ConfidenceKey, confidence),
	}
}

// LinkAttributes creates span attributes describing one link reconnect
// attempt (§4.4/§4.5).
func LinkAttributes(component, serial string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(LinkComponentKey, component),
		attribute.String(LinkSerialKey, serial),
		attribute.Int(LinkAttemptKey, attempt),
	}
}

// JobAttributes creates job-related span attributes.
func JobAttributes(jobType, status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobTypeKey, jobType),
		attribute.String(JobStatusKey, status),
		attribute.Int64(JobDurationKey, durationMS),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
