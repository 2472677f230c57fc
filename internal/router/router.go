// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package router decodes inbound link messages into typed events, updates
// the durable store and runtime projection, fans them out on the EventBus,
// and forwards patrol-relevant events to the owning PatrolExecutor (C6).
package router

import (
	"context"
	"sync"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
	"github.com/fleetguard/patrolcore/internal/log"
	"github.com/fleetguard/patrolcore/internal/textnorm"
)

// ExecutorSink is the narrow interface the Router uses to deliver
// patrol-relevant events to whichever PatrolExecutor currently owns a robot.
// Implemented by the Supervisor; this breaks the cyclic reference between
// Router and Supervisor (§9 design note).
type ExecutorSink interface {
	Deliver(robotID int64, event ports.InboundEvent) bool
}

// Source is anything the Router can read an inbound-event stream from: a
// RobotLink or the CloudLink.
type Source interface {
	Events() <-chan ports.InboundEvent
}

// Router is the single ingress point for inbound link traffic (C6).
type Router struct {
	store ports.Store
	bus   ports.Bus
	proj  ProjectionStore
	sink  ExecutorSink

	highViolationThreshold int

	mu      sync.Mutex
	workers map[int64]chan ports.InboundEvent
}

// New constructs a Router. highViolationThreshold is the configured §6
// highViolationThreshold setting, used to derive severity for cloud-only
// violations that never pass through a PatrolExecutor.
func New(store ports.Store, bus ports.Bus, proj ProjectionStore, sink ExecutorSink, highViolationThreshold int) *Router {
	return &Router{
		store:                  store,
		bus:                    bus,
		proj:                   proj,
		sink:                   sink,
		highViolationThreshold: highViolationThreshold,
		workers:                make(map[int64]chan ports.InboundEvent),
	}
}

// AttachRobotLink starts reading from a RobotLink's event stream, isolating
// that robot's handling on its own worker so one slow robot cannot stall
// another (§4.6).
func (r *Router) AttachRobotLink(ctx context.Context, robotID int64, src Source) {
	worker := r.workerFor(ctx, robotID)
	go func() {
		for {
			select {
			case evt, ok := <-src.Events():
				if !ok {
					return
				}
				select {
				case worker <- evt:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// AttachCloudLink starts reading from the CloudLink's event stream. Cloud
// events have no single owning robot worker; they are handled on their own
// dedicated goroutine.
func (r *Router) AttachCloudLink(ctx context.Context, src Source) {
	go func() {
		for {
			select {
			case evt, ok := <-src.Events():
				if !ok {
					return
				}
				r.handle(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *Router) workerFor(ctx context.Context, robotID int64) chan ports.InboundEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.workers[robotID]; ok {
		return ch
	}
	ch := make(chan ports.InboundEvent, 256)
	r.workers[robotID] = ch
	go func() {
		for {
			select {
			case evt := <-ch:
				r.handle(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// handle implements the five-step contract of §4.6: parse (already done by
// the link), update runtime projection, write to Store when durable-worthy,
// forward on EventBus, deliver to the owning executor.
func (r *Router) handle(ctx context.Context, evt ports.InboundEvent) {
	switch evt.Kind {
	case ports.EventConnected:
		r.proj.SetConnected(evt.RobotID, true)
		_ = r.bus.Publish(ctx, ports.TopicRobotConnected, evt)
	case ports.EventDisconnected:
		r.proj.SetConnected(evt.RobotID, false)
		_ = r.bus.Publish(ctx, ports.TopicRobotDisconnected, evt)
	case ports.EventBattery:
		pct, _ := evt.Payload["batteryPercent"].(float64)
		charging, _ := evt.Payload["charging"].(bool)
		r.proj.SetBattery(evt.RobotID, int(pct), charging)
		_ = r.bus.Publish(ctx, ports.TopicRobotBattery, evt)
	case ports.EventWaypointArrived, ports.EventWaypointFailed:
		if name, ok := evt.Payload["waypoint"].(string); ok {
			r.proj.SetCurrentLocation(evt.RobotID, name)
		}
		_ = r.bus.Publish(ctx, ports.TopicRobotWaypoint, evt)
	case ports.EventKnownWaypoints:
		if list, ok := evt.Payload["waypoints"].([]any); ok {
			names := make([]string, 0, len(list))
			for _, v := range list {
				if s, ok := v.(string); ok {
					names = append(names, s)
				}
			}
			r.proj.SetKnownWaypoints(evt.RobotID, names)
		}
	case ports.EventHealth, ports.EventLocation:
		_ = r.bus.Publish(ctx, ports.TopicRobotStatus, evt)
	case ports.EventDetectionSummary:
		r.handleDetectionSummary(ctx, evt)
	case ports.EventDetectionSample:
		_ = r.bus.Publish(ctx, ports.TopicDetectionCounts, evt)
	default:
		_ = r.bus.Publish(ctx, ports.TopicMQTTMessage, evt)
	}

	if r.sink != nil && evt.RobotID != 0 {
		r.sink.Deliver(evt.RobotID, evt)
	}
}

func (r *Router) handleDetectionSummary(ctx context.Context, evt ports.InboundEvent) {
	_ = r.bus.Publish(ctx, ports.TopicDetectionSummary, evt)

	totalViolations, _ := evt.Payload["total_violations"].(float64)
	if totalViolations <= 0 {
		return
	}
	totalPeople, _ := evt.Payload["total_people"].(float64)
	location, _ := evt.Payload["location"].(string)

	v := model.Violation{
		Location:    textnorm.NFC(location),
		Kind:        "cloud_detection",
		Count:       int(totalViolations),
		PeopleCount: int(totalPeople),
		Severity:    model.DeriveSeverity(int(totalViolations), r.highViolationThreshold),
	}
	recorded, err := r.store.RecordViolation(ctx, v)
	if err != nil {
		log.L().Error().Err(err).Msg("router: failed to record cloud violation")
		return
	}
	_ = r.bus.Publish(ctx, ports.TopicViolationNew, recorded)
}
