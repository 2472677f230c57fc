// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package supervisor owns the registry of live PatrolExecutors (C8): it is
// the only component allowed to spawn one, and the only component that
// tracks the at-most-one-executor-per-robot invariant from the runtime side.
package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/executor"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
	"github.com/fleetguard/patrolcore/internal/log"
)

// LinkProvider resolves the live RobotLink for a robot the Supervisor is
// about to drive a patrol on. Implemented by whatever owns link lifecycle
// (the daemon's wiring layer); the Supervisor never constructs links itself.
type LinkProvider interface {
	LinkFor(robotID int64) (ports.RobotLink, bool)
}

// ConfigProvider resolves the executor.Config a new patrol should run with.
// A route or robot may carry per-step overrides, but the ambient process
// defaults (timeouts, thresholds, speed tier) come from here.
type ConfigProvider interface {
	ExecutorConfig() executor.Config
}

type entry struct {
	ex     *executor.Executor
	cancel context.CancelFunc
}

// Supervisor is the sole owner of executor lifecycle (§4.8). Router delivers
// inbound events to it through the narrow ExecutorSink interface rather than
// holding a reference back to the Supervisor, breaking the cyclic dependency
// between ingress and session control (§9).
type Supervisor struct {
	baseCtx context.Context
	store   ports.Store
	bus     ports.Bus
	clock   ports.Clock
	battery executor.BatteryReader
	links   LinkProvider
	cfgs    ConfigProvider

	mu        sync.Mutex
	executors map[int64]*entry
}

// New constructs a Supervisor with no active patrols. baseCtx is the
// daemon's long-lived root context (cancelled only at process shutdown):
// every executor's lifetime is derived from it rather than from whatever
// short-lived request context happened to call StartPatrol, since an
// inbound HTTP request's context is cancelled the instant its handler
// returns — long before the patrol it started is done running.
func New(baseCtx context.Context, store ports.Store, bus ports.Bus, clock ports.Clock, battery executor.BatteryReader, links LinkProvider, cfgs ConfigProvider) *Supervisor {
	return &Supervisor{
		baseCtx:   baseCtx,
		store:     store,
		bus:       bus,
		clock:     clock,
		battery:   battery,
		links:     links,
		cfgs:      cfgs,
		executors: make(map[int64]*entry),
	}
}

// StartPatrol opens a new session for robotID against routeID and, only if
// that succeeds, spawns the PatrolExecutor that drives it. The Store's own
// atomic OpenSession check and this in-memory registry together enforce
// at-most-one-active-patrol-per-robot even across process restarts (the
// Store survives them; the registry does not need to).
func (s *Supervisor) StartPatrol(ctx context.Context, robotID, routeID int64) (model.PatrolSession, error) {
	s.mu.Lock()
	if _, busy := s.executors[robotID]; busy {
		s.mu.Unlock()
		return model.PatrolSession{}, fmt.Errorf("%w: robot %d already has a running executor", ports.ErrConflict, robotID)
	}
	s.mu.Unlock()

	route, err := s.store.GetRoute(ctx, routeID)
	if err != nil {
		return model.PatrolSession{}, fmt.Errorf("supervisor: resolve route: %w", err)
	}
	link, ok := s.links.LinkFor(robotID)
	if !ok {
		return model.PatrolSession{}, fmt.Errorf("supervisor: no link attached for robot %d", robotID)
	}

	session, err := s.store.OpenSession(ctx, routeID, robotID)
	if err != nil {
		return model.PatrolSession{}, err
	}

	ex := executor.New(session, route, link, s.store, s.bus, s.clock, s.battery, s.cfgs.ExecutorConfig())
	// Derived from the Supervisor's long-lived base context, not the
	// inbound ctx: the caller's request context is about to be cancelled
	// (net/http cancels it the moment this handler returns), but the patrol
	// itself must keep running until it completes, is stopped, or the
	// daemon shuts down.
	runCtx, cancel := context.WithCancel(s.baseCtx)

	s.mu.Lock()
	s.executors[robotID] = &entry{ex: ex, cancel: cancel}
	s.mu.Unlock()

	go s.run(runCtx, cancel, ex)

	return session, nil
}

// run drives the executor to completion, then aggregates its per-step
// inspections into a patrol.summary event and evicts the registry entry so
// the robot can be patrolled again.
func (s *Supervisor) run(ctx context.Context, cancel context.CancelFunc, ex *executor.Executor) {
	defer cancel()
	result := ex.Run(ctx)

	s.mu.Lock()
	delete(s.executors, result.RobotID)
	s.mu.Unlock()

	s.publishSummary(ctx, result)
}

func (s *Supervisor) publishSummary(ctx context.Context, result executor.Result) {
	inspections, err := s.store.ListInspections(ctx, result.SessionID)
	if err != nil {
		log.L().Error().Err(err).Str("session", result.SessionID).Msg("supervisor: failed to list inspections for summary")
		return
	}

	var violations, clears, timeouts, skipped int
	for _, insp := range inspections {
		switch insp.Verdict {
		case model.VerdictViolation:
			violations++
		case model.VerdictClear:
			clears++
		case model.VerdictTimeout:
			timeouts++
		case model.VerdictSkipped:
			skipped++
		}
	}

	summary := map[string]any{
		"session_id":      result.SessionID,
		"robot_id":        result.RobotID,
		"final_status":    result.FinalStatus,
		"reason":          result.Reason,
		"steps_visited":   len(inspections),
		"violation_count": violations,
		"clear_count":     clears,
		"timeout_count":   timeouts,
		"skipped_count":   skipped,
	}
	if err := s.bus.Publish(ctx, ports.TopicPatrolSummary, summary); err != nil {
		log.L().Error().Err(err).Str("session", result.SessionID).Msg("supervisor: failed to publish patrol summary")
	}
}

// lookup returns the live executor for robotID, if any.
func (s *Supervisor) lookup(robotID int64) (*executor.Executor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executors[robotID]
	if !ok {
		return nil, false
	}
	return e.ex, true
}

// Pause requests the robot's running patrol suspend its current wait.
func (s *Supervisor) Pause(robotID int64) error {
	ex, ok := s.lookup(robotID)
	if !ok {
		return fmt.Errorf("%w: no active patrol for robot %d", ports.ErrNotFound, robotID)
	}
	if !ex.Pause() {
		return fmt.Errorf("supervisor: robot %d executor control channel full", robotID)
	}
	return nil
}

// Resume requests a paused patrol continue.
func (s *Supervisor) Resume(robotID int64) error {
	ex, ok := s.lookup(robotID)
	if !ok {
		return fmt.Errorf("%w: no active patrol for robot %d", ports.ErrNotFound, robotID)
	}
	if !ex.Resume() {
		return fmt.Errorf("supervisor: robot %d executor control channel full", robotID)
	}
	return nil
}

// Stop requests a graceful, operator-initiated end to the robot's patrol.
func (s *Supervisor) Stop(robotID int64) error {
	ex, ok := s.lookup(robotID)
	if !ok {
		return fmt.Errorf("%w: no active patrol for robot %d", ports.ErrNotFound, robotID)
	}
	if !ex.Stop() {
		return fmt.Errorf("supervisor: robot %d executor control channel full", robotID)
	}
	return nil
}

// EmergencyStop requests the robot halt immediately and the patrol end.
func (s *Supervisor) EmergencyStop(robotID int64) error {
	ex, ok := s.lookup(robotID)
	if !ok {
		return fmt.Errorf("%w: no active patrol for robot %d", ports.ErrNotFound, robotID)
	}
	if !ex.EmergencyStop() {
		return fmt.Errorf("supervisor: robot %d executor control channel full", robotID)
	}
	return nil
}

// SetSpeed changes the robot's navigation speed tier for subsequent GoTo
// commands in the running patrol.
func (s *Supervisor) SetSpeed(robotID int64, tier model.SpeedTier) error {
	ex, ok := s.lookup(robotID)
	if !ok {
		return fmt.Errorf("%w: no active patrol for robot %d", ports.ErrNotFound, robotID)
	}
	if !ex.SetSpeed(tier) {
		return fmt.Errorf("supervisor: robot %d executor control channel full", robotID)
	}
	return nil
}

// ResolveStopHomeDecision answers the bounded stop-home prompt for a robot
// currently inside that wait. Calling it when no such wait is pending is a
// harmless no-op from the executor's side.
func (s *Supervisor) ResolveStopHomeDecision(robotID int64, sendHome bool) error {
	ex, ok := s.lookup(robotID)
	if !ok {
		return fmt.Errorf("%w: no active patrol for robot %d", ports.ErrNotFound, robotID)
	}
	if !ex.ResolveStopHomeDecision(sendHome) {
		return fmt.Errorf("supervisor: robot %d executor control channel full", robotID)
	}
	return nil
}

// Deliver implements router.ExecutorSink: it forwards an inbound event to
// the executor currently owning robotID, if any. A miss is expected and
// silent whenever the robot has no active patrol.
func (s *Supervisor) Deliver(robotID int64, event ports.InboundEvent) bool {
	ex, ok := s.lookup(robotID)
	if !ok {
		return false
	}
	return ex.Deliver(event)
}

// ActivePatrol reports whether robotID currently has a running executor.
func (s *Supervisor) ActivePatrol(robotID int64) bool {
	_, ok := s.lookup(robotID)
	return ok
}
