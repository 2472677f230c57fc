// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package executor implements the PatrolExecutor (C7): one explicit state
// machine per active PatrolSession, driving a robot through a Route step by
// step and recording the outcome of each waypoint inspection.
package executor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/fleetguard/patrolcore/internal/debounce"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/lifecycle"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
	"github.com/fleetguard/patrolcore/internal/log"
	"github.com/fleetguard/patrolcore/internal/metrics"
	"github.com/fleetguard/patrolcore/internal/telemetry"
)

// BatteryReader is the narrow view of the Router's runtime projection an
// executor needs for the low-battery guard and waypoint pre-validation.
type BatteryReader interface {
	Get(robotID int64) model.RobotProjection
}

// Result is what Run returns once the session has reached a terminal phase.
type Result struct {
	SessionID   string
	RobotID     int64
	FinalStatus model.SessionStatus
	Reason      model.ReasonForEnd
}

// Executor drives one PatrolSession. All state transitions happen inside
// Run's goroutine; Control/Deliver are the only thread-safe entry points
// from outside (§4.7 ordering guarantee).
type Executor struct {
	session model.PatrolSession
	route   model.Route

	link    ports.RobotLink
	store   ports.Store
	bus     ports.Bus
	clock   ports.Clock
	battery BatteryReader
	cfg     Config

	control chan Control
	inbound chan ports.InboundEvent

	phase     lifecycle.Phase
	debouncer *debounce.Debouncer
}

// New constructs an Executor for an already-opened PatrolSession. The caller
// (Supervisor) is responsible for enforcing at most one executor per robot.
func New(session model.PatrolSession, route model.Route, link ports.RobotLink, store ports.Store, bus ports.Bus, clock ports.Clock, battery BatteryReader, cfg Config) *Executor {
	return &Executor{
		session: session,
		route:   route,
		link:    link,
		store:   store,
		bus:     bus,
		clock:   clock,
		battery: battery,
		cfg:     cfg,
		control: make(chan Control, 4),
		inbound: make(chan ports.InboundEvent, 32),
		phase:   lifecycle.PhaseStarting,
	}
}

// SessionID identifies which session this executor drives.
func (e *Executor) SessionID() string { return e.session.ID }

// RobotID identifies which robot this executor drives.
func (e *Executor) RobotID() int64 { return e.session.RobotID }

// Run drives the session to completion. It blocks until a terminal phase is
// reached or ctx is canceled.
func (e *Executor) Run(ctx context.Context) Result {
	metrics.ActivePatrols.Inc()
	defer metrics.ActivePatrols.Dec()

	ctx = log.ContextWithRobotID(ctx, e.session.RobotID)
	ctx = log.ContextWithSessionID(ctx, e.session.ID)
	lg := log.WithContext(ctx, log.WithComponent("executor"))
	ctx = lg.WithContext(ctx)

	tracer := telemetry.Tracer("patrol.executor")
	ctx, span := tracer.Start(ctx, "patrol.session",
		trace.WithAttributes(telemetry.PatrolAttributes(e.session.RobotID, e.session.ID, e.session.RouteID)...))
	defer span.End()

	if oc := e.enterStarting(ctx); oc != outcomeElapsed {
		return e.terminalize(ctx, e.outcomeToTransition(oc))
	}

	for {
		e.checkLowBattery(ctx)

		var oc interruptOutcome
		switch e.phase {
		case lifecycle.PhaseNavigatingTo:
			oc = e.runNavigatingTo(ctx)
		case lifecycle.PhaseArrived:
			oc = e.runArrived(ctx)
		case lifecycle.PhaseInspecting:
			oc = e.runInspecting(ctx)
		case lifecycle.PhaseClear, lifecycle.PhaseViolation, lifecycle.PhaseInspectTimeout:
			oc = e.runRecordAndAdvance(ctx)
		case lifecycle.PhaseDwelling:
			oc = e.runDwelling(ctx)
		case lifecycle.PhaseLoopBoundary:
			oc = e.runLoopBoundary(ctx)
		case lifecycle.PhaseReturning:
			oc = e.runReturning(ctx)
		case lifecycle.PhaseNavFailed:
			oc = e.runNavFailed(ctx)
		case lifecycle.PhaseLowBattery:
			oc = e.runLowBattery(ctx)
		default:
			log.FromContext(ctx).Error().Str("phase", string(e.phase)).Msg("executor: unhandled phase")
			return e.terminalize(ctx, lifecycle.Transition{To: lifecycle.PhaseFailed, Reason: model.ReasonUnknown})
		}

		switch oc {
		case outcomeElapsed, outcomeSampleStop:
			continue
		case outcomeCompleted:
			return e.terminalize(ctx, lifecycle.Transition{To: lifecycle.PhaseComplete, Reason: model.ReasonCompleted})
		case outcomeLowBattery:
			return e.terminalize(ctx, lifecycle.Transition{To: lifecycle.PhaseFailed, Reason: model.ReasonLowBattery})
		default:
			return e.terminalize(ctx, e.outcomeToTransition(oc))
		}
	}
}

func (e *Executor) enterStarting(ctx context.Context) interruptOutcome {
	proj := e.battery.Get(e.session.RobotID)
	for _, step := range e.route.Steps {
		if _, known := proj.KnownWaypoints[step.WaypointName]; !known {
			log.FromContext(ctx).Warn().Str("waypoint", step.WaypointName).Msg("executor: unknown waypoint, failing session before any command")
			return outcomeValidationFailed
		}
	}
	if e.cfg.DefaultMovementSpeedTier != "" {
		_ = e.link.SetGoToSpeed(ctx, string(e.cfg.DefaultMovementSpeedTier))
	}
	_ = e.bus.Publish(ctx, ports.TopicPatrolStatus, e.statusEvent("starting"))
	e.phase = lifecycle.PhaseNavigatingTo
	return outcomeElapsed
}

func (e *Executor) currentStep() model.WaypointStep {
	return e.route.Steps[e.session.CurrentStepIndex]
}

func (e *Executor) runNavigatingTo(ctx context.Context) interruptOutcome {
	step := e.currentStep()
	if err := e.link.GoTo(ctx, step.WaypointName); err != nil {
		log.FromContext(ctx).Warn().Err(err).Str("waypoint", step.WaypointName).Msg("executor: GoTo publish failed")
		e.phase = lifecycle.PhaseNavFailed
		return outcomeElapsed
	}
	failed := false
	oc := e.waitForInbound(ctx, e.cfg.ArrivalTimeout, func(evt ports.InboundEvent) bool {
		if evt.Kind != ports.EventWaypointArrived && evt.Kind != ports.EventWaypointFailed {
			return false
		}
		name, _ := evt.Payload["waypoint"].(string)
		if name != step.WaypointName {
			return false
		}
		failed = evt.Kind == ports.EventWaypointFailed
		return true
	})
	switch oc {
	case outcomeSampleStop:
		if failed {
			e.phase = lifecycle.PhaseNavFailed
		} else {
			e.phase = lifecycle.PhaseArrived
		}
		return outcomeElapsed
	case outcomeElapsed:
		e.phase = lifecycle.PhaseNavFailed
		return outcomeElapsed
	default:
		return oc
	}
}

func (e *Executor) runNavFailed(ctx context.Context) interruptOutcome {
	_ = e.store.RecordInspection(ctx, model.WaypointInspection{
		SessionID:    e.session.ID,
		StepSequence: e.currentStep().SequenceOrder,
		WaypointName: e.currentStep().WaypointName,
		StartedAt:    e.clock.Now(),
		EndedAt:      e.clock.Now(),
		Verdict:      model.VerdictTimeout,
	})
	e.advanceStep()
	return outcomeElapsed
}

func (e *Executor) runArrived(ctx context.Context) interruptOutcome {
	step := e.currentStep()

	if oc := e.simpleSleep(ctx, e.cfg.ArrivalActionDelay); oc != outcomeElapsed {
		return oc
	}

	if step.OnArrivalDisplay == model.DisplayWebview && step.OnArrivalDisplayContent != "" {
		_ = e.link.ShowWebview(ctx, step.OnArrivalDisplayContent)
	} else if step.OnArrivalDisplay == model.DisplayVideo && step.OnArrivalDisplayContent != "" {
		_ = e.link.PlayVideo(ctx, step.OnArrivalDisplayContent)
	}
	if step.OnArrivalSpeech != "" {
		if oc := e.simpleSleep(ctx, e.cfg.TTSWait); oc != outcomeElapsed {
			return oc
		}
		_ = e.link.Speak(ctx, step.OnArrivalSpeech)
	}
	if oc := e.simpleSleep(ctx, e.cfg.DisplayWait); oc != outcomeElapsed {
		return oc
	}
	if step.OnArrivalDisplay == model.DisplayWebview {
		delay := time.Duration(step.WebviewCloseDelaySeconds) * time.Second
		if delay <= 0 {
			delay = e.cfg.WebviewCloseDelay
		}
		if oc := e.simpleSleep(ctx, delay); oc != outcomeElapsed {
			return oc
		}
		_ = e.link.CloseWebview(ctx)
	}

	_ = e.bus.Publish(ctx, ports.TopicPatrolWaypointReached, e.statusEvent(step.WaypointName))

	if step.DetectionEnabled {
		e.phase = lifecycle.PhaseInspecting
		e.debouncer = debounce.New(debounce.Config{
			WindowSeconds:          e.cfg.ViolationWindowSeconds,
			SmoothingFactor:        e.cfg.ViolationSmoothing,
			OutlierZ:               e.cfg.OutlierZ,
			NoViolationHoldSeconds: int(e.cfg.stepNoViolationHold(step).Seconds()),
		})
	} else {
		_ = e.store.RecordInspection(ctx, model.WaypointInspection{
			SessionID:    e.session.ID,
			StepSequence: step.SequenceOrder,
			WaypointName: step.WaypointName,
			StartedAt:    e.clock.Now(),
			EndedAt:      e.clock.Now(),
			Verdict:      model.VerdictSkipped,
		})
		e.phase = lifecycle.PhaseDwelling
	}
	return outcomeElapsed
}

func (e *Executor) runInspecting(ctx context.Context) interruptOutcome {
	step := e.currentStep()
	timeout := e.cfg.stepDetectionTimeout(step)

	onSample := func(evt ports.InboundEvent) bool {
		if evt.Kind != ports.EventDetectionSample && evt.Kind != ports.EventDetectionSummary {
			return false
		}
		people, _ := evt.Payload["total_people"].(float64)
		violations, _ := evt.Payload["total_violations"].(float64)
		e.debouncer.Observe(debounce.Sample{At: e.clock.Now(), PeopleCount: int(people), ViolationCount: int(violations)})
		return e.debouncer.Verdict(e.clock.Now()) != debounce.VerdictPending
	}

	oc := e.runResumableTimer(ctx, timeout, onSample)
	switch oc {
	case outcomeElapsed, outcomeSampleStop:
		switch e.debouncer.Verdict(e.clock.Now()) {
		case debounce.VerdictClear:
			e.phase = lifecycle.PhaseClear
		case debounce.VerdictViolation:
			e.phase = lifecycle.PhaseViolation
		default:
			e.phase = lifecycle.PhaseInspectTimeout
		}
		return outcomeElapsed
	default:
		return oc
	}
}

func (e *Executor) runRecordAndAdvance(ctx context.Context) interruptOutcome {
	step := e.currentStep()
	now := e.clock.Now()
	detections, people := e.debouncer.LatestDetectionsAndPeople()
	confidence := e.debouncer.Confidence(now)

	var verdict model.Verdict
	switch e.phase {
	case lifecycle.PhaseClear:
		verdict = model.VerdictClear
	case lifecycle.PhaseViolation:
		verdict = model.VerdictViolation
	default:
		verdict = model.VerdictTimeout
	}
	metrics.DebounceVerdicts.WithLabelValues(string(verdict)).Inc()

	_ = e.store.RecordInspection(ctx, model.WaypointInspection{
		SessionID:          e.session.ID,
		StepSequence:       step.SequenceOrder,
		WaypointName:       step.WaypointName,
		StartedAt:          now,
		EndedAt:            now,
		DetectionsObserved: detections,
		PeopleObserved:     people,
		Verdict:            verdict,
		SmoothedConfidence: confidence,
	})

	if verdict == model.VerdictViolation {
		robotID := e.session.RobotID
		sessionID := e.session.ID
		v := model.Violation{
			RobotID:     &robotID,
			SessionID:   &sessionID,
			Location:    step.WaypointName,
			Kind:        "patrol_inspection",
			Count:       detections,
			PeopleCount: people,
			Confidence:  confidence,
			ObservedAt:  now,
			Severity:    model.DeriveSeverity(detections, e.cfg.HighViolationThreshold),
		}
		recorded, err := e.store.RecordViolation(ctx, v)
		if err != nil {
			log.FromContext(ctx).Error().Err(err).Msg("executor: failed to record violation")
		} else {
			_ = e.bus.Publish(ctx, ports.TopicViolationNew, recorded)
			metrics.ViolationsRecorded.WithLabelValues(string(recorded.Severity)).Inc()
		}
		switch step.OnViolationAction {
		case model.ActionSpeech:
			_ = e.link.Speak(ctx, step.OnViolationActionContent)
		case model.ActionWebview:
			_ = e.link.ShowWebview(ctx, step.OnViolationActionContent)
		case model.ActionVideo:
			_ = e.link.PlayVideo(ctx, step.OnViolationActionContent)
		}
	}

	e.phase = lifecycle.PhaseDwelling
	return outcomeElapsed
}

func (e *Executor) runDwelling(ctx context.Context) interruptOutcome {
	step := e.currentStep()
	oc := e.runResumableTimer(ctx, time.Duration(step.DwellSeconds)*time.Second, nil)
	if oc == outcomeElapsed {
		e.advanceStep()
	}
	return oc
}

// advanceStep resolves PhaseStepAdvance's data-dependent destination: next
// step in the current loop, loop boundary, or — handled by the loop-boundary
// phase itself — returning.
func (e *Executor) advanceStep() {
	e.session.CurrentStepIndex++
	if e.session.CurrentStepIndex >= len(e.route.Steps) {
		e.session.CurrentStepIndex = 0
		e.phase = lifecycle.PhaseLoopBoundary
	} else {
		e.phase = lifecycle.PhaseNavigatingTo
	}
}

func (e *Executor) runLoopBoundary(ctx context.Context) interruptOutcome {
	e.session.CurrentLoop++
	_ = e.store.AdvanceSession(ctx, e.session.ID, e.session.CurrentStepIndex, e.session.CurrentLoop)

	unbounded := e.route.LoopCount == 0
	if unbounded || e.session.CurrentLoop < e.session.TotalLoopsPlanned {
		e.phase = lifecycle.PhaseNavigatingTo
	} else {
		e.phase = lifecycle.PhaseReturning
	}
	return outcomeElapsed
}

func (e *Executor) runReturning(ctx context.Context) interruptOutcome {
	dest := e.route.ReturnWaypoint
	if dest == "" {
		dest = e.cfg.HomeBaseWaypoint
	}
	if err := e.link.GoTo(ctx, dest); err != nil {
		log.FromContext(ctx).Warn().Err(err).Str("waypoint", dest).Msg("executor: return GoTo publish failed")
	}
	oc := e.waitForInbound(ctx, e.cfg.ReturnTimeout, func(evt ports.InboundEvent) bool {
		if evt.Kind != ports.EventWaypointArrived && evt.Kind != ports.EventWaypointFailed {
			return false
		}
		name, _ := evt.Payload["waypoint"].(string)
		return name == dest
	})
	switch oc {
	case outcomeSampleStop, outcomeElapsed:
		e.phase = lifecycle.PhaseComplete
		return outcomeCompleted
	default:
		return oc
	}
}

// checkLowBattery implements the at-every-state-entry guard: if projected
// battery is at or below threshold, the phase is hijacked to LowBattery
// regardless of what the normal table transition would have been.
func (e *Executor) checkLowBattery(ctx context.Context) {
	proj := e.battery.Get(e.session.RobotID)
	if proj.Charging || proj.BatteryPercent > e.cfg.LowBatteryPercent {
		return
	}
	if e.phase.IsTerminal() || e.phase == lifecycle.PhaseReturning || e.phase == lifecycle.PhaseLowBattery {
		return
	}
	log.FromContext(ctx).Warn().Int("battery_percent", proj.BatteryPercent).Msg("executor: low battery guard tripped")
	e.phase = lifecycle.PhaseLowBattery
}

// runLowBattery issues GoHome and waits for arrival before declaring the
// session Failed(reason=low_battery), per §4.7's LowBattery state.
func (e *Executor) runLowBattery(ctx context.Context) interruptOutcome {
	dest := e.cfg.HomeBaseWaypoint
	if err := e.link.GoHome(ctx); err != nil {
		log.FromContext(ctx).Warn().Err(err).Msg("executor: low battery GoHome publish failed")
	}
	oc := e.waitForInbound(ctx, e.cfg.ReturnTimeout, func(evt ports.InboundEvent) bool {
		if evt.Kind != ports.EventWaypointArrived && evt.Kind != ports.EventWaypointFailed {
			return false
		}
		name, _ := evt.Payload["waypoint"].(string)
		return dest == "" || name == dest
	})
	switch oc {
	case outcomeStopped, outcomeEmergency:
		return oc
	default:
		return outcomeLowBattery
	}
}

func (e *Executor) terminalize(ctx context.Context, t lifecycle.Transition) Result {
	switch t.To {
	case lifecycle.PhaseEmergencyStopped:
		_ = e.link.Stop(ctx)
	case lifecycle.PhaseStoppedByOperator:
		e.resolveStopHome(ctx)
	}
	lifecycle.ApplyOutcome(&e.session, t, e.clock.Now())
	_ = e.store.SetSessionStatus(ctx, e.session.ID, e.session.Status, e.session.ReasonForEnd)
	e.phase = t.To

	topic := ports.TopicPatrolComplete
	if t.To != lifecycle.PhaseComplete {
		topic = ports.TopicPatrolStatus
	}
	_ = e.bus.Publish(ctx, topic, e.statusEvent(string(t.To)))

	if t.To == lifecycle.PhaseComplete {
		_ = e.bus.Publish(ctx, ports.TopicYOLOShutdownPrompt, map[string]any{
			"sessionId":      e.session.ID,
			"robotId":        e.session.RobotID,
			"timeoutSeconds": int(e.cfg.YoloShutdownTimeout.Seconds()),
		})
	}
	return e.result()
}

func (e *Executor) resolveStopHome(ctx context.Context) {
	if e.cfg.PatrolStopAlwaysSendHome {
		_ = e.link.GoHome(ctx)
		return
	}
	select {
	case ctrl := <-e.control:
		if ctrl.Kind == CtrlResolveStopHome && ctrl.SendHome {
			_ = e.link.GoHome(ctx)
		}
	case <-e.clock.After(e.cfg.PatrolStopHomeTimeout):
	case <-ctx.Done():
	}
}

func (e *Executor) result() Result {
	return Result{SessionID: e.session.ID, RobotID: e.session.RobotID, FinalStatus: e.session.Status, Reason: e.session.ReasonForEnd}
}

func (e *Executor) statusEvent(detail string) map[string]any {
	return map[string]any{
		"sessionId": e.session.ID,
		"robotId":   e.session.RobotID,
		"phase":     string(e.phase),
		"detail":    detail,
	}
}

func (e *Executor) outcomeToTransition(oc interruptOutcome) lifecycle.Transition {
	switch oc {
	case outcomeStopped:
		return lifecycle.Transition{To: lifecycle.PhaseStoppedByOperator, Reason: model.ReasonOperatorStopped}
	case outcomeEmergency:
		return lifecycle.Transition{To: lifecycle.PhaseEmergencyStopped, Reason: model.ReasonEmergencyStop}
	case outcomeLinkLost:
		return lifecycle.Transition{To: lifecycle.PhaseFailed, Reason: model.ReasonLinkLost}
	case outcomeValidationFailed:
		return lifecycle.Transition{To: lifecycle.PhaseFailed, Reason: model.ReasonConfigError}
	case outcomeCanceled:
		return lifecycle.Transition{To: lifecycle.PhaseFailed, Reason: model.ReasonUnknown}
	default:
		return lifecycle.Transition{To: lifecycle.PhaseFailed, Reason: model.ReasonUnknown}
	}
}
