// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package executor

import (
	"context"
	"time"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
)

// interruptOutcome is what interrupted a cancellable wait.
type interruptOutcome int

const (
	outcomeElapsed interruptOutcome = iota
	// outcomeSampleStop means the caller-supplied predicate was satisfied
	// before the timer fired; treated as a successful elapse by callers.
	outcomeSampleStop
	outcomePaused
	outcomeStopped
	outcomeEmergency
	outcomeLinkLost
	outcomeValidationFailed
	outcomeCanceled
	// outcomeCompleted signals the Returning phase reached its destination;
	// Run maps it to a PhaseComplete transition.
	outcomeCompleted
	// outcomeLowBattery signals the LowBattery phase finished its
	// send-home attempt; Run maps it to a Failed(reason=low_battery)
	// transition regardless of whether the robot actually arrived.
	outcomeLowBattery
)

// waitOnce blocks for at most d, or until stop/emergency/link-lost/ctx
// cancellation, or until match returns true for an inbound event. Control
// events not relevant to the current wait (e.g. SetSpeed) are applied
// in-place and the wait continues.
func (e *Executor) waitOnce(ctx context.Context, d time.Duration, match func(ports.InboundEvent) bool) (interruptOutcome, time.Duration) {
	start := e.clock.Now()
	timer := e.clock.After(d)
	for {
		select {
		case <-timer:
			return outcomeElapsed, 0
		case <-ctx.Done():
			return outcomeCanceled, 0
		case ctrl := <-e.control:
			switch ctrl.Kind {
			case CtrlPause:
				return outcomePaused, d - e.clock.Now().Sub(start)
			case CtrlStop:
				return outcomeStopped, 0
			case CtrlEmergencyStop:
				return outcomeEmergency, 0
			case CtrlSetSpeed:
				_ = e.link.SetGoToSpeed(ctx, string(ctrl.SpeedTier))
			}
		case evt := <-e.inbound:
			if evt.Kind == ports.EventDisconnected {
				return outcomeLinkLost, 0
			}
			if match != nil && match(evt) {
				return outcomeSampleStop, 0
			}
		}
	}
}

// waitForResume blocks until CtrlResume, a stop/emergency control, or ctx
// cancellation. It ignores pause (already paused) and inbound events other
// than link-lost.
func (e *Executor) waitForResume(ctx context.Context) interruptOutcome {
	for {
		select {
		case <-ctx.Done():
			return outcomeCanceled
		case ctrl := <-e.control:
			switch ctrl.Kind {
			case CtrlResume:
				return outcomeElapsed
			case CtrlStop:
				return outcomeStopped
			case CtrlEmergencyStop:
				return outcomeEmergency
			}
		case evt := <-e.inbound:
			if evt.Kind == ports.EventDisconnected {
				return outcomeLinkLost
			}
		}
	}
}

// runResumableTimer drives a Dwelling/Inspecting-style wait that honors
// pause fidelity (§8 property 7): pausing preserves remaining time, not
// elapsed time, and resume rearms the timer with exactly what was left.
func (e *Executor) runResumableTimer(ctx context.Context, d time.Duration, match func(ports.InboundEvent) bool) interruptOutcome {
	remaining := d
	for {
		oc, rem := e.waitOnce(ctx, remaining, match)
		if oc != outcomePaused {
			return oc
		}
		remaining = rem
		e.session.Status = model.SessionPaused
		_ = e.store.SetSessionStatus(ctx, e.session.ID, model.SessionPaused, model.ReasonNone)
		_ = e.bus.Publish(ctx, ports.TopicPatrolStatus, e.statusEvent("paused"))

		resumeOc := e.waitForResume(ctx)
		if resumeOc != outcomeElapsed {
			return resumeOc
		}
		e.session.Status = model.SessionRunning
		_ = e.store.SetSessionStatus(ctx, e.session.ID, model.SessionRunning, model.ReasonNone)
		_ = e.bus.Publish(ctx, ports.TopicPatrolStatus, e.statusEvent("resumed"))
	}
}

// simpleSleep is a cancellable, non-resumable delay for phases that are not
// pause-eligible (Arrived's fixed sequencing delays): it honors
// stop/emergency/link-lost/ctx, but a Pause request is a no-op here since
// TransitionFor only accepts EvPauseRequested from Dwelling/Inspecting.
func (e *Executor) simpleSleep(ctx context.Context, d time.Duration) interruptOutcome {
	if d <= 0 {
		return outcomeElapsed
	}
	for {
		oc, rem := e.waitOnce(ctx, d, nil)
		if oc == outcomePaused {
			d = rem
			continue
		}
		return oc
	}
}

// waitForInbound is simpleSleep's counterpart for navigation: it waits for
// a matching inbound event or timeout, ignoring pause (navigation is not
// pause-eligible per §4.7).
func (e *Executor) waitForInbound(ctx context.Context, d time.Duration, match func(ports.InboundEvent) bool) interruptOutcome {
	for {
		oc, rem := e.waitOnce(ctx, d, match)
		if oc == outcomePaused {
			d = rem
			continue
		}
		return oc
	}
}
