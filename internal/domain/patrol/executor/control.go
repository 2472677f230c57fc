// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package executor

import (
	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
)

// ControlKind enumerates the operator-issued commands a PatrolExecutor
// accepts from its Supervisor.
type ControlKind int

const (
	CtrlPause ControlKind = iota
	CtrlResume
	CtrlStop
	CtrlEmergencyStop
	CtrlSetSpeed
	CtrlResolveStopHome
)

// Control is one operator-issued command delivered over the executor's
// narrow control channel (§9: executors reach the Supervisor only through a
// control channel, never a back-reference).
type Control struct {
	Kind      ControlKind
	SpeedTier model.SpeedTier
	SendHome  bool
}

// Pause requests the executor suspend its current resumable timer.
func (e *Executor) Pause() bool { return e.send(Control{Kind: CtrlPause}) }

// Resume requests the executor resume a suspended timer.
func (e *Executor) Resume() bool { return e.send(Control{Kind: CtrlResume}) }

// Stop requests the executor cancel pending navigation and terminate.
func (e *Executor) Stop() bool { return e.send(Control{Kind: CtrlStop}) }

// EmergencyStop requests immediate robot stop and session termination.
func (e *Executor) EmergencyStop() bool { return e.send(Control{Kind: CtrlEmergencyStop}) }

// SetSpeed changes the robot's GoTo speed tier for subsequent navigation.
func (e *Executor) SetSpeed(tier model.SpeedTier) bool {
	return e.send(Control{Kind: CtrlSetSpeed, SpeedTier: tier})
}

// ResolveStopHomeDecision answers the bounded stop-home prompt (§4.7 stop
// semantics) before patrolStopHomeTimeout elapses.
func (e *Executor) ResolveStopHomeDecision(sendHome bool) bool {
	return e.send(Control{Kind: CtrlResolveStopHome, SendHome: sendHome})
}

func (e *Executor) send(c Control) bool {
	select {
	case e.control <- c:
		return true
	default:
		return false
	}
}

// Deliver forwards a Router-sourced inbound event to this executor, never
// blocking the Router's per-robot worker (§4.6 isolation).
func (e *Executor) Deliver(evt ports.InboundEvent) bool {
	select {
	case e.inbound <- evt:
		return true
	default:
		return false
	}
}
