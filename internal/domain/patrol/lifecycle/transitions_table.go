// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "github.com/fleetguard/patrolcore/internal/domain/patrol/model"

// PhaseStepAdvance is a sentinel next-phase: the transition is legal but the
// concrete destination (next waypoint vs. loop boundary vs. returning) is a
// function of the session's step/loop counters, which the executor — not
// this table — owns.
const PhaseStepAdvance Phase = "__STEP_ADVANCE__"

// Transition is one legal (From, Event) -> To edge, with the terminal reason
// to record when To is a terminal phase.
type Transition struct {
	From   Phase
	Event  EventKind
	To     Phase
	Reason model.ReasonForEnd
}

var transitionsTable = []Transition{
	{PhaseStarting, EvValidated, PhaseNavigatingTo, model.ReasonNone},
	{PhaseStarting, EvValidationFailed, PhaseFailed, model.ReasonConfigError},

	{PhaseNavigatingTo, EvArrived, PhaseArrived, model.ReasonNone},
	{PhaseNavigatingTo, EvNavTimeout, PhaseNavFailed, model.ReasonNone},
	{PhaseNavigatingTo, EvNavFailed, PhaseNavFailed, model.ReasonNone},
	{PhaseNavigatingTo, EvLinkLost, PhaseFailed, model.ReasonLinkLost},

	{PhaseNavFailed, EvRecorded, PhaseStepAdvance, model.ReasonNone},

	{PhaseArrived, EvActionsIssued, PhaseInspecting, model.ReasonNone}, // detectionEnabled case
	{PhaseArrived, EvDetectionTimeout, PhaseDwelling, model.ReasonNone}, // detection disabled shortcut

	{PhaseInspecting, EvDetectionClear, PhaseClear, model.ReasonNone},
	{PhaseInspecting, EvDetectionViolation, PhaseViolation, model.ReasonNone},
	{PhaseInspecting, EvDetectionTimeout, PhaseInspectTimeout, model.ReasonNone},
	{PhaseInspecting, EvLinkLost, PhaseFailed, model.ReasonLinkLost},

	{PhaseClear, EvRecorded, PhaseDwelling, model.ReasonNone},
	{PhaseViolation, EvRecorded, PhaseDwelling, model.ReasonNone},
	{PhaseInspectTimeout, EvRecorded, PhaseDwelling, model.ReasonNone},

	{PhaseDwelling, EvDwellElapsed, PhaseStepAdvance, model.ReasonNone},
	{PhaseDwelling, EvLinkLost, PhaseFailed, model.ReasonLinkLost},

	{PhaseLoopBoundary, EvLoopContinue, PhaseNavigatingTo, model.ReasonNone},
	{PhaseLoopBoundary, EvLoopDone, PhaseReturning, model.ReasonNone},

	{PhaseReturning, EvReturnArrived, PhaseComplete, model.ReasonCompleted},
	{PhaseReturning, EvReturnTimeout, PhaseComplete, model.ReasonCompleted},
	{PhaseReturning, EvLinkLost, PhaseFailed, model.ReasonLinkLost},

	// Low battery guard: each phase listed here moves to LowBattery.
	{PhaseStarting, EvLowBatteryDetected, PhaseLowBattery, model.ReasonNone},
	{PhaseNavigatingTo, EvLowBatteryDetected, PhaseLowBattery, model.ReasonNone},
	{PhaseArrived, EvLowBatteryDetected, PhaseLowBattery, model.ReasonNone},
	{PhaseInspecting, EvLowBatteryDetected, PhaseLowBattery, model.ReasonNone},
	{PhaseDwelling, EvLowBatteryDetected, PhaseLowBattery, model.ReasonNone},
	{PhaseLoopBoundary, EvLowBatteryDetected, PhaseLowBattery, model.ReasonNone},
	{PhaseLowBattery, EvReturnArrived, PhaseFailed, model.ReasonLowBattery},
	{PhaseLowBattery, EvReturnTimeout, PhaseFailed, model.ReasonLowBattery},

	// Operator stop / emergency-stop are accepted from any live, non-terminal
	// phase; see Dispatch for the "any phase" fan-out.
	{PhaseStarting, EvStopRequested, PhaseStoppedByOperator, model.ReasonOperatorStopped},
	{PhaseStarting, EvEmergencyStopRequested, PhaseEmergencyStopped, model.ReasonEmergencyStop},

	{PhaseStarting, EvStoreFailure, PhaseFailed, model.ReasonStoreFailure},
}

// liveNonTerminalPhases enumerates phases from which stop/emergency-stop/
// link-lost/store-failure are always legal (pause only from the resumable
// ones), avoiding O(phases) duplication in transitionsTable above.
var liveNonTerminalPhases = []Phase{
	PhaseStarting, PhaseNavigatingTo, PhaseArrived, PhaseInspecting,
	PhaseClear, PhaseViolation, PhaseInspectTimeout, PhaseDwelling,
	PhaseLoopBoundary, PhaseReturning, PhaseNavFailed, PhaseLowBattery,
}

// TransitionFor returns the explicit transition for (from, ev), consulting
// both the static table and the any-phase fan-out rules for
// pause/stop/emergency-stop/store-failure.
func TransitionFor(from Phase, ev EventKind) (Transition, bool) {
	for _, t := range transitionsTable {
		if t.From == from && t.Event == ev {
			return t, true
		}
	}
	if from.IsTerminal() || from == PhasePaused {
		return Transition{}, false
	}
	for _, p := range liveNonTerminalPhases {
		if p != from {
			continue
		}
		switch ev {
		case EvStopRequested:
			return Transition{From: from, Event: ev, To: PhaseStoppedByOperator, Reason: model.ReasonOperatorStopped}, true
		case EvEmergencyStopRequested:
			return Transition{From: from, Event: ev, To: PhaseEmergencyStopped, Reason: model.ReasonEmergencyStop}, true
		case EvLinkLost:
			return Transition{From: from, Event: ev, To: PhaseFailed, Reason: model.ReasonLinkLost}, true
		case EvStoreFailure:
			return Transition{From: from, Event: ev, To: PhaseFailed, Reason: model.ReasonStoreFailure}, true
		case EvPauseRequested:
			if from.IsResumable() {
				return Transition{From: from, Event: ev, To: PhasePaused, Reason: model.ReasonNone}, true
			}
		}
	}
	return Transition{}, false
}
