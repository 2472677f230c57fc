// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "fmt"

// Dispatch resolves the single legal transition for (phase, ev), returning
// ErrIllegalTransition if the combination is not recognized. Resume is
// special-cased: it is only legal from Paused and its destination is the
// caller-supplied resumeTo phase (the one Paused suspended from), since the
// table cannot encode a data-dependent destination.
func Dispatch(phase Phase, ev Event, resumeTo Phase) (Transition, error) {
	if phase == PhasePaused {
		if ev.Kind != EvResumeRequested {
			return Transition{}, fmt.Errorf("%w: %s while paused", ErrIllegalTransition, ev.Kind)
		}
		return Transition{From: PhasePaused, Event: EvResumeRequested, To: resumeTo}, nil
	}

	t, ok := TransitionFor(phase, ev.Kind)
	if !ok {
		return Transition{}, fmt.Errorf("%w: phase=%s event=%v", ErrIllegalTransition, phase, ev.Kind)
	}
	return t, nil
}

func (k EventKind) String() string {
	names := map[EventKind]string{
		EvUnknown: "unknown", EvValidated: "validated", EvValidationFailed: "validation_failed",
		EvArrived: "arrived", EvNavTimeout: "nav_timeout", EvNavFailed: "nav_failed",
		EvActionsIssued: "actions_issued", EvDetectionClear: "detection_clear",
		EvDetectionViolation: "detection_violation", EvDetectionTimeout: "detection_timeout",
		EvRecorded: "recorded", EvDwellElapsed: "dwell_elapsed", EvLoopContinue: "loop_continue",
		EvLoopDone: "loop_done", EvReturnArrived: "return_arrived", EvReturnTimeout: "return_timeout",
		EvPauseRequested: "pause_requested", EvResumeRequested: "resume_requested",
		EvStopRequested: "stop_requested", EvEmergencyStopRequested: "emergency_stop_requested",
		EvLowBatteryDetected: "low_battery_detected", EvLinkLost: "link_lost", EvStoreFailure: "store_failure",
	}
	if n, ok := names[k]; ok {
		return n
	}
	return "event(?)"
}
