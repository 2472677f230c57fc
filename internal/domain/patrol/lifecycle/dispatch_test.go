// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/stretchr/testify/require"
)

func TestDispatch_KnownTransition(t *testing.T) {
	tr, err := Dispatch(PhaseStarting, Event{Kind: EvValidated}, "")
	require.NoError(t, err)
	require.Equal(t, PhaseNavigatingTo, tr.To)
}

func TestDispatch_IllegalTransitionReturnsSentinel(t *testing.T) {
	_, err := Dispatch(PhaseComplete, Event{Kind: EvArrived}, "")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrIllegalTransition))
}

func TestDispatch_AnyPhaseStopFanOut(t *testing.T) {
	for _, from := range liveNonTerminalPhases {
		tr, err := Dispatch(from, Event{Kind: EvStopRequested}, "")
		require.NoError(t, err, "stop must be legal from %s", from)
		require.Equal(t, PhaseStoppedByOperator, tr.To)
		require.Equal(t, model.ReasonOperatorStopped, tr.Reason)
	}
}

func TestDispatch_AnyPhaseEmergencyStopFanOut(t *testing.T) {
	for _, from := range liveNonTerminalPhases {
		tr, err := Dispatch(from, Event{Kind: EvEmergencyStopRequested}, "")
		require.NoError(t, err, "emergency stop must be legal from %s", from)
		require.Equal(t, PhaseEmergencyStopped, tr.To)
	}
}

func TestDispatch_PauseOnlyLegalFromResumablePhases(t *testing.T) {
	tr, err := Dispatch(PhaseDwelling, Event{Kind: EvPauseRequested}, "")
	require.NoError(t, err)
	require.Equal(t, PhasePaused, tr.To)

	tr, err = Dispatch(PhaseInspecting, Event{Kind: EvPauseRequested}, "")
	require.NoError(t, err)
	require.Equal(t, PhasePaused, tr.To)

	_, err = Dispatch(PhaseNavigatingTo, Event{Kind: EvPauseRequested}, "")
	require.Error(t, err, "pause must not be legal while navigating")
}

func TestDispatch_ResumeRestoresCallerSuppliedPhase(t *testing.T) {
	tr, err := Dispatch(PhasePaused, Event{Kind: EvResumeRequested}, PhaseDwelling)
	require.NoError(t, err)
	require.Equal(t, PhaseDwelling, tr.To)
}

func TestDispatch_OnlyResumeIsLegalWhilePaused(t *testing.T) {
	_, err := Dispatch(PhasePaused, Event{Kind: EvArrived}, PhaseDwelling)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrIllegalTransition))
}

func TestDispatch_NoTransitionsOutOfTerminalPhases(t *testing.T) {
	for _, p := range []Phase{PhaseComplete, PhaseStoppedByOperator, PhaseEmergencyStopped, PhaseFailed} {
		for _, ev := range []EventKind{EvArrived, EvStopRequested, EvPauseRequested, EvLowBatteryDetected} {
			_, err := Dispatch(p, Event{Kind: ev}, "")
			require.Error(t, err, "%s must accept no further events (got %s)", p, ev)
		}
	}
}

func TestEventKind_StringKnownAndUnknown(t *testing.T) {
	require.Equal(t, "arrived", EvArrived.String())
	require.Equal(t, "event(?)", EventKind(9999).String())
}

func TestApplyOutcome_NonTerminalTransitionLeavesSessionUntouched(t *testing.T) {
	s := &model.PatrolSession{Status: model.SessionRunning}
	ApplyOutcome(s, Transition{From: PhaseDwelling, To: PhaseStepAdvance}, time.Now())
	require.Equal(t, model.SessionRunning, s.Status)
	require.Nil(t, s.EndedAt)
}

func TestApplyOutcome_TerminalTransitionsSetStatusAndReason(t *testing.T) {
	cases := []struct {
		to     Phase
		reason model.ReasonForEnd
		want   model.SessionStatus
	}{
		{PhaseComplete, model.ReasonCompleted, model.SessionCompleted},
		{PhaseStoppedByOperator, model.ReasonOperatorStopped, model.SessionStopped},
		{PhaseEmergencyStopped, model.ReasonEmergencyStop, model.SessionError},
		{PhaseFailed, model.ReasonLinkLost, model.SessionError},
	}
	for _, c := range cases {
		s := &model.PatrolSession{Status: model.SessionRunning}
		now := time.Now()
		ApplyOutcome(s, Transition{To: c.to, Reason: c.reason}, now)
		require.Equal(t, c.want, s.Status, "phase %s", c.to)
		require.Equal(t, c.reason, s.ReasonForEnd)
		require.NotNil(t, s.EndedAt)
	}
}

func TestPhase_IsResumableOnlyDwellingAndInspecting(t *testing.T) {
	require.True(t, PhaseDwelling.IsResumable())
	require.True(t, PhaseInspecting.IsResumable())
	require.False(t, PhaseNavigatingTo.IsResumable())
	require.False(t, PhaseComplete.IsResumable())
}

func TestPhase_IsTerminal(t *testing.T) {
	require.True(t, PhaseComplete.IsTerminal())
	require.True(t, PhaseFailed.IsTerminal())
	require.False(t, PhaseDwelling.IsTerminal())
	require.False(t, PhasePaused.IsTerminal())
}
