// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"time"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
)

// ApplyOutcome mutates the session record to reflect a terminal transition.
// Non-terminal transitions are applied by the executor directly to its own
// step/loop counters; ApplyOutcome only concerns itself with the
// client-visible status and reason.
func ApplyOutcome(s *model.PatrolSession, t Transition, now time.Time) {
	if !t.To.IsTerminal() {
		return
	}
	s.ReasonForEnd = t.Reason
	s.EndedAt = &now
	switch t.To {
	case PhaseComplete:
		s.Status = model.SessionCompleted
	case PhaseStoppedByOperator:
		s.Status = model.SessionStopped
	default: // EmergencyStopped, Failed
		s.Status = model.SessionError
	}
}
