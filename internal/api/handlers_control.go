// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
)

type startPatrolRequest struct {
	RobotID int64 `json:"robotId"`
	RouteID int64 `json:"routeId"`
}

func (s *Server) handleStartPatrol(w http.ResponseWriter, r *http.Request) {
	var req startPatrolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	session, err := s.supervisor.StartPatrol(r.Context(), req.RobotID, req.RouteID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, session)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.controlAction(w, r, s.supervisor.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.controlAction(w, r, s.supervisor.Resume)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.controlAction(w, r, s.supervisor.Stop)
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	s.controlAction(w, r, s.supervisor.EmergencyStop)
}

func (s *Server) controlAction(w http.ResponseWriter, r *http.Request, action func(int64) error) {
	robotID, err := pathInt64(r, "robotID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}
	if err := action(robotID); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusConflict, "conflict", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type setSpeedRequest struct {
	SpeedTier model.SpeedTier `json:"speedTier"`
}

func (s *Server) handleSetSpeed(w http.ResponseWriter, r *http.Request) {
	robotID, err := pathInt64(r, "robotID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}
	var req setSpeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	switch req.SpeedTier {
	case model.SpeedLow, model.SpeedMedium, model.SpeedHigh:
	default:
		writeError(w, http.StatusBadRequest, "validation", "speedTier must be low|medium|high")
		return
	}
	if err := s.supervisor.SetSpeed(robotID, req.SpeedTier); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusConflict, "conflict", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type stopHomeDecisionRequest struct {
	SendHome bool `json:"sendHome"`
}

func (s *Server) handleResolveStopHome(w http.ResponseWriter, r *http.Request) {
	robotID, err := pathInt64(r, "robotID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}
	var req stopHomeDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if err := s.supervisor.ResolveStopHomeDecision(robotID, req.SendHome); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusConflict, "conflict", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
