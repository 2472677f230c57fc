// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
	"github.com/fleetguard/patrolcore/internal/log"
	persistsqlite "github.com/fleetguard/patrolcore/internal/persistence/sqlite"
	"github.com/google/uuid"
)

// SqliteStore is the durable relational Store (C1) backed by a pure-Go
// SQLite driver.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (creating if absent) and migrates the database at
// dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := persistsqlite.Open(dbPath, persistsqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &SqliteStore{DB: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqliteStore) migrate(ctx context.Context) error {
	var current int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("store: read user_version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("store: set user_version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.L().Info().Int("schema_version", schemaVersion).Msg("store migrated")
	return nil
}

// --- Robots ---------------------------------------------------------------

func (s *SqliteStore) UpsertRobot(ctx context.Context, r model.Robot) (model.Robot, error) {
	if r.Serial == "" {
		return model.Robot{}, fmt.Errorf("%w: serial required", ports.ErrValidation)
	}
	now := time.Now()
	if r.ID == 0 {
		r.CreatedAt = now
		res, err := s.DB.ExecContext(ctx, `INSERT INTO robots
			(display_name, serial, broker_endpoint, port, credentials, use_tls, home_waypoint, created_at_unix)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.DisplayName, r.Serial, r.BrokerEndpoint, r.Port, r.Credentials, boolToInt(r.UseTLS), r.HomeWaypoint, now.Unix())
		if err != nil {
			return model.Robot{}, classifyWriteErr(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return model.Robot{}, fmt.Errorf("%w: %v", ports.ErrInternal, err)
		}
		r.ID = id
		return r, nil
	}
	_, err := s.DB.ExecContext(ctx, `UPDATE robots SET display_name=?, serial=?, broker_endpoint=?, port=?,
		credentials=?, use_tls=?, home_waypoint=? WHERE id=?`,
		r.DisplayName, r.Serial, r.BrokerEndpoint, r.Port, r.Credentials, boolToInt(r.UseTLS), r.HomeWaypoint, r.ID)
	if err != nil {
		return model.Robot{}, classifyWriteErr(err)
	}
	return r, nil
}

func (s *SqliteStore) DeleteRobot(ctx context.Context, id int64) error {
	var activeCount int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM patrol_sessions WHERE robot_id=? AND status IN ('running','paused')`, id).Scan(&activeCount); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	if activeCount > 0 {
		return fmt.Errorf("%w: robot has an active patrol session", ports.ErrInUse)
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM robots WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: robot %d", ports.ErrNotFound, id)
	}
	return nil
}

func (s *SqliteStore) GetRobot(ctx context.Context, id int64) (model.Robot, error) {
	return s.scanRobot(s.DB.QueryRowContext(ctx, robotSelect+` WHERE id=?`, id))
}

func (s *SqliteStore) GetRobotBySerial(ctx context.Context, serial string) (model.Robot, error) {
	return s.scanRobot(s.DB.QueryRowContext(ctx, robotSelect+` WHERE serial=?`, serial))
}

const robotSelect = `SELECT id, display_name, serial, broker_endpoint, port, credentials, use_tls, home_waypoint, created_at_unix FROM robots`

func (s *SqliteStore) scanRobot(row *sql.Row) (model.Robot, error) {
	var r model.Robot
	var useTLS int
	var createdAt int64
	if err := row.Scan(&r.ID, &r.DisplayName, &r.Serial, &r.BrokerEndpoint, &r.Port, &r.Credentials, &useTLS, &r.HomeWaypoint, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Robot{}, fmt.Errorf("%w: robot", ports.ErrNotFound)
		}
		return model.Robot{}, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	r.UseTLS = useTLS != 0
	r.CreatedAt = time.Unix(createdAt, 0)
	return r, nil
}

func (s *SqliteStore) ListRobots(ctx context.Context) ([]model.Robot, error) {
	rows, err := s.DB.QueryContext(ctx, robotSelect+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	defer rows.Close()
	var out []model.Robot
	for rows.Next() {
		var r model.Robot
		var useTLS int
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.DisplayName, &r.Serial, &r.BrokerEndpoint, &r.Port, &r.Credentials, &useTLS, &r.HomeWaypoint, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ports.ErrInternal, err)
		}
		r.UseTLS = useTLS != 0
		r.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Routes -----------------------------------------------------------------

func (s *SqliteStore) CreateRoute(ctx context.Context, route model.Route) (model.Route, error) {
	if err := validateRouteSteps(route.Steps); err != nil {
		return model.Route{}, err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Route{}, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `INSERT INTO routes (name, owner_robot_id, loop_count, return_waypoint, created_at_unix)
		VALUES (?, ?, ?, ?, ?)`, route.Name, route.OwnerRobotID, route.LoopCount, route.ReturnWaypoint, now.Unix())
	if err != nil {
		return model.Route{}, classifyWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Route{}, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	for _, step := range route.Steps {
		if _, err := tx.ExecContext(ctx, insertStepSQL, id, step.SequenceOrder, step.WaypointName,
			step.DwellSeconds, boolToInt(step.DetectionEnabled), step.DetectionTimeoutSeconds, step.NoViolationHoldSeconds,
			string(step.OnArrivalDisplay), step.OnArrivalDisplayContent, step.OnArrivalSpeech,
			string(step.OnViolationAction), step.OnViolationActionContent, step.WebviewCloseDelaySeconds); err != nil {
			return model.Route{}, classifyWriteErr(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Route{}, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	route.ID = id
	route.CreatedAt = now
	return route, nil
}

const insertStepSQL = `INSERT INTO waypoint_steps
	(route_id, sequence_order, waypoint_name, dwell_seconds, detection_enabled, detection_timeout_seconds,
	 no_violation_hold_seconds, on_arrival_display, on_arrival_display_content, on_arrival_speech,
	 on_violation_action, on_violation_action_content, webview_close_delay_seconds)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func validateRouteSteps(steps []model.WaypointStep) error {
	if len(steps) < 2 {
		return fmt.Errorf("%w: route requires at least 2 steps", ports.ErrValidation)
	}
	seen := map[int]bool{}
	for _, st := range steps {
		if st.WaypointName == "" {
			return fmt.Errorf("%w: step waypoint name required", ports.ErrValidation)
		}
		if seen[st.SequenceOrder] {
			return fmt.Errorf("%w: duplicate step sequence %d", ports.ErrValidation, st.SequenceOrder)
		}
		seen[st.SequenceOrder] = true
	}
	for i := 1; i <= len(steps); i++ {
		if !seen[i] {
			return fmt.Errorf("%w: step sequence has a gap at %d", ports.ErrValidation, i)
		}
	}
	return nil
}

func (s *SqliteStore) UpdateRoute(ctx context.Context, route model.Route) (model.Route, error) {
	if err := validateRouteSteps(route.Steps); err != nil {
		return model.Route{}, err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Route{}, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE routes SET name=?, loop_count=?, return_waypoint=? WHERE id=?`,
		route.Name, route.LoopCount, route.ReturnWaypoint, route.ID); err != nil {
		return model.Route{}, classifyWriteErr(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM waypoint_steps WHERE route_id=?`, route.ID); err != nil {
		return model.Route{}, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	for _, step := range route.Steps {
		if _, err := tx.ExecContext(ctx, insertStepSQL, route.ID, step.SequenceOrder, step.WaypointName,
			step.DwellSeconds, boolToInt(step.DetectionEnabled), step.DetectionTimeoutSeconds, step.NoViolationHoldSeconds,
			string(step.OnArrivalDisplay), step.OnArrivalDisplayContent, step.OnArrivalSpeech,
			string(step.OnViolationAction), step.OnViolationActionContent, step.WebviewCloseDelaySeconds); err != nil {
			return model.Route{}, classifyWriteErr(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Route{}, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	return route, nil
}

func (s *SqliteStore) DeleteRoute(ctx context.Context, id int64) error {
	var activeCount int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM patrol_sessions WHERE route_id=? AND status IN ('running','paused')`, id).Scan(&activeCount); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	if activeCount > 0 {
		return fmt.Errorf("%w: route has an active patrol session", ports.ErrInUse)
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM routes WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: route %d", ports.ErrNotFound, id)
	}
	return nil
}

func (s *SqliteStore) GetRoute(ctx context.Context, id int64) (model.Route, error) {
	var r model.Route
	var createdAt int64
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, owner_robot_id, loop_count, return_waypoint, created_at_unix
		FROM routes WHERE id=?`, id).Scan(&r.ID, &r.Name, &r.OwnerRobotID, &r.LoopCount, &r.ReturnWaypoint, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Route{}, fmt.Errorf("%w: route", ports.ErrNotFound)
		}
		return model.Route{}, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	r.CreatedAt = time.Unix(createdAt, 0)
	steps, err := s.loadSteps(ctx, id)
	if err != nil {
		return model.Route{}, err
	}
	r.Steps = steps
	return r, nil
}

func (s *SqliteStore) loadSteps(ctx context.Context, routeID int64) ([]model.WaypointStep, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT sequence_order, waypoint_name, dwell_seconds, detection_enabled,
		detection_timeout_seconds, no_violation_hold_seconds, on_arrival_display, on_arrival_display_content,
		on_arrival_speech, on_violation_action, on_violation_action_content, webview_close_delay_seconds
		FROM waypoint_steps WHERE route_id=? ORDER BY sequence_order`, routeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	defer rows.Close()
	var steps []model.WaypointStep
	for rows.Next() {
		var st model.WaypointStep
		var detEnabled int
		var arrivalDisplay, violationAction string
		if err := rows.Scan(&st.SequenceOrder, &st.WaypointName, &st.DwellSeconds, &detEnabled,
			&st.DetectionTimeoutSeconds, &st.NoViolationHoldSeconds, &arrivalDisplay, &st.OnArrivalDisplayContent,
			&st.OnArrivalSpeech, &violationAction, &st.OnViolationActionContent, &st.WebviewCloseDelaySeconds); err != nil {
			return nil, fmt.Errorf("%w: %v", ports.ErrInternal, err)
		}
		st.DetectionEnabled = detEnabled != 0
		st.OnArrivalDisplay = model.ArrivalDisplay(arrivalDisplay)
		st.OnViolationAction = model.ViolationAction(violationAction)
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

func (s *SqliteStore) ListRoutes(ctx context.Context) ([]model.Route, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id FROM routes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: %v", ports.ErrInternal, err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	out := make([]model.Route, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetRoute(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// --- Sessions ---------------------------------------------------------------

// OpenSession is the single source of the one-active-patrol-per-robot
// invariant (§8 property 1): the existence check and the insert happen
// inside one transaction so a concurrent OpenSession cannot race past it.
func (s *SqliteStore) OpenSession(ctx context.Context, routeID, robotID int64) (model.PatrolSession, error) {
	route, err := s.GetRoute(ctx, routeID)
	if err != nil {
		return model.PatrolSession{}, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.PatrolSession{}, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	defer tx.Rollback()

	var activeCount int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM patrol_sessions WHERE robot_id=? AND status IN ('running','paused')`, robotID).Scan(&activeCount); err != nil {
		return model.PatrolSession{}, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	if activeCount > 0 {
		return model.PatrolSession{}, fmt.Errorf("%w: robot %d already has an active patrol", ports.ErrConflict, robotID)
	}

	now := time.Now()
	sess := model.PatrolSession{
		ID:                uuid.NewString(),
		RouteID:           routeID,
		RobotID:           robotID,
		StartedAt:         now,
		Status:            model.SessionRunning,
		TotalLoopsPlanned: route.LoopCount,
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO patrol_sessions
		(id, route_id, robot_id, started_at_unix, status, current_loop, current_step_index, total_loops_planned, reason_for_end)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, '')`,
		sess.ID, sess.RouteID, sess.RobotID, now.Unix(), string(sess.Status), sess.TotalLoopsPlanned); err != nil {
		return model.PatrolSession{}, classifyWriteErr(err)
	}
	if err := tx.Commit(); err != nil {
		return model.PatrolSession{}, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	return sess, nil
}

func (s *SqliteStore) GetActiveSession(ctx context.Context, robotID int64) (*model.PatrolSession, error) {
	row := s.DB.QueryRowContext(ctx, sessionSelect+` WHERE robot_id=? AND status IN ('running','paused') LIMIT 1`, robotID)
	sess, err := scanSession(row)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

const sessionSelect = `SELECT id, route_id, robot_id, started_at_unix, ended_at_unix, status, current_loop, current_step_index, total_loops_planned, reason_for_end FROM patrol_sessions`

func scanSession(row *sql.Row) (model.PatrolSession, error) {
	var sess model.PatrolSession
	var startedAt int64
	var endedAt sql.NullInt64
	var status, reason string
	if err := row.Scan(&sess.ID, &sess.RouteID, &sess.RobotID, &startedAt, &endedAt, &status,
		&sess.CurrentLoop, &sess.CurrentStepIndex, &sess.TotalLoopsPlanned, &reason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PatrolSession{}, fmt.Errorf("%w: session", ports.ErrNotFound)
		}
		return model.PatrolSession{}, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	sess.StartedAt = time.Unix(startedAt, 0)
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0)
		sess.EndedAt = &t
	}
	sess.Status = model.SessionStatus(status)
	sess.ReasonForEnd = model.ReasonForEnd(reason)
	return sess, nil
}

func (s *SqliteStore) GetSession(ctx context.Context, sessionID string) (model.PatrolSession, error) {
	return scanSession(s.DB.QueryRowContext(ctx, sessionSelect+` WHERE id=?`, sessionID))
}

func (s *SqliteStore) ListSessions(ctx context.Context) ([]model.PatrolSession, error) {
	rows, err := s.DB.QueryContext(ctx, sessionSelect+` ORDER BY started_at_unix DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	defer rows.Close()
	var out []model.PatrolSession
	for rows.Next() {
		var sess model.PatrolSession
		var startedAt int64
		var endedAt sql.NullInt64
		var status, reason string
		if err := rows.Scan(&sess.ID, &sess.RouteID, &sess.RobotID, &startedAt, &endedAt, &status,
			&sess.CurrentLoop, &sess.CurrentStepIndex, &sess.TotalLoopsPlanned, &reason); err != nil {
			return nil, fmt.Errorf("%w: %v", ports.ErrInternal, err)
		}
		sess.StartedAt = time.Unix(startedAt, 0)
		if endedAt.Valid {
			t := time.Unix(endedAt.Int64, 0)
			sess.EndedAt = &t
		}
		sess.Status = model.SessionStatus(status)
		sess.ReasonForEnd = model.ReasonForEnd(reason)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// AdvanceSession is idempotent: re-applying the same (step, loop) pair is a
// no-op (§8 property: AdvanceSession idempotence via the WHERE clause below).
func (s *SqliteStore) AdvanceSession(ctx context.Context, sessionID string, step, loop int) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE patrol_sessions SET current_step_index=?, current_loop=?
		WHERE id=? AND NOT (current_step_index=? AND current_loop=?)`, step, loop, sessionID, step, loop)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	return nil
}

func (s *SqliteStore) SetSessionStatus(ctx context.Context, sessionID string, status model.SessionStatus, reason model.ReasonForEnd) error {
	var endedAt any
	if status.IsTerminal() {
		endedAt = time.Now().Unix()
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE patrol_sessions SET status=?, reason_for_end=?, ended_at_unix=COALESCE(?, ended_at_unix)
		WHERE id=?`, string(status), string(reason), endedAt, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session %s", ports.ErrNotFound, sessionID)
	}
	return nil
}

func (s *SqliteStore) RecordInspection(ctx context.Context, insp model.WaypointInspection) error {
	if insp.ID == "" {
		insp.ID = uuid.NewString()
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO waypoint_inspections
		(id, session_id, step_sequence, waypoint_name, started_at_unix, ended_at_unix, detections_observed,
		 people_observed, verdict, smoothed_confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, step_sequence) DO UPDATE SET
		 ended_at_unix=excluded.ended_at_unix, detections_observed=excluded.detections_observed,
		 people_observed=excluded.people_observed, verdict=excluded.verdict, smoothed_confidence=excluded.smoothed_confidence`,
		insp.ID, insp.SessionID, insp.StepSequence, insp.WaypointName, insp.StartedAt.Unix(), insp.EndedAt.Unix(),
		insp.DetectionsObserved, insp.PeopleObserved, string(insp.Verdict), insp.SmoothedConfidence)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	return nil
}

func (s *SqliteStore) ListInspections(ctx context.Context, sessionID string) ([]model.WaypointInspection, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, session_id, step_sequence, waypoint_name, started_at_unix,
		ended_at_unix, detections_observed, people_observed, verdict, smoothed_confidence
		FROM waypoint_inspections WHERE session_id=? ORDER BY step_sequence`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	defer rows.Close()
	var out []model.WaypointInspection
	for rows.Next() {
		var insp model.WaypointInspection
		var startedAt, endedAt int64
		var verdict string
		if err := rows.Scan(&insp.ID, &insp.SessionID, &insp.StepSequence, &insp.WaypointName, &startedAt, &endedAt,
			&insp.DetectionsObserved, &insp.PeopleObserved, &verdict, &insp.SmoothedConfidence); err != nil {
			return nil, fmt.Errorf("%w: %v", ports.ErrInternal, err)
		}
		insp.StartedAt = time.Unix(startedAt, 0)
		insp.EndedAt = time.Unix(endedAt, 0)
		insp.Verdict = model.Verdict(verdict)
		out = append(out, insp)
	}
	return out, rows.Err()
}

func (s *SqliteStore) RecordViolation(ctx context.Context, v model.Violation) (model.Violation, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.ObservedAt.IsZero() {
		v.ObservedAt = time.Now()
	}
	detailsJSON, err := json.Marshal(v.Details)
	if err != nil {
		return model.Violation{}, fmt.Errorf("%w: %v", ports.ErrValidation, err)
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO violations
		(id, robot_id, session_id, location, kind, severity, count, people_count, confidence, observed_at_unix,
		 acknowledged, acknowledged_by, acknowledged_at_unix, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '', NULL, ?)`,
		v.ID, nullableInt64(v.RobotID), nullableString(v.SessionID), v.Location, v.Kind, string(v.Severity),
		v.Count, v.PeopleCount, v.Confidence, v.ObservedAt.Unix(), string(detailsJSON))
	if err != nil {
		return model.Violation{}, classifyWriteErr(err)
	}
	return v, nil
}

func (s *SqliteStore) ListViolations(ctx context.Context, robotID *int64) ([]model.Violation, error) {
	query := `SELECT id, robot_id, session_id, location, kind, severity, count, people_count, confidence,
		observed_at_unix, acknowledged, acknowledged_by, acknowledged_at_unix, details_json FROM violations`
	args := []any{}
	if robotID != nil {
		query += ` WHERE robot_id=?`
		args = append(args, *robotID)
	}
	query += ` ORDER BY observed_at_unix DESC`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	defer rows.Close()
	var out []model.Violation
	for rows.Next() {
		var v model.Violation
		var robot sql.NullInt64
		var session sql.NullString
		var severity string
		var observedAt int64
		var ack int
		var ackBy string
		var ackAt sql.NullInt64
		var detailsJSON string
		if err := rows.Scan(&v.ID, &robot, &session, &v.Location, &v.Kind, &severity, &v.Count, &v.PeopleCount,
			&v.Confidence, &observedAt, &ack, &ackBy, &ackAt, &detailsJSON); err != nil {
			return nil, fmt.Errorf("%w: %v", ports.ErrInternal, err)
		}
		if robot.Valid {
			id := robot.Int64
			v.RobotID = &id
		}
		if session.Valid {
			sid := session.String
			v.SessionID = &sid
		}
		v.Severity = model.Severity(severity)
		v.ObservedAt = time.Unix(observedAt, 0)
		v.Acknowledged = ack != 0
		v.AcknowledgedBy = ackBy
		if ackAt.Valid {
			t := time.Unix(ackAt.Int64, 0)
			v.AcknowledgedAt = &t
		}
		_ = json.Unmarshal([]byte(detailsJSON), &v.Details)
		out = append(out, v)
	}
	return out, rows.Err()
}

// --- Settings ----------------------------------------------------------------

func (s *SqliteStore) GetSettings(ctx context.Context) (model.SettingsMap, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	defer rows.Close()
	out := model.SettingsMap{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ports.ErrInternal, err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SetSettings replaces the entire settings table with settings: a key
// present in the store but absent from settings is removed, not left in
// place. Every key is validated against its §6 typed effect before any row
// is touched, so a rejected value never partially applies.
func (s *SqliteStore) SetSettings(ctx context.Context, settings model.SettingsMap) error {
	for k, v := range settings {
		if err := model.ValidateSetting(k, v); err != nil {
			return fmt.Errorf("%w: %v", ports.ErrValidation, err)
		}
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM settings`); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrInternal, err)
	}
	for k, v := range settings {
		if _, err := tx.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("%w: %v", ports.ErrInternal, err)
		}
	}
	return tx.Commit()
}

// --- helpers ------------------------------------------------------------

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func classifyWriteErr(err error) error {
	if err == nil {
		return nil
	}
	// modernc.org/sqlite surfaces UNIQUE constraint violations as a plain
	// error string; there is no typed sentinel to errors.As against.
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %v", ports.ErrConflict, err)
	}
	return fmt.Errorf("%w: %v", ports.ErrInternal, err)
}
