// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

const schemaVersion = 1

const schemaDDL = `
CREATE TABLE IF NOT EXISTS robots (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	display_name    TEXT NOT NULL,
	serial          TEXT NOT NULL UNIQUE,
	broker_endpoint TEXT NOT NULL DEFAULT '',
	port            INTEGER NOT NULL DEFAULT 0,
	credentials     TEXT NOT NULL DEFAULT '',
	use_tls         INTEGER NOT NULL DEFAULT 0,
	home_waypoint   TEXT NOT NULL DEFAULT '',
	created_at_unix INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS routes (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT NOT NULL UNIQUE,
	owner_robot_id  INTEGER NOT NULL REFERENCES robots(id),
	loop_count      INTEGER NOT NULL DEFAULT 0,
	return_waypoint TEXT NOT NULL DEFAULT '',
	created_at_unix INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS waypoint_steps (
	route_id                    INTEGER NOT NULL REFERENCES routes(id) ON DELETE CASCADE,
	sequence_order              INTEGER NOT NULL,
	waypoint_name               TEXT NOT NULL,
	dwell_seconds               INTEGER NOT NULL DEFAULT 0,
	detection_enabled           INTEGER NOT NULL DEFAULT 0,
	detection_timeout_seconds   INTEGER NOT NULL DEFAULT 0,
	no_violation_hold_seconds   INTEGER NOT NULL DEFAULT 0,
	on_arrival_display          TEXT NOT NULL DEFAULT 'none',
	on_arrival_display_content  TEXT NOT NULL DEFAULT '',
	on_arrival_speech           TEXT NOT NULL DEFAULT '',
	on_violation_action         TEXT NOT NULL DEFAULT 'none',
	on_violation_action_content TEXT NOT NULL DEFAULT '',
	webview_close_delay_seconds INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (route_id, sequence_order)
);

CREATE TABLE IF NOT EXISTS patrol_sessions (
	id                  TEXT PRIMARY KEY,
	route_id            INTEGER NOT NULL REFERENCES routes(id),
	robot_id            INTEGER NOT NULL REFERENCES robots(id),
	started_at_unix     INTEGER NOT NULL,
	ended_at_unix       INTEGER,
	status              TEXT NOT NULL,
	current_loop        INTEGER NOT NULL DEFAULT 0,
	current_step_index  INTEGER NOT NULL DEFAULT 0,
	total_loops_planned INTEGER NOT NULL DEFAULT 0,
	reason_for_end      TEXT NOT NULL DEFAULT ''
);

-- Partial-unique-like invariant enforced at the application layer inside a
-- transaction (SQLite has no native partial-unique-index-on-predicate
-- portable enough across drivers here); see store.OpenSession.
CREATE INDEX IF NOT EXISTS idx_patrol_sessions_robot_status ON patrol_sessions(robot_id, status);

CREATE TABLE IF NOT EXISTS waypoint_inspections (
	id                  TEXT PRIMARY KEY,
	session_id          TEXT NOT NULL REFERENCES patrol_sessions(id) ON DELETE CASCADE,
	step_sequence       INTEGER NOT NULL,
	waypoint_name       TEXT NOT NULL,
	started_at_unix     INTEGER NOT NULL,
	ended_at_unix       INTEGER NOT NULL,
	detections_observed INTEGER NOT NULL DEFAULT 0,
	people_observed     INTEGER NOT NULL DEFAULT 0,
	verdict             TEXT NOT NULL,
	smoothed_confidence REAL NOT NULL DEFAULT 0,
	UNIQUE(session_id, step_sequence)
);

CREATE TABLE IF NOT EXISTS violations (
	id               TEXT PRIMARY KEY,
	robot_id         INTEGER,
	session_id       TEXT,
	location         TEXT NOT NULL DEFAULT '',
	kind             TEXT NOT NULL DEFAULT '',
	severity         TEXT NOT NULL,
	count            INTEGER NOT NULL DEFAULT 0,
	people_count     INTEGER NOT NULL DEFAULT 0,
	confidence       REAL NOT NULL DEFAULT 0,
	observed_at_unix INTEGER NOT NULL,
	acknowledged     INTEGER NOT NULL DEFAULT 0,
	acknowledged_by  TEXT NOT NULL DEFAULT '',
	acknowledged_at_unix INTEGER,
	details_json     TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
