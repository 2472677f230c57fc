// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package router

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/log"
)

// ProjectionStore owns the Router's per-robot runtime projection: the
// high-write-rate, ephemeral fields (connectivity, battery, location,
// known waypoints, lastSeenAt) that do not belong in the relational Store
// but must survive a process restart well enough that ListRobots does not
// momentarily report every robot offline (§11 domain stack, Badger entry).
type ProjectionStore interface {
	SetConnected(robotID int64, connected bool)
	SetBattery(robotID int64, percent int, charging bool)
	SetCurrentLocation(robotID int64, location string)
	SetKnownWaypoints(robotID int64, waypoints []string)
	Get(robotID int64) model.RobotProjection
}

// BadgerProjectionStore persists the runtime projection in an embedded
// Badger KV store.
type BadgerProjectionStore struct {
	db *badger.DB
}

// NewBadgerProjectionStore opens (creating if absent) the projection cache at
// dir.
func NewBadgerProjectionStore(dir string) (*BadgerProjectionStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerProjectionStore{db: db}, nil
}

func (s *BadgerProjectionStore) Close() error { return s.db.Close() }

type projectionRecord struct {
	Connected       bool      `json:"connected"`
	BatteryPercent  int       `json:"batteryPercent"`
	Charging        bool      `json:"charging"`
	CurrentLocation string    `json:"currentLocation"`
	KnownWaypoints  []string  `json:"knownWaypoints"`
	LastSeenAt      time.Time `json:"lastSeenAt"`
}

func key(robotID int64) []byte {
	return []byte("robot:" + strconv.FormatInt(robotID, 10))
}

func (s *BadgerProjectionStore) load(robotID int64) projectionRecord {
	var rec projectionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(robotID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil && err != badger.ErrKeyNotFound {
		log.L().Warn().Err(err).Int64("robot_id", robotID).Msg("projection store read failed")
	}
	return rec
}

func (s *BadgerProjectionStore) save(robotID int64, rec projectionRecord) {
	body, err := json.Marshal(rec)
	if err != nil {
		return
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(robotID), body)
	})
	if err != nil {
		log.L().Warn().Err(err).Int64("robot_id", robotID).Msg("projection store write failed")
	}
}

func (s *BadgerProjectionStore) SetConnected(robotID int64, connected bool) {
	rec := s.load(robotID)
	rec.Connected = connected
	rec.LastSeenAt = time.Now()
	s.save(robotID, rec)
}

func (s *BadgerProjectionStore) SetBattery(robotID int64, percent int, charging bool) {
	rec := s.load(robotID)
	rec.BatteryPercent = percent
	rec.Charging = charging
	rec.LastSeenAt = time.Now()
	s.save(robotID, rec)
}

func (s *BadgerProjectionStore) SetCurrentLocation(robotID int64, location string) {
	rec := s.load(robotID)
	rec.CurrentLocation = location
	rec.LastSeenAt = time.Now()
	s.save(robotID, rec)
}

func (s *BadgerProjectionStore) SetKnownWaypoints(robotID int64, waypoints []string) {
	rec := s.load(robotID)
	rec.KnownWaypoints = waypoints
	s.save(robotID, rec)
}

func (s *BadgerProjectionStore) Get(robotID int64) model.RobotProjection {
	rec := s.load(robotID)
	known := make(map[string]struct{}, len(rec.KnownWaypoints))
	for _, w := range rec.KnownWaypoints {
		known[w] = struct{}{}
	}
	return model.RobotProjection{
		RobotID:         robotID,
		Connected:       rec.Connected,
		BatteryPercent:  rec.BatteryPercent,
		Charging:        rec.Charging,
		CurrentLocation: rec.CurrentLocation,
		KnownWaypoints:  known,
		LastSeenAt:      rec.LastSeenAt,
	}
}

var _ ProjectionStore = (*BadgerProjectionStore)(nil)
