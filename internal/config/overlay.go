// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
	"github.com/fleetguard/patrolcore/internal/log"
)

// SaveSettingsOverlay atomically persists the Store's settings map to a local
// cache file, which the daemon writes back into the Store at its next start
// (§12 supplemented feature: settings overlay
// persistence). The write is fsync'd and renamed into place; a crash
// mid-write never leaves a truncated file behind.
func SaveSettingsOverlay(path string, settings model.SettingsMap) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal settings overlay: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("config: create pending settings overlay: %w", err)
	}
	defer func() {
		if cerr := pending.Cleanup(); cerr != nil {
			log.WithComponent("config").Debug().Err(cerr).Msg("cleanup pending settings overlay")
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("config: write settings overlay: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("config: replace settings overlay: %w", err)
	}
	return nil
}

// LoadSettingsOverlay reads the last-persisted settings cache. A missing file
// is not an error: it means the process has never successfully reached the
// Store, and the caller should proceed with Config defaults alone.
func LoadSettingsOverlay(path string) (model.SettingsMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.SettingsMap{}, nil
		}
		return nil, fmt.Errorf("config: read settings overlay: %w", err)
	}
	var settings model.SettingsMap
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("config: parse settings overlay: %w", err)
	}
	return settings, nil
}

// ReconcileSettingsOverlay fetches the authoritative settings from the Store
// once it becomes reachable and re-persists the local cache, so the next
// restart starts from the true values rather than a stale overlay.
func ReconcileSettingsOverlay(ctx context.Context, store ports.Store, path string) (model.SettingsMap, error) {
	settings, err := store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("config: reconcile settings overlay: %w", err)
	}
	if err := SaveSettingsOverlay(path, settings); err != nil {
		log.WithComponent("config").Warn().Err(err).Msg("config: failed to persist reconciled settings overlay")
	}
	return settings, nil
}
