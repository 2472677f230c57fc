// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"fmt"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/ports"
)

// OpenStore constructs the configured Store backend. "sqlite" is the only
// durable backend; "memory" exists for tests and ephemeral dry runs.
func OpenStore(backend, path string) (ports.Store, error) {
	switch backend {
	case "sqlite":
		return NewSqliteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("store: unsupported backend %q", backend)
	}
}
