// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ports

import "errors"

// Store/link error kinds, matched with errors.Is at call sites.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation error")
	ErrInUse        = errors.New("in use")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("unavailable")
)
