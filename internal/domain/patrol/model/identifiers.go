// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "regexp"

var safeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

// IsSafeID reports whether a session/robot-serial/route-name style string is
// safe to use as a path segment, log field, and broker topic fragment.
func IsSafeID(id string) bool {
	return safeIDPattern.MatchString(id)
}
