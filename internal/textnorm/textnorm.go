// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package textnorm normalizes free-text fields that cross the robot wire
// boundary or arrive from the cloud detection bus, before they are persisted
// or re-transmitted to a robot.
package textnorm

import "golang.org/x/text/unicode/norm"

// NFC returns s in Unicode Normalization Form C, so two visually identical
// strings that arrived with different combining-sequence encodings compare
// and store equal.
func NFC(s string) string {
	return norm.NFC.String(s)
}
