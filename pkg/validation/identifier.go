// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided identifiers that are used in
// file paths and key-value store keys. Using these validators prevents path
// traversal through stage ids and key-space collisions through session ids.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// stageIDPattern matches valid stage identifiers.
// Allows: lowercase letters, digits, hyphens, underscores.
// Max length: 64 characters. Stage ids become "<id>.yaml" file names,
// so separators and dots are rejected outright.
var stageIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,63}$`)

// sessionIDPattern matches valid session identifiers. Session ids are
// issued as UUIDs but resumed sessions arrive as client input, so the
// engine re-checks the shape before the id reaches a store key.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-]{0,63}$`)

// ValidateStageID validates a stage identifier before it is joined
// into a catalogue file path.
//
// Valid stage ids:
//   - 1-64 characters
//   - Lowercase letters a-z
//   - Digits 0-9
//   - Hyphens (-) and underscores (_) after the first character
//
// Returns an error if the id is invalid.
//
// Example:
//
//	if err := validation.ValidateStageID(stageID); err != nil {
//	    return nil, fmt.Errorf("invalid stage id: %w", err)
//	}
//	// Safe to use in filepath.Join
func ValidateStageID(stageID string) error {
	if stageID == "" {
		return fmt.Errorf("stage id cannot be empty")
	}

	if !stageIDPattern.MatchString(stageID) {
		return fmt.Errorf("invalid stage id format: %q (must be 1-64 lowercase alphanumeric chars, hyphens, or underscores)", stageID)
	}

	return nil
}

// ValidateSessionID validates a session identifier before it is used
// as a key segment in the progress store.
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	if !sessionIDPattern.MatchString(sessionID) {
		return fmt.Errorf("invalid session id format: %q (must be 1-64 alphanumeric chars or hyphens)", sessionID)
	}

	return nil
}

// SanitizeStageID normalizes and validates a stage identifier.
// Returns the lowercase trimmed id if valid, or an error if invalid.
func SanitizeStageID(stageID string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(stageID))
	if err := ValidateStageID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
