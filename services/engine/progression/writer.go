// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package progression

import (
	"context"
	"time"
)

// SavedProgress is the persistence payload for a session's progression
// state. The in-memory tracker remains authoritative for the live
// session regardless of write success.
type SavedProgress struct {
	StageID                string    `json:"stage_id"`
	SessionID              string    `json:"session_id"`
	AchievedRequirementIDs []string  `json:"achieved_requirement_ids"`
	Score                  int       `json:"score"`
	Completed              bool      `json:"completed"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// StateWriter receives progression snapshots for persistence. Writes
// are fire-and-forget from the engine's perspective: failures are
// logged by the caller and never block gameplay.
//
// Implementations must be safe for concurrent use.
type StateWriter interface {
	WriteProgress(ctx context.Context, progress SavedProgress) error
}

// StateReader loads previously persisted progress, used to resume a
// stage. Optional: writers that cannot read return a miss.
type StateReader interface {
	ReadProgress(ctx context.Context, stageID, sessionID string) (SavedProgress, bool, error)
}

// NopWriter discards all writes. Default when no store is configured.
type NopWriter struct{}

// WriteProgress discards the payload.
func (NopWriter) WriteProgress(ctx context.Context, progress SavedProgress) error { return nil }

var _ StateWriter = NopWriter{}
