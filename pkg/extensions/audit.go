// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"time"
)

// AuditEvent records a security- or gameplay-relevant action.
//
// Events are categorized by type for filtering and alerting:
//   - Authentication: "auth.login", "auth.failed"
//   - Sessions: "session.create", "session.delete"
//   - Mutations: "mutation.applied", "mutation.rejected"
//   - Progression: "requirement.achieved", "stage.completed"
type AuditEvent struct {
	// EventType categorizes the event for filtering and alerting.
	// Format: "category.action" (e.g., "mutation.applied").
	EventType string

	// Timestamp is when the event occurred (always use UTC).
	// If zero, implementations should set it to time.Now().UTC().
	Timestamp time.Time

	// UserID identifies who performed the action.
	// Use "system" for automated actions.
	UserID string

	// ResourceType is the category of resource involved.
	// Examples: "session", "node", "edge", "requirement".
	ResourceType string

	// ResourceID is the specific resource instance (optional).
	ResourceID string

	// Outcome indicates the result of the action.
	// Values: "success", "failure", "rejected".
	Outcome string

	// Metadata holds additional event-specific data, such as the
	// rejection reason or the sequence number of an applied mutation.
	Metadata map[string]any
}

// AuditLogger records audit events for hosted classroom deployments.
//
// Implementations must be safe for concurrent use and must not block
// gameplay: slow sinks should buffer internally.
type AuditLogger interface {
	// Log records a single event. Failures are the implementation's
	// problem to surface; callers do not retry.
	Log(ctx context.Context, event AuditEvent) error
}

// NopAuditLogger discards all events. Default for local play.
type NopAuditLogger struct{}

// Log discards the event.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error { return nil }

var _ AuditLogger = (*NopAuditLogger)(nil)
