// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package progression

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Clock abstracts time for the registry reaper so expiry tests can
// inject a fake.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// DefaultIdleTTL is how long a session may sit without mutations
// before the reaper discards it.
const DefaultIdleTTL = 2 * time.Hour

// Registry tracks live sessions by id and reaps idle ones.
//
// # Thread Safety
//
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	clock   Clock
	idleTTL time.Duration
}

// NewRegistry creates a registry. A zero idleTTL uses DefaultIdleTTL;
// a nil clock uses the system clock.
func NewRegistry(idleTTL time.Duration, clock Clock) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Registry{
		sessions: map[string]*Session{},
		clock:    clock,
		idleTTL:  idleTTL,
	}
}

// Put registers a session.
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Get returns a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete removes and closes a session. Returns false if unknown.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Reap removes every session idle past the TTL. Returns the number
// reaped.
func (r *Registry) Reap() int {
	cutoff := r.clock.Now().Add(-r.idleTTL)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.IdleSince().Before(cutoff) {
			delete(r.sessions, id)
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
		slog.Info("idle session reaped", "session_id", s.ID, "stage", s.StageID)
	}
	return len(expired)
}

// Run reaps on the given interval until the context is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Reap()
		}
	}
}
