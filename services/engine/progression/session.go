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

	"github.com/google/uuid"

	"github.com/blueprint-sim/blueprint/services/engine/catalog"
	"github.com/blueprint-sim/blueprint/services/engine/eval"
	"github.com/blueprint-sim/blueprint/services/engine/graph"
)

// Session binds one shared graph, one tracker and one stage catalogue
// for a group of collaborators.
//
// # Description
//
// Mutations from any collaborator go through Apply: the graph accepts
// or rejects them synchronously, and every accepted mutation triggers
// an evaluation pass against the fresh snapshot. Subscribers (the
// websocket channel, tests) receive every settled EvaluationResult.
// A mutation arriving while another collaborator's pass is running
// simply produces its own pass afterward; the sticky achieved set
// makes interleaved passes idempotent.
//
// Progression writes are fire-and-forget on a background goroutine;
// persistence failures are logged, never surfaced to gameplay.
type Session struct {
	ID      string
	StageID string
	Stage   *catalog.Stage

	model   *graph.Model
	tracker *Tracker
	writer  StateWriter
	clock   Clock

	createdAt time.Time

	mu         sync.Mutex
	lastActive time.Time
	subs       map[chan *EvaluationResult]struct{}
	latest     *EvaluationResult
	closed     bool
}

// persistTimeout bounds a single fire-and-forget progress write.
const persistTimeout = 3 * time.Second

// NewSession creates a session for a stage with a fresh empty graph
// and runs the initial evaluation pass (initially visible requirements
// may already be satisfiable on an empty graph, e.g. absence
// assertions with prerequisites met).
func NewSession(stage *catalog.Stage, estimator eval.Estimator, writer StateWriter) *Session {
	if writer == nil {
		writer = NopWriter{}
	}
	clock := Clock(SystemClock{})
	now := clock.Now()
	s := &Session{
		ID:         uuid.New().String(),
		StageID:    stage.ID,
		Stage:      stage,
		model:      graph.NewModel(),
		tracker:    NewTracker(stage, estimator),
		writer:     writer,
		clock:      clock,
		createdAt:  now,
		lastActive: now,
		subs:       map[chan *EvaluationResult]struct{}{},
	}
	s.evaluate(s.model.Snapshot())
	return s
}

// Restore seeds the tracker with previously persisted achievements and
// re-runs the evaluation pass. Call before the session is shared with
// collaborators.
func (s *Session) Restore(achievedIDs []string) *EvaluationResult {
	s.tracker.Restore(achievedIDs)
	return s.evaluate(s.model.Snapshot())
}

// Apply validates and applies one mutation, then runs an evaluation
// pass against the resulting snapshot.
//
// # Outputs
//
//   - *EvaluationResult: the settled pass after the mutation; nil when
//     the mutation was rejected
//   - error: graph integrity error (the graph is unchanged)
func (s *Session) Apply(source string, op graph.Mutation) (*EvaluationResult, error) {
	snap, err := s.model.Apply(source, op)
	if err != nil {
		return nil, err
	}
	s.touch()
	return s.evaluate(snap), nil
}

// Latest returns the most recent settled evaluation result.
func (s *Session) Latest() *EvaluationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Snapshot returns the current graph snapshot.
func (s *Session) Snapshot() *graph.Snapshot {
	return s.model.Snapshot()
}

// MutationLog returns the session's applied-mutation log.
func (s *Session) MutationLog() []graph.AppliedMutation {
	return s.model.Log()
}

// Subscribe registers a result channel. Delivery is best-effort: a
// subscriber that falls behind misses intermediate passes, never
// blocks evaluation.
func (s *Session) Subscribe() chan *EvaluationResult {
	ch := make(chan *EvaluationResult, 8)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	s.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (s *Session) Unsubscribe(ch chan *EvaluationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// Close tears the session down and closes all subscriber channels.
// Used on stage reset; other sessions on the same stage definition are
// unaffected.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

// IdleSince returns the time of the last applied mutation (or session
// creation).
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.clock.Now()
	s.mu.Unlock()
}

// evaluate runs a tracker pass, records it, persists it and fans it
// out to subscribers.
//
// Passes from interleaved Apply calls can reach the tracker out of
// snapshot order. A pass over an older snapshot must not become the
// recorded/broadcast result: its live status describes a graph that no
// longer exists, and with no further mutation nothing would correct
// it. Such a pass still returns to its caller and still persists (the
// tracker's achieved set is current regardless of which snapshot the
// pass read).
func (s *Session) evaluate(snap *graph.Snapshot) *EvaluationResult {
	result := s.tracker.Evaluate(snap)

	s.mu.Lock()
	if s.latest != nil && result.Seq < s.latest.Seq {
		s.mu.Unlock()
		go s.persist(result)
		return result
	}
	s.latest = result
	if !s.closed {
		for ch := range s.subs {
			select {
			case ch <- result:
			default:
				// Subscriber is behind; it will catch up on the next
				// pass or via Latest().
			}
		}
	}
	s.mu.Unlock()

	go s.persist(result)
	return result
}

func (s *Session) persist(result *EvaluationResult) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	err := s.writer.WriteProgress(ctx, SavedProgress{
		StageID:                s.StageID,
		SessionID:              s.ID,
		AchievedRequirementIDs: result.Achieved,
		Score:                  result.Score,
		Completed:              result.Completed,
		UpdatedAt:              time.Now().UTC(),
	})
	if err != nil {
		// The in-memory state stays authoritative; the writer owns
		// retries.
		slog.Warn("progress write failed", "session_id", s.ID, "stage", s.StageID, "error", err)
	}
}
