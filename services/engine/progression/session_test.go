// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package progression

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueprint-sim/blueprint/services/engine/graph"
)

// recordingWriter captures progress writes for assertions.
type recordingWriter struct {
	mu     sync.Mutex
	writes []SavedProgress
}

func (w *recordingWriter) WriteProgress(ctx context.Context, p SavedProgress) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, p)
	return nil
}

func (w *recordingWriter) last() (SavedProgress, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.writes) == 0 {
		return SavedProgress{}, false
	}
	return w.writes[len(w.writes)-1], true
}

// failingWriter always errors; gameplay must not notice.
type failingWriter struct{}

func (failingWriter) WriteProgress(ctx context.Context, p SavedProgress) error {
	return errors.New("store unavailable")
}

func TestSession_ApplyEvaluatesAndPersists(t *testing.T) {
	writer := &recordingWriter{}
	s := NewSession(dedicatedDatabaseStage(t), nil, writer)

	result, err := s.Apply("alice", node("db1", "database"))
	require.NoError(t, err)
	assert.Contains(t, result.Achieved, "req-db")
	assert.Equal(t, 20, result.Score)
	assert.Same(t, result, s.Latest())

	// Persistence is async; wait for the write to land.
	require.Eventually(t, func() bool {
		p, ok := writer.last()
		return ok && p.Score == 20
	}, 2*time.Second, 10*time.Millisecond)

	p, _ := writer.last()
	assert.Equal(t, s.ID, p.SessionID)
	assert.Equal(t, "stage-db", p.StageID)
	assert.Contains(t, p.AchievedRequirementIDs, "req-db")
}

func TestSession_RejectedMutationLeavesStateAlone(t *testing.T) {
	s := NewSession(dedicatedDatabaseStage(t), nil, nil)
	before := s.Latest()

	_, err := s.Apply("alice", graph.Mutation{Op: graph.OpAddEdge,
		Edge: &graph.Edge{ID: "e1", SourceID: "ghost", TargetID: "ghost2"}})

	var dangling *graph.DanglingEdgeError
	require.ErrorAs(t, err, &dangling)
	assert.Same(t, before, s.Latest())
	assert.Empty(t, s.Snapshot().Edges)
}

func TestSession_PersistenceFailureDoesNotBlockGameplay(t *testing.T) {
	s := NewSession(dedicatedDatabaseStage(t), nil, failingWriter{})

	result, err := s.Apply("alice", node("db1", "database"))
	require.NoError(t, err)
	assert.Equal(t, 20, result.Score)

	// The in-memory state stays authoritative.
	assert.True(t, s.tracker.Achieved("req-db"))
}

func TestSession_SubscribersReceiveResults(t *testing.T) {
	s := NewSession(dedicatedDatabaseStage(t), nil, nil)
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	_, err := s.Apply("alice", node("db1", "database"))
	require.NoError(t, err)

	select {
	case result := <-ch:
		assert.Contains(t, result.Achieved, "req-db")
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the evaluation result")
	}
}

func TestSession_CloseClosesSubscribers(t *testing.T) {
	s := NewSession(dedicatedDatabaseStage(t), nil, nil)
	ch := s.Subscribe()
	s.Close()

	_, open := <-ch
	assert.False(t, open, "subscriber channel should be closed")

	// Subscribing after close returns an already-closed channel.
	ch2 := s.Subscribe()
	_, open = <-ch2
	assert.False(t, open)
}

// TestSession_ConcurrentCollaborators hammers one session from two
// goroutines and verifies convergence: all accepted mutations land,
// score is consistent with the achieved set, nothing races.
func TestSession_ConcurrentCollaborators(t *testing.T) {
	s := NewSession(dedicatedDatabaseStage(t), nil, nil)

	var wg sync.WaitGroup
	for c := 0; c < 2; c++ {
		wg.Add(1)
		go func(collab int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := s.Apply(fmt.Sprintf("collab-%d", collab),
					node(fmt.Sprintf("n-%d-%d", collab, i), "database"))
				if err != nil {
					t.Errorf("apply failed: %v", err)
					return
				}
			}
		}(c)
	}
	wg.Wait()

	final := s.tracker.Evaluate(s.Snapshot())
	assert.Len(t, s.Snapshot().Nodes, 40)
	assert.Contains(t, final.Achieved, "req-db")
	assert.Equal(t, 20, final.Score)
	assert.Len(t, s.MutationLog(), 40)
}

// TestSession_StalePassNeverBecomesLatest forces the out-of-order
// interleaving two collaborators can produce: the pass over the newer
// snapshot reaches the tracker first, then the pass over the older one.
// The older pass must not end up as the recorded result, or Latest()
// (and the websocket state frame built from it) would report a removed
// node as satisfying its requirement until some future mutation.
func TestSession_StalePassNeverBecomesLatest(t *testing.T) {
	s := NewSession(dedicatedDatabaseStage(t), nil, nil)
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	snapAdd, err := s.model.Apply("alice", node("db1", "database"))
	require.NoError(t, err)
	snapRemove, err := s.model.Apply("bob", graph.Mutation{Op: graph.OpRemoveNode, TargetID: "db1"})
	require.NoError(t, err)

	s.evaluate(snapRemove)
	stale := s.evaluate(snapAdd)

	latest := s.Latest()
	assert.Equal(t, snapRemove.Seq, latest.Seq)
	assert.Equal(t, StatusUnsatisfied, latest.Status["req-db"])

	// The stale pass still returned to its caller, and its achievement
	// is sticky in the tracker even though its frame was dropped.
	assert.Equal(t, snapAdd.Seq, stale.Seq)
	assert.True(t, s.tracker.Achieved("req-db"))

	// Subscribers got the settled frame only, not the stale one.
	select {
	case result := <-ch:
		assert.Equal(t, snapRemove.Seq, result.Seq)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the evaluation result")
	}
	select {
	case result := <-ch:
		t.Fatalf("unexpected extra frame with seq %d", result.Seq)
	default:
	}
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry(0, nil)
	s := NewSession(dedicatedDatabaseStage(t), nil, nil)
	r.Put(s)

	got, ok := r.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Delete(s.ID))
	assert.False(t, r.Delete(s.ID))
	assert.Equal(t, 0, r.Len())
}

// fakeClock lets expiry tests move time by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRegistry_ReapsIdleSessions(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	r := NewRegistry(time.Hour, clock)

	idle := NewSession(dedicatedDatabaseStage(t), nil, nil)
	r.Put(idle)

	// Not yet expired.
	clock.advance(30 * time.Minute)
	assert.Equal(t, 0, r.Reap())
	assert.Equal(t, 1, r.Len())

	// A busy session on the same stage definition survives the
	// sweep that removes the idle one.
	busy := NewSession(dedicatedDatabaseStage(t), nil, nil)
	busy.clock = clock
	r.Put(busy)

	clock.advance(2 * time.Hour)
	_, err := busy.Apply("alice", node("db1", "database"))
	require.NoError(t, err)

	assert.Equal(t, 1, r.Reap())
	assert.Equal(t, 1, r.Len())
	_, ok := r.Get(busy.ID)
	assert.True(t, ok)

	// Reaped sessions are closed.
	ch := idle.Subscribe()
	_, open := <-ch
	assert.False(t, open)
}
