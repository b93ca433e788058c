// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package progression drives requirement achievement, scoring and
// stage completion for live design sessions.
//
// # Description
//
// Each requirement moves through Hidden -> Visible(Unsatisfied) ->
// Visible(Satisfied) -> Achieved, and Achieved is terminal: once a
// player has satisfied a requirement they keep the points even if the
// design later regresses. Scoring is therefore monotonic, which is
// what lets re-evaluation run freely under concurrent collaborator
// edits: a duplicate or interleaved evaluation pass can only discover
// achievements, never undo them.
//
// # Thread Safety
//
// Tracker, Session and Registry are safe for concurrent use.
package progression

import (
	"sort"
	"sync"

	"github.com/blueprint-sim/blueprint/services/engine/catalog"
	"github.com/blueprint-sim/blueprint/services/engine/eval"
	"github.com/blueprint-sim/blueprint/services/engine/graph"
)

// Status is the live pass/fail state of a visible requirement against
// the evaluated snapshot. Independent of achievement: an achieved
// requirement can read Unsatisfied live (for hint display) without
// losing its points.
type Status string

const (
	StatusSatisfied   Status = "satisfied"
	StatusUnsatisfied Status = "unsatisfied"
)

// MessageKind classifies an emitted player-facing message.
type MessageKind string

const (
	MessageSuccess MessageKind = "success"
	MessageError   MessageKind = "error"
	MessageHint    MessageKind = "hint"
)

// Message is a player-facing message emitted by an evaluation pass.
type Message struct {
	RequirementID string      `json:"requirement_id"`
	Kind          MessageKind `json:"kind"`
	Text          string      `json:"text"`
}

// EvaluationResult is the settled outcome of one evaluation pass,
// exposed to the presentation layer and the persistence writer.
type EvaluationResult struct {
	StageID string `json:"stage_id"`

	// Seq is the graph sequence number the pass evaluated.
	Seq uint64 `json:"seq"`

	// Visible lists the currently visible requirements in display
	// order (priority, unlock_order, id).
	Visible []catalog.Requirement `json:"visible_requirements"`

	// Status maps visible requirement ids to their live state.
	Status map[string]Status `json:"per_requirement_status"`

	// Achieved is the sticky achieved set, sorted.
	Achieved []string `json:"achieved_requirement_ids"`

	// Score is the sum of points over achieved requirements.
	Score int `json:"score"`

	// Completed is true once every stage requirement is achieved.
	Completed bool `json:"completed"`

	Messages []Message `json:"messages_emitted,omitempty"`

	// Detail carries per-requirement evaluator diagnostics keyed by
	// requirement id, for tooling rather than players.
	Detail map[string]string `json:"detail,omitempty"`
}

// Tracker is the progression state machine for one stage session.
type Tracker struct {
	mu        sync.Mutex
	stage     *catalog.Stage
	estimator eval.Estimator

	achieved  map[string]bool
	score     int
	completed bool
}

// NewTracker creates a tracker over a loaded stage catalogue.
func NewTracker(stage *catalog.Stage, estimator eval.Estimator) *Tracker {
	return &Tracker{
		stage:     stage,
		estimator: estimator,
		achieved:  map[string]bool{},
	}
}

// Restore seeds the achieved set from persisted progress. Unknown ids
// are dropped; score is recomputed from the catalogue, keeping the
// score == sum-of-achieved-points invariant regardless of what was
// stored.
func (t *Tracker) Restore(achievedIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range achievedIDs {
		if req := t.stage.Requirement(id); req != nil && !t.achieved[id] {
			t.achieved[id] = true
			t.score += req.PointsValue
		}
	}
	t.completed = len(t.achieved) == len(t.stage.Requirements)
}

// Evaluate runs one full evaluation pass against a snapshot.
//
// # Description
//
// Repeats until settled: recompute visibility from the achieved set,
// evaluate every visible non-achieved requirement, fold new
// achievements into the score, and let them reveal further
// requirements transitively. The loop is bounded by catalogue size;
// cyclic prerequisites cannot occur here because the loader rejects
// them. Running Evaluate twice with no intervening mutation is a
// no-op for achieved set and score.
//
// Unsatisfied visible requirements emit their error/hint messages
// every pass; achievements emit their success message exactly once.
func (t *Tracker) Evaluate(snap *graph.Snapshot) *EvaluationResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	reqs := t.stage.Requirements
	var messages []Message

	// Achievement loop: each iteration either achieves at least one
	// new requirement or settles.
	for pass := 0; pass <= len(reqs); pass++ {
		progressed := false
		for i := range reqs {
			req := &reqs[i]
			if t.achieved[req.ID] || !catalog.IsVisible(req, t.achieved) {
				continue
			}
			res := eval.Evaluate(snap, req, t.estimator)
			if !res.Satisfied {
				continue
			}
			t.achieved[req.ID] = true
			t.score += req.PointsValue
			progressed = true
			if req.Messages.Success != "" {
				messages = append(messages, Message{
					RequirementID: req.ID, Kind: MessageSuccess, Text: req.Messages.Success,
				})
			}
		}
		if !progressed {
			break
		}
	}

	t.completed = len(t.achieved) == len(reqs)

	result := &EvaluationResult{
		StageID:   t.stage.ID,
		Seq:       snap.Seq,
		Status:    map[string]Status{},
		Score:     t.score,
		Completed: t.completed,
		Detail:    map[string]string{},
	}

	// Final visibility and live status. Achieved requirements are
	// re-evaluated for display only; a regression shows as
	// unsatisfied without touching the achieved set.
	for i := range reqs {
		req := &reqs[i]
		if !catalog.IsVisible(req, t.achieved) {
			continue
		}
		result.Visible = append(result.Visible, *req)

		res := eval.Evaluate(snap, req, t.estimator)
		if res.Satisfied {
			result.Status[req.ID] = StatusSatisfied
		} else {
			result.Status[req.ID] = StatusUnsatisfied
			if !t.achieved[req.ID] {
				if req.Messages.Error != "" {
					messages = append(messages, Message{
						RequirementID: req.ID, Kind: MessageError, Text: req.Messages.Error,
					})
				}
				if req.Messages.Hint != "" {
					messages = append(messages, Message{
						RequirementID: req.ID, Kind: MessageHint, Text: req.Messages.Hint,
					})
				}
			}
		}
		if res.Detail != "" {
			result.Detail[req.ID] = res.Detail
		}
	}

	result.Achieved = make([]string, 0, len(t.achieved))
	for id := range t.achieved {
		result.Achieved = append(result.Achieved, id)
	}
	sort.Strings(result.Achieved)
	result.Messages = messages

	return result
}

// Score returns the current score.
func (t *Tracker) Score() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.score
}

// Achieved reports whether a requirement has been achieved.
func (t *Tracker) Achieved(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.achieved[id]
}

// Completed reports whether every stage requirement is achieved.
func (t *Tracker) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}
