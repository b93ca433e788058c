// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/blueprint-sim/blueprint/pkg/extensions"
	"github.com/blueprint-sim/blueprint/services/engine/graph"
	"github.com/blueprint-sim/blueprint/services/engine/middleware"
	"github.com/blueprint-sim/blueprint/services/engine/observability"
	"github.com/blueprint-sim/blueprint/services/engine/progression"
)

// mutationRequest is one graph edit from a collaborator. Source tags
// the editing client for the mutation log; it defaults to the
// authenticated user id.
type mutationRequest struct {
	Source   string       `json:"source,omitempty"`
	Op       graph.OpKind `json:"op" binding:"required"`
	Node     *graph.Node  `json:"node,omitempty"`
	Edge     *graph.Edge  `json:"edge,omitempty"`
	TargetID string       `json:"target_id,omitempty"`
}

// checkMutationShape rejects structurally malformed operations before
// they reach the graph, so clients get a 422 instead of a 409.
func checkMutationShape(req *mutationRequest) error {
	switch req.Op {
	case graph.OpAddNode:
		if req.Node == nil || req.Node.ID == "" || req.Node.ComponentTypeID == "" {
			return errors.New("add_node requires node with id and component_type_id")
		}
	case graph.OpAddEdge:
		if req.Edge == nil || req.Edge.ID == "" || req.Edge.SourceID == "" || req.Edge.TargetID == "" {
			return errors.New("add_edge requires edge with id, source_id and target_id")
		}
	case graph.OpRemoveNode, graph.OpRemoveEdge:
		if req.TargetID == "" {
			return errors.New(string(req.Op) + " requires target_id")
		}
	default:
		return errors.New("unknown op " + string(req.Op))
	}
	return nil
}

// PostMutation handles POST /v1/sessions/:id/mutations.
//
// On success the settled evaluation result for the new graph state is
// returned. Integrity rejections (duplicate ids, dangling edges,
// missing targets) map to 409 and leave the graph unchanged.
func PostMutation(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := deps.Registry.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}

		var req mutationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := checkMutationShape(&req); err != nil {
			observability.MutationsTotal.WithLabelValues(string(req.Op), "rejected").Inc()
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}

		source := req.Source
		if source == "" {
			if info := middleware.GetAuthInfo(c); info != nil {
				source = info.UserID
			} else {
				source = "anonymous"
			}
		}

		op := graph.Mutation{Op: req.Op, Node: req.Node, Edge: req.Edge, TargetID: req.TargetID}

		before := sess.Latest()
		start := time.Now()
		result, err := sess.Apply(source, op)
		if err != nil {
			observability.MutationsTotal.WithLabelValues(string(req.Op), "rejected").Inc()
			deps.audit(c, extensions.AuditEvent{
				EventType:    "mutation.rejected",
				ResourceType: "session",
				ResourceID:   sess.ID,
				Outcome:      "rejected",
				Metadata:     map[string]any{"op": string(req.Op), "reason": err.Error()},
			})

			var dangling *graph.DanglingEdgeError
			if errors.As(err, &dangling) {
				c.JSON(http.StatusConflict, gin.H{
					"error":           err.Error(),
					"missing_node_id": dangling.MissingID,
				})
				return
			}
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}

		observability.MutationsTotal.WithLabelValues(string(req.Op), "applied").Inc()
		observability.EvaluationsTotal.WithLabelValues(sess.StageID).Inc()
		observability.EvaluationDuration.WithLabelValues(sess.StageID).Observe(time.Since(start).Seconds())
		recordAchievements(sess, before, result)

		c.JSON(http.StatusOK, result)
	}
}

// recordAchievements diffs two evaluation results and bumps the
// achievement and completion counters for anything newly achieved.
func recordAchievements(sess *progression.Session, before, after *progression.EvaluationResult) {
	if after == nil {
		return
	}

	prior := map[string]bool{}
	if before != nil {
		for _, id := range before.Achieved {
			prior[id] = true
		}
	}
	for _, id := range after.Achieved {
		if prior[id] {
			continue
		}
		kind := ""
		if req := sess.Stage.Requirement(id); req != nil {
			kind = string(req.Kind)
		}
		observability.RequirementsAchievedTotal.WithLabelValues(sess.StageID, kind).Inc()
	}

	if after.Completed && (before == nil || !before.Completed) {
		observability.StagesCompletedTotal.WithLabelValues(sess.StageID).Inc()
	}
}
