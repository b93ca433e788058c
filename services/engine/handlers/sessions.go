// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/blueprint-sim/blueprint/pkg/extensions"
	"github.com/blueprint-sim/blueprint/pkg/validation"
	"github.com/blueprint-sim/blueprint/services/engine/catalog"
	"github.com/blueprint-sim/blueprint/services/engine/estimate"
	"github.com/blueprint-sim/blueprint/services/engine/middleware"
	"github.com/blueprint-sim/blueprint/services/engine/observability"
	"github.com/blueprint-sim/blueprint/services/engine/progression"
)

// Deps bundles the shared dependencies of the session handlers.
type Deps struct {
	Registry *progression.Registry
	Catalog  *catalog.Loader

	// Store persists progression state. Nil disables persistence.
	Store progression.StateWriter

	// Reader resumes persisted progression state. Nil disables resume.
	Reader progression.StateReader

	Audit extensions.AuditLogger
}

func (d Deps) audit(c *gin.Context, event extensions.AuditEvent) {
	if d.Audit == nil {
		return
	}
	if info := middleware.GetAuthInfo(c); info != nil {
		event.UserID = info.UserID
	}
	event.Timestamp = time.Now().UTC()
	if err := d.Audit.Log(c.Request.Context(), event); err != nil {
		slog.Warn("audit log failed", "event", event.EventType, "error", err)
	}
}

// createSessionRequest starts a stage. ResumeSessionID optionally
// restores persisted achievements from an earlier session on the same
// stage.
type createSessionRequest struct {
	StageID         string `json:"stage_id" binding:"required"`
	ResumeSessionID string `json:"resume_session_id,omitempty"`
}

type sessionResponse struct {
	SessionID string                        `json:"session_id"`
	StageID   string                        `json:"stage_id"`
	Result    *progression.EvaluationResult `json:"result"`
	Graph     *graphResponse                `json:"graph,omitempty"`
}

type graphResponse struct {
	Nodes int    `json:"node_count"`
	Edges int    `json:"edge_count"`
	Seq   uint64 `json:"seq"`
}

// CreateSession handles POST /v1/sessions.
//
// Loads the stage definition and component catalogue, builds the
// estimator, and registers a fresh session. Returns 404 for unknown
// stages and 422 for stage definitions that fail validation.
func CreateSession(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}

		stage, err := deps.Catalog.LoadStage(req.StageID)
		if err != nil {
			var cfgErr *catalog.ConfigError
			switch {
			case errors.As(err, &cfgErr):
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"error":           "stage definition invalid",
					"reason":          cfgErr.Reason,
					"requirement_ids": cfgErr.RequirementIDs,
				})
			case errors.Is(err, fs.ErrNotExist):
				c.JSON(http.StatusNotFound, gin.H{"error": "stage not found", "stage_id": req.StageID})
			default:
				slog.Error("stage load failed", "stage", req.StageID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stage"})
			}
			return
		}

		types, err := deps.Catalog.LoadComponentTypes()
		if err != nil {
			slog.Error("component catalogue load failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load component catalogue"})
			return
		}
		estimator := estimate.New(estimate.FromComponentTypes(types))

		resume := req.ResumeSessionID != "" && deps.Reader != nil
		if resume {
			// Checked before the session exists: a rejected resume id
			// must not leave behind an unregistered session (whose
			// initial pass would fire a progress write).
			if err := validation.ValidateSessionID(req.ResumeSessionID); err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
		}

		sess := progression.NewSession(stage, estimator, deps.Store)
		if resume {
			saved, found, err := deps.Reader.ReadProgress(c.Request.Context(), stage.ID, req.ResumeSessionID)
			if err != nil {
				slog.Warn("progress resume failed, starting fresh",
					"stage", stage.ID, "resume_session", req.ResumeSessionID, "error", err)
			} else if found {
				sess.Restore(saved.AchievedRequirementIDs)
			}
		}

		deps.Registry.Put(sess)
		observability.ActiveSessions.Set(float64(deps.Registry.Len()))
		deps.audit(c, extensions.AuditEvent{
			EventType:    "session.create",
			ResourceType: "session",
			ResourceID:   sess.ID,
			Outcome:      "success",
			Metadata:     map[string]any{"stage_id": stage.ID},
		})
		slog.Info("session created", "session", sess.ID, "stage", stage.ID)

		c.JSON(http.StatusCreated, sessionResponse{
			SessionID: sess.ID,
			StageID:   sess.StageID,
			Result:    sess.Latest(),
		})
	}
}

// GetSession handles GET /v1/sessions/:id.
func GetSession(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := deps.Registry.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}

		snap := sess.Snapshot()
		c.JSON(http.StatusOK, sessionResponse{
			SessionID: sess.ID,
			StageID:   sess.StageID,
			Result:    sess.Latest(),
			Graph: &graphResponse{
				Nodes: len(snap.Nodes),
				Edges: len(snap.Edges),
				Seq:   snap.Seq,
			},
		})
	}
}

// DeleteSession handles DELETE /v1/sessions/:id, resetting the stage.
func DeleteSession(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !deps.Registry.Delete(id) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}

		observability.ActiveSessions.Set(float64(deps.Registry.Len()))
		deps.audit(c, extensions.AuditEvent{
			EventType:    "session.delete",
			ResourceType: "session",
			ResourceID:   id,
			Outcome:      "success",
		})
		slog.Info("session deleted", "session", id)

		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": id})
	}
}
