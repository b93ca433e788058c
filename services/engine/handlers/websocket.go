// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/blueprint-sim/blueprint/services/engine/graph"
	"github.com/blueprint-sim/blueprint/services/engine/middleware"
	"github.com/blueprint-sim/blueprint/services/engine/observability"
	"github.com/blueprint-sim/blueprint/services/engine/progression"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// Per-collaborator mutation rate: sustained 20 edits/s, bursts of 40.
// Drag gestures in the canvas UI can emit edits quickly; anything past
// this is a runaway client.
const (
	wsMutationRate  = rate.Limit(20)
	wsMutationBurst = 40
)

// wsClient serializes writes to one websocket connection. Gorilla
// connections allow at most one concurrent writer.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		slog.Warn("websocket write failed", "error", err)
		return err
	}
	return nil
}

// wsEvaluationFrame pushes a settled evaluation result to the client.
type wsEvaluationFrame struct {
	Type   string                        `json:"type"`
	Result *progression.EvaluationResult `json:"result"`
}

// wsErrorFrame reports a rejected or malformed mutation. Code mirrors
// the REST status split: "conflict" for integrity rejections,
// "malformed" for shape errors, "rate_limited" for throttling.
type wsErrorFrame struct {
	Type          string `json:"type"`
	Code          string `json:"code"`
	Error         string `json:"error"`
	MissingNodeID string `json:"missing_node_id,omitempty"`
}

// SessionWebsocket handles GET /v1/sessions/:id/ws.
//
// The client sends mutation frames (same shape as the REST mutation
// payload) and receives an evaluation frame for every settled pass on
// the session, including passes triggered by other collaborators.
func SessionWebsocket(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := deps.Registry.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}

		source := "ws-" + uuid.New().String()[:8]
		if info := middleware.GetAuthInfo(c); info != nil {
			source = info.UserID
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "session", sess.ID, "error", err)
			return
		}
		client := &wsClient{conn: conn}
		defer conn.Close()

		observability.WebsocketClients.Inc()
		defer observability.WebsocketClients.Dec()
		slog.Info("collaborator connected", "session", sess.ID, "source", source)

		results := sess.Subscribe()
		defer sess.Unsubscribe(results)

		// Initial state so a late joiner sees the current board.
		if err := client.send(wsEvaluationFrame{Type: "state", Result: sess.Latest()}); err != nil {
			return
		}

		// Fan-out pump. Exits when the subscription closes (session
		// deleted or reaped) or the connection breaks.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for result := range results {
				if err := client.send(wsEvaluationFrame{Type: "evaluation", Result: result}); err != nil {
					return
				}
			}
			_ = client.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
				time.Now().Add(time.Second))
		}()

		limiter := rate.NewLimiter(wsMutationRate, wsMutationBurst)

		for {
			var req mutationRequest
			if err := conn.ReadJSON(&req); err != nil {
				slog.Info("collaborator disconnected", "session", sess.ID, "source", source, "error", err.Error())
				break
			}

			if !limiter.Allow() {
				if client.send(wsErrorFrame{Type: "error", Code: "rate_limited", Error: "mutation rate exceeded"}) != nil {
					break
				}
				continue
			}

			if err := checkMutationShape(&req); err != nil {
				observability.MutationsTotal.WithLabelValues(string(req.Op), "rejected").Inc()
				if client.send(wsErrorFrame{Type: "error", Code: "malformed", Error: err.Error()}) != nil {
					break
				}
				continue
			}

			if req.Source == "" {
				req.Source = source
			}
			op := graph.Mutation{Op: req.Op, Node: req.Node, Edge: req.Edge, TargetID: req.TargetID}

			before := sess.Latest()
			start := time.Now()
			result, err := sess.Apply(req.Source, op)
			if err != nil {
				observability.MutationsTotal.WithLabelValues(string(req.Op), "rejected").Inc()
				frame := wsErrorFrame{Type: "error", Code: "conflict", Error: err.Error()}
				var dangling *graph.DanglingEdgeError
				if errors.As(err, &dangling) {
					frame.MissingNodeID = dangling.MissingID
				}
				if client.send(frame) != nil {
					break
				}
				continue
			}

			observability.MutationsTotal.WithLabelValues(string(req.Op), "applied").Inc()
			observability.EvaluationsTotal.WithLabelValues(sess.StageID).Inc()
			observability.EvaluationDuration.WithLabelValues(sess.StageID).Observe(time.Since(start).Seconds())
			recordAchievements(sess, before, result)
		}

		conn.Close()
		<-done
	}
}
