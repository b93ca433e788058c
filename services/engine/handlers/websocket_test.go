// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueprint-sim/blueprint/services/engine/progression"
)

type wsFrame struct {
	Type          string                        `json:"type"`
	Code          string                        `json:"code,omitempty"`
	Error         string                        `json:"error,omitempty"`
	MissingNodeID string                        `json:"missing_node_id,omitempty"`
	Result        *progression.EvaluationResult `json:"result,omitempty"`
}

func dialSession(t *testing.T, deps Deps) (*websocket.Conn, string) {
	t.Helper()

	router := testRouter(deps)
	router.GET("/v1/sessions/:id/ws", SessionWebsocket(deps))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	sessionID := createSession(t, router)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + sessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn, sessionID
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame wsFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func TestSessionWebsocket_InitialStateFrame(t *testing.T) {
	conn, _ := dialSession(t, testDeps(t))

	frame := readFrame(t, conn)
	assert.Equal(t, "state", frame.Type)
	require.NotNil(t, frame.Result)
	assert.Equal(t, uint64(0), frame.Result.Seq)
}

func TestSessionWebsocket_MutationProducesEvaluationFrame(t *testing.T) {
	conn, _ := dialSession(t, testDeps(t))
	readFrame(t, conn) // initial state

	require.NoError(t, conn.WriteJSON(map[string]any{
		"op":   "add_node",
		"node": map[string]any{"id": "db1", "component_type_id": "database"},
	}))

	frame := readFrame(t, conn)
	assert.Equal(t, "evaluation", frame.Type)
	require.NotNil(t, frame.Result)
	assert.Equal(t, uint64(1), frame.Result.Seq)
	assert.Contains(t, frame.Result.Achieved, "req-db")
}

func TestSessionWebsocket_ConflictFrame(t *testing.T) {
	conn, _ := dialSession(t, testDeps(t))
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"op":   "add_edge",
		"edge": map[string]any{"id": "e1", "source_id": "ghost", "target_id": "ghost2"},
	}))

	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, "conflict", frame.Code)
	assert.NotEmpty(t, frame.MissingNodeID)
}

func TestSessionWebsocket_MalformedFrame(t *testing.T) {
	conn, _ := dialSession(t, testDeps(t))
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"op": "rename_node"}))

	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame.Type)
	assert.Equal(t, "malformed", frame.Code)
}

func TestSessionWebsocket_SecondCollaboratorSeesEdits(t *testing.T) {
	deps := testDeps(t)

	router := testRouter(deps)
	router.GET("/v1/sessions/:id/ws", SessionWebsocket(deps))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	sessionID := createSession(t, router)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + sessionID + "/ws"

	watcher, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = watcher.Close() })
	readFrame(t, watcher) // initial state

	// Edit arrives over REST from another collaborator.
	w := doJSON(t, router, "POST", "/v1/sessions/"+sessionID+"/mutations", addNodeBody("db1", "database"))
	require.Equal(t, 200, w.Code)

	frame := readFrame(t, watcher)
	assert.Equal(t, "evaluation", frame.Type)
	assert.Contains(t, frame.Result.Achieved, "req-db")
}

func TestSessionWebsocket_UnknownSession(t *testing.T) {
	deps := testDeps(t)
	router := testRouter(deps)
	router.GET("/v1/sessions/:id/ws", SessionWebsocket(deps))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
	_ = resp.Body.Close()
}
