// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilops/vigil/services/coordinator/collaborator"
	"github.com/vigilops/vigil/services/coordinator/ledger"
	"github.com/vigilops/vigil/services/coordinator/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedCaller replies with fixed decision objects per role.
type scriptedCaller struct {
	replies map[string]string
}

func (s *scriptedCaller) Call(_ context.Context, role, _ string, _ []byte, _ collaborator.CallConfig) (json.RawMessage, error) {
	reply, ok := s.replies[role]
	if !ok {
		return nil, collaborator.ErrUnknownRole
	}
	return json.RawMessage(reply), nil
}

// newBenignCoordinator returns a coordinator whose pipeline always resolves
// benign (low risk).
func newBenignCoordinator(t *testing.T) *pipeline.Coordinator {
	t.Helper()
	co, err := pipeline.NewCoordinator(pipeline.Config{RiskThreshold: 7}, pipeline.Deps{
		Caller: &scriptedCaller{replies: map[string]string{
			pipeline.RoleInvestigator: `{"risk_score": 2, "justification": "routine"}`,
			pipeline.RoleReviewer:     `{"verdict": "concur"}`,
		}},
		Ledger: ledger.NewMemoryLedger(),
	})
	require.NoError(t, err)
	return co
}

func newAlertRouter(co *pipeline.Coordinator) *gin.Engine {
	router := gin.New()
	router.POST("/v1/alerts", HandleAlert(co))
	router.GET("/v1/cases/:correlationId", GetCase(co))
	router.GET("/health", HealthCheck)
	return router
}

func postAlert(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/alerts", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// HandleAlert Tests
// =============================================================================

func TestHandleAlert_SyncReturnsTerminalCase(t *testing.T) {
	router := newAlertRouter(newBenignCoordinator(t))

	w := postAlert(router, `{
		"transaction_id": "tx-1",
		"from_account_id": "acct-7",
		"amount": 500,
		"correlation_id": "corr-1"
	}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp AlertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "corr-1", resp.CorrelationID)
	assert.Equal(t, "RESOLVED", resp.State)
	assert.Equal(t, "benign: risk below threshold", resp.Disposition)
	require.NotNil(t, resp.Case)
	assert.Equal(t, "tx-1", resp.Case.Alert.TransactionID)
}

func TestHandleAlert_GeneratesCorrelationID(t *testing.T) {
	router := newAlertRouter(newBenignCoordinator(t))

	w := postAlert(router, `{
		"transaction_id": "tx-1",
		"from_account_id": "acct-7",
		"amount": 500
	}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp AlertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.CorrelationID)
}

func TestHandleAlert_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "not JSON",
			body: "this is not json",
		},
		{
			name: "missing transaction id",
			body: `{"from_account_id": "acct-7", "amount": 500}`,
		},
		{
			name: "missing from account",
			body: `{"transaction_id": "tx-1", "amount": 500}`,
		},
		{
			name: "zero amount",
			body: `{"transaction_id": "tx-1", "from_account_id": "acct-7", "amount": 0}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newAlertRouter(newBenignCoordinator(t))
			w := postAlert(router, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

// TestHandleAlert_AsyncAccepted verifies async submission returns 202
// immediately and the case later reaches a terminal state.
func TestHandleAlert_AsyncAccepted(t *testing.T) {
	co := newBenignCoordinator(t)
	router := newAlertRouter(co)

	w := postAlert(router, `{
		"transaction_id": "tx-1",
		"from_account_id": "acct-7",
		"amount": 500,
		"correlation_id": "corr-async",
		"async": true
	}`)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp AlertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "corr-async", resp.CorrelationID)
	assert.Equal(t, "NEW", resp.State)

	// Background processing finishes shortly after.
	require.Eventually(t, func() bool {
		c, ok := co.Case("corr-async")
		return ok && pipeline.CaseState(c.State).IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)
}

// =============================================================================
// GetCase Tests
// =============================================================================

func TestGetCase_Unknown(t *testing.T) {
	router := newAlertRouter(newBenignCoordinator(t))

	req := httptest.NewRequest(http.MethodGet, "/v1/cases/no-such-id", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "unknown correlation id")
}

func TestGetCase_Known(t *testing.T) {
	co := newBenignCoordinator(t)
	router := newAlertRouter(co)

	postAlert(router, `{
		"transaction_id": "tx-1",
		"from_account_id": "acct-7",
		"amount": 500,
		"correlation_id": "corr-1"
	}`)

	req := httptest.NewRequest(http.MethodGet, "/v1/cases/corr-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"RESOLVED"`)
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	router := newAlertRouter(newBenignCoordinator(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

// =============================================================================
// Case Feed Tests
// =============================================================================

// TestHandleCaseFeed_StreamsTransitions verifies a websocket client receives
// case events as the pipeline advances.
func TestHandleCaseFeed_StreamsTransitions(t *testing.T) {
	co := newBenignCoordinator(t)
	router := gin.New()
	router.GET("/v1/cases/ws", HandleCaseFeed(co))
	router.POST("/v1/alerts", HandleAlert(co))

	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/cases/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the handler a moment to register its hub subscription.
	time.Sleep(50 * time.Millisecond)

	// Drive one alert through while the feed is attached.
	resp, err := http.Post(srv.URL+"/v1/alerts", "application/json", strings.NewReader(`{
		"transaction_id": "tx-1",
		"from_account_id": "acct-7",
		"amount": 500,
		"correlation_id": "corr-ws"
	}`))
	require.NoError(t, err)
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var states []string
	for len(states) < 3 {
		var ev pipeline.CaseEvent
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, "corr-ws", ev.CorrelationID)
		states = append(states, ev.State.String())
	}
	assert.Equal(t, []string{"INVESTIGATING", "CRITIQUING", "RESOLVED"}, states)
}
