// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package investigator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilops/vigil/services/coordinator/datatypes"
	"github.com/vigilops/vigil/services/coordinator/envelope"
	gatewayclient "github.com/vigilops/vigil/services/gateway/client"
	gwdatatypes "github.com/vigilops/vigil/services/gateway/datatypes"
	"github.com/vigilops/vigil/services/llm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeModel is a scripted llm.Client.
type fakeModel struct {
	reply string
	err   error
}

func (f *fakeModel) Generate(_ context.Context, _, _ string, _ llm.GenerationParams) (string, error) {
	return f.reply, f.err
}

// newGatewayStub serves the user and history lookups the investigator makes.
func newGatewayStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/users/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gwdatatypes.User{
			AccountID:   "acct-7",
			DisplayName: "Jo Doe",
			Status:      gwdatatypes.AccountStatusActive,
		})
	})
	mux.HandleFunc("/v1/accounts/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"transactions": []gwdatatypes.Transaction{
				{TransactionID: "tx-old", FromAccountID: "acct-7", Amount: 120},
			},
		})
	})
	return httptest.NewServer(mux)
}

// newTestService wires a Service around a stub gateway and scripted model,
// bypassing the network-touching constructor.
func newTestService(gatewayURL string, model llm.Client) *Service {
	s := &Service{
		config:  Config{HistoryLimit: 50},
		gateway: gatewayclient.New(gatewayURL),
		model:   model,
	}
	s.router = gin.New()
	s.router.POST("/v1/execute", s.handleExecute)
	return s
}

func postExecute(t *testing.T, s *Service, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/execute", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func alertEnvelope(t *testing.T) []byte {
	t.Helper()
	alert, err := json.Marshal(datatypes.Alert{
		TransactionID: "tx-1",
		FromAccountID: "acct-7",
		Amount:        5000,
	})
	require.NoError(t, err)
	body, err := envelope.Encode(envelope.New("investigator", "corr-1", string(alert)))
	require.NoError(t, err)
	return body
}

// =============================================================================
// handleExecute Tests
// =============================================================================

// TestHandleExecute_ReturnsStructuredCaseFile verifies the reply envelope
// carries a case file merging the model assessment with gateway data.
func TestHandleExecute_ReturnsStructuredCaseFile(t *testing.T) {
	gw := newGatewayStub(t)
	defer gw.Close()

	s := newTestService(gw.URL, &fakeModel{
		reply: `Here is my assessment: {"risk_score": 8.5, "justification": "large amount, new counterparty"}`,
	})

	w := postExecute(t, s, alertEnvelope(t))
	require.Equal(t, http.StatusOK, w.Code)

	env, err := envelope.Decode(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "investigator", env.Role)
	assert.Equal(t, "corr-1", env.CorrelationID)

	var cf datatypes.CaseFile
	require.NoError(t, json.Unmarshal([]byte(env.Payload()), &cf))
	assert.Equal(t, 8.5, cf.RiskScore)
	assert.Equal(t, "large amount, new counterparty", cf.Justification)
	assert.Contains(t, string(cf.UserDetails), "acct-7")
	assert.Contains(t, string(cf.TransactionHistory), "tx-old")
	assert.NoError(t, cf.Validate())
}

func TestHandleExecute_BadRequests(t *testing.T) {
	gw := newGatewayStub(t)
	defer gw.Close()

	s := newTestService(gw.URL, &fakeModel{reply: "{}"})

	tests := []struct {
		name string
		body []byte
	}{
		{name: "not an envelope", body: []byte("garbage")},
		{name: "alert payload not JSON", body: func() []byte {
			b, _ := envelope.Encode(envelope.New("investigator", "corr-1", "not json"))
			return b
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postExecute(t, s, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

// TestHandleExecute_GatewayDown verifies enrichment failures surface as 502
// so the coordinator's retry policy applies.
func TestHandleExecute_GatewayDown(t *testing.T) {
	s := newTestService("http://127.0.0.1:1", &fakeModel{reply: "{}"})

	w := postExecute(t, s, alertEnvelope(t))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandleExecute_ModelFailure(t *testing.T) {
	gw := newGatewayStub(t)
	defer gw.Close()

	s := newTestService(gw.URL, &fakeModel{err: context.DeadlineExceeded})

	w := postExecute(t, s, alertEnvelope(t))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

// TestHandleExecute_UnusableModelOutputPassedThrough verifies raw model text
// is forwarded when no assessment can be extracted; classification is the
// coordinator's job.
func TestHandleExecute_UnusableModelOutputPassedThrough(t *testing.T) {
	gw := newGatewayStub(t)
	defer gw.Close()

	s := newTestService(gw.URL, &fakeModel{reply: "I cannot assess this transaction."})

	w := postExecute(t, s, alertEnvelope(t))
	require.Equal(t, http.StatusOK, w.Code)

	env, err := envelope.Decode(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "I cannot assess this transaction.", env.Payload())
}

// =============================================================================
// buildCaseFilePayload Tests
// =============================================================================

func TestBuildCaseFilePayload(t *testing.T) {
	userJSON := []byte(`{"account_id": "acct-7"}`)
	historyJSON := []byte(`[{"transaction_id": "tx-old"}]`)

	t.Run("merges assessment with account data", func(t *testing.T) {
		out := buildCaseFilePayload(
			"```json\n{\"risk_score\": 7, \"justification\": \"pattern break\"}\n```",
			userJSON, historyJSON)

		var cf datatypes.CaseFile
		require.NoError(t, json.Unmarshal([]byte(out), &cf))
		assert.Equal(t, float64(7), cf.RiskScore)
		assert.JSONEq(t, string(userJSON), string(cf.UserDetails))
		assert.JSONEq(t, string(historyJSON), string(cf.TransactionHistory))
	})

	t.Run("passes raw text through on extraction failure", func(t *testing.T) {
		out := buildCaseFilePayload("no json at all", userJSON, historyJSON)
		assert.Equal(t, "no json at all", out)
	})
}
