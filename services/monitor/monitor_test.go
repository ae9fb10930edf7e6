// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilops/vigil/services/gateway/datatypes"
)

// alertSink is a fake coordinator capturing submitted alerts.
type alertSink struct {
	mu     sync.Mutex
	alerts []map[string]any
	status int
}

func (s *alertSink) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		s.alerts = append(s.alerts, body)
		s.mu.Unlock()

		status := s.status
		if status == 0 {
			status = http.StatusAccepted
		}
		w.WriteHeader(status)
	}
}

func (s *alertSink) received() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// fakeGateway serves /v1/transactions/new from a fixed slice.
func fakeGateway(txns []datatypes.Transaction) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"transactions": txns})
	}))
}

func newTestMonitor(gatewayURL, coordinatorURL string) *Monitor {
	return New(Config{
		GatewayURL:      gatewayURL,
		CoordinatorURL:  coordinatorURL,
		PollInterval:    10 * time.Millisecond,
		AmountThreshold: 1000,
		Lookback:        time.Hour,
	})
}

// =============================================================================
// Poll Tests
// =============================================================================

// TestPoll_AlertsOnThresholdBreaches verifies only transactions at or above
// the threshold produce alerts.
func TestPoll_AlertsOnThresholdBreaches(t *testing.T) {
	now := time.Now().UTC()
	gw := fakeGateway([]datatypes.Transaction{
		{TransactionID: "tx-low", FromAccountID: "acct-1", Amount: 200, Timestamp: now},
		{TransactionID: "tx-exact", FromAccountID: "acct-2", Amount: 1000, Timestamp: now.Add(time.Second)},
		{TransactionID: "tx-high", FromAccountID: "acct-3", Amount: 9000, Timestamp: now.Add(2 * time.Second)},
	})
	defer gw.Close()

	sink := &alertSink{}
	coord := httptest.NewServer(sink.handler())
	defer coord.Close()

	m := newTestMonitor(gw.URL, coord.URL)
	require.NoError(t, m.poll(context.Background()))

	alerts := sink.received()
	require.Len(t, alerts, 2)
	assert.Equal(t, "tx-exact", alerts[0]["transaction_id"])
	assert.Equal(t, "tx-high", alerts[1]["transaction_id"])

	// Alerts use the coordinator's field names and request async handling.
	assert.Equal(t, "acct-3", alerts[1]["from_account_id"])
	assert.Equal(t, true, alerts[1]["async"])
	assert.NotEmpty(t, alerts[1]["correlation_id"])
	assert.Contains(t, alerts[1]["reason"], "threshold")
}

// TestPoll_AdvancesWatermark verifies the watermark moves to the newest
// transaction seen, including ones below the threshold.
func TestPoll_AdvancesWatermark(t *testing.T) {
	newest := time.Now().UTC().Add(time.Minute)
	gw := fakeGateway([]datatypes.Transaction{
		{TransactionID: "tx-1", Amount: 10, Timestamp: newest},
	})
	defer gw.Close()

	sink := &alertSink{}
	coord := httptest.NewServer(sink.handler())
	defer coord.Close()

	m := newTestMonitor(gw.URL, coord.URL)
	require.NoError(t, m.poll(context.Background()))

	assert.True(t, m.watermark.Equal(newest))
	assert.Empty(t, sink.received())
}

// TestPoll_DeterministicCorrelationID verifies the same transaction always
// maps to the same correlation id, making resubmission enforcement-safe.
func TestPoll_DeterministicCorrelationID(t *testing.T) {
	now := time.Now().UTC()
	txn := datatypes.Transaction{TransactionID: "tx-9", FromAccountID: "acct-1", Amount: 5000, Timestamp: now}

	gw := fakeGateway([]datatypes.Transaction{txn})
	defer gw.Close()

	sink := &alertSink{}
	coord := httptest.NewServer(sink.handler())
	defer coord.Close()

	m := newTestMonitor(gw.URL, coord.URL)
	require.NoError(t, m.poll(context.Background()))

	m2 := newTestMonitor(gw.URL, coord.URL)
	require.NoError(t, m2.poll(context.Background()))

	alerts := sink.received()
	require.Len(t, alerts, 2)
	assert.Equal(t, alerts[0]["correlation_id"], alerts[1]["correlation_id"],
		"correlation id must be a pure function of the transaction")
}

func TestPoll_GatewayDown(t *testing.T) {
	sink := &alertSink{}
	coord := httptest.NewServer(sink.handler())
	defer coord.Close()

	m := newTestMonitor("http://127.0.0.1:1", coord.URL)
	assert.Error(t, m.poll(context.Background()))
}

// TestPoll_CoordinatorRejectionDoesNotHalt verifies one failed submission
// does not stop the rest of the batch.
func TestPoll_CoordinatorRejectionDoesNotHalt(t *testing.T) {
	now := time.Now().UTC()
	gw := fakeGateway([]datatypes.Transaction{
		{TransactionID: "tx-1", Amount: 2000, Timestamp: now},
		{TransactionID: "tx-2", Amount: 3000, Timestamp: now.Add(time.Second)},
	})
	defer gw.Close()

	sink := &alertSink{status: http.StatusBadRequest}
	coord := httptest.NewServer(sink.handler())
	defer coord.Close()

	m := newTestMonitor(gw.URL, coord.URL)
	require.NoError(t, m.poll(context.Background()))

	assert.Len(t, sink.received(), 2, "both submissions must be attempted")
}

// =============================================================================
// Run Tests
// =============================================================================

func TestRun_StopsOnContextCancel(t *testing.T) {
	gw := fakeGateway(nil)
	defer gw.Close()

	m := newTestMonitor(gw.URL, "http://127.0.0.1:1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
