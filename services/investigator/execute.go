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
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vigilops/vigil/services/coordinator/datatypes"
	"github.com/vigilops/vigil/services/coordinator/envelope"
	"github.com/vigilops/vigil/services/coordinator/sanitize"
	"github.com/vigilops/vigil/services/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("vigil.investigator")

const systemPrompt = `You are a senior fraud analyst at a financial institution.
You are given a flagged transaction, the sending account holder's details, and
their recent transaction history. Assess how likely the flagged transaction is
fraudulent.

Respond with ONLY a JSON object, no other text:
{"risk_score": <number from 0 to 10>, "justification": "<one or two sentences>"}`

// assessment is the model's verdict on the flagged transaction.
type assessment struct {
	RiskScore     float64 `json:"risk_score"`
	Justification string  `json:"justification"`
}

// handleExecute runs one investigation.
//
// # Description
//
//	Decodes the inbound envelope, enriches the alert with account data
//	from the gateway, prompts the model, and returns a structured case
//	file in a reply envelope. Gateway and model failures return 502 so
//	the coordinator's retry policy applies; a model reply that cannot be
//	reduced to an assessment returns the raw text for the coordinator to
//	classify.
func (s *Service) handleExecute(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "investigator.Execute")
	defer span.End()

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	env, err := envelope.Decode(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(attribute.String("vigil.correlation_id", env.CorrelationID))

	var alert datatypes.Alert
	if err := json.Unmarshal([]byte(env.Payload()), &alert); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("bad alert payload: %v", err)})
		return
	}

	user, err := s.gateway.GetUser(ctx, alert.FromAccountID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("gateway user lookup: %v", err)})
		return
	}
	history, err := s.gateway.TransactionHistory(ctx, alert.FromAccountID, s.config.HistoryLimit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("gateway history lookup: %v", err)})
		return
	}

	userJSON, _ := json.Marshal(user)
	historyJSON, _ := json.Marshal(history)
	alertJSON, _ := json.Marshal(alert)

	prompt := fmt.Sprintf(
		"Flagged transaction:\n%s\n\nAccount holder:\n%s\n\nRecent transactions (newest first):\n%s",
		alertJSON, userJSON, historyJSON)

	raw, err := s.model.Generate(ctx, systemPrompt, prompt, llm.GenerationParams{})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("model generation: %v", err)})
		return
	}

	payload := buildCaseFilePayload(raw, userJSON, historyJSON)

	reply, err := envelope.Encode(envelope.New("investigator", env.CorrelationID, payload))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", reply)
}

// buildCaseFilePayload merges the model's assessment with the gathered
// account data into the case file the coordinator expects. When the model
// output cannot be reduced to an assessment the raw text is passed through
// unchanged; the coordinator decides what an unusable reply means.
func buildCaseFilePayload(modelOutput string, userJSON, historyJSON []byte) string {
	var a assessment
	if err := sanitize.ExtractInto(modelOutput, &a); err != nil {
		return modelOutput
	}

	cf := datatypes.CaseFile{
		RiskScore:          a.RiskScore,
		Justification:      a.Justification,
		UserDetails:        json.RawMessage(userJSON),
		TransactionHistory: json.RawMessage(historyJSON),
	}
	out, err := json.Marshal(cf)
	if err != nil {
		return modelOutput
	}
	return string(out)
}
