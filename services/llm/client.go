// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the model backends shared by the investigator and
// reviewer services.
//
// Both services prompt a model for a single JSON object; the backends here
// only move text. Parsing and structural validation of model output belong
// to the caller (the sanitize package handles the messy part).
package llm

import (
	"context"
	"fmt"
)

// GenerationParams tunes a single generation request. Nil fields use the
// backend's defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Client defines the standard interface for any model backend.
type Client interface {
	// Generate produces a completion for the prompt under the given
	// system instruction. The system instruction carries the role's
	// analysis persona and output contract.
	Generate(ctx context.Context, system, prompt string, params GenerationParams) (string, error)
}

// NewClient builds the backend named by kind: "ollama" or "openai".
func NewClient(kind string) (Client, error) {
	switch kind {
	case "", "ollama":
		return NewOllamaClient()
	case "openai":
		return NewOpenAIClient()
	default:
		return nil, fmt.Errorf("unknown llm backend %q", kind)
	}
}
