// Copyright (C) 2025 Vigil Systems (ops@vigilops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sanitize extracts the single JSON decision object the coordinator
// needs from the free-text replies of reasoning-capable collaborators.
//
// Description:
//
//	Model output routinely wraps the requested JSON in prose ("Here is my
//	answer: ..."), markdown code fences, or trailing commentary. This
//	package recovers the object without ever guessing at its contents:
//	absent fields stay absent and are handled by the caller's validation.
//
// Thread Safety: all functions are stateless and safe for concurrent use.
package sanitize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// UnparsableResponseError is returned when no JSON object could be extracted.
// Raw carries the original text for diagnostics and audit.
type UnparsableResponseError struct {
	Raw string
}

// Error implements the error interface.
func (e *UnparsableResponseError) Error() string {
	const max = 120
	raw := e.Raw
	if len(raw) > max {
		raw = raw[:max] + "..."
	}
	return fmt.Sprintf("unparsable response: no JSON object found in %q", raw)
}

// fenceRegex matches markdown code fence markers with an optional language
// tag, e.g. ```json or ```.
var fenceRegex = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")

// ExtractObject returns the first JSON object found in text.
//
// Description:
//
//	Extraction is attempted in order:
//	 1. If the whole text is a valid JSON object, it is returned verbatim
//	    (idempotent on clean input).
//	 2. Otherwise the first top-level balanced {...} span is located,
//	    respecting braces inside quoted strings, and parsed.
//	 3. If that fails, code fence markers are stripped and step 2 retried.
//
//	Deterministic and side-effect free. On failure the original text is
//	preserved inside the returned *UnparsableResponseError.
//
// Inputs:
//
//	text - Arbitrary collaborator reply.
//
// Outputs:
//
//	json.RawMessage - The extracted object, valid JSON.
//	error - *UnparsableResponseError if every attempt fails.
func ExtractObject(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)

	// Step 1: whole text already valid.
	if obj, ok := parseObject(trimmed); ok {
		return obj, nil
	}

	// Step 2: first balanced brace span.
	if span, ok := balancedSpan(trimmed); ok {
		if obj, ok := parseObject(span); ok {
			return obj, nil
		}
	}

	// Step 3: strip fences and rescan. Fences can split the object across
	// markers, so the scan runs on the joined remainder.
	defenced := strings.TrimSpace(fenceRegex.ReplaceAllString(trimmed, ""))
	if defenced != trimmed {
		if obj, ok := parseObject(defenced); ok {
			return obj, nil
		}
		if span, ok := balancedSpan(defenced); ok {
			if obj, ok := parseObject(span); ok {
				return obj, nil
			}
		}
	}

	return nil, &UnparsableResponseError{Raw: text}
}

// ExtractInto extracts the first JSON object and unmarshals it into v.
//
// Unknown fields in the object are ignored; missing fields are left at their
// zero value for the caller's validator to reject.
func ExtractInto(text string, v any) error {
	obj, err := ExtractObject(text)
	if err != nil {
		return err
	}
	return json.Unmarshal(obj, v)
}

// parseObject reports whether s is exactly one valid JSON object, compacted.
func parseObject(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	if !json.Valid([]byte(s)) {
		return nil, false
	}
	// Reject trailing garbage after a valid prefix: json.Valid already
	// requires the full string to be one value, so a compact is enough.
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, false
	}
	return json.RawMessage(buf.Bytes()), true
}

// balancedSpan returns the first top-level {...} span in s, honoring braces
// that appear inside quoted strings and backslash escapes.
func balancedSpan(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			if start >= 0 {
				inString = !inString
			}
		case '{':
			if !inString {
				if start < 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inString && start >= 0 {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}
