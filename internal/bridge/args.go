// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/jeranaias/rigrun-launcher/internal/llm"
)

const (
	maxQueryLength     = 2048
	maxModelNameLength = 256
	maxEngines         = 32
)

var engineNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9 _.-]*$`)

// ChatArgs are the arguments of chat-with-ollama. History content is
// checked by the model client, which answers with an envelope.
type ChatArgs struct {
	Messages []llm.Message `json:"messages"`
}

// SetModelArgs are the arguments of set-current-model.
type SetModelArgs struct {
	Name string `json:"name"`
}

// SearchArgs are the arguments of search. Nil Engines means the default set.
type SearchArgs struct {
	Query   string   `json:"query"`
	Engines []string `json:"engines,omitempty"`
}

// Validate implements validation.Validatable.
func (a SetModelArgs) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Name, validation.Length(0, maxModelNameLength)),
	)
}

// Validate implements validation.Validatable.
func (a SearchArgs) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Query, validation.Length(0, maxQueryLength)),
		validation.Field(&a.Engines,
			validation.Length(0, maxEngines),
			validation.Each(
				validation.Required,
				validation.Length(1, 64),
				validation.Match(engineNamePattern).Error("must be a lowercase engine name"),
			),
		),
	)
}

// decodeArgs fills dst from either a positional JSON array, the shape
// renderer IPC calls use (e.g. ["rust async", ["google"]]), or a JSON object
// keyed by field name. Empty args leave dst at its zero value.
func decodeArgs(raw json.RawMessage, dst any, positional ...any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("malformed arguments: %w", err)
		}
		if len(items) > len(positional) {
			return fmt.Errorf("malformed arguments: expected at most %d, got %d", len(positional), len(items))
		}
		for i, item := range items {
			if err := json.Unmarshal(item, positional[i]); err != nil {
				return fmt.Errorf("malformed argument %d: %w", i, err)
			}
		}
		return nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("malformed arguments: %w", err)
	}
	return nil
}
