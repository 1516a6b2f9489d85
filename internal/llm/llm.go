// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm defines the narrow capability interface the launcher needs
// from a local model runtime, and the request/fragment shapes that cross it.
//
// Concrete runtimes live in package ollama (native API and the
// OpenAI-compatible endpoint). Nothing outside a runtime implementation
// sees provider-specific payloads.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Valid message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of the conversation history, passed to the runtime
// unmodified.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a streaming chat call.
type ChatRequest struct {
	Model    string
	Messages []Message
}

// Fragment is one incremental piece of a streamed answer.
type Fragment struct {
	Content string
}

// FragmentStream is a lazy, ordered sequence of fragments. Next returns
// io.EOF once the sequence is exhausted; any other error means the stream
// failed part way. Close releases the underlying connection and makes a
// blocked Next return.
type FragmentStream interface {
	Next() (Fragment, error)
	Close() error
}

// Runtime is everything the launcher asks of a model runtime.
type Runtime interface {
	// Ping reports whether the runtime is reachable.
	Ping(ctx context.Context) error
	// ListModels returns installed model identifiers.
	ListModels(ctx context.Context) ([]string, error)
	// Chat opens a streaming chat call.
	Chat(ctx context.Context, req ChatRequest) (FragmentStream, error)
}

var validRoles = map[string]bool{
	RoleSystem:    true,
	RoleUser:      true,
	RoleAssistant: true,
	RoleTool:      true,
}

// ErrEmptyHistory is returned for a chat call with no messages.
var ErrEmptyHistory = errors.New("conversation history is empty")

// ValidateMessages rejects empty histories and unknown roles.
func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return ErrEmptyHistory
	}
	for i, msg := range messages {
		if !validRoles[msg.Role] {
			return fmt.Errorf("invalid role '%s' at message %d: must be one of user, assistant, system, tool", msg.Role, i)
		}
	}
	return nil
}
