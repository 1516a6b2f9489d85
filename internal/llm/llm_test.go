// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"errors"
	"testing"
)

func TestValidateMessages(t *testing.T) {
	tests := []struct {
		name     string
		messages []Message
		wantErr  bool
	}{
		{"empty", nil, true},
		{"single user", []Message{{Role: RoleUser, Content: "hi"}}, false},
		{"full history", []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleTool, Content: "{}"},
		}, false},
		{"bad role", []Message{{Role: "admin", Content: "x"}}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateMessages(tc.messages)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateMessages() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}

	if !errors.Is(ValidateMessages(nil), ErrEmptyHistory) {
		t.Error("empty history should return ErrEmptyHistory")
	}
}
