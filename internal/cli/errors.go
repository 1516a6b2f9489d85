// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/rigrun-launcher/internal/config"
	"github.com/jeranaias/rigrun-launcher/internal/ollama"
	"github.com/jeranaias/rigrun-launcher/internal/ui/styles"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitNetworkError = 5
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a failed command with the message a user should see.
type CommandError struct {
	Command string
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Command, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ConfigError wraps a failure to load, validate or save the config.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "config: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// UsageError is a bad invocation.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// envelopeError turns a failed envelope into a CommandError.
func envelopeError(command, message string) error {
	return &CommandError{Command: command, Message: message}
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError prints err in the CLI's error format, or as a JSON response
// when jsonMode is set.
func DisplayError(w io.Writer, command string, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		_ = NewJSONErrorResponse(command, err).Write(w)
		return
	}
	label := styles.StatusIndicators.Error
	if ColorsEnabled() {
		label = errorStyle.Render(label)
	}
	fmt.Fprintf(w, "%s %v\n", label, err)
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		usageErr  *UsageError
		configErr *ConfigError
		clientErr *ollama.ClientError
	)
	switch {
	case errors.As(err, &usageErr), errors.Is(err, config.ErrUnknownKey):
		return ExitUsageError
	case errors.As(err, &configErr):
		return ExitConfigError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.As(err, &clientErr):
		if clientErr.Type == ollama.ErrTypeTimeout {
			return ExitTimeoutError
		}
		return ExitNetworkError
	}
	return ExitGeneralError
}
