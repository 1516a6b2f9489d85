// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package envelope defines the uniform success/failure result returned by
// every launcher operation that crosses a component boundary.
//
// A Result is either a success carrying Data or a failure carrying a short,
// human-readable Message. Callers never receive raw lower-level errors.
package envelope

import (
	"errors"
	"fmt"
)

// TypeStreamStart tags the envelope returned when a chat stream is opened.
const TypeStreamStart = "stream-start"

// Result is the uniform result wrapper. Exactly one of Data and Message is
// populated, determined by Error.
type Result[T any] struct {
	Error   bool   `json:"error"`
	Type    string `json:"type,omitempty"`
	Data    *T     `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK wraps a successful value.
func OK[T any](data T) Result[T] {
	return Result[T]{Data: &data}
}

// Fail builds a failure with the given message.
func Fail[T any](message string) Result[T] {
	if message == "" {
		message = UnknownMessage
	}
	return Result[T]{Error: true, Message: message}
}

// Failf builds a failure from a format string.
func Failf[T any](format string, args ...any) Result[T] {
	return Fail[T](fmt.Sprintf(format, args...))
}

// UnknownMessage is used when a failure has no usable description.
const UnknownMessage = "An unknown error occurred"

// Classified is implemented by errors that already carry a user-facing
// message (search and runtime client errors).
type Classified interface {
	error
	UserMessage() string
}

// FromError converts err into a failure envelope. A Classified error
// contributes its user message; anything else contributes its text.
func FromError[T any](err error) Result[T] {
	return Fail[T](MessageOf(err))
}

// MessageOf returns the user-facing message for err.
func MessageOf(err error) string {
	if err == nil {
		return UnknownMessage
	}
	var c Classified
	if errors.As(err, &c) {
		return c.UserMessage()
	}
	return err.Error()
}

// Ok reports whether the result is a success.
func (r Result[T]) Ok() bool {
	return !r.Error
}

// Unwrap returns the data and nil, or the zero value and an error carrying
// the failure message.
func (r Result[T]) Unwrap() (T, error) {
	var zero T
	if r.Error {
		return zero, errors.New(r.Message)
	}
	if r.Data == nil {
		return zero, nil
	}
	return *r.Data, nil
}

// Validate checks the exclusivity invariant: error ⇔ message set ⇔ data unset.
func (r Result[T]) Validate() error {
	switch {
	case r.Error && r.Message == "":
		return errors.New("failure envelope without message")
	case r.Error && r.Data != nil:
		return errors.New("failure envelope carries data")
	case !r.Error && r.Message != "":
		return errors.New("success envelope carries message")
	case !r.Error && r.Data == nil:
		return errors.New("success envelope without data")
	}
	return nil
}

// =============================================================================
// PAYLOADS SHARED ACROSS THE BRIDGE
// =============================================================================

// StreamStart identifies a freshly opened chat stream.
type StreamStart struct {
	ID string `json:"id"`
}

// NewStreamStart builds the envelope returned by a chat call.
func NewStreamStart(id string) Result[StreamStart] {
	r := OK(StreamStart{ID: id})
	r.Type = TypeStreamStart
	return r
}

// ModelList is the set of model identifiers installed in the runtime.
type ModelList struct {
	Models []string `json:"models"`
}

// ModelSwitch is the reply to a model change. It always succeeds.
type ModelSwitch struct {
	Success      bool   `json:"success"`
	CurrentModel string `json:"currentModel"`
}
