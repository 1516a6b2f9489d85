// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package searxng

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorKind is the four-way classification of search failures.
type ErrorKind int

const (
	// KindOther covers failures that are neither transport nor status errors.
	KindOther ErrorKind = iota
	// KindRefused means nothing accepted the connection.
	KindRefused
	// KindStatus means the aggregator answered with a non-2xx status.
	KindStatus
	// KindNoResponse means the request was sent but no response arrived.
	KindNoResponse
)

// String returns the kind name used in logs.
func (k ErrorKind) String() string {
	switch k {
	case KindRefused:
		return "refused"
	case KindStatus:
		return "status"
	case KindNoResponse:
		return "no_response"
	default:
		return "other"
	}
}

// User-facing messages for the fixed classes.
const (
	MsgRefused    = "Could not connect to search service. Please make sure SearXNG is running."
	MsgNoResponse = "No response received from search service"
)

// Error is a classified search failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	StatusText string
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := e.UserMessage()
	if e.Cause != nil && e.Cause.Error() != msg {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// UserMessage returns the short message shown to the user.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindRefused:
		return MsgRefused
	case KindStatus:
		return "Search service error: " + strconv.Itoa(e.StatusCode) + " " + e.StatusText
	case KindNoResponse:
		return MsgNoResponse
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "An unknown error occurred"
}

// KindOf returns the classification of err, or KindOther.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindOther
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// classifyTransport classifies an error returned by http.Client.Do. Anything
// that is not a refused connection means the request left but nothing came
// back.
func classifyTransport(err error) *Error {
	if isRefused(err) {
		return &Error{Kind: KindRefused, Cause: err}
	}
	return &Error{Kind: KindNoResponse, Cause: err}
}

// statusError classifies a non-2xx response.
func statusError(resp *http.Response) *Error {
	text := http.StatusText(resp.StatusCode)
	if _, rest, ok := strings.Cut(resp.Status, " "); ok && rest != "" {
		text = rest
	}
	return &Error{Kind: KindStatus, StatusCode: resp.StatusCode, StatusText: text}
}

// otherError wraps a failure that happened outside the transport.
func otherError(err error) *Error {
	return &Error{Kind: KindOther, Message: err.Error(), Cause: err}
}

func isRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		msg := opErr.Err.Error()
		return strings.Contains(msg, "refused")
	}
	return false
}

// isTimeout reports whether err is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
