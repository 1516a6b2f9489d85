// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package relay republishes a model's fragment stream as ordered events on
// the launcher window.
//
// A relay emits one chunk event per fragment, in arrival order, each with
// the running concatenation of every fragment so far, followed by exactly
// one terminal event: end when the stream is exhausted, error when it fails.
// Events are delivered to whatever window is live at the moment of each
// emit; with no live window the event is dropped, never buffered.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jeranaias/rigrun-launcher/internal/envelope"
	"github.com/jeranaias/rigrun-launcher/internal/llm"
	"github.com/jeranaias/rigrun-launcher/internal/surface"
)

// DefaultIdleTimeout is the longest a stream may go without a fragment.
const DefaultIdleTimeout = 2 * time.Minute

// MsgUnknownStreamError is used when a failure carries no message.
const MsgUnknownStreamError = "Unknown streaming error"

// Locator finds the live window at emit time.
type Locator interface {
	Current() *surface.Window
}

// Outcome summarizes a finished relay.
type Outcome struct {
	Terminal  Event
	Chunks    int
	Delivered int // events that reached a live window
	Dropped   int // events emitted with no live window
}

// Err returns the terminal failure, or nil when the stream ended normally.
func (o Outcome) Err() error {
	if o.Terminal.Type == EventError {
		return errors.New(o.Terminal.Error)
	}
	return nil
}

// Relay consumes fragment streams. The zero value relays with no idle
// timeout and the default logger; Surface must be set.
type Relay struct {
	Surface     Locator
	IdleTimeout time.Duration // 0 disables the watchdog
	Logger      *slog.Logger
}

// New creates a relay publishing to loc.
func New(loc Locator, idleTimeout time.Duration, logger *slog.Logger) *Relay {
	return &Relay{Surface: loc, IdleTimeout: idleTimeout, Logger: logger}
}

func (r *Relay) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Run drains stream, publishing events as it goes, and returns once the
// terminal event has been emitted. The stream is always closed on return.
// Cancelling ctx closes the stream and ends the relay with an error event.
func (r *Relay) Run(ctx context.Context, id string, stream llm.FragmentStream) (out Outcome) {
	logger := r.logger().With("stream_id", id)
	terminated := false

	var stalled atomic.Bool
	var watchdog *time.Timer
	if r.IdleTimeout > 0 {
		watchdog = time.AfterFunc(r.IdleTimeout, func() {
			stalled.Store(true)
			stream.Close()
		})
	}
	stopCancelWatch := context.AfterFunc(ctx, func() { stream.Close() })

	defer func() {
		stopCancelWatch()
		if watchdog != nil {
			watchdog.Stop()
		}
		stream.Close()
	}()

	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		logger.Error("panic in stream relay", "panic", rec)
		if terminated {
			return
		}
		terminated = true
		r.terminate(&out, Event{Type: EventError, ID: id, Error: fmt.Sprintf("stream failed: %v", rec)})
	}()

	var acc strings.Builder
	for {
		frag, err := stream.Next()
		if err != nil {
			terminated = true
			if errors.Is(err, io.EOF) {
				logger.Debug("stream complete", "chunks", out.Chunks, "chars", acc.Len())
				r.terminate(&out, Event{Type: EventEnd, ID: id, Content: acc.String()})
				return out
			}

			msg := envelope.MessageOf(err)
			switch {
			case stalled.Load():
				msg = fmt.Sprintf("stream stalled: no response from model for %s", r.IdleTimeout)
			case ctx.Err() != nil:
				msg = "stream cancelled"
			case msg == "" || msg == envelope.UnknownMessage:
				msg = MsgUnknownStreamError
			}
			logger.Error("streaming error", "error", err, "chunks", out.Chunks)
			r.terminate(&out, Event{Type: EventError, ID: id, Error: msg})
			return out
		}

		if watchdog != nil {
			watchdog.Reset(r.IdleTimeout)
		}
		acc.WriteString(frag.Content)
		out.Chunks++
		r.emit(&out, Event{
			Type:               EventChunk,
			ID:                 id,
			Content:            frag.Content,
			AccumulatedContent: acc.String(),
		})
	}
}

func (r *Relay) terminate(out *Outcome, ev Event) {
	out.Terminal = ev
	r.emit(out, ev)
}

// emit looks the window up again for every event; it may have been
// destroyed or recreated since the last one.
func (r *Relay) emit(out *Outcome, ev Event) {
	var w *surface.Window
	if r.Surface != nil {
		w = r.Surface.Current()
	}
	if w != nil && w.Send(Channel, ev) {
		out.Delivered++
		return
	}
	out.Dropped++
}
