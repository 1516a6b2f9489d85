// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assistant is the launcher's model client. It probes the model
// runtime once at startup, holds the selected model, and turns a chat call
// into a stream-start envelope plus a detached relay task.
//
// A failed probe is not fatal: the assistant stays uninitialized for the
// life of the process and every call answers with the not-initialized
// envelope.
package assistant

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/rigrun-launcher/internal/envelope"
	"github.com/jeranaias/rigrun-launcher/internal/llm"
	"github.com/jeranaias/rigrun-launcher/internal/relay"
	"github.com/jeranaias/rigrun-launcher/internal/tasks"
)

// MsgNotInitialized answers every call made without a reachable runtime or
// a live window.
const MsgNotInitialized = "Ollama is not initialized"

// DefaultInitTimeout bounds the startup probe.
const DefaultInitTimeout = 3 * time.Second

// Assistant is safe for concurrent use.
type Assistant struct {
	runtime     llm.Runtime
	relay       *relay.Relay
	scheduler   *tasks.Scheduler
	ids         *IDSource
	logger      *slog.Logger
	initTimeout time.Duration

	initialized atomic.Bool

	mu    sync.RWMutex
	model string
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithModel sets the initially selected model.
func WithModel(model string) Option {
	return func(a *Assistant) { a.model = model }
}

// WithInitTimeout bounds the startup probe.
func WithInitTimeout(d time.Duration) Option {
	return func(a *Assistant) {
		if d > 0 {
			a.initTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assistant) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithIDSource replaces the stream id source.
func WithIDSource(ids *IDSource) Option {
	return func(a *Assistant) {
		if ids != nil {
			a.ids = ids
		}
	}
}

// New creates an uninitialized assistant. Relays publish through rel and
// run on sched.
func New(rt llm.Runtime, rel *relay.Relay, sched *tasks.Scheduler, opts ...Option) *Assistant {
	a := &Assistant{
		runtime:     rt,
		relay:       rel,
		scheduler:   sched,
		ids:         NewIDSource(nil),
		logger:      slog.Default(),
		initTimeout: DefaultInitTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Init probes the runtime. On failure the error is logged and returned,
// and the assistant stays uninitialized.
func (a *Assistant) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.initTimeout)
	defer cancel()

	if err := a.runtime.Ping(ctx); err != nil {
		a.logger.Error("failed to initialize Ollama", "error", err)
		return err
	}
	a.initialized.Store(true)
	a.logger.Info("ollama initialized", "model", a.CurrentModel())
	return nil
}

// Initialized reports whether Init succeeded.
func (a *Assistant) Initialized() bool {
	return a.initialized.Load()
}

// ready reports whether calls may proceed: the runtime answered the probe
// and a window exists to receive events.
func (a *Assistant) ready() bool {
	if !a.initialized.Load() {
		return false
	}
	return a.relay.Surface != nil && a.relay.Surface.Current() != nil
}

// Chat opens a streaming call with the selected model and returns as soon
// as the runtime accepted it. Fragments are relayed to the window by a
// background task identified by the returned stream id.
func (a *Assistant) Chat(ctx context.Context, messages []llm.Message) envelope.Result[envelope.StreamStart] {
	if !a.ready() {
		return envelope.Fail[envelope.StreamStart](MsgNotInitialized)
	}
	if err := llm.ValidateMessages(messages); err != nil {
		return envelope.FromError[envelope.StreamStart](err)
	}

	model := a.CurrentModel()
	// The stream outlives the caller's request; the relay task owns it.
	stream, err := a.runtime.Chat(context.WithoutCancel(ctx), llm.ChatRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		a.logger.Error("ollama API error", "model", model, "error", err)
		return envelope.FromError[envelope.StreamStart](err)
	}

	id := a.ids.Next()
	_, err = a.scheduler.Go("relay "+id, func(taskCtx context.Context) error {
		return a.relay.Run(taskCtx, id, stream).Err()
	}, nil)
	if err != nil {
		stream.Close()
		return envelope.FromError[envelope.StreamStart](err)
	}

	a.logger.Debug("chat stream started", "stream_id", id, "model", model, "messages", len(messages))
	return envelope.NewStreamStart(id)
}

// Models lists installed models.
func (a *Assistant) Models(ctx context.Context) envelope.Result[envelope.ModelList] {
	if !a.ready() {
		return envelope.Fail[envelope.ModelList](MsgNotInitialized)
	}
	names, err := a.runtime.ListModels(ctx)
	if err != nil {
		a.logger.Error("error fetching Ollama models", "error", err)
		return envelope.FromError[envelope.ModelList](err)
	}
	if names == nil {
		names = []string{}
	}
	return envelope.OK(envelope.ModelList{Models: names})
}

// SetModel selects the model for later chats. It always succeeds; an empty
// name defers to the runtime's default model.
func (a *Assistant) SetModel(name string) envelope.ModelSwitch {
	a.mu.Lock()
	a.model = name
	a.mu.Unlock()
	a.logger.Info("model selected", "model", name)
	return envelope.ModelSwitch{Success: true, CurrentModel: name}
}

// CurrentModel returns the selected model.
func (a *Assistant) CurrentModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}
