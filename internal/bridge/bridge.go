// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bridge exposes the launcher's operations as named channels that a
// renderer can invoke, plus the ollama-stream event subscription.
//
// Every transport goes through a Bridge: the terminal panel calls the typed
// helpers, the HTTP and WebSocket servers call Invoke with raw JSON
// arguments, and all of them subscribe to stream events with OnOllamaStream.
// Operations report failures inside their envelopes; Invoke itself only
// fails for an unknown channel, malformed arguments or a handler panic.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/rigrun-launcher/internal/envelope"
	"github.com/jeranaias/rigrun-launcher/internal/llm"
	"github.com/jeranaias/rigrun-launcher/internal/relay"
	"github.com/jeranaias/rigrun-launcher/internal/searxng"
	"github.com/jeranaias/rigrun-launcher/internal/surface"
)

// Channel names.
const (
	ChannelChat     = "chat-with-ollama"
	ChannelModels   = "get-ollama-models"
	ChannelSetModel = "set-current-model"
	ChannelSearch   = "search"
	ChannelEngines  = "get-engines"

	// EventChannel carries relay events to subscribers.
	EventChannel = relay.Channel
)

var (
	// ErrUnknownChannel is returned by Invoke for an unregistered channel.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrHandlerPanic wraps a panic recovered from a handler.
	ErrHandlerPanic = errors.New("handler panicked")
)

// ArgumentError reports arguments a handler could not decode or accept.
type ArgumentError struct {
	Channel string
	Err     error
}

func (e *ArgumentError) Error() string {
	return e.Err.Error()
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// IsArgumentError reports whether err came from rejected arguments.
func IsArgumentError(err error) bool {
	var ae *ArgumentError
	return errors.As(err, &ae)
}

// Handler serves one channel. The result is marshaled as-is by transports.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// ModelClient is the part of the assistant the bridge exposes.
type ModelClient interface {
	Chat(ctx context.Context, messages []llm.Message) envelope.Result[envelope.StreamStart]
	Models(ctx context.Context) envelope.Result[envelope.ModelList]
	SetModel(name string) envelope.ModelSwitch
}

// Searcher is the part of the search façade the bridge exposes.
type Searcher interface {
	Search(ctx context.Context, query string, engines ...string) envelope.Result[searxng.SearchResponse]
	Engines(ctx context.Context) envelope.Result[searxng.EngineList]
}

type subscriber struct {
	id string
	fn func(relay.Event)
}

// Bridge is safe for concurrent use.
type Bridge struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	subMu sync.RWMutex
	subs  []subscriber
}

// New creates a bridge serving the five launcher channels.
func New(model ModelClient, search Searcher, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		logger:   logger,
		handlers: make(map[string]Handler),
	}

	b.Handle(ChannelChat, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args ChatArgs
		if err := decodeArgs(raw, &args, &args.Messages); err != nil {
			return nil, &ArgumentError{Channel: ChannelChat, Err: err}
		}
		return model.Chat(ctx, args.Messages), nil
	})

	b.Handle(ChannelModels, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return model.Models(ctx), nil
	})

	b.Handle(ChannelSetModel, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args SetModelArgs
		if err := decodeArgs(raw, &args, &args.Name); err != nil {
			return nil, &ArgumentError{Channel: ChannelSetModel, Err: err}
		}
		if err := args.Validate(); err != nil {
			return nil, &ArgumentError{Channel: ChannelSetModel, Err: fmt.Errorf("invalid arguments: %w", err)}
		}
		return model.SetModel(args.Name), nil
	})

	b.Handle(ChannelSearch, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args SearchArgs
		if err := decodeArgs(raw, &args, &args.Query, &args.Engines); err != nil {
			return nil, &ArgumentError{Channel: ChannelSearch, Err: err}
		}
		if err := args.Validate(); err != nil {
			return nil, &ArgumentError{Channel: ChannelSearch, Err: fmt.Errorf("invalid arguments: %w", err)}
		}
		return search.Search(ctx, args.Query, args.Engines...), nil
	})

	b.Handle(ChannelEngines, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return search.Engines(ctx), nil
	})

	return b
}

// Handle registers or replaces the handler for channel.
func (b *Bridge) Handle(channel string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = h
}

// Channels returns the registered channel names, sorted.
func (b *Bridge) Channels() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.handlers))
	for name := range b.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke calls the handler for channel with JSON arguments.
func (b *Bridge) Invoke(ctx context.Context, channel string, args json.RawMessage) (result any, err error) {
	b.mu.RLock()
	h, ok := b.handlers[channel]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}

	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("panic in bridge handler", "channel", channel, "panic", rec)
			result, err = nil, fmt.Errorf("%w: %s: %v", ErrHandlerPanic, channel, rec)
		}
	}()

	result, err = h(ctx, args)
	if err != nil {
		b.logger.Error("error in bridge handler", "channel", channel, "error", err)
	}
	return result, err
}

// =============================================================================
// EVENT SUBSCRIPTIONS
// =============================================================================

// Attach forwards the window's ollama-stream events to subscribers. The
// returned function detaches it. Subscriptions survive window recreation;
// only attached, live windows deliver.
func (b *Bridge) Attach(w *surface.Window) (detach func()) {
	return w.On(EventChannel, func(payload any) {
		ev, ok := payload.(relay.Event)
		if !ok {
			return
		}
		b.dispatch(ev)
	})
}

// OnOllamaStream registers fn for stream events and returns a function that
// removes it. Calling the returned function more than once is harmless.
func (b *Bridge) OnOllamaStream(fn func(relay.Event)) (unsubscribe func()) {
	id := uuid.NewString()
	b.subMu.Lock()
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	b.subMu.Unlock()

	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		b.subs = slices.DeleteFunc(b.subs, func(s subscriber) bool { return s.id == id })
	}
}

// SubscriberCount returns the number of stream subscribers.
func (b *Bridge) SubscriberCount() int {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subs)
}

func (b *Bridge) dispatch(ev relay.Event) {
	b.subMu.RLock()
	subs := slices.Clone(b.subs)
	b.subMu.RUnlock()

	for _, s := range subs {
		b.deliver(s, ev)
	}
}

func (b *Bridge) deliver(s subscriber, ev relay.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("panic in stream subscriber", "subscriber", s.id, "panic", rec)
		}
	}()
	s.fn(ev)
}

// =============================================================================
// TYPED HELPERS
// =============================================================================

// ChatWithOllama starts a chat stream.
func (b *Bridge) ChatWithOllama(ctx context.Context, messages []llm.Message) (envelope.Result[envelope.StreamStart], error) {
	return invokeTyped[envelope.Result[envelope.StreamStart]](ctx, b, ChannelChat, ChatArgs{Messages: messages})
}

// GetOllamaModels lists installed models.
func (b *Bridge) GetOllamaModels(ctx context.Context) (envelope.Result[envelope.ModelList], error) {
	return invokeTyped[envelope.Result[envelope.ModelList]](ctx, b, ChannelModels, nil)
}

// SetCurrentModel selects the chat model.
func (b *Bridge) SetCurrentModel(ctx context.Context, name string) (envelope.ModelSwitch, error) {
	return invokeTyped[envelope.ModelSwitch](ctx, b, ChannelSetModel, SetModelArgs{Name: name})
}

// Search queries the search aggregator.
func (b *Bridge) Search(ctx context.Context, query string, engines ...string) (envelope.Result[searxng.SearchResponse], error) {
	return invokeTyped[envelope.Result[searxng.SearchResponse]](ctx, b, ChannelSearch, SearchArgs{Query: query, Engines: engines})
}

// GetEngines lists the aggregator's engines.
func (b *Bridge) GetEngines(ctx context.Context) (envelope.Result[searxng.EngineList], error) {
	return invokeTyped[envelope.Result[searxng.EngineList]](ctx, b, ChannelEngines, nil)
}

func invokeTyped[T any](ctx context.Context, b *Bridge, channel string, args any) (T, error) {
	var zero T
	var raw json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return zero, fmt.Errorf("encode %s arguments: %w", channel, err)
		}
		raw = data
	}

	result, err := b.Invoke(ctx, channel, raw)
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%s returned %T, want %T", channel, result, zero)
	}
	return typed, nil
}
