// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app wires the launcher together: one model runtime, one search
// client, the stream relay, the window reference, the assistant and the
// bridge, all configured from a config.Config.
//
// Renderers (the terminal panel, the HTTP bridge server, one-shot CLI
// commands) only ever talk to App.Bridge and the window returned by
// App.Activate.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/jeranaias/rigrun-launcher/internal/assistant"
	"github.com/jeranaias/rigrun-launcher/internal/bridge"
	"github.com/jeranaias/rigrun-launcher/internal/config"
	"github.com/jeranaias/rigrun-launcher/internal/envelope"
	"github.com/jeranaias/rigrun-launcher/internal/llm"
	"github.com/jeranaias/rigrun-launcher/internal/ollama"
	"github.com/jeranaias/rigrun-launcher/internal/relay"
	"github.com/jeranaias/rigrun-launcher/internal/searxng"
	"github.com/jeranaias/rigrun-launcher/internal/surface"
	"github.com/jeranaias/rigrun-launcher/internal/tasks"
)

// App owns every long-lived launcher component.
type App struct {
	Runtime   llm.Runtime
	Scheduler *tasks.Scheduler
	Windows   *surface.Ref
	Relay     *relay.Relay
	Assistant *assistant.Assistant
	Bridge    *bridge.Bridge

	logger   *slog.Logger
	notifier searxng.Notifier
	search   *searchSwitch
	cfg      atomic.Pointer[config.Config]
	hotkey   atomic.Pointer[surface.Hotkey]

	configHooks hooks[*config.Config]
	windowHooks hooks[*surface.Window]

	mu      sync.Mutex
	detach  func()
	watcher *config.Watcher
	closed  bool
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRuntime replaces the runtime built from the config.
func WithRuntime(rt llm.Runtime) Option {
	return func(a *App) { a.Runtime = rt }
}

// WithNotifier replaces the search result notifier.
func WithNotifier(n searxng.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// New builds an App from cfg. Nothing touches the network until Start.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	hk, err := surface.ParseHotkey(cfg.Window.Hotkey)
	if err != nil {
		return nil, fmt.Errorf("hotkey: %w", err)
	}

	a := &App{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	a.cfg.Store(cfg.Clone())
	a.hotkey.Store(&hk)

	if a.Runtime == nil {
		rt, err := NewRuntime(cfg.Runtime, a.logger)
		if err != nil {
			return nil, err
		}
		a.Runtime = rt
	}

	a.search = &searchSwitch{}
	a.search.client.Store(a.newSearchClient(cfg.Search))

	a.Scheduler = tasks.NewScheduler(a.logger)
	a.Windows = &surface.Ref{}
	a.Relay = relay.New(a.Windows, cfg.Runtime.StreamIdleTimeout.Std(), a.logger)
	a.Assistant = assistant.New(a.Runtime, a.Relay, a.Scheduler,
		assistant.WithModel(cfg.Runtime.DefaultModel),
		assistant.WithInitTimeout(cfg.Runtime.InitTimeout.Std()),
		assistant.WithLogger(a.logger),
	)
	a.Bridge = bridge.New(a.Assistant, a.search, a.logger)
	return a, nil
}

// NewRuntime builds the model runtime client named by cfg.Provider.
func NewRuntime(cfg config.RuntimeConfig, logger *slog.Logger) (llm.Runtime, error) {
	cc := &ollama.ClientConfig{
		BaseURL:      cfg.URL,
		DefaultModel: cfg.DefaultModel,
		Autostart:    cfg.Autostart,
	}
	switch cfg.Provider {
	case config.ProviderOllama, "":
		return ollama.NewClientWithConfig(cc, ollama.WithLogger(logger)), nil
	case config.ProviderOpenAI:
		return ollama.NewCompatClient(cc), nil
	default:
		return nil, fmt.Errorf("unknown runtime provider %q", cfg.Provider)
	}
}

func (a *App) newSearchClient(cfg config.SearchConfig) *searxng.Client {
	opts := []searxng.Option{searxng.WithLogger(a.logger)}
	if a.notifier != nil {
		opts = append(opts, searxng.WithNotifier(a.notifier))
	}
	return searxng.NewClientWithConfig(&searxng.ClientConfig{
		BaseURL:        cfg.URL,
		SearchTimeout:  cfg.SearchTimeout.Std(),
		ConfigTimeout:  cfg.ConfigTimeout.Std(),
		DefaultEngines: slices.Clone(cfg.DefaultEngines),
	}, opts...)
}

// withDefaultEngines returns a client like the live one with only the
// default engines replaced.
func (a *App) withDefaultEngines(engines []string) *searxng.Client {
	cfg := a.search.client.Load().Config()
	cfg.DefaultEngines = slices.Clone(engines)
	opts := []searxng.Option{searxng.WithLogger(a.logger)}
	if a.notifier != nil {
		opts = append(opts, searxng.WithNotifier(a.notifier))
	}
	return searxng.NewClientWithConfig(&cfg, opts...)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start creates the window and probes the runtime. A failed probe is
// returned but leaves the app running: chat answers with the
// not-initialized envelope while search keeps working.
func (a *App) Start(ctx context.Context) error {
	a.Activate()
	return a.Assistant.Init(ctx)
}

// Activate returns the live window, creating, wiring and readying a new one
// when none is alive.
func (a *App) Activate() *surface.Window {
	w, created := a.Windows.Activate(func() *surface.Window {
		return surface.New(a.WindowOptions())
	})
	if !created {
		return w
	}

	a.mu.Lock()
	if a.detach != nil {
		a.detach()
	}
	a.detach = a.Bridge.Attach(w)
	a.mu.Unlock()

	w.Ready()
	a.logger.Debug("window created", "width", w.Options().Width, "height", w.Options().Height)
	a.windowHooks.run(w)
	return w
}

// CurrentWindow returns the live window, or nil when none is alive.
func (a *App) CurrentWindow() *surface.Window {
	return a.Windows.Current()
}

// Toggle is the global hotkey action: hide the window if it is visible,
// otherwise show it next to pointer.
func (a *App) Toggle(pointer surface.Point) {
	a.Activate().Toggle(pointer)
}

// WindowOptions derives window options from the current config.
func (a *App) WindowOptions() surface.Options {
	wc := a.Config().Window
	return surface.Options{
		Width:          wc.Width,
		Height:         wc.Height,
		Frameless:      wc.Frameless,
		Transparent:    wc.Transparent,
		Resizable:      wc.Resizable,
		Show:           wc.ShowOnReady,
		AutoHide:       wc.AutoHide,
		VerticalOffset: wc.VerticalOffset,
	}
}

// Close stops watching config, destroys the window and waits for running
// relays until ctx expires.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	w := a.watcher
	a.watcher = nil
	if a.detach != nil {
		a.detach()
		a.detach = nil
	}
	a.mu.Unlock()

	var errs []error
	if w != nil {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("config watcher: %w", err))
		}
	}
	a.Windows.Destroy()
	if err := a.Scheduler.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config returns the current configuration. Callers must not modify it.
func (a *App) Config() *config.Config {
	return a.cfg.Load()
}

// Hotkey returns the current global hotkey.
func (a *App) Hotkey() surface.Hotkey {
	return *a.hotkey.Load()
}

// Logger returns the app logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// ApplyConfig adopts cfg while running. Search settings and the hotkey take
// effect immediately; window geometry applies to the next window created;
// runtime changes need a restart and are only logged.
func (a *App) ApplyConfig(cfg *config.Config) {
	cfg = cfg.Clone()
	old := a.cfg.Swap(cfg)

	if !slices.Equal(old.Search.DefaultEngines, cfg.Search.DefaultEngines) {
		a.search.client.Store(a.withDefaultEngines(cfg.Search.DefaultEngines))
		a.logger.Info("default engines changed", "engines", cfg.Search.DefaultEngines)
	}
	if !searchFixedEqual(old.Search, cfg.Search) {
		a.logger.Warn("search url or timeouts changed; restart to apply")
	}

	if hk, err := surface.ParseHotkey(cfg.Window.Hotkey); err == nil {
		if prev := a.hotkey.Swap(&hk); *prev != hk {
			a.logger.Info("hotkey changed", "hotkey", hk.String())
		}
	}

	if old.Runtime != cfg.Runtime {
		a.logger.Warn("runtime settings changed; restart to apply")
	}

	a.configHooks.run(cfg)
}

// OnConfigChange registers fn to run after each applied config.
func (a *App) OnConfigChange(fn func(*config.Config)) (unsubscribe func()) {
	return a.configHooks.add(fn)
}

// OnWindowCreated registers fn to run each time Activate creates a window.
func (a *App) OnWindowCreated(fn func(*surface.Window)) (unsubscribe func()) {
	return a.windowHooks.add(fn)
}

// WatchConfig reloads path on change and applies each valid version.
func (a *App) WatchConfig(path string) error {
	w, err := config.Watch(path, a.ApplyConfig, a.logger)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return w.Close()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	a.watcher = w
	return nil
}

// searchFixedEqual compares the search settings fixed at startup.
func searchFixedEqual(a, b config.SearchConfig) bool {
	return a.URL == b.URL &&
		a.SearchTimeout == b.SearchTimeout &&
		a.ConfigTimeout == b.ConfigTimeout
}

// =============================================================================
// HOOKS
// =============================================================================

// hooks is a set of callbacks run in registration order.
type hooks[T any] struct {
	mu   sync.Mutex
	next int
	fns  []hook[T]
}

type hook[T any] struct {
	id int
	fn func(T)
}

func (h *hooks[T]) add(fn func(T)) (remove func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	h.fns = append(h.fns, hook[T]{id: id, fn: fn})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.fns = slices.DeleteFunc(h.fns, func(x hook[T]) bool { return x.id == id })
	}
}

func (h *hooks[T]) run(v T) {
	h.mu.Lock()
	fns := slices.Clone(h.fns)
	h.mu.Unlock()
	for _, x := range fns {
		x.fn(v)
	}
}

// =============================================================================
// SEARCH SWITCH
// =============================================================================

// searchSwitch forwards to the current search client so settings can be
// replaced without rebuilding the bridge.
type searchSwitch struct {
	client atomic.Pointer[searxng.Client]
}

func (s *searchSwitch) Search(ctx context.Context, query string, engines ...string) envelope.Result[searxng.SearchResponse] {
	return s.client.Load().Search(ctx, query, engines...)
}

func (s *searchSwitch) Engines(ctx context.Context) envelope.Result[searxng.EngineList] {
	return s.client.Load().Engines(ctx)
}

// SearchConfig returns the settings of the search client in use.
func (a *App) SearchConfig() searxng.ClientConfig {
	return a.search.client.Load().Config()
}
