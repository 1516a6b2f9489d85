// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package surface models the launcher's single popup window: its
// visibility state machine, cursor-relative placement, and the named
// channels the renderer listens on.
//
// A Window starts Hidden. Ready shows it only when Options.Show is set.
// Toggle hides a visible window, or moves a hidden one next to the pointer
// and shows and focuses it. Blur hides it when AutoHide is set. Destroy is
// terminal; a destroyed window ignores every call and drops every Send.
package surface

import (
	"fmt"
	"slices"
	"sync"
)

// State is the visibility state of a Window.
type State int

const (
	StateHidden State = iota
	StateVisible
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateHidden:
		return "hidden"
	case StateVisible:
		return "visible"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Point is a screen position.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Bounds is a window rectangle.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Options configures a Window.
type Options struct {
	Width          int
	Height         int
	Frameless      bool
	Transparent    bool
	Resizable      bool
	Show           bool // show as soon as the window is ready
	AutoHide       bool // hide on focus loss
	VerticalOffset int  // distance from the pointer to the top edge
}

// DefaultOptions returns the launcher's popup geometry.
func DefaultOptions() Options {
	return Options{
		Width:          400,
		Height:         600,
		Frameless:      true,
		Transparent:    true,
		Resizable:      false,
		Show:           false,
		AutoHide:       true,
		VerticalOffset: 20,
	}
}

// Place centers a width x height window horizontally on the pointer with its
// top edge offset above it.
func Place(pointer Point, width, height, offset int) Bounds {
	return Bounds{
		X:      pointer.X - width/2,
		Y:      pointer.Y - offset,
		Width:  width,
		Height: height,
	}
}

// Snapshot is a point-in-time view of a Window.
type Snapshot struct {
	State   string `json:"state"`
	Focused bool   `json:"focused"`
	Ready   bool   `json:"ready"`
	Bounds  Bounds `json:"bounds"`
}

// Listener receives payloads sent on a channel.
type Listener func(payload any)

// StateListener is told about every visibility change.
type StateListener func(state State, bounds Bounds)

// Window is the launcher popup. It is safe for concurrent use.
type Window struct {
	mu        sync.Mutex
	opts      Options
	state     State
	ready     bool
	focused   bool
	bounds    Bounds
	nextID    uint64
	listeners map[string]map[uint64]Listener
	observers map[uint64]StateListener
}

// New creates a hidden window.
func New(opts Options) *Window {
	return &Window{
		opts:      opts,
		state:     StateHidden,
		bounds:    Bounds{Width: opts.Width, Height: opts.Height},
		listeners: make(map[string]map[uint64]Listener),
		observers: make(map[uint64]StateListener),
	}
}

// Options returns the options the window was created with.
func (w *Window) Options() Options {
	return w.opts
}

// Ready marks the renderer as loaded and shows the window if Options.Show.
func (w *Window) Ready() {
	w.mu.Lock()
	if w.state == StateDestroyed || w.ready {
		w.mu.Unlock()
		return
	}
	w.ready = true
	if !w.opts.Show {
		w.mu.Unlock()
		return
	}
	w.state = StateVisible
	w.focused = true
	w.mu.Unlock()
	w.notify()
}

// Toggle hides a visible window, otherwise moves it next to pointer, shows
// and focuses it.
func (w *Window) Toggle(pointer Point) {
	w.mu.Lock()
	switch w.state {
	case StateDestroyed:
		w.mu.Unlock()
		return
	case StateVisible:
		w.state = StateHidden
		w.focused = false
	default:
		w.bounds = Place(pointer, w.bounds.Width, w.bounds.Height, w.opts.VerticalOffset)
		w.state = StateVisible
		w.focused = true
	}
	w.mu.Unlock()
	w.notify()
}

// Show makes the window visible and focused without moving it.
func (w *Window) Show() {
	w.setVisible(true)
}

// Hide hides the window.
func (w *Window) Hide() {
	w.setVisible(false)
}

func (w *Window) setVisible(visible bool) {
	w.mu.Lock()
	if w.state == StateDestroyed || (w.state == StateVisible) == visible {
		w.mu.Unlock()
		return
	}
	if visible {
		w.state = StateVisible
	} else {
		w.state = StateHidden
	}
	w.focused = visible
	w.mu.Unlock()
	w.notify()
}

// Blur records focus loss and hides the window when AutoHide is set.
func (w *Window) Blur() {
	w.mu.Lock()
	if w.state == StateDestroyed {
		w.mu.Unlock()
		return
	}
	w.focused = false
	if !w.opts.AutoHide || w.state != StateVisible {
		w.mu.Unlock()
		return
	}
	w.state = StateHidden
	w.mu.Unlock()
	w.notify()
}

// Destroy tears the window down and drops all listeners.
func (w *Window) Destroy() {
	w.mu.Lock()
	if w.state == StateDestroyed {
		w.mu.Unlock()
		return
	}
	w.state = StateDestroyed
	w.focused = false
	observers := w.observerList()
	bounds := w.bounds
	w.listeners = make(map[string]map[uint64]Listener)
	w.observers = make(map[uint64]StateListener)
	w.mu.Unlock()

	for _, fn := range observers {
		fn(StateDestroyed, bounds)
	}
}

// State returns the current visibility state.
func (w *Window) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// IsVisible reports whether the window is shown.
func (w *Window) IsVisible() bool {
	return w.State() == StateVisible
}

// IsDestroyed reports whether Destroy was called.
func (w *Window) IsDestroyed() bool {
	return w.State() == StateDestroyed
}

// IsFocused reports whether the window has focus.
func (w *Window) IsFocused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focused
}

// Bounds returns the current window rectangle.
func (w *Window) Bounds() Bounds {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bounds
}

// Snapshot returns the window state for reporting.
func (w *Window) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		State:   w.state.String(),
		Focused: w.focused,
		Ready:   w.ready,
		Bounds:  w.bounds,
	}
}

// Send delivers payload to every listener on channel, in registration
// order, on the caller's goroutine. It reports false when the window is
// destroyed and nothing was delivered.
func (w *Window) Send(channel string, payload any) bool {
	w.mu.Lock()
	if w.state == StateDestroyed {
		w.mu.Unlock()
		return false
	}
	fns := sortedListeners(w.listeners[channel])
	w.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
	return true
}

// On registers fn for channel and returns a function that removes it.
func (w *Window) On(channel string, fn Listener) (unsubscribe func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateDestroyed {
		return func() {}
	}
	w.nextID++
	id := w.nextID
	if w.listeners[channel] == nil {
		w.listeners[channel] = make(map[uint64]Listener)
	}
	w.listeners[channel][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			delete(w.listeners[channel], id)
		})
	}
}

// ListenerCount returns the number of listeners on channel.
func (w *Window) ListenerCount(channel string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.listeners[channel])
}

// OnStateChange registers fn for visibility changes.
func (w *Window) OnStateChange(fn StateListener) (unsubscribe func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateDestroyed {
		return func() {}
	}
	w.nextID++
	id := w.nextID
	w.observers[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.observers, id)
	}
}

func (w *Window) notify() {
	w.mu.Lock()
	state, bounds := w.state, w.bounds
	fns := w.observerList()
	w.mu.Unlock()

	for _, fn := range fns {
		fn(state, bounds)
	}
}

// observerList must be called with w.mu held.
func (w *Window) observerList() []StateListener {
	ids := make([]uint64, 0, len(w.observers))
	for id := range w.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]StateListener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, w.observers[id])
	}
	return fns
}

func sortedListeners(m map[uint64]Listener) []Listener {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m[id])
	}
	return fns
}
