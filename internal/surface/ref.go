// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package surface

import (
	"sync"
	"sync/atomic"
)

// Ref holds the single live window. The zero value holds none.
type Ref struct {
	mu  sync.Mutex // serializes Activate
	win atomic.Pointer[Window]
}

// Set replaces the held window.
func (r *Ref) Set(w *Window) {
	r.win.Store(w)
}

// Current returns the live window, or nil if there is none or it was destroyed.
func (r *Ref) Current() *Window {
	w := r.win.Load()
	if w == nil || w.IsDestroyed() {
		return nil
	}
	return w
}

// Activate returns the live window, creating one with factory when none is
// alive. created reports whether factory ran.
func (r *Ref) Activate(factory func() *Window) (w *Window, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w := r.Current(); w != nil {
		return w, false
	}
	w = factory()
	r.win.Store(w)
	return w, true
}

// Destroy destroys the held window, if any, and clears the reference.
func (r *Ref) Destroy() {
	if w := r.win.Swap(nil); w != nil {
		w.Destroy()
	}
}
