// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-launcher/internal/bridge"
	"github.com/jeranaias/rigrun-launcher/internal/config"
	"github.com/jeranaias/rigrun-launcher/internal/envelope"
	"github.com/jeranaias/rigrun-launcher/internal/llm"
	"github.com/jeranaias/rigrun-launcher/internal/ollama"
	"github.com/jeranaias/rigrun-launcher/internal/relay"
	"github.com/jeranaias/rigrun-launcher/internal/searxng"
	"github.com/jeranaias/rigrun-launcher/internal/surface"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type fragments struct {
	parts []string
	pos   int
}

func (s *fragments) Next() (llm.Fragment, error) {
	if s.pos >= len(s.parts) {
		return llm.Fragment{}, io.EOF
	}
	s.pos++
	return llm.Fragment{Content: s.parts[s.pos-1]}, nil
}

func (s *fragments) Close() error { return nil }

type stubRuntime struct {
	pingErr error
	parts   []string
}

func (r *stubRuntime) Ping(context.Context) error { return r.pingErr }

func (r *stubRuntime) ListModels(context.Context) ([]string, error) {
	return []string{"qwen2.5"}, nil
}

func (r *stubRuntime) Chat(context.Context, llm.ChatRequest) (llm.FragmentStream, error) {
	return &fragments{parts: r.parts}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newApp(t *testing.T, cfg *config.Config, rt llm.Runtime) *App {
	t.Helper()
	a, err := New(cfg, WithRuntime(rt), WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	return a
}

// =============================================================================
// CONSTRUCTION TESTS
// =============================================================================

func TestNewRuntime(t *testing.T) {
	tests := []struct {
		provider string
		wantType any
		wantErr  bool
	}{
		{config.ProviderOllama, &ollama.Client{}, false},
		{"", &ollama.Client{}, false},
		{config.ProviderOpenAI, &ollama.CompatClient{}, false},
		{"anthropic", nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.provider, func(t *testing.T) {
			rc := config.Default().Runtime
			rc.Provider = tc.provider
			rt, err := NewRuntime(rc, quietLogger())
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tc.wantType, rt)
		})
	}
}

func TestNew_RejectsBadHotkey(t *testing.T) {
	cfg := config.Default()
	cfg.Window.Hotkey = "ctrl+"
	_, err := New(cfg, WithRuntime(&stubRuntime{}))
	require.Error(t, err)
}

func TestWindowOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Window.Width = 500
	cfg.Window.VerticalOffset = 30
	a := newApp(t, cfg, &stubRuntime{})

	opts := a.WindowOptions()
	assert.Equal(t, 500, opts.Width)
	assert.Equal(t, 600, opts.Height)
	assert.Equal(t, 30, opts.VerticalOffset)
	assert.True(t, opts.AutoHide)
	assert.False(t, opts.Show)
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestStart_ChatStreamsToSubscribers(t *testing.T) {
	a := newApp(t, config.Default(), &stubRuntime{parts: []string{"Hel", "lo"}})
	require.NoError(t, a.Start(context.Background()))
	require.NotNil(t, a.Windows.Current())

	var mu sync.Mutex
	var got []relay.Event
	done := make(chan struct{})
	a.Bridge.OnOllamaStream(func(ev relay.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
		if ev.Terminal() {
			close(done)
		}
	})

	res, err := a.Bridge.Invoke(context.Background(), bridge.ChannelChat,
		json.RawMessage(`[[{"role":"user","content":"hi"}]]`))
	require.NoError(t, err)
	start := res.(envelope.Result[envelope.StreamStart])
	require.True(t, start.Ok())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)
	assert.Equal(t, relay.EventEnd, got[2].Type)
	assert.Equal(t, "Hello", got[2].AccumulatedContent)
	assert.Equal(t, start.Data.ID, got[2].ID)
}

func TestStart_RuntimeDownKeepsRunning(t *testing.T) {
	a := newApp(t, config.Default(), &stubRuntime{pingErr: errors.New("connection refused")})

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.False(t, a.Assistant.Initialized())
	assert.NotNil(t, a.Windows.Current())

	res := a.Assistant.Chat(context.Background(), []llm.Message{{Role: "user", Content: "hi"}})
	assert.False(t, res.Ok())
}

func TestActivate_ReusesLiveWindow(t *testing.T) {
	a := newApp(t, config.Default(), &stubRuntime{})

	w1 := a.Activate()
	assert.Same(t, w1, a.Activate())
	assert.Equal(t, 1, w1.ListenerCount(bridge.EventChannel))

	w1.Destroy()
	w2 := a.Activate()
	assert.NotSame(t, w1, w2)
	assert.Equal(t, 1, w2.ListenerCount(bridge.EventChannel))
}

func TestToggle(t *testing.T) {
	a := newApp(t, config.Default(), &stubRuntime{})

	a.Toggle(surface.Point{X: 500, Y: 300})
	w := a.Windows.Current()
	require.NotNil(t, w)
	assert.True(t, w.IsVisible())
	assert.Equal(t, surface.Bounds{X: 300, Y: 280, Width: 400, Height: 600}, w.Bounds())

	a.Toggle(surface.Point{X: 500, Y: 300})
	assert.False(t, w.IsVisible())
}

func TestClose_DestroysWindow(t *testing.T) {
	a := newApp(t, config.Default(), &stubRuntime{})
	w := a.Activate()

	require.NoError(t, a.Close(context.Background()))
	assert.True(t, w.IsDestroyed())
	assert.Nil(t, a.Windows.Current())
	require.NoError(t, a.Close(context.Background()))
}

// =============================================================================
// CONFIGURATION TESTS
// =============================================================================

func TestApplyConfig_SwapsSearchClient(t *testing.T) {
	var mu sync.Mutex
	var engines string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		engines = r.URL.Query().Get("engines")
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"query":"go","results":[]}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Search.URL = srv.URL
	var logs bytes.Buffer
	a, err := New(cfg, WithRuntime(&stubRuntime{}), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	defer a.Close(context.Background())
	before := a.SearchConfig()
	assert.Equal(t, []string{"google"}, before.DefaultEngines)

	next := a.Config().Clone()
	next.Search.DefaultEngines = []string{"duckduckgo", "bing"}
	next.Search.URL = "http://example.invalid:9999"
	next.Search.SearchTimeout = config.Duration(time.Minute)
	next.Search.ConfigTimeout = config.Duration(time.Minute)
	a.ApplyConfig(next)

	after := a.SearchConfig()
	assert.Equal(t, []string{"duckduckgo", "bing"}, after.DefaultEngines)
	assert.Equal(t, srv.URL, after.BaseURL, "url is fixed at startup")
	assert.Equal(t, before.SearchTimeout, after.SearchTimeout)
	assert.Equal(t, before.ConfigTimeout, after.ConfigTimeout)
	assert.Contains(t, logs.String(), "restart to apply")

	_, err = a.Bridge.Invoke(context.Background(), bridge.ChannelSearch, json.RawMessage(`["go"]`))
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "duckduckgo,bing", engines)
}

func TestApplyConfig_HotkeyAndListeners(t *testing.T) {
	a := newApp(t, config.Default(), &stubRuntime{})
	assert.Equal(t, "ctrl+a", a.Hotkey().String())

	var seen []*config.Config
	unsubscribe := a.OnConfigChange(func(c *config.Config) { seen = append(seen, c) })

	next := a.Config().Clone()
	next.Window.Hotkey = "alt+k"
	a.ApplyConfig(next)
	assert.Equal(t, "alt+k", a.Hotkey().String())
	require.Len(t, seen, 1)
	assert.Equal(t, "alt+k", seen[0].Window.Hotkey)

	unsubscribe()
	a.ApplyConfig(next)
	assert.Len(t, seen, 1)
}

func TestApplyConfig_StoresCopy(t *testing.T) {
	a := newApp(t, config.Default(), &stubRuntime{})
	next := a.Config().Clone()
	next.Window.Width = 640
	a.ApplyConfig(next)

	next.Window.Width = 1
	assert.Equal(t, 640, a.Config().Window.Width)
	assert.Equal(t, 640, a.WindowOptions().Width)
}

func TestWatchConfig_AppliesFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[window]\nhotkey = \"ctrl+a\"\n"), 0600))

	a := newApp(t, config.Default(), &stubRuntime{})
	require.NoError(t, a.WatchConfig(path))

	require.NoError(t, os.WriteFile(path, []byte("[window]\nhotkey = \"ctrl+k\"\n"), 0600))
	require.Eventually(t, func() bool {
		return a.Hotkey().String() == "ctrl+k"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestSearchSwitch_ImplementsSearcher(t *testing.T) {
	var _ bridge.Searcher = (*searchSwitch)(nil)

	s := &searchSwitch{}
	s.client.Store(searxng.NewClientWithConfig(&searxng.ClientConfig{BaseURL: "http://127.0.0.1:1"}))
	res := s.Search(context.Background(), "")
	assert.False(t, res.Ok())
}

func TestOnWindowCreated(t *testing.T) {
	a := newApp(t, config.Default(), &stubRuntime{})

	var created []*surface.Window
	unsubscribe := a.OnWindowCreated(func(w *surface.Window) { created = append(created, w) })

	w := a.Activate()
	a.Activate()
	require.Len(t, created, 1)
	assert.Same(t, w, created[0])
	assert.Same(t, w, a.CurrentWindow())

	unsubscribe()
	w.Destroy()
	a.Activate()
	assert.Len(t, created, 1)
}
