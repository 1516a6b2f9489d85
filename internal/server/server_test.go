// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-launcher/internal/bridge"
	"github.com/jeranaias/rigrun-launcher/internal/envelope"
	"github.com/jeranaias/rigrun-launcher/internal/llm"
	"github.com/jeranaias/rigrun-launcher/internal/relay"
	"github.com/jeranaias/rigrun-launcher/internal/searxng"
	"github.com/jeranaias/rigrun-launcher/internal/surface"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type fakeModel struct{}

func (fakeModel) Chat(_ context.Context, _ []llm.Message) envelope.Result[envelope.StreamStart] {
	return envelope.NewStreamStart("1700000000000")
}

func (fakeModel) Models(context.Context) envelope.Result[envelope.ModelList] {
	return envelope.OK(envelope.ModelList{Models: []string{"qwen2.5", "llama3"}})
}

func (fakeModel) SetModel(name string) envelope.ModelSwitch {
	return envelope.ModelSwitch{Success: true, CurrentModel: name}
}

type fakeSearch struct{}

func (fakeSearch) Search(_ context.Context, query string, _ ...string) envelope.Result[searxng.SearchResponse] {
	if query == "down" {
		return envelope.Fail[searxng.SearchResponse]("SearXNG server is not running. Please start the SearXNG server first.")
	}
	return envelope.OK(searxng.SearchResponse{Query: query})
}

func (fakeSearch) Engines(context.Context) envelope.Result[searxng.EngineList] {
	return envelope.OK(searxng.EngineList{Engines: []string{"google"}})
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fixture struct {
	srv    *Server
	ts     *httptest.Server
	bridge *bridge.Bridge
	window *surface.Window
	ref    *surface.Ref
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := bridge.New(fakeModel{}, fakeSearch{}, logger)

	win := surface.New(surface.DefaultOptions())
	b.Attach(win)
	ref := &surface.Ref{}
	ref.Set(win)

	opts = append([]Option{WithLogger(logger), WithWindow(ref)}, opts...)
	srv := New(cfg, b, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.limiter.Stop()
	})
	return &fixture{srv: srv, ts: ts, bridge: b, window: win, ref: ref}
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// =============================================================================
// INVOKE TESTS
// =============================================================================

func TestInvoke_Channels(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 1000})

	tests := []struct {
		name    string
		channel string
		body    string
		check   func(t *testing.T, raw map[string]any)
	}{
		{
			name: "chat returns stream start", channel: bridge.ChannelChat,
			body: `[[{"role":"user","content":"hi"}]]`,
			check: func(t *testing.T, raw map[string]any) {
				assert.Equal(t, false, raw["error"])
				assert.Equal(t, envelope.TypeStreamStart, raw["type"])
				assert.Equal(t, "1700000000000", raw["data"].(map[string]any)["id"])
			},
		},
		{
			name: "models", channel: bridge.ChannelModels, body: ``,
			check: func(t *testing.T, raw map[string]any) {
				models := raw["data"].(map[string]any)["models"].([]any)
				assert.Len(t, models, 2)
			},
		},
		{
			name: "set model", channel: bridge.ChannelSetModel, body: `{"name":"llama3"}`,
			check: func(t *testing.T, raw map[string]any) {
				assert.Equal(t, true, raw["success"])
				assert.Equal(t, "llama3", raw["currentModel"])
			},
		},
		{
			name: "search failure stays in the envelope", channel: bridge.ChannelSearch, body: `["down"]`,
			check: func(t *testing.T, raw map[string]any) {
				assert.Equal(t, true, raw["error"])
				assert.Contains(t, raw["message"], "not running")
				assert.NotContains(t, raw, "data")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, "/api/invoke/"+tt.channel, tt.body)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var raw map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
			tt.check(t, raw)
		})
	}
}

func TestInvoke_TransportErrors(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 1000})
	f.bridge.Handle("explode", func(context.Context, json.RawMessage) (any, error) {
		panic("boom")
	})

	tests := []struct {
		name    string
		channel string
		body    string
		status  int
	}{
		{"unknown channel", "open-devtools", ``, http.StatusNotFound},
		{"malformed args", bridge.ChannelSearch, `{nope`, http.StatusBadRequest},
		{"invalid args", bridge.ChannelSearch, `["q", ["Not An Engine!"]]`, http.StatusBadRequest},
		{"handler panic", "explode", ``, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, "/api/invoke/"+tt.channel, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body ErrorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.status, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}

	stats := f.srv.Stats().Snapshot()
	assert.Equal(t, int64(4), stats.Invocations)
	assert.Equal(t, int64(4), stats.Failures)
}

func TestInvoke_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 1000})
	resp, err := http.Get(f.ts.URL + "/api/invoke/search")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestInvoke_RateLimited(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 1})

	limited := 0
	for i := 0; i < 10; i++ {
		resp := f.post(t, "/api/invoke/get-engines", ``)
		if resp.StatusCode == http.StatusTooManyRequests {
			limited++
			assert.Equal(t, "1", resp.Header.Get("Retry-After"))
		}
	}
	assert.Greater(t, limited, 0)
}

func TestChannelsEndpoint(t *testing.T) {
	f := newFixture(t, Config{})
	resp, err := http.Get(f.ts.URL + "/api/channels")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Channels []string `json:"channels"`
		Events   []string `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Channels, bridge.ChannelChat)
	assert.Equal(t, []string{relay.Channel}, body.Events)
}

// =============================================================================
// SSE TESTS
// =============================================================================

func TestEvents_StreamsRelayEvents(t *testing.T) {
	f := newFixture(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	f.window.Send(relay.Channel, relay.Event{Type: relay.EventChunk, ID: "7", Content: "He", AccumulatedContent: "He"})
	f.window.Send(relay.Channel, relay.Event{Type: relay.EventEnd, ID: "7", Content: "Hello"})

	var events []relay.Event
	for len(events) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var ev relay.Event
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(data)), &ev))
			events = append(events, ev)
		} else if strings.HasPrefix(line, "event: ") {
			assert.Equal(t, "event: ollama-stream\n", line)
		}
	}

	assert.Equal(t, relay.EventChunk, events[0].Type)
	assert.Equal(t, "He", events[0].AccumulatedContent)
	assert.Equal(t, relay.EventEnd, events[1].Type)
	assert.Equal(t, "Hello", events[1].Content)
}

// =============================================================================
// WEBSOCKET TESTS
// =============================================================================

func dialWS(t *testing.T, f *fixture, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/ws"
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var m map[string]any
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestWebSocket_InvokeAndEvents(t *testing.T) {
	f := newFixture(t, Config{AllowedOrigins: []string{"http://localhost:5173"}})

	conn, _, err := dialWS(t, f, "http://localhost:5173")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSRequest{ID: "a", Channel: bridge.ChannelSearch, Args: json.RawMessage(`["golang"]`)}))
	m := readFrame(t, conn)
	assert.Equal(t, WSTypeResult, m["type"])
	assert.Equal(t, "a", m["id"])
	assert.Equal(t, "golang", m["result"].(map[string]any)["data"].(map[string]any)["query"])

	require.NoError(t, conn.WriteJSON(WSRequest{ID: "b", Channel: "nope"}))
	m = readFrame(t, conn)
	assert.Equal(t, WSTypeError, m["type"])
	assert.Equal(t, "b", m["id"])
	assert.Contains(t, m["error"], "unknown channel")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{garbage")))
	m = readFrame(t, conn)
	assert.Equal(t, WSTypeError, m["type"])
	assert.Equal(t, "malformed request", m["error"])

	f.window.Send(relay.Channel, relay.Event{Type: relay.EventError, ID: "9", Error: "stream interrupted"})
	m = readFrame(t, conn)
	assert.Equal(t, WSTypeEvent, m["type"])
	assert.Equal(t, relay.Channel, m["channel"])
	ev := m["event"].(map[string]any)
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "stream interrupted", ev["error"])
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	f := newFixture(t, Config{AllowedOrigins: []string{"http://localhost:5173"}})

	_, resp, err := dialWS(t, f, "http://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocket_UnsubscribesOnClose(t *testing.T) {
	f := newFixture(t, Config{})

	conn, _, err := dialWS(t, f, "")
	require.NoError(t, err)

	// A round trip guarantees the subscription is in place.
	require.NoError(t, conn.WriteJSON(WSRequest{ID: "x", Channel: bridge.ChannelEngines}))
	readFrame(t, conn)
	assert.Equal(t, 1, f.bridge.SubscriberCount())

	conn.Close()
	assert.Eventually(t, func() bool { return f.bridge.SubscriberCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestDeliver_SlowClient(t *testing.T) {
	f := newFixture(t, Config{})
	out := make(chan relay.Event, 1)
	out <- relay.Event{Type: relay.EventChunk, ID: "1", Content: "a"}

	chunk := relay.Event{Type: relay.EventChunk, ID: "1", Content: "b"}
	deliver(f.srv, context.Background(), out, chunk, chunk, "sse")
	assert.Equal(t, int64(1), atomic.LoadInt64(&f.srv.stats.EventsDropped), "chunks are dropped when the client is behind")

	end := relay.Event{Type: relay.EventEnd, ID: "1", Content: "ab"}
	delivered := make(chan struct{})
	go func() {
		deliver(f.srv, context.Background(), out, end, end, "sse")
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("terminal event must wait for room, not be dropped")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, "a", (<-out).Content)
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("terminal event not delivered after the client caught up")
	}
	assert.Equal(t, relay.EventEnd, (<-out).Type)
	assert.Equal(t, int64(1), atomic.LoadInt64(&f.srv.stats.EventsDropped))
}

func TestDeliver_TerminalGivesUpWhenClientGone(t *testing.T) {
	f := newFixture(t, Config{})
	out := make(chan relay.Event, 1)
	out <- relay.Event{Type: relay.EventChunk, ID: "1"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ev := relay.Event{Type: relay.EventError, ID: "1", Error: "stream interrupted"}
	deliver(f.srv, ctx, out, ev, ev, "ws")
	assert.Equal(t, int64(1), atomic.LoadInt64(&f.srv.stats.EventsDropped))
}

// =============================================================================
// CORS TESTS
// =============================================================================

func TestCORS(t *testing.T) {
	f := newFixture(t, Config{AllowedOrigins: []string{"http://localhost:5173"}})

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"http://localhost:5173", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodOptions, f.ts.URL+"/api/invoke/search", nil)
			require.NoError(t, err)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			req.Header.Set("Access-Control-Request-Headers", "Content-Type")

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			if tt.allowed {
				assert.Equal(t, tt.origin, resp.Header.Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	assert.True(t, originAllowed(nil, ""))
	assert.True(t, originAllowed([]string{"*"}, "http://anything"))
	assert.True(t, originAllowed([]string{"http://localhost:5173"}, "http://LOCALHOST:5173"))
	assert.False(t, originAllowed([]string{"http://localhost:5173"}, "http://localhost:3000"))
}

// =============================================================================
// WINDOW AND HEALTH TESTS
// =============================================================================

func TestWindowEndpoint(t *testing.T) {
	f := newFixture(t, Config{})
	f.window.Toggle(surface.Point{X: 500, Y: 300})

	resp, err := http.Get(f.ts.URL + "/api/window")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap surface.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "visible", snap.State)
	assert.Equal(t, surface.Bounds{X: 300, Y: 280, Width: 400, Height: 600}, snap.Bounds)

	f.ref.Destroy()
	resp2, err := http.Get(f.ts.URL + "/api/window")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		status  string
		runtime string
	}{
		{"no runtime", nil, "ok", "not_configured"},
		{"runtime up", []Option{WithRuntime(fakePinger{})}, "ok", "ok"},
		{"runtime down", []Option{WithRuntime(fakePinger{err: errors.New("refused")})}, "degraded", "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{Version: "1.2.3"}, tt.opts...)
			resp, err := http.Get(f.ts.URL + "/health")
			require.NoError(t, err)
			defer resp.Body.Close()

			var h HealthResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
			assert.Equal(t, tt.status, h.Status)
			assert.Equal(t, tt.runtime, h.RuntimeStatus)
			assert.Equal(t, "1.2.3", h.Version)
			assert.True(t, h.Window)
		})
	}
}

// =============================================================================
// MIDDLEWARE TESTS
// =============================================================================

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil)))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("bad") }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mw("a"), mw("b"), mw("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "192.168.1.9:5555", "", "192.168.1.9"},
		{"untrusted forwarder ignored", "192.168.1.9:5555", "10.0.0.1", "192.168.1.9"},
		{"loopback forwarder honored", "127.0.0.1:5555", "10.0.0.1, 127.0.0.1", "10.0.0.1"},
		{"garbage header ignored", "127.0.0.1:5555", "not-an-ip", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	defer rl.Stop()

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}
