// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-launcher/internal/llm"
	"github.com/jeranaias/rigrun-launcher/internal/relay"
	"github.com/jeranaias/rigrun-launcher/internal/surface"
	"github.com/jeranaias/rigrun-launcher/internal/tasks"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type scriptedStream struct {
	frags []string
	fail  error
	pos   int
}

func (s *scriptedStream) Next() (llm.Fragment, error) {
	if s.pos < len(s.frags) {
		s.pos++
		return llm.Fragment{Content: s.frags[s.pos-1]}, nil
	}
	if s.fail != nil {
		return llm.Fragment{}, s.fail
	}
	return llm.Fragment{}, io.EOF
}

func (s *scriptedStream) Close() error { return nil }

type fakeRuntime struct {
	pingErr  error
	models   []string
	listErr  error
	chatErr  error
	frags    []string
	midFail  error
	mu       sync.Mutex
	requests []llm.ChatRequest
}

func (f *fakeRuntime) Ping(context.Context) error { return f.pingErr }

func (f *fakeRuntime) ListModels(context.Context) ([]string, error) {
	return f.models, f.listErr
}

func (f *fakeRuntime) Chat(_ context.Context, req llm.ChatRequest) (llm.FragmentStream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &scriptedStream{frags: f.frags, fail: f.midFail}, nil
}

func (f *fakeRuntime) lastRequest() llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fixture struct {
	assistant *Assistant
	ref       *surface.Ref
	sched     *tasks.Scheduler
	mu        sync.Mutex
	events    []relay.Event
}

func newFixture(t *testing.T, rt *fakeRuntime, withWindow bool) *fixture {
	t.Helper()
	f := &fixture{ref: &surface.Ref{}, sched: tasks.NewScheduler(nil)}
	if withWindow {
		w, _ := f.ref.Activate(func() *surface.Window { return surface.New(surface.DefaultOptions()) })
		w.On(relay.Channel, func(p any) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.events = append(f.events, p.(relay.Event))
		})
	}
	f.assistant = New(rt, relay.New(f.ref, 0, nil), f.sched, WithModel("qwen2.5"))
	t.Cleanup(func() { f.sched.Shutdown(context.Background()) })
	return f
}

func (f *fixture) waitForTerminal(t *testing.T) []relay.Event {
	t.Helper()
	var out []relay.Event
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.events) == 0 || !f.events[len(f.events)-1].Terminal() {
			return false
		}
		out = append([]relay.Event(nil), f.events...)
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return out
}

var hello = []llm.Message{{Role: llm.RoleUser, Content: "hello"}}

// =============================================================================
// INIT TESTS
// =============================================================================

func TestInit_FailureLeavesUninitialized(t *testing.T) {
	f := newFixture(t, &fakeRuntime{pingErr: errors.New("connection refused")}, true)

	require.Error(t, f.assistant.Init(context.Background()))
	assert.False(t, f.assistant.Initialized())

	chat := f.assistant.Chat(context.Background(), hello)
	assert.True(t, chat.Error)
	assert.Equal(t, MsgNotInitialized, chat.Message)
	assert.NoError(t, chat.Validate())

	models := f.assistant.Models(context.Background())
	assert.True(t, models.Error)
	assert.Equal(t, MsgNotInitialized, models.Message)
}

func TestInit_ProbeIsBounded(t *testing.T) {
	rt := &blockingRuntime{}
	a := New(rt, relay.New(&surface.Ref{}, 0, nil), tasks.NewScheduler(nil), WithInitTimeout(30*time.Millisecond))

	start := time.Now()
	err := a.Init(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

type blockingRuntime struct{ fakeRuntime }

func (b *blockingRuntime) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestChat_NoWindowIsNotInitialized(t *testing.T) {
	f := newFixture(t, &fakeRuntime{}, false)
	require.NoError(t, f.assistant.Init(context.Background()))

	res := f.assistant.Chat(context.Background(), hello)
	assert.True(t, res.Error)
	assert.Equal(t, MsgNotInitialized, res.Message)
}

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestChat_StreamsToWindow(t *testing.T) {
	rt := &fakeRuntime{frags: []string{"Hel", "lo", ", world"}}
	f := newFixture(t, rt, true)
	require.NoError(t, f.assistant.Init(context.Background()))

	res := f.assistant.Chat(context.Background(), hello)
	require.False(t, res.Error, res.Message)
	assert.Equal(t, "stream-start", res.Type)
	require.NotNil(t, res.Data)
	assert.NotEmpty(t, res.Data.ID)

	events := f.waitForTerminal(t)
	require.Len(t, events, 4)
	assert.Equal(t, relay.Event{Type: relay.EventEnd, ID: res.Data.ID, Content: "Hello, world"}, events[3])
	assert.Equal(t, "Hello", events[1].AccumulatedContent)

	req := rt.lastRequest()
	assert.Equal(t, "qwen2.5", req.Model)
	assert.Equal(t, hello, req.Messages)
}

func TestChat_MidStreamFailure(t *testing.T) {
	rt := &fakeRuntime{frags: []string{"Hel"}, midFail: errors.New("model runner crashed")}
	f := newFixture(t, rt, true)
	require.NoError(t, f.assistant.Init(context.Background()))

	res := f.assistant.Chat(context.Background(), hello)
	require.False(t, res.Error)

	events := f.waitForTerminal(t)
	require.Len(t, events, 2)
	assert.Equal(t, relay.EventChunk, events[0].Type)
	assert.Equal(t, relay.EventError, events[1].Type)
	assert.Equal(t, "model runner crashed", events[1].Error)
}

func TestChat_OpenFailureIsEnvelope(t *testing.T) {
	f := newFixture(t, &fakeRuntime{chatErr: errors.New("model 'x' not found")}, true)
	require.NoError(t, f.assistant.Init(context.Background()))

	res := f.assistant.Chat(context.Background(), hello)
	assert.True(t, res.Error)
	assert.Equal(t, "model 'x' not found", res.Message)
	assert.Nil(t, res.Data)
}

func TestChat_InvalidHistory(t *testing.T) {
	f := newFixture(t, &fakeRuntime{}, true)
	require.NoError(t, f.assistant.Init(context.Background()))

	tests := []struct {
		name     string
		messages []llm.Message
	}{
		{"empty", nil},
		{"bad role", []llm.Message{{Role: "root", Content: "x"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := f.assistant.Chat(context.Background(), tc.messages)
			assert.True(t, res.Error)
			assert.NotEmpty(t, res.Message)
			assert.NoError(t, res.Validate())
		})
	}
}

func TestChat_AfterShutdown(t *testing.T) {
	f := newFixture(t, &fakeRuntime{}, true)
	require.NoError(t, f.assistant.Init(context.Background()))
	require.NoError(t, f.sched.Shutdown(context.Background()))

	res := f.assistant.Chat(context.Background(), hello)
	assert.True(t, res.Error)
}

func TestChat_IDsAreUnique(t *testing.T) {
	f := newFixture(t, &fakeRuntime{}, true)
	require.NoError(t, f.assistant.Init(context.Background()))

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		res := f.assistant.Chat(context.Background(), hello)
		require.False(t, res.Error)
		assert.False(t, seen[res.Data.ID], "duplicate id %s", res.Data.ID)
		seen[res.Data.ID] = true
	}
}

// =============================================================================
// MODEL TESTS
// =============================================================================

func TestModels(t *testing.T) {
	f := newFixture(t, &fakeRuntime{models: []string{"qwen2.5", "llama3"}}, true)
	require.NoError(t, f.assistant.Init(context.Background()))

	res := f.assistant.Models(context.Background())
	require.False(t, res.Error)
	assert.Equal(t, []string{"qwen2.5", "llama3"}, res.Data.Models)
}

func TestModels_EmptyAndError(t *testing.T) {
	f := newFixture(t, &fakeRuntime{}, true)
	require.NoError(t, f.assistant.Init(context.Background()))
	res := f.assistant.Models(context.Background())
	require.False(t, res.Error)
	assert.Equal(t, []string{}, res.Data.Models)

	g := newFixture(t, &fakeRuntime{listErr: errors.New("boom")}, true)
	require.NoError(t, g.assistant.Init(context.Background()))
	res = g.assistant.Models(context.Background())
	assert.True(t, res.Error)
	assert.Equal(t, "boom", res.Message)
}

func TestSetModel_Idempotent(t *testing.T) {
	rt := &fakeRuntime{}
	f := newFixture(t, rt, true)
	require.NoError(t, f.assistant.Init(context.Background()))

	for i := 0; i < 2; i++ {
		sw := f.assistant.SetModel("llama3")
		assert.True(t, sw.Success)
		assert.Equal(t, "llama3", sw.CurrentModel)
		assert.Equal(t, "llama3", f.assistant.CurrentModel())
	}

	f.assistant.Chat(context.Background(), hello)
	assert.Equal(t, "llama3", rt.lastRequest().Model)
}

func TestSetModel_Concurrent(t *testing.T) {
	f := newFixture(t, &fakeRuntime{}, true)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "m" + strconv.Itoa(i)
			assert.Equal(t, name, f.assistant.SetModel(name).CurrentModel)
			_ = f.assistant.CurrentModel()
		}(i)
	}
	wg.Wait()
}

// =============================================================================
// ID SOURCE TESTS
// =============================================================================

func TestIDSource_StrictlyIncreasing(t *testing.T) {
	frozen := time.UnixMilli(1_700_000_000_000)
	ids := NewIDSource(func() time.Time { return frozen })

	assert.Equal(t, "1700000000000", ids.Next())
	assert.Equal(t, "1700000000001", ids.Next())
	assert.Equal(t, "1700000000002", ids.Next())
}

func TestIDSource_FollowsClock(t *testing.T) {
	now := time.UnixMilli(1000)
	ids := NewIDSource(func() time.Time { return now })

	assert.Equal(t, "1000", ids.Next())
	now = time.UnixMilli(5000)
	assert.Equal(t, "5000", ids.Next())
	// A clock that steps backwards still yields increasing ids.
	now = time.UnixMilli(10)
	assert.Equal(t, "5001", ids.Next())
}
