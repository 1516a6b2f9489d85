// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-launcher/internal/envelope"
	"github.com/jeranaias/rigrun-launcher/internal/llm"
	"github.com/jeranaias/rigrun-launcher/internal/relay"
	"github.com/jeranaias/rigrun-launcher/internal/searxng"
	"github.com/jeranaias/rigrun-launcher/internal/surface"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type fakeModel struct {
	messages []llm.Message
	model    string
}

func (f *fakeModel) Chat(_ context.Context, messages []llm.Message) envelope.Result[envelope.StreamStart] {
	f.messages = messages
	return envelope.NewStreamStart("1")
}

func (f *fakeModel) Models(context.Context) envelope.Result[envelope.ModelList] {
	return envelope.OK(envelope.ModelList{Models: []string{"qwen2.5"}})
}

func (f *fakeModel) SetModel(name string) envelope.ModelSwitch {
	f.model = name
	return envelope.ModelSwitch{Success: true, CurrentModel: name}
}

type fakeSearch struct {
	query   string
	engines []string
}

func (f *fakeSearch) Search(_ context.Context, query string, engines ...string) envelope.Result[searxng.SearchResponse] {
	f.query, f.engines = query, engines
	return envelope.OK(searxng.SearchResponse{Query: query})
}

func (f *fakeSearch) Engines(context.Context) envelope.Result[searxng.EngineList] {
	return envelope.OK(searxng.EngineList{Engines: []string{"google", "bing"}})
}

func newBridge() (*Bridge, *fakeModel, *fakeSearch) {
	m, s := &fakeModel{}, &fakeSearch{}
	return New(m, s, nil), m, s
}

// =============================================================================
// INVOKE TESTS
// =============================================================================

func TestChannels(t *testing.T) {
	b, _, _ := newBridge()
	assert.Equal(t, []string{
		ChannelChat, ChannelEngines, ChannelModels, ChannelSearch, ChannelSetModel,
	}, b.Channels())
}

func TestInvoke_ArgumentShapes(t *testing.T) {
	tests := []struct {
		name        string
		args        string
		wantQuery   string
		wantEngines []string
	}{
		{"positional query only", `["rust async"]`, "rust async", nil},
		{"positional with engines", `["rust async", ["google","bing"]]`, "rust async", []string{"google", "bing"}},
		{"object", `{"query":"go","engines":["duckduckgo"]}`, "go", []string{"duckduckgo"}},
		{"empty", ``, "", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, _, s := newBridge()
			res, err := b.Invoke(context.Background(), ChannelSearch, json.RawMessage(tc.args))
			require.NoError(t, err)
			assert.IsType(t, envelope.Result[searxng.SearchResponse]{}, res)
			assert.Equal(t, tc.wantQuery, s.query)
			assert.Equal(t, tc.wantEngines, s.engines)
		})
	}
}

func TestInvoke_Chat(t *testing.T) {
	b, m, _ := newBridge()
	res, err := b.Invoke(context.Background(), ChannelChat,
		json.RawMessage(`[[{"role":"user","content":"hi"}]]`))
	require.NoError(t, err)

	env := res.(envelope.Result[envelope.StreamStart])
	assert.Equal(t, envelope.TypeStreamStart, env.Type)
	assert.Equal(t, []llm.Message{{Role: "user", Content: "hi"}}, m.messages)
}

func TestInvoke_Errors(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		args    string
		errSub  string
	}{
		{"unknown channel", "open-devtools", ``, "unknown channel"},
		{"not json", ChannelSearch, `{nope`, "malformed arguments"},
		{"too many positional", ChannelSetModel, `["a","b"]`, "expected at most 1"},
		{"wrong type", ChannelSetModel, `[42]`, "malformed argument 0"},
		{"bad engine", ChannelSearch, `["q", ["Google!"]]`, "invalid arguments"},
		{"empty engine", ChannelSearch, `["q", [""]]`, "invalid arguments"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, _, _ := newBridge()
			res, err := b.Invoke(context.Background(), tc.channel, json.RawMessage(tc.args))
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Contains(t, err.Error(), tc.errSub)
			if tc.channel != "open-devtools" {
				assert.True(t, IsArgumentError(err))
			}
		})
	}
}

func TestInvoke_UnknownChannelIsSentinel(t *testing.T) {
	b, _, _ := newBridge()
	_, err := b.Invoke(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestInvoke_HandlerPanic(t *testing.T) {
	b, _, _ := newBridge()
	b.Handle("explode", func(context.Context, json.RawMessage) (any, error) { panic("kaboom") })

	_, err := b.Invoke(context.Background(), "explode", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandlerPanic)
	assert.Contains(t, err.Error(), "kaboom")
}

// =============================================================================
// TYPED HELPER TESTS
// =============================================================================

func TestTypedHelpers(t *testing.T) {
	b, m, s := newBridge()
	ctx := context.Background()

	start, err := b.ChatWithOllama(ctx, []llm.Message{{Role: "user", Content: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "1", start.Data.ID)

	models, err := b.GetOllamaModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen2.5"}, models.Data.Models)

	sw, err := b.SetCurrentModel(ctx, "llama3")
	require.NoError(t, err)
	assert.Equal(t, envelope.ModelSwitch{Success: true, CurrentModel: "llama3"}, sw)
	assert.Equal(t, "llama3", m.model)

	res, err := b.Search(ctx, "rust async")
	require.NoError(t, err)
	assert.Equal(t, "rust async", res.Data.Query)
	assert.Nil(t, s.engines)

	engines, err := b.GetEngines(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"google", "bing"}, engines.Data.Engines)
}

func TestTypedHelpers_WrongResultType(t *testing.T) {
	b, _, _ := newBridge()
	b.Handle(ChannelModels, func(context.Context, json.RawMessage) (any, error) { return "nope", nil })

	_, err := b.GetOllamaModels(context.Background())
	assert.Error(t, err)
}

// =============================================================================
// SUBSCRIPTION TESTS
// =============================================================================

func TestOnOllamaStream(t *testing.T) {
	b, _, _ := newBridge()
	w := surface.New(surface.DefaultOptions())
	b.Attach(w)

	var first, second []relay.Event
	unsubFirst := b.OnOllamaStream(func(ev relay.Event) { first = append(first, ev) })
	b.OnOllamaStream(func(ev relay.Event) { second = append(second, ev) })
	assert.Equal(t, 2, b.SubscriberCount())

	chunk := relay.Event{Type: relay.EventChunk, Content: "a", AccumulatedContent: "a"}
	w.Send(EventChannel, chunk)
	unsubFirst()
	unsubFirst()
	w.Send(EventChannel, relay.Event{Type: relay.EventEnd, Content: "a"})
	w.Send(EventChannel, "not an event")

	assert.Equal(t, []relay.Event{chunk}, first)
	assert.Len(t, second, 2)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestOnOllamaStream_SurvivesWindowRecreation(t *testing.T) {
	b, _, _ := newBridge()
	var got []string
	b.OnOllamaStream(func(ev relay.Event) { got = append(got, ev.Content) })

	w1 := surface.New(surface.DefaultOptions())
	b.Attach(w1)
	w1.Send(EventChannel, relay.Event{Type: relay.EventChunk, Content: "one"})
	w1.Destroy()
	w1.Send(EventChannel, relay.Event{Type: relay.EventChunk, Content: "dropped"})

	w2 := surface.New(surface.DefaultOptions())
	b.Attach(w2)
	w2.Send(EventChannel, relay.Event{Type: relay.EventChunk, Content: "two"})

	assert.Equal(t, []string{"one", "two"}, got)
}

func TestOnOllamaStream_PanickingSubscriber(t *testing.T) {
	b, _, _ := newBridge()
	w := surface.New(surface.DefaultOptions())
	detach := b.Attach(w)

	delivered := 0
	b.OnOllamaStream(func(relay.Event) { panic("closed socket") })
	b.OnOllamaStream(func(relay.Event) { delivered++ })

	w.Send(EventChannel, relay.Event{Type: relay.EventEnd})
	assert.Equal(t, 1, delivered)

	detach()
	w.Send(EventChannel, relay.Event{Type: relay.EventEnd})
	assert.Equal(t, 1, delivered)
}
