// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package panel

import (
	"context"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/rigrun-launcher/internal/envelope"
	"github.com/jeranaias/rigrun-launcher/internal/llm"
	"github.com/jeranaias/rigrun-launcher/internal/relay"
	"github.com/jeranaias/rigrun-launcher/internal/searxng"
	"github.com/jeranaias/rigrun-launcher/internal/surface"
	"github.com/jeranaias/rigrun-launcher/internal/ui/styles"
)

// Terminal cell size used to convert window geometry to cells.
const (
	CellWidthPx  = 8
	CellHeightPx = 16
)

// DefaultCallTimeout bounds each bridge call made from the panel.
const DefaultCallTimeout = 30 * time.Second

// Backend is the bridge surface the panel uses. *bridge.Bridge implements it.
type Backend interface {
	ChatWithOllama(ctx context.Context, messages []llm.Message) (envelope.Result[envelope.StreamStart], error)
	GetOllamaModels(ctx context.Context) (envelope.Result[envelope.ModelList], error)
	SetCurrentModel(ctx context.Context, name string) (envelope.ModelSwitch, error)
	Search(ctx context.Context, query string, engines ...string) (envelope.Result[searxng.SearchResponse], error)
	GetEngines(ctx context.Context) (envelope.Result[searxng.EngineList], error)
}

// WindowHost owns the launcher window. *app.App implements it.
type WindowHost interface {
	// Activate returns the live window, creating one when none is alive.
	Activate() *surface.Window
	// CurrentWindow returns the live window or nil.
	CurrentWindow() *surface.Window
}

// Options configures a panel Model.
type Options struct {
	Theme    *styles.Theme
	Hotkey   surface.Hotkey
	Markdown bool
	Model    string

	// Ready reports whether the model runtime is initialized.
	Ready func() bool
	// Clipboard writes text to the system clipboard.
	Clipboard func(string) error
	// CallTimeout bounds each bridge call. Zero means DefaultCallTimeout.
	CallTimeout time.Duration
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entrySystem
	entryError
	entryResults
)

type entry struct {
	kind     entryKind
	text     string
	streamID string
	done     bool
	failed   string
	results  *searxng.SearchResponse

	rendered      string
	renderedWidth int
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model of the launcher panel.
type Model struct {
	backend  Backend
	host     WindowHost
	theme    *styles.Theme
	keys     KeyMap
	opts     Options

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	markdown *glamour.TermRenderer

	markdownWidth int

	transcript  []entry
	history     []llm.Message
	lastResults []searxng.SearchResult
	model       string

	// streamID is the chat whose events are rendered; pending holds events
	// that arrived before the chat call returned its id.
	streamID string
	awaiting bool
	pending  map[string][]relay.Event
	busy     int

	width, height int
	pointer       surface.Point
	pointerSeen   bool
	quitting      bool
}

// New creates a panel drawing the window held by host.
func New(backend Backend, host WindowHost, opts Options) Model {
	if opts.Theme == nil {
		opts.Theme = styles.NewTheme(styles.ModeAuto)
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.WriteAll
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Ready == nil {
		opts.Ready = func() bool { return true }
	}

	ti := textinput.New()
	ti.Placeholder = "Ask anything, or /search ..."
	ti.Prompt = "> "
	ti.PromptStyle = opts.Theme.InputPrompt
	ti.PlaceholderStyle = opts.Theme.InputPlaceholder
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = opts.Theme.Spinner

	return Model{
		backend:  backend,
		host:     host,
		theme:    opts.Theme,
		keys:     DefaultKeyMap(opts.Hotkey),
		opts:     opts,
		input:    ti,
		viewport: viewport.New(40, 10),
		spinner:  sp,
		model:    opts.Model,
		pending:  make(map[string][]relay.Event),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// window returns the live window without creating one.
func (m Model) window() *surface.Window {
	return m.host.CurrentWindow()
}

// pointerPx is the last known pointer position in window coordinates. It
// falls back to the middle of the terminal.
func (m Model) pointerPx() surface.Point {
	p := m.pointer
	if !m.pointerSeen {
		p = surface.Point{X: m.width / 2, Y: m.height / 3}
	}
	return surface.Point{X: p.X * CellWidthPx, Y: p.Y * CellHeightPx}
}

// Busy reports whether a call or stream is in flight.
func (m Model) Busy() bool {
	return m.busy > 0 || m.streamID != "" || m.awaiting
}

// call runs fn with the call timeout on a command goroutine.
func (m Model) call(fn func(ctx context.Context) tea.Msg) tea.Cmd {
	timeout := m.opts.CallTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return fn(ctx)
	}
}

func resultMessage[T any](res envelope.Result[T], err error) (T, string) {
	if err != nil {
		var zero T
		return zero, err.Error()
	}
	v, uerr := res.Unwrap()
	if uerr != nil {
		return v, uerr.Error()
	}
	return v, ""
}
