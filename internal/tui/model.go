// Package tui provides a terminal rendition of the messaging widget:
// a conversation list, a message pane that follows new arrivals, and
// a compose line wired to the synchronization engine.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/studyhall/tutormsg/internal/reconcile"
	"github.com/studyhall/tutormsg/internal/session"
)

// Engine defines the widget operations the TUI drives.
type Engine interface {
	ViewModel() *reconcile.ViewModel
	Selection() session.Snapshot
	SelectConversation(key string) error
	SendText(ctx context.Context, text string) error
	Input() string
	SetInput(text string)
	DismissBanner()
	OnScroll(fromBottom int)
	ShouldAutoScroll() bool
}

// focusArea identifies which pane receives key input.
type focusArea int

const (
	focusList focusArea = iota
	focusCompose
)

// engineUpdatedMsg is sent when a poll cycle changes the view.
type engineUpdatedMsg struct{}

// sendResultMsg reports the outcome of a send attempt.
type sendResultMsg struct {
	err error
}

// Options configuration for the TUI.
type Options struct {
	Version string
}

// Model is the bubbletea model for the widget.
type Model struct {
	engine  Engine
	version string

	width  int
	height int

	focus  focusArea
	cursor int

	keys      []string
	vm        *reconcile.ViewModel
	selection session.Snapshot

	pane  viewport.Model
	input textinput.Model

	sendErr  error
	quitting bool
}

// New creates the widget model around an engine.
func New(engine Engine, opts Options) Model {
	input := textinput.New()
	input.Placeholder = "Type a message (5+ characters)"
	input.CharLimit = 2000

	return Model{
		engine:  engine,
		version: opts.Version,
		vm:      reconcile.EmptyViewModel(),
		pane:    viewport.New(0, 0),
		input:   input,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// EngineUpdated returns the message a caller should feed into the
// program whenever the engine reports a view change.
func EngineUpdated() tea.Msg {
	return engineUpdatedMsg{}
}

// refresh pulls the latest state from the engine and re-renders the
// message pane, following the bottom when autoscroll allows it.
func (m *Model) refresh() {
	m.vm = m.engine.ViewModel()
	m.selection = m.engine.Selection()

	m.keys = m.vm.Keys()
	if m.cursor >= len(m.keys) {
		m.cursor = len(m.keys) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}

	m.pane.SetContent(m.renderMessages())
	if m.engine.ShouldAutoScroll() {
		m.pane.GotoBottom()
		m.engine.OnScroll(0)
	}
}

// selectedKey returns the conversation under the cursor, or "".
func (m Model) selectedKey() string {
	if m.cursor < 0 || m.cursor >= len(m.keys) {
		return ""
	}
	return m.keys[m.cursor]
}

// sendCurrent submits the compose line through the engine.
func (m *Model) sendCurrent() tea.Cmd {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	engine := m.engine
	return func() tea.Msg {
		return sendResultMsg{err: engine.SendText(context.Background(), text)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.width < 0 {
			m.width = 0
		}
		if m.height < 0 {
			m.height = 0
		}
		// Title (1) + banner (1) + compose (1) + footer (1).
		paneHeight := m.height - 4
		if paneHeight < 1 {
			paneHeight = 1
		}
		m.pane.Width = m.messagePaneWidth()
		m.pane.Height = paneHeight
		m.input.Width = m.width - 4
		m.refresh()
		return m, nil

	case engineUpdatedMsg:
		m.refresh()
		return m, nil

	case sendResultMsg:
		m.sendErr = msg.err
		if msg.err == nil {
			m.input.SetValue("")
		} else {
			// Rollback restored the draft inside the engine.
			m.input.SetValue(m.engine.Input())
		}
		m.refresh()
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}

	if m.focus == focusCompose {
		return m.handleComposeKey(msg)
	}
	return m.handleListKey(msg)
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.keys)-1 {
			m.cursor++
		}
		return m, nil

	case "enter":
		key := m.selectedKey()
		if key == "" {
			return m, nil
		}
		if err := m.engine.SelectConversation(key); err != nil {
			m.sendErr = err
			return m, nil
		}
		m.sendErr = nil
		m.refresh()
		m.focus = focusCompose
		m.input.Focus()
		return m, textinput.Blink

	case "pgup", "b":
		m.pane.LineUp(m.pane.Height / 2)
		m.engine.OnScroll(m.scrollFromBottom())
		return m, nil

	case "pgdown", "f":
		m.pane.LineDown(m.pane.Height / 2)
		m.engine.OnScroll(m.scrollFromBottom())
		return m, nil

	case "G", "end":
		m.pane.GotoBottom()
		m.engine.OnScroll(0)
		m.refresh()
		return m, nil

	case "esc":
		m.engine.DismissBanner()
		m.refresh()
		return m, nil

	case "tab":
		if m.selection.SelectedKey != "" {
			m.focus = focusCompose
			m.input.Focus()
			return m, textinput.Blink
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleComposeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.focus = focusList
		m.input.Blur()
		m.engine.SetInput(m.input.Value())
		return m, nil

	case "tab":
		m.focus = focusList
		m.input.Blur()
		m.engine.SetInput(m.input.Value())
		return m, nil

	case "enter":
		return m, m.sendCurrent()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.engine.SetInput(m.input.Value())
	return m, cmd
}

// scrollFromBottom converts the viewport position into a distance
// from the bottom edge, which is what the engine tracks.
func (m Model) scrollFromBottom() int {
	total := m.pane.TotalLineCount()
	bottom := m.pane.YOffset + m.pane.Height
	if bottom >= total {
		return 0
	}
	return total - bottom
}
