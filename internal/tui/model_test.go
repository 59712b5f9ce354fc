package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/studyhall/tutormsg/internal/message"
	"github.com/studyhall/tutormsg/internal/reconcile"
	"github.com/studyhall/tutormsg/internal/session"
)

// fakeEngine implements Engine for model tests.
type fakeEngine struct {
	vm        *reconcile.ViewModel
	selection session.Snapshot
	input     string

	selectErr error
	sendErr   error

	autoScroll    bool
	dismissed     bool
	lastScrollPos int
	sentText      string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{vm: reconcile.EmptyViewModel()}
}

func (f *fakeEngine) ViewModel() *reconcile.ViewModel { return f.vm }
func (f *fakeEngine) Selection() session.Snapshot     { return f.selection }
func (f *fakeEngine) Input() string                   { return f.input }
func (f *fakeEngine) SetInput(text string)            { f.input = text }
func (f *fakeEngine) DismissBanner()                  { f.dismissed = true; f.selection.BannerVisible = false }
func (f *fakeEngine) OnScroll(fromBottom int)         { f.lastScrollPos = fromBottom }
func (f *fakeEngine) ShouldAutoScroll() bool          { return f.autoScroll }

func (f *fakeEngine) SelectConversation(key string) error {
	if f.selectErr != nil {
		return f.selectErr
	}
	f.selection.SelectedKey = key
	return nil
}

func (f *fakeEngine) SendText(ctx context.Context, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentText = text
	return nil
}

func twoConversations() *reconcile.ViewModel {
	sentAt := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	return &reconcile.ViewModel{
		Conversations: map[string][]message.Message{
			"tutor-1": {
				{ID: "a1", ConversationKey: "tutor-1", Direction: message.DirectionToStudent, Kind: message.KindText, Body: "hi there", SentAt: sentAt},
			},
			"tutor-2": {
				{ID: "b1", ConversationKey: "tutor-2", Direction: message.DirectionToStudent, Kind: message.KindText, Body: "welcome", SentAt: sentAt},
			},
		},
		Unread:      map[string]int{"tutor-2": 1},
		TotalUnread: 1,
	}
}

// sendMsg feeds a message through Update and returns the new model.
func sendMsg(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	newModel, cmd := m.Update(msg)
	out, ok := newModel.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", newModel)
	}
	return out, cmd
}

func key(s string) tea.KeyMsg {
	if len(s) == 1 {
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestModel(engine Engine) Model {
	m := New(engine, Options{Version: "test"})
	resized, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return resized.(Model)
}

func TestRefreshOnEngineUpdate(t *testing.T) {
	engine := newFakeEngine()
	m := newTestModel(engine)

	if len(m.keys) != 0 {
		t.Fatalf("keys = %d, want 0 before update", len(m.keys))
	}

	engine.vm = twoConversations()
	m, _ = sendMsg(t, m, engineUpdatedMsg{})

	if len(m.keys) != 2 {
		t.Fatalf("keys = %d, want 2", len(m.keys))
	}
	if m.keys[0] != "tutor-1" || m.keys[1] != "tutor-2" {
		t.Errorf("keys = %v, want sorted [tutor-1 tutor-2]", m.keys)
	}
}

func TestCursorClampedWhenConversationsShrink(t *testing.T) {
	engine := newFakeEngine()
	engine.vm = twoConversations()
	m := newTestModel(engine)

	m, _ = sendMsg(t, m, key("down"))
	if m.cursor != 1 {
		t.Fatalf("cursor = %d, want 1", m.cursor)
	}

	engine.vm = &reconcile.ViewModel{
		Conversations: map[string][]message.Message{
			"tutor-1": engine.vm.Conversations["tutor-1"],
		},
		Unread: map[string]int{},
	}
	m, _ = sendMsg(t, m, engineUpdatedMsg{})

	if m.cursor != 0 {
		t.Errorf("cursor = %d, want 0 after shrink", m.cursor)
	}
}

func TestEnterSelectsAndFocusesCompose(t *testing.T) {
	engine := newFakeEngine()
	engine.vm = twoConversations()
	m := newTestModel(engine)

	m, _ = sendMsg(t, m, key("enter"))

	if engine.selection.SelectedKey != "tutor-1" {
		t.Errorf("selected = %q, want tutor-1", engine.selection.SelectedKey)
	}
	if m.focus != focusCompose {
		t.Errorf("focus = %v, want compose", m.focus)
	}
}

func TestSendSuccessClearsInput(t *testing.T) {
	engine := newFakeEngine()
	engine.vm = twoConversations()
	engine.selection.SelectedKey = "tutor-1"
	m := newTestModel(engine)
	m.focus = focusCompose
	m.input.SetValue("hello tutor")

	_, cmd := sendMsg(t, m, key("enter"))
	if cmd == nil {
		t.Fatal("enter in compose returned no command")
	}
	result := cmd()
	m, _ = sendMsg(t, m, result)

	if engine.sentText != "hello tutor" {
		t.Errorf("sent = %q, want 'hello tutor'", engine.sentText)
	}
	if m.input.Value() != "" {
		t.Errorf("input = %q, want cleared", m.input.Value())
	}
	if m.sendErr != nil {
		t.Errorf("sendErr = %v, want nil", m.sendErr)
	}
}

func TestSendFailureRestoresDraft(t *testing.T) {
	engine := newFakeEngine()
	engine.vm = twoConversations()
	engine.selection.SelectedKey = "tutor-1"
	engine.sendErr = errors.New("connection refused")
	engine.input = "my draft text"
	m := newTestModel(engine)
	m.focus = focusCompose
	m.input.SetValue("my draft text")

	_, cmd := sendMsg(t, m, key("enter"))
	result := cmd()
	m, _ = sendMsg(t, m, result)

	if m.sendErr == nil {
		t.Fatal("sendErr = nil, want error")
	}
	if m.input.Value() != "my draft text" {
		t.Errorf("input = %q, want draft restored", m.input.Value())
	}
	if !strings.Contains(m.View(), "send failed") {
		t.Error("view does not surface the send failure")
	}
}

func TestEscDismissesBanner(t *testing.T) {
	engine := newFakeEngine()
	engine.vm = twoConversations()
	engine.selection = session.Snapshot{SelectedKey: "tutor-1", BannerVisible: true, NewSinceOpen: 2}
	m := newTestModel(engine)

	if !strings.Contains(m.View(), "2 new messages") {
		t.Fatal("banner not rendered")
	}

	m, _ = sendMsg(t, m, key("esc"))

	if !engine.dismissed {
		t.Error("banner not dismissed through engine")
	}
	if strings.Contains(m.View(), "new messages") {
		t.Error("banner still rendered after dismiss")
	}
}

func TestJumpToBottomReportsScrollPosition(t *testing.T) {
	engine := newFakeEngine()
	engine.vm = twoConversations()
	engine.selection.SelectedKey = "tutor-1"
	engine.lastScrollPos = -1
	m := newTestModel(engine)

	m, _ = sendMsg(t, m, key("G"))

	if engine.lastScrollPos != 0 {
		t.Errorf("scroll position = %d, want 0 after jump", engine.lastScrollPos)
	}
}

func TestUnreadBadgeInList(t *testing.T) {
	engine := newFakeEngine()
	engine.vm = twoConversations()
	m := newTestModel(engine)
	m, _ = sendMsg(t, m, engineUpdatedMsg{})

	view := m.View()
	if !strings.Contains(view, "tutor-2") || !strings.Contains(view, "(1)") {
		t.Error("unread badge missing from conversation list")
	}
	if !strings.Contains(view, "1 unread") {
		t.Error("total unread missing from title bar")
	}
}

func TestPendingMessageRendered(t *testing.T) {
	engine := newFakeEngine()
	vm := twoConversations()
	vm.Conversations["tutor-1"] = append(vm.Conversations["tutor-1"], message.Message{
		ID:              "pending-x",
		ConversationKey: "tutor-1",
		Direction:       message.DirectionToTutor,
		Kind:            message.KindText,
		Body:            "on its way",
		Pending:         true,
		Read:            true,
	})
	engine.vm = vm
	engine.selection.SelectedKey = "tutor-1"
	m := newTestModel(engine)

	if !strings.Contains(m.renderMessages(), "sending") {
		t.Error("pending message not marked as sending")
	}
}
