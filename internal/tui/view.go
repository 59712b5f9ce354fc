package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/studyhall/tutormsg/internal/message"
	"github.com/studyhall/tutormsg/internal/textutil"
)

// Monochrome theme, adaptive for light and dark terminals.
var (
	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#333333"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"}).
			Padding(0, 1)

	cursorRowStyle = lipgloss.NewStyle().
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#282828"})

	unreadBadgeStyle = lipgloss.NewStyle().
				Bold(true)

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#ffe9a8", Dark: "#4a3f10"}).
			Padding(0, 1)

	outgoingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#aaaaaa"})

	pendingStyle = lipgloss.NewStyle().
			Faint(true).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#aa0000", Dark: "#ff6666"})

	footerStyle = lipgloss.NewStyle().
			Faint(true)
)

// listWidth is the conversation pane width in columns.
const listWidth = 28

func (m Model) messagePaneWidth() int {
	w := m.width - listWidth - 1
	if w < 10 {
		w = 10
	}
	return w
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "loading..."
	}

	title := fmt.Sprintf("tutormsg %s", m.version)
	if m.vm.TotalUnread > 0 {
		title += fmt.Sprintf("  (%d unread)", m.vm.TotalUnread)
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderList(), " ", m.pane.View())

	var b strings.Builder
	b.WriteString(titleBarStyle.Width(m.width).Render(title))
	b.WriteString("\n")
	b.WriteString(m.renderBanner())
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n")
	b.WriteString(m.renderCompose())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderBanner() string {
	if m.sendErr != nil {
		return errorStyle.Render("send failed: " + m.sendErr.Error())
	}
	if !m.selection.BannerVisible {
		return ""
	}
	n := m.selection.NewSinceOpen
	label := fmt.Sprintf("%d new message", n)
	if n != 1 {
		label += "s"
	}
	return bannerStyle.Render(label + "  (esc to dismiss, G to jump)")
}

func (m Model) renderList() string {
	var b strings.Builder
	for i, key := range m.keys {
		line := textutil.TruncateRunes(key, listWidth-6)
		if n := m.vm.Unread[key]; n > 0 {
			line += unreadBadgeStyle.Render(fmt.Sprintf(" (%d)", n))
		}
		if key == m.selection.SelectedKey {
			line = "* " + line
		} else {
			line = "  " + line
		}
		if i == m.cursor && m.focus == focusList {
			line = cursorRowStyle.Width(listWidth).Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(m.keys) == 0 {
		b.WriteString("  no conversations")
	}
	return lipgloss.NewStyle().Width(listWidth).Render(b.String())
}

// renderMessages builds the content of the message pane for the
// selected conversation.
func (m Model) renderMessages() string {
	key := m.selection.SelectedKey
	if key == "" {
		return "Select a conversation and press enter."
	}

	msgs := m.vm.Messages(key)
	width := m.messagePaneWidth()

	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(renderMessage(msg, width))
		b.WriteString("\n")
	}
	return b.String()
}

func renderMessage(msg message.Message, width int) string {
	who := msg.SenderName
	if who == "" {
		who = string(msg.Direction)
	}
	stamp := ""
	if !msg.SentAt.IsZero() {
		stamp = msg.SentAt.Local().Format("Jan 2 15:04")
	}

	header := fmt.Sprintf("%s  %s", who, stamp)
	body := textutil.Wrap(msg.Body, width)

	if msg.Kind == message.KindEvent {
		header += "  [lesson]"
	}

	switch {
	case msg.Pending:
		return pendingStyle.Render(header+" (sending)") + "\n" + pendingStyle.Render(body)
	case !msg.Read && msg.Direction != "":
		return unreadBadgeStyle.Render(header) + "\n" + body
	default:
		return outgoingStyle.Render(header) + "\n" + body
	}
}

func (m Model) renderCompose() string {
	if m.selection.SelectedKey == "" {
		return footerStyle.Render("  (no conversation selected)")
	}
	return "> " + m.input.View()
}

func (m Model) renderFooter() string {
	if m.focus == focusCompose {
		return footerStyle.Render("enter send · esc back · tab list · ctrl+c quit")
	}
	return footerStyle.Render("enter open · j/k move · G bottom · esc dismiss · q quit")
}
