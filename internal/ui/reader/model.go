// Package reader shows one message, its conversation, and a reply
// composer.
package reader

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-assistant/internal/keys"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/source"
	"github.com/nhle/mail-assistant/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// MessageLoadedMsg carries the message to display. A nil Message means
// it could not be found.
type MessageLoadedMsg struct {
	Message *model.Message
	Err     error
}

// ConversationLoadedMsg carries the cached thread of the open message.
type ConversationLoadedMsg struct {
	Messages []model.Message
	Err      error
}

// SendReplyMsg asks the parent to send a reply to the open message.
type SendReplyMsg struct {
	ID      string
	Subject string
	Body    string
}

// ActionMsg asks the parent to run an action on the open message.
type ActionMsg struct {
	Action  string
	Message model.Message
}

// Actions carried by ActionMsg.
const (
	ActionAssistant    = "assistant"
	ActionConversation = "conversation"
)

// Model is the message reader view component.
type Model struct {
	msg      *model.Message
	thread   []model.Message
	viewport viewport.Model
	composer textarea.Model
	replying bool
	keys     *keys.KeyMap
	width    int
	height   int
	loading  bool
	err      error
}

// New creates a new reader view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	ta := textarea.New()
	ta.Placeholder = "Write your reply..."
	ta.ShowLineNumbers = false
	ta.SetWidth(width - 4)
	ta.SetHeight(composerHeight(height))

	return Model{
		viewport: vp,
		composer: ta,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

func composerHeight(height int) int {
	return max(3, height/3)
}

// Init returns the initial command for the reader view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the reader view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case MessageLoadedMsg:
		m.SetMessage(msg.Message, msg.Err)
		return m, nil

	case ConversationLoadedMsg:
		if msg.Err == nil {
			m.thread = msg.Messages
			m.viewport.SetContent(m.renderContent())
		}
		return m, nil

	case tea.KeyMsg:
		if m.replying {
			return m.handleComposerKeys(msg)
		}

		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, m.keys.Reply):
			if m.msg != nil && !m.msg.IsDraft {
				m.replying = true
				m.composer.Reset()
				m.resizeViewport()
				return m, m.composer.Focus()
			}
			return m, nil

		case key.Matches(msg, m.keys.AI):
			return m, m.action(ActionAssistant)

		case key.Matches(msg, m.keys.Thread):
			return m, m.action(ActionConversation)
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleComposerKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeComposer()
		return m, nil

	case "ctrl+s":
		body := strings.TrimSpace(m.composer.Value())
		if body == "" || m.msg == nil {
			return m, nil
		}
		id, subject := m.msg.ID, source.EnsureReplySubject(m.msg.Subject)
		m.closeComposer()
		return m, func() tea.Msg {
			return SendReplyMsg{ID: id, Subject: subject, Body: body}
		}
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

func (m *Model) closeComposer() {
	m.replying = false
	m.composer.Blur()
	m.resizeViewport()
}

func (m Model) action(name string) tea.Cmd {
	if m.msg == nil {
		return nil
	}
	message := *m.msg
	return func() tea.Msg {
		return ActionMsg{Action: name, Message: message}
	}
}

// Replying reports whether the composer has focus.
func (m Model) Replying() bool {
	return m.replying
}

// Message returns the open message, or nil.
func (m Model) Message() *model.Message {
	return m.msg
}

// InsertReply replaces the composer text, opening it if needed.
func (m *Model) InsertReply(text string) tea.Cmd {
	if m.msg == nil {
		return nil
	}
	m.replying = true
	m.composer.SetValue(text)
	m.resizeViewport()
	return m.composer.Focus()
}

// View renders the reader view.
func (m Model) View() string {
	centered := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.loading {
		return centered.Render("Loading message...")
	}
	if m.msg == nil {
		if m.err != nil {
			return centered.Render(theme.ErrorStyle.Render(m.err.Error()))
		}
		return centered.Render("Message is not available offline.")
	}

	if !m.replying {
		return m.viewport.View()
	}

	label := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).
		Render("Reply: " + source.EnsureReplySubject(m.msg.Subject))
	hint := theme.HelpStyle.Render("ctrl+s send · esc cancel")
	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		label,
		theme.BorderStyle.Render(m.composer.View()),
		hint,
	)
}

// renderContent builds the message content string for the viewport.
func (m Model) renderContent() string {
	if m.msg == nil {
		return ""
	}

	msg := m.msg
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	title := titleStyle.Render(msg.Subject)
	if msg.IsDraft {
		title = theme.DraftLabelStyle.Render("DRAFT") + " " + title
	}
	sections = append(sections, title, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	field := func(label, value string) {
		if value == "" {
			return
		}
		sections = append(sections, fmt.Sprintf("%s %s",
			metaStyle.Render(fmt.Sprintf("%-9s", label+":")),
			valStyle.Render(value)))
	}

	field("From", msg.From.String())
	field("To", joinAddresses(msg.To))
	if !msg.ReceivedDateTime.IsZero() {
		field("Received", msg.ReceivedDateTime.Local().Format("Mon, 02 Jan 2006 15:04"))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(0, min(m.width-4, 80))))
	sections = append(sections, "", separator, "")

	body := source.PlainText(msg.Body)
	if body == "" {
		body = msg.BodyPreview
	}
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No content")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(20, m.width-2)).Render(body))

	if len(m.thread) > 1 {
		sections = append(sections, "", separator, "")
		sections = append(sections, titleStyle.Render(fmt.Sprintf("Conversation (%d)", len(m.thread))), "")

		authorStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue)
		for _, t := range m.thread {
			marker := "  "
			if t.ID == msg.ID {
				marker = "▸ "
			}
			sections = append(sections, fmt.Sprintf("%s%s  %s",
				marker,
				authorStyle.Render(t.From.String()),
				metaStyle.Render(t.ReceivedDateTime.Local().Format("Jan 02 15:04"))))
			sections = append(sections, "  "+t.BodyPreview, "")
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func joinAddresses(addrs []model.Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

// SetMessage updates the message being displayed and re-renders.
func (m *Model) SetMessage(msg *model.Message, err error) {
	m.msg = msg
	m.err = err
	m.thread = nil
	m.loading = false
	m.replying = false
	m.composer.Reset()
	m.resizeViewport()
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// SetLoading sets the loading state.
func (m *Model) SetLoading(loading bool) {
	m.loading = loading
}

// SetSize updates the reader view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.composer.SetWidth(width - 4)
	m.composer.SetHeight(composerHeight(height))
	m.resizeViewport()
	m.viewport.SetContent(m.renderContent())
}

func (m *Model) resizeViewport() {
	m.viewport.Width = m.width
	h := m.height - 2
	if m.replying {
		h -= composerHeight(m.height) + 4
	}
	m.viewport.Height = max(1, h)
}
