// Package assistant is the AI panel: it streams draft improvements and
// generated replies into the view and shows tone analysis.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-assistant/internal/ai"
	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/keys"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/source"
	"github.com/nhle/mail-assistant/internal/theme"
)

// Runner performs assistant requests.
type Runner interface {
	ImproveDraft(ctx context.Context, dest *ai.Destination, content, subject string) error
	GenerateResponse(ctx context.Context, dest *ai.Destination, id string, tone model.ResponseTone) error
	AnalyzeTone(ctx context.Context, content string) (*model.ToneAnalysis, error)
}

// CloseMsg signals the parent to close the panel.
type CloseMsg struct{}

// UseReplyMsg asks the parent to put a generated reply into the reply
// composer of the message it answers.
type UseReplyMsg struct {
	MessageID string
	Text      string
}

// ChunkMsg carries one streamed fragment.
type ChunkMsg struct {
	Text string
}

// CompleteMsg carries the final result of a streamed request.
type CompleteMsg struct {
	Result model.AIResult
}

// requestDoneMsg reports how a request call returned.
type requestDoneMsg struct {
	err error
}

// toneResultMsg carries a tone analysis.
type toneResultMsg struct {
	analysis *model.ToneAnalysis
	err      error
}

// Model is the assistant panel.
type Model struct {
	runner Runner
	dest   *ai.Destination
	events chan tea.Msg
	// waiting is set while a command is blocked on events.
	waiting bool

	target   *model.Message
	toneIdx  int
	input    textarea.Model
	viewport viewport.Model
	output   strings.Builder
	result   *model.AIResult
	analysis *model.ToneAnalysis
	status   string
	err      error
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates the panel and subscribes it to a fresh destination.
func New(r Runner, k *keys.KeyMap, width, height int) *Model {
	ta := textarea.New()
	ta.Placeholder = "Paste or write a draft..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.SetWidth(width - 6)
	ta.SetHeight(6)
	ta.CharLimit = 20000
	ta.Focus()

	vp := viewport.New(width-6, outputHeight(height))
	vp.Style = lipgloss.NewStyle()

	m := &Model{
		runner:   r,
		dest:     ai.NewDestination(),
		events:   make(chan tea.Msg, 256),
		input:    ta,
		viewport: vp,
		keys:     k,
		width:    width,
		height:   height,
	}
	m.dest.SubscribeUpdates(func(chunk string) {
		m.events <- ChunkMsg{Text: chunk}
	})
	m.dest.SubscribeComplete(func(r model.AIResult) {
		m.events <- CompleteMsg{Result: r}
	})
	return m
}

func outputHeight(height int) int {
	return max(4, height-16)
}

// Init returns the initial command for the panel.
func (m *Model) Init() tea.Cmd {
	return textarea.Blink
}

// SetTarget points the panel at msg. Drafts are loaded into the editor;
// other messages become the subject of generated replies.
func (m *Model) SetTarget(msg *model.Message) {
	m.target = msg
	m.clearOutput()
	m.input.Reset()
	if msg != nil && msg.IsDraft {
		m.input.SetValue(source.PlainText(msg.Body))
	}
}

// Update handles messages for the panel.
func (m *Model) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case ChunkMsg:
		m.waiting = false
		m.status = "streaming"
		m.output.WriteString(msg.Text)
		m.refreshViewport()
		return m.waitForEvent()

	case CompleteMsg:
		m.waiting = false
		m.status = ""
		result := msg.Result
		m.result = &result
		m.output.Reset()
		m.output.WriteString(result.Content)
		m.refreshViewport()
		return nil

	case requestDoneMsg:
		if msg.err != nil {
			m.status = ""
			m.err = msg.err
			m.refreshViewport()
		}
		return nil

	case toneResultMsg:
		m.status = ""
		m.err = msg.err
		m.analysis = msg.analysis
		m.refreshViewport()
		return nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Back):
		if m.Busy() {
			return nil
		}
		return func() tea.Msg { return CloseMsg{} }

	case key.Matches(msg, m.keys.Improve):
		return m.improve()

	case key.Matches(msg, m.keys.Respond):
		return m.respond()

	case key.Matches(msg, m.keys.Tone):
		return m.analyzeTone()

	case key.Matches(msg, m.keys.CycleTone):
		m.toneIdx = (m.toneIdx + 1) % len(model.ResponseTones)
		return nil

	case key.Matches(msg, m.keys.UseResult):
		return m.useResult()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// Busy reports whether a request is in flight.
func (m *Model) Busy() bool {
	switch m.dest.State() {
	case ai.StateRequested, ai.StateStreaming:
		return true
	}
	return m.status == "requested" || m.status == "analyzing"
}

// Tone returns the tone used for generated replies.
func (m *Model) Tone() model.ResponseTone {
	return model.ResponseTones[m.toneIdx]
}

func (m *Model) improve() tea.Cmd {
	if m.Busy() {
		return nil
	}
	content := m.input.Value()
	subject := ""
	if m.target != nil {
		subject = m.target.Subject
	}
	m.clearOutput()
	m.status = "requested"

	runner, dest := m.runner, m.dest
	return m.start(func() tea.Msg {
		return requestDoneMsg{err: runner.ImproveDraft(context.Background(), dest, content, subject)}
	})
}

func (m *Model) respond() tea.Cmd {
	if m.Busy() {
		return nil
	}
	if m.target == nil || m.target.IsDraft {
		m.err = apperr.New(apperr.ValidationFailed, "open a received message to generate a reply")
		m.refreshViewport()
		return nil
	}
	id, tone := m.target.ID, m.Tone()
	m.clearOutput()
	m.status = "requested"

	runner, dest := m.runner, m.dest
	return m.start(func() tea.Msg {
		return requestDoneMsg{err: runner.GenerateResponse(context.Background(), dest, id, tone)}
	})
}

// start runs request alongside a listener for destination events.
// Only one listener is armed at a time so chunks arrive in order.
func (m *Model) start(request tea.Cmd) tea.Cmd {
	if m.waiting {
		return request
	}
	return tea.Batch(request, m.waitForEvent())
}

func (m *Model) analyzeTone() tea.Cmd {
	if m.Busy() {
		return nil
	}
	content := m.input.Value()
	m.clearOutput()
	m.status = "analyzing"
	m.refreshViewport()

	runner := m.runner
	return func() tea.Msg {
		analysis, err := runner.AnalyzeTone(context.Background(), content)
		return toneResultMsg{analysis: analysis, err: err}
	}
}

func (m *Model) useResult() tea.Cmd {
	if m.result == nil || m.Busy() {
		return nil
	}
	switch m.result.Type {
	case model.ResultImprovement:
		m.input.SetValue(m.result.Content)
		return nil
	case model.ResultResponse:
		if m.target == nil {
			return nil
		}
		reply := UseReplyMsg{MessageID: m.target.ID, Text: m.result.Content}
		return func() tea.Msg { return reply }
	}
	return nil
}

func (m *Model) waitForEvent() tea.Cmd {
	m.waiting = true
	ch := m.events
	return func() tea.Msg {
		return <-ch
	}
}

func (m *Model) clearOutput() {
	m.output.Reset()
	m.result = nil
	m.analysis = nil
	m.err = nil
	m.refreshViewport()
}

func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.renderOutput())
	m.viewport.GotoBottom()
}

func (m *Model) renderOutput() string {
	wrap := lipgloss.NewStyle().Width(max(20, m.width-8))
	if m.err != nil {
		return wrap.Render(theme.ErrorStyle.Render(apperr.Message(m.err)))
	}
	if m.analysis != nil {
		return wrap.Render(renderAnalysis(m.analysis))
	}
	if m.output.Len() == 0 {
		hint := "ctrl+e improves the draft above. ctrl+t analyzes its tone."
		if m.target != nil && !m.target.IsDraft {
			hint += "\nctrl+g writes a reply to \"" + m.target.Subject + "\"."
		}
		return theme.HelpStyle.Render(hint)
	}
	return wrap.Render(m.output.String())
}

func renderAnalysis(a *model.ToneAnalysis) string {
	label := lipgloss.NewStyle().Bold(true)
	lines := []string{
		label.Render("Tone: ") + a.OverallTone,
		label.Render("Professionalism: ") + theme.ScoreStyle(a.ProfessionalismScore).Render(fmt.Sprintf("%d/10", a.ProfessionalismScore)),
		label.Render("Sentiment: ") + theme.SentimentStyle(a.Sentiment).Render(a.Sentiment),
	}
	if len(a.Strengths) > 0 {
		lines = append(lines, "", label.Render("Strengths"))
		for _, s := range a.Strengths {
			lines = append(lines, "  + "+s)
		}
	}
	if len(a.Improvements) > 0 {
		lines = append(lines, "", label.Render("Suggestions"))
		for _, s := range a.Improvements {
			lines = append(lines, "  - "+s)
		}
	}
	return strings.Join(lines, "\n")
}

// View renders the panel.
func (m *Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite)

	state := m.status
	if state == "" {
		state = m.dest.State().String()
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("Assistant"),
		"  ",
		theme.SessionStyle(state).Render(state),
		"  ",
		theme.HelpStyle.Render("tone: "+string(m.Tone())),
	)

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(0, min(m.width-8, 80))))

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		"",
		m.input.View(),
		separator,
		m.viewport.View(),
	)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the panel dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.SetWidth(width - 6)
	m.viewport.Width = width - 6
	m.viewport.Height = outputHeight(height)
	m.refreshViewport()
}

// Focus gives keyboard focus to the editor.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
