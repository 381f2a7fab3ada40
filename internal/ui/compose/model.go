// Package compose is the new-message form. A message is either sent or
// saved to the provider's drafts folder.
package compose

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/source"
)

// Sender delivers or stores a composed message.
type Sender interface {
	SendMessage(ctx context.Context, to []model.Address, subject, body string) error
	CreateDraft(ctx context.Context, to []model.Address, subject, body string) (*model.Message, error)
}

// Form actions.
const (
	actionSend  = "send"
	actionDraft = "draft"
)

// DoneMsg reports how the form was closed. Notice is empty on cancel.
type DoneMsg struct {
	Notice string
	Err    error
	// Draft is the stored draft when the message was saved.
	Draft *model.Message
}

type values struct {
	to      string
	subject string
	body    string
	action  string
}

// Model is the compose form.
type Model struct {
	sender Sender
	form   *huh.Form
	vals   *values
	width  int
	height int
}

// New creates an empty compose form.
func New(s Sender, width, height int) Model {
	m := Model{sender: s, vals: &values{}, width: width, height: height}
	m.form = m.build()
	return m
}

// Open resets the form with the given subject and body.
func (m *Model) Open(subject, body string) tea.Cmd {
	*m.vals = values{subject: subject, body: body, action: actionSend}
	m.form = m.build()
	return m.form.Init()
}

func (m Model) build() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("To").
				Description("Comma separated, e.g. Jane Doe <jane@example.com>, bob@example.com").
				Value(&m.vals.to).
				Validate(validateRecipients),
			huh.NewInput().
				Title("Subject").
				Value(&m.vals.subject),
			huh.NewText().
				Title("Message").
				Lines(max(4, m.height-16)).
				Value(&m.vals.body),
			huh.NewSelect[string]().
				Title("Then").
				Options(
					huh.NewOption("Send now", actionSend),
					huh.NewOption("Save as draft", actionDraft),
				).
				Value(&m.vals.action),
		),
	).WithWidth(min(max(m.width-4, 40), 100))
}

// Init returns the form's initial command.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update forwards to the form and submits it once completed.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateAborted:
		return m, func() tea.Msg { return DoneMsg{} }
	case huh.StateCompleted:
		return m, m.submit()
	}
	return m, cmd
}

func (m Model) submit() tea.Cmd {
	v := *m.vals
	sender := m.sender
	return func() tea.Msg {
		to := source.ParseAddressList(v.to)
		subject := source.SubjectOrPlaceholder(v.subject)
		ctx := context.Background()

		if v.action == actionDraft {
			draft, err := sender.CreateDraft(ctx, to, subject, v.body)
			if err != nil {
				return DoneMsg{Err: err}
			}
			return DoneMsg{Notice: "Draft saved.", Draft: draft}
		}
		if err := sender.SendMessage(ctx, to, subject, v.body); err != nil {
			return DoneMsg{Err: err}
		}
		return DoneMsg{Notice: fmt.Sprintf("Sent to %d recipient(s).", len(to))}
	}
}

// View renders the form.
func (m Model) View() string {
	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(m.form.View())
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.form = m.form.WithWidth(min(max(width-4, 40), 100))
}

func validateRecipients(s string) error {
	addrs := source.ParseAddressList(s)
	if len(addrs) == 0 {
		return apperr.New(apperr.ValidationFailed, "at least one recipient is required")
	}
	for _, a := range addrs {
		if !strings.Contains(a.Email, "@") {
			return apperr.Newf(apperr.ValidationFailed, "%q is not an email address", a.Email)
		}
	}
	return nil
}
