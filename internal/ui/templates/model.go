// Package templates lists saved message templates and fills their
// placeholders before handing the result to the compose form.
package templates

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/keys"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/placeholder"
	"github.com/nhle/mail-assistant/internal/theme"
)

// Service manages templates.
type Service interface {
	ListTemplates(ctx context.Context) ([]model.Template, error)
	CreateTemplate(ctx context.Context, in model.TemplateInput) (*model.Template, error)
	UpdateTemplate(ctx context.Context, id string, patch model.TemplatePatch) (*model.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
	ApplyTemplate(ctx context.Context, id string, values map[string]string) (subject, body string, err error)
}

// CloseMsg signals the parent to close the template view.
type CloseMsg struct{}

// ComposeMsg carries a filled-in template for the compose form.
type ComposeMsg struct {
	Subject string
	Body    string
}

type mode int

const (
	modeList mode = iota
	modeForm
	modeConfirmDelete
	modeFill
)

type formBindings struct {
	name     string
	subject  string
	body     string
	category string
	confirm  bool
	values   map[string]*string
}

type loadedMsg struct {
	templates []model.Template
	err       error
}

type savedMsg struct{ err error }
type deletedMsg struct{ err error }

type appliedMsg struct {
	subject string
	body    string
	err     error
}

// Model is the template manager.
type Model struct {
	mode        mode
	svc         Service
	keys        *keys.KeyMap
	templates   []model.Template
	selectedIdx int
	editingID   string
	form        *huh.Form
	fb          *formBindings
	statusMsg   string
	statusErr   bool
	width       int
	height      int
}

// New creates the template manager.
func New(s Service, k *keys.KeyMap, width, height int) Model {
	return Model{
		svc:    s,
		keys:   k,
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Init loads the templates.
func (m Model) Init() tea.Cmd {
	return m.load()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		if msg.err != nil {
			m.setStatus(msg.err)
			return m, nil
		}
		m.templates = msg.templates
		if m.selectedIdx >= len(m.templates) {
			m.selectedIdx = max(0, len(m.templates)-1)
		}
		return m, nil

	case savedMsg:
		m.mode = modeList
		if msg.err != nil {
			m.setStatus(msg.err)
			return m, nil
		}
		m.statusMsg, m.statusErr = "Template saved", false
		return m, m.load()

	case deletedMsg:
		m.mode = modeList
		if msg.err != nil {
			m.setStatus(msg.err)
			return m, nil
		}
		m.statusMsg, m.statusErr = "Template deleted", false
		return m, m.load()

	case appliedMsg:
		m.mode = modeList
		if msg.err != nil {
			m.setStatus(msg.err)
			return m, nil
		}
		out := ComposeMsg{Subject: msg.subject, Body: msg.body}
		return m, func() tea.Msg { return out }

	case tea.KeyMsg:
		if m.mode == modeList {
			return m.handleListKey(msg)
		}
	}

	if m.mode != modeList {
		return m.updateForm(msg)
	}
	return m, nil
}

func (m *Model) setStatus(err error) {
	m.statusMsg = apperr.Message(err)
	m.statusErr = true
}

func (m Model) handleListKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		return m, func() tea.Msg { return CloseMsg{} }

	case key.Matches(msg, m.keys.Down):
		if len(m.templates) > 0 {
			m.selectedIdx = (m.selectedIdx + 1) % len(m.templates)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if len(m.templates) > 0 {
			m.selectedIdx = (m.selectedIdx - 1 + len(m.templates)) % len(m.templates)
		}
		return m, nil

	case key.Matches(msg, m.keys.Select):
		tpl, ok := m.selected()
		if !ok {
			return m, nil
		}
		if len(tpl.Variables) == 0 {
			return m, m.apply(tpl.ID, nil)
		}
		m.fb.values = make(map[string]*string, len(tpl.Variables))
		for _, v := range tpl.Variables {
			m.fb.values[v] = new(string)
		}
		return m.openForm(modeFill, m.buildFillForm(tpl))

	case msg.String() == "n":
		m.editingID = ""
		*m.fb = formBindings{}
		return m.openForm(modeForm, m.buildForm())

	case msg.String() == "e":
		tpl, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.editingID = tpl.ID
		*m.fb = formBindings{name: tpl.Name, subject: tpl.Subject, body: tpl.Body}
		if tpl.Category != nil {
			m.fb.category = *tpl.Category
		}
		return m.openForm(modeForm, m.buildForm())

	case msg.String() == "x":
		tpl, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.fb.confirm = false
		return m.openForm(modeConfirmDelete, m.buildConfirmForm(tpl.Name))
	}
	return m, nil
}

func (m Model) selected() (model.Template, bool) {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.templates) {
		return model.Template{}, false
	}
	return m.templates[m.selectedIdx], true
}

func (m Model) openForm(md mode, f *huh.Form) (Model, tea.Cmd) {
	m.mode = md
	m.form = f
	m.statusMsg = ""
	return m, f.Init()
}

func (m Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Value(&m.fb.name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Category").
				Placeholder("optional").
				Value(&m.fb.category),
			huh.NewInput().
				Title("Subject").
				Description("Use {{name}} for values filled in when the template is used.").
				Value(&m.fb.subject),
			huh.NewText().
				Title("Body").
				Lines(8).
				Value(&m.fb.body),
		),
	).WithWidth(m.formWidth())
}

func (m Model) buildFillForm(tpl model.Template) *huh.Form {
	fields := make([]huh.Field, 0, len(tpl.Variables))
	for _, v := range tpl.Variables {
		fields = append(fields, huh.NewInput().
			Title(v).
			Value(m.fb.values[v]))
	}
	return huh.NewForm(huh.NewGroup(fields...).Title(tpl.Name)).WithWidth(m.formWidth())
}

func (m Model) buildConfirmForm(name string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete template %q?", name)).
				Affirmative("Delete").
				Negative("Cancel").
				Value(&m.fb.confirm),
		),
	).WithWidth(m.formWidth())
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		m.mode = modeList
		return m, nil
	}
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateAborted:
		m.mode = modeList
		return m, nil
	case huh.StateCompleted:
		return m.submit()
	}
	return m, cmd
}

func (m Model) submit() (Model, tea.Cmd) {
	tpl, _ := m.selected()
	switch m.mode {
	case modeForm:
		return m, m.save()
	case modeConfirmDelete:
		if !m.fb.confirm {
			m.mode = modeList
			return m, nil
		}
		return m, m.remove(tpl.ID)
	case modeFill:
		values := make(map[string]string, len(m.fb.values))
		for k, v := range m.fb.values {
			values[k] = *v
		}
		return m, m.apply(tpl.ID, values)
	}
	m.mode = modeList
	return m, nil
}

// View renders the manager.
func (m Model) View() string {
	if m.mode != modeList && m.form != nil {
		return lipgloss.NewStyle().Padding(1, 2).Render(m.form.View())
	}
	return m.viewList()
}

func (m Model) viewList() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	b.WriteString(titleStyle.Render("Templates"))
	b.WriteString("\n\n")

	if len(m.templates) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorGray).Italic(true).
			Render("No templates yet. Press 'n' to create one."))
	}
	for i, t := range m.templates {
		label := t.Name
		if t.Category != nil && *t.Category != "" {
			label += theme.HelpStyle.Render("  [" + *t.Category + "]")
		}
		if len(t.Variables) > 0 {
			label += theme.HelpStyle.Render("  " + strings.Join(placeholder.Braced(t.Variables), " "))
		}
		if i == m.selectedIdx {
			b.WriteString(theme.SelectedItemStyle.Render(label))
		} else {
			b.WriteString(theme.ListItemStyle.Render(label))
		}
		b.WriteString("\n")
	}

	if m.statusMsg != "" {
		style := lipgloss.NewStyle().Foreground(theme.ColorYellow).Italic(true)
		if m.statusErr {
			style = theme.ErrorStyle
		}
		b.WriteString("\n")
		b.WriteString(style.Render(m.statusMsg))
	}

	b.WriteString("\n\n")
	b.WriteString(theme.HelpStyle.Render("enter use | n new | e edit | x delete | esc back"))

	return lipgloss.NewStyle().Padding(1, 2).Width(m.width).Height(m.height).Render(b.String())
}

// SetSize updates dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 100)
}

func (m Model) load() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		tpls, err := svc.ListTemplates(context.Background())
		return loadedMsg{templates: tpls, err: err}
	}
}

func (m Model) save() tea.Cmd {
	svc := m.svc
	fb := *m.fb
	id := m.editingID
	return func() tea.Msg {
		var category *string
		if c := strings.TrimSpace(fb.category); c != "" {
			category = &c
		}
		vars := placeholder.Extract(fb.subject, fb.body)
		ctx := context.Background()

		if id == "" {
			_, err := svc.CreateTemplate(ctx, model.TemplateInput{
				Name:      fb.name,
				Subject:   fb.subject,
				Body:      fb.body,
				Category:  category,
				Variables: vars,
			})
			return savedMsg{err: err}
		}
		_, err := svc.UpdateTemplate(ctx, id, model.TemplatePatch{
			Name:      &fb.name,
			Subject:   &fb.subject,
			Body:      &fb.body,
			Category:  category,
			Variables: &vars,
		})
		return savedMsg{err: err}
	}
}

func (m Model) remove(id string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		return deletedMsg{err: svc.DeleteTemplate(context.Background(), id)}
	}
}

func (m Model) apply(id string, values map[string]string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		subject, body, err := svc.ApplyTemplate(context.Background(), id, values)
		return appliedMsg{subject: subject, body: body, err: err}
	}
}
