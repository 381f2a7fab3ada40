// Package command is the ":" palette. It resolves a typed line against
// a fixed verb table and only emits lines that name a known verb with
// the arguments it needs.
package command

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-assistant/internal/theme"
)

// Verb is one palette command.
type Verb struct {
	Name    string
	Aliases []string
	Arg     string // placeholder shown in usage; empty when the verb takes none
	Summary string
}

// Usage renders the verb as typed, e.g. "search <text>".
func (v Verb) Usage() string {
	if v.Arg == "" {
		return v.Name
	}
	return v.Name + " <" + v.Arg + ">"
}

// Verbs is the palette's command table.
var Verbs = []Verb{
	{Name: "sync", Aliases: []string{"refresh"}, Summary: "fetch the inbox now"},
	{Name: "inbox", Summary: "show the inbox"},
	{Name: "drafts", Summary: "show drafts"},
	{Name: "search", Arg: "text", Summary: "search cached mail"},
	{Name: "compose", Summary: "write a new message"},
	{Name: "templates", Summary: "manage templates"},
	{Name: "settings", Aliases: []string{"config"}, Summary: "open settings"},
	{Name: "login", Summary: "sign in to the mailbox"},
	{Name: "logout", Summary: "sign out and clear the cache"},
	{Name: "clear-cache", Summary: "drop cached messages"},
	{Name: "quit", Aliases: []string{"q"}, Summary: "exit"},
}

// Usages lists every verb's usage string.
func Usages() []string {
	out := make([]string, len(Verbs))
	for i, v := range Verbs {
		out[i] = v.Usage()
	}
	return out
}

// CommandMsg is emitted when the user runs a valid command. Name is the
// canonical verb, never an alias.
type CommandMsg struct {
	Name string
	Arg  string
}

// Parse resolves a palette line. Verbs match case-insensitively by name
// or alias; the rest of the line is the argument.
func Parse(line string) (CommandMsg, error) {
	word, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	word = strings.ToLower(word)
	arg = strings.TrimSpace(arg)

	v, ok := lookup(word)
	if !ok {
		return CommandMsg{}, fmt.Errorf("unknown command %q", word)
	}
	if v.Arg != "" && arg == "" {
		return CommandMsg{}, fmt.Errorf("usage: %s", v.Usage())
	}
	if v.Arg == "" && arg != "" {
		return CommandMsg{}, fmt.Errorf("%s takes no arguments", v.Name)
	}
	return CommandMsg{Name: v.Name, Arg: arg}, nil
}

func lookup(word string) (Verb, bool) {
	for _, v := range Verbs {
		if v.Name == word {
			return v, true
		}
		for _, a := range v.Aliases {
			if a == word {
				return v, true
			}
		}
	}
	return Verb{}, false
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	errMsg string
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	names := make([]string, 0, len(Verbs))
	for _, v := range Verbs {
		names = append(names, v.Name)
	}

	ti := textinput.New()
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(names)
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette. An invalid line stays
// in the input with the error shown beneath it.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.Type == tea.KeyEnter {
		line := strings.TrimSpace(m.input.Value())
		if line == "" {
			return m, nil
		}
		out, err := Parse(line)
		if err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		m.input.Reset()
		m.errMsg = ""
		return m, func() tea.Msg { return out }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	lines := []string{titleStyle.Render("Command Palette"), m.input.View()}
	if m.errMsg != "" {
		lines = append(lines, theme.ErrorStyle.Render(m.errMsg))
	}
	lines = append(lines, theme.HelpStyle.Render(m.matches()))

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// matches describes the verbs starting with what has been typed so far.
func (m Model) matches() string {
	prefix := strings.ToLower(strings.TrimSpace(m.input.Value()))
	prefix, _, _ = strings.Cut(prefix, " ")

	var parts []string
	for _, v := range Verbs {
		if strings.HasPrefix(v.Name, prefix) {
			parts = append(parts, v.Usage()+"  "+v.Summary)
		}
	}
	if len(parts) == 0 {
		return "no matching command"
	}
	return strings.Join(parts, "\n")
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input and clears any stale error.
func (m *Model) Focus() tea.Cmd {
	m.errMsg = ""
	return m.input.Focus()
}
