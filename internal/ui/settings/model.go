// Package settings is the settings view: the completion API key, the
// mailbox sign-in, and preferences.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/auth"
	"github.com/nhle/mail-assistant/internal/keys"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/theme"
)

// Service is what the settings view reads and changes.
type Service interface {
	GetAPIKey() (string, error)
	SetAPIKey(key string) error
	DeleteAPIKey() error
	ValidateAPIKey(ctx context.Context, key string) bool
	Preferences() model.Preferences
	SetPreferences(p model.Preferences) error
	IsAuthenticated() bool
	UserInfo() (*model.UserInfo, error)
	Login(ctx context.Context, prompt auth.PromptFunc) (*model.UserInfo, error)
	Logout(ctx context.Context) error
}

// Mode represents the current state of the settings view.
type Mode int

const (
	ModeOverview Mode = iota
	ModeAPIKeyForm
	ModeValidating
	ModePrefsForm
	ModeLoggingIn
	ModeConfirm
)

// Overview rows.
const (
	rowAPIKey = iota
	rowAccount
	rowPreferences
	rowCount
)

// DoneMsg signals the settings view should close.
type DoneMsg struct{}

// PreferencesChangedMsg is sent after preferences were saved.
type PreferencesChangedMsg struct {
	Preferences model.Preferences
}

// AccountChangedMsg is sent after a sign-in or sign-out. User is nil
// after sign-out.
type AccountChangedMsg struct {
	User *model.UserInfo
}

type loadedMsg struct {
	maskedKey string
	user      *model.UserInfo
	err       error
}

type keyValidatedMsg struct {
	valid bool
	err   error
}

type deviceCodeMsg struct {
	code auth.DeviceCode
}

type loginDoneMsg struct {
	user *model.UserInfo
	err  error
}

type logoutDoneMsg struct {
	err error
}

type keyDeletedMsg struct {
	err error
}

// pending confirm actions.
const (
	confirmLogout    = "logout"
	confirmDeleteKey = "delete-key"
)

// formValues is shared by every copy of Model so huh can write into it.
type formValues struct {
	apiKey      string
	theme       string
	autoSync    bool
	intervalMin string
	confirmed   bool
}

// Model is the settings view.
type Model struct {
	mode     Mode
	svc      Service
	selected int

	maskedKey string
	user      *model.UserInfo
	device    *auth.DeviceCode
	confirm   string

	form    *huh.Form
	vals    *formValues
	spinner spinner.Model

	statusMsg string
	statusErr bool

	keys          *keys.KeyMap
	width, height int
}

// New creates a settings view.
func New(svc Service, k *keys.KeyMap, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		svc:     svc,
		vals:    &formValues{},
		spinner: sp,
		keys:    k,
		width:   width,
		height:  height,
	}
}

// Init loads the current key and account.
func (m Model) Init() tea.Cmd {
	return m.load()
}

func (m Model) load() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		masked, err := svc.GetAPIKey()
		if err != nil {
			return loadedMsg{err: err}
		}
		user, err := svc.UserInfo()
		return loadedMsg{maskedKey: masked, user: user, err: err}
	}
}

// Update handles messages and dispatches based on current mode.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		m.maskedKey = msg.maskedKey
		m.user = msg.user
		if msg.err != nil {
			m.setStatus(apperr.Message(msg.err), true)
		}
		return m, nil

	case keyValidatedMsg:
		m.mode = ModeOverview
		switch {
		case msg.err != nil:
			m.setStatus(apperr.Message(msg.err), true)
		case !msg.valid:
			m.setStatus("The API key was rejected. Nothing was saved.", true)
		default:
			m.setStatus("API key saved.", false)
		}
		return m, m.load()

	case keyDeletedMsg:
		if msg.err != nil {
			m.setStatus(apperr.Message(msg.err), true)
		} else {
			m.setStatus("API key removed.", false)
		}
		return m, m.load()

	case deviceCodeMsg:
		code := msg.code
		m.device = &code
		return m, nil

	case loginDoneMsg:
		m.mode = ModeOverview
		m.device = nil
		if msg.err != nil {
			m.setStatus(apperr.Message(msg.err), true)
			return m, nil
		}
		m.user = msg.user
		m.setStatus("Signed in as "+msg.user.Email+".", false)
		user := msg.user
		return m, func() tea.Msg { return AccountChangedMsg{User: user} }

	case logoutDoneMsg:
		if msg.err != nil {
			m.setStatus(apperr.Message(msg.err), true)
			return m, nil
		}
		m.user = nil
		m.setStatus("Signed out.", false)
		return m, func() tea.Msg { return AccountChangedMsg{} }

	case spinner.TickMsg:
		if m.mode == ModeValidating || m.mode == ModeLoggingIn {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m.updateForm(msg)
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch m.mode {
	case ModeOverview:
		return m.handleOverviewKeys(msg)
	case ModeValidating, ModeLoggingIn:
		// the request finishes on its own; keys are ignored meanwhile
		return m, nil
	}
	return m.updateForm(msg)
}

func (m Model) handleOverviewKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		return m, func() tea.Msg { return DoneMsg{} }

	case key.Matches(msg, m.keys.Down):
		m.selected = (m.selected + 1) % rowCount
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.selected = (m.selected + rowCount - 1) % rowCount
		return m, nil

	case msg.String() == "x" && m.selected == rowAPIKey && m.maskedKey != "":
		return m.openConfirm(confirmDeleteKey, "Remove the stored API key?")

	case msg.String() == "enter":
		m.statusMsg = ""
		switch m.selected {
		case rowAPIKey:
			m.vals.apiKey = ""
			m.mode = ModeAPIKeyForm
			m.form = m.buildAPIKeyForm()
			return m, m.form.Init()

		case rowAccount:
			if m.user != nil || m.svc.IsAuthenticated() {
				return m.openConfirm(confirmLogout, "Sign out and clear cached mail?")
			}
			return m.startLogin()

		case rowPreferences:
			p := m.svc.Preferences()
			m.vals.theme = p.Theme
			m.vals.autoSync = p.AutoSync
			m.vals.intervalMin = strconv.Itoa(p.SyncIntervalMin)
			m.mode = ModePrefsForm
			m.form = m.buildPrefsForm()
			return m, m.form.Init()
		}
	}
	return m, nil
}

// --- Forms ---

func (m Model) buildAPIKeyForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Claude API key").
				Description("Checked with a short test request before it is stored").
				EchoMode(huh.EchoModePassword).
				Value(&m.vals.apiKey).
				Validate(validateRequired("API key")),
		),
	).WithWidth(m.formWidth())
}

func (m Model) buildPrefsForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Theme").
				Options(
					huh.NewOption("Dark", "dark"),
					huh.NewOption("Light", "light"),
				).
				Value(&m.vals.theme),
			huh.NewConfirm().
				Title("Sync in the background").
				Value(&m.vals.autoSync),
			huh.NewInput().
				Title("Sync interval (minutes)").
				Value(&m.vals.intervalMin).
				Validate(validateInterval),
		),
	).WithWidth(m.formWidth())
}

func (m Model) openConfirm(action, title string) (Model, tea.Cmd) {
	m.confirm = action
	m.vals.confirmed = false
	m.mode = ModeConfirm
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&m.vals.confirmed),
		),
	).WithWidth(m.formWidth())
	return m, m.form.Init()
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateAborted:
		m.mode = ModeOverview
		m.form = nil
		return m, nil
	case huh.StateCompleted:
		m.form = nil
		return m.submit()
	}
	return m, cmd
}

func (m Model) submit() (Model, tea.Cmd) {
	switch m.mode {
	case ModeAPIKeyForm:
		m.mode = ModeValidating
		return m, tea.Batch(m.spinner.Tick, m.validateAndStore(strings.TrimSpace(m.vals.apiKey)))

	case ModePrefsForm:
		m.mode = ModeOverview
		interval, _ := strconv.Atoi(strings.TrimSpace(m.vals.intervalMin))
		prefs := model.Preferences{
			Theme:           m.vals.theme,
			AutoSync:        m.vals.autoSync,
			SyncIntervalMin: interval,
		}
		if err := m.svc.SetPreferences(prefs); err != nil {
			m.setStatus(apperr.Message(err), true)
			return m, nil
		}
		m.setStatus("Preferences saved.", false)
		return m, func() tea.Msg { return PreferencesChangedMsg{Preferences: prefs} }

	case ModeConfirm:
		m.mode = ModeOverview
		if !m.vals.confirmed {
			return m, nil
		}
		svc := m.svc
		switch m.confirm {
		case confirmLogout:
			return m, func() tea.Msg {
				return logoutDoneMsg{err: svc.Logout(context.Background())}
			}
		case confirmDeleteKey:
			return m, func() tea.Msg {
				return keyDeletedMsg{err: svc.DeleteAPIKey()}
			}
		}
	}
	m.mode = ModeOverview
	return m, nil
}

// validateAndStore tests key and stores it only when it works.
func (m Model) validateAndStore(apiKey string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		if !svc.ValidateAPIKey(context.Background(), apiKey) {
			return keyValidatedMsg{valid: false}
		}
		return keyValidatedMsg{valid: true, err: svc.SetAPIKey(apiKey)}
	}
}

// StartLogin begins a sign-in unless an account is already signed in.
func (m Model) StartLogin() (Model, tea.Cmd) {
	if m.svc.IsAuthenticated() {
		m.setStatus("Already signed in.", false)
		return m, nil
	}
	return m.startLogin()
}

// startLogin runs the device flow. The device code arrives on its own
// message while the login call keeps polling.
func (m Model) startLogin() (Model, tea.Cmd) {
	m.mode = ModeLoggingIn
	m.device = nil

	codes := make(chan auth.DeviceCode, 1)
	done := make(chan struct{})
	svc := m.svc

	login := func() tea.Msg {
		defer close(done)
		user, err := svc.Login(context.Background(), func(dc auth.DeviceCode) {
			codes <- dc
		})
		return loginDoneMsg{user: user, err: err}
	}
	waitCode := func() tea.Msg {
		select {
		case dc := <-codes:
			return deviceCodeMsg{code: dc}
		case <-done:
			select {
			case dc := <-codes:
				return deviceCodeMsg{code: dc}
			default:
				return nil
			}
		}
	}
	return m, tea.Batch(m.spinner.Tick, login, waitCode)
}

// --- View ---

// View renders the settings UI based on the current mode.
func (m Model) View() string {
	switch m.mode {
	case ModeAPIKeyForm, ModePrefsForm, ModeConfirm:
		return m.viewForm()
	case ModeValidating:
		return m.viewBusy("Checking the API key...")
	case ModeLoggingIn:
		return m.viewLogin()
	default:
		return m.viewOverview()
	}
}

func (m Model) viewOverview() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)
	b.WriteString(titleStyle.Render("Settings"))
	b.WriteString("\n\n")

	keyValue := m.maskedKey
	if keyValue == "" {
		keyValue = "not set"
	}
	account := "not signed in"
	if m.user != nil {
		account = m.user.Email
		if m.user.Name != "" {
			account = m.user.Name + " <" + m.user.Email + ">"
		}
	}
	p := m.svc.Preferences()
	sync := "off"
	if p.AutoSync {
		sync = fmt.Sprintf("every %d min", p.SyncIntervalMin)
	}
	prefs := fmt.Sprintf("theme %s, background sync %s", p.Theme, sync)

	rows := []struct{ label, value string }{
		{"Claude API key", keyValue},
		{"Mailbox", account},
		{"Preferences", prefs},
	}
	labelStyle := lipgloss.NewStyle().Width(16).Foreground(theme.ColorGray)
	for i, r := range rows {
		line := labelStyle.Render(r.label) + r.value
		if i == m.selected {
			line = theme.SelectedItemStyle.Render(line)
		} else {
			line = theme.ListItemStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.statusMsg != "" {
		b.WriteString("\n")
		statusStyle := lipgloss.NewStyle().Foreground(theme.ColorGreen).Italic(true)
		if m.statusErr {
			statusStyle = theme.ErrorStyle
		}
		b.WriteString(statusStyle.Render(m.statusMsg))
	}

	b.WriteString("\n\n")
	b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorGray).Render(
		"enter edit | x remove key | esc back",
	))

	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(b.String())
}

func (m Model) viewForm() string {
	if m.form == nil {
		return ""
	}
	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(m.form.View())
}

func (m Model) viewBusy(text string) string {
	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(m.spinner.View() + " " + text)
}

func (m Model) viewLogin() string {
	if m.device == nil {
		return m.viewBusy("Contacting the sign-in service...")
	}
	code := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).Render(m.device.UserCode)
	text := fmt.Sprintf("Open %s\nand enter the code %s\n\n%s Waiting for approval...",
		m.device.VerificationURI, code, m.spinner.View())
	return lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height).
		Render(text)
}

// --- Helpers ---

// Mode returns the current mode.
func (m Model) Mode() Mode {
	return m.mode
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) setStatus(text string, isErr bool) {
	m.statusMsg = text
	m.statusErr = isErr
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 100)
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateInterval(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return fmt.Errorf("enter a whole number of minutes")
	}
	return nil
}
