// Package app is the root of the terminal client: it routes between
// views and connects them to Handlers.
package app

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/keys"
	"github.com/nhle/mail-assistant/internal/model"
	appsync "github.com/nhle/mail-assistant/internal/sync"
	"github.com/nhle/mail-assistant/internal/theme"
	"github.com/nhle/mail-assistant/internal/ui"
	"github.com/nhle/mail-assistant/internal/ui/assistant"
	"github.com/nhle/mail-assistant/internal/ui/command"
	"github.com/nhle/mail-assistant/internal/ui/compose"
	helpview "github.com/nhle/mail-assistant/internal/ui/help"
	"github.com/nhle/mail-assistant/internal/ui/inbox"
	"github.com/nhle/mail-assistant/internal/ui/reader"
	"github.com/nhle/mail-assistant/internal/ui/settings"
	"github.com/nhle/mail-assistant/internal/ui/templates"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewInbox ViewState = iota
	ViewReader
	ViewAssistant
	ViewSettings
	ViewHelp
	ViewCommand
	ViewCompose
	ViewTemplates
)

// manualSyncMsg reports a sync started from the keyboard while
// auto-sync is off.
type manualSyncMsg struct {
	count int
	err   error
}

type lastSyncMsg struct {
	at time.Time
	ok bool
}

type accountLoadedMsg struct {
	user *model.UserInfo
}

type replySentMsg struct {
	err error
}

type cacheClearedMsg struct {
	err error
}

// Model is the root Bubble Tea model.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	h            *Handlers
	keys         *keys.KeyMap
	poller       *appsync.Poller

	inbox     inbox.Model
	reader    reader.Model
	assistant *assistant.Model
	settings  settings.Model
	help      helpview.Model
	command   command.Model
	compose   compose.Model
	templates templates.Model

	ready bool
	// syncListening is set while a command waits on the poller.
	syncListening bool
	syncing       bool
	lastSync      time.Time
	account       string
	notice        string
	// pendingReply holds generated reply text for a message not yet open.
	pendingReply *assistant.UseReplyMsg
}

// New creates the root model. poller may be stopped; it is started when
// auto-sync is enabled.
func New(h *Handlers, poller *appsync.Poller) Model {
	k := keys.DefaultKeyMap()

	help := helpview.New(k, 80, 24)
	help.SetContext(h.Provider(), command.Usages())

	m := Model{
		currentView: ViewInbox,
		h:           h,
		keys:        k,
		poller:      poller,
		inbox:       inbox.New(h, k, 80, 24),
		reader:      reader.New(k, 80, 24),
		assistant:   assistant.New(h, k, 80, 24),
		settings:    settings.New(h, k, 80, 24),
		help:        help,
		command:     command.New(80, 24),
		compose:     compose.New(h, 80, 24),
		templates:   templates.New(h, k, 80, 24),
	}
	// Init starts the poller and its first listener.
	m.syncListening = poller != nil && h.Preferences().AutoSync
	return m
}

// Init loads the inbox, the account and the last sync time, and starts
// auto-sync when enabled.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.inbox.Init(),
		m.loadAccount(),
		m.loadLastSync(),
		m.startAutoSync(),
	)
}

// startAutoSync starts the poller when preferences ask for it.
func (m Model) startAutoSync() tea.Cmd {
	if m.poller == nil || !m.h.Preferences().AutoSync {
		return nil
	}
	return m.poller.Start(m.h.SyncInterval())
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.inbox.SetSize(w, h)
		m.reader.SetSize(w, h)
		m.assistant.SetSize(w, h)
		m.settings.SetSize(w, h)
		m.help.SetSize(w, h)
		m.command.SetSize(w, h)
		m.compose.SetSize(w, h)
		m.templates.SetSize(w, h)
		// huh forms need the size too
		return m.updateActiveView(msg)

	case appsync.SyncResultMsg:
		m.syncListening = false
		m.syncing = false
		switch {
		case msg.AuthError != nil:
			m.notice = msg.AuthError.Message
		case msg.Error != nil:
			m.notice = "Sync failed: " + apperr.Message(msg.Error)
		default:
			m.notice = ""
			m.lastSync = time.Now()
		}
		listen := m.listenForSync()
		return m, tea.Batch(m.reloadInbox(), listen)

	case manualSyncMsg:
		m.syncing = false
		if msg.err != nil {
			m.notice = "Sync failed: " + apperr.Message(msg.err)
			return m, nil
		}
		m.notice = ""
		m.lastSync = time.Now()
		return m, m.reloadInbox()

	case lastSyncMsg:
		if msg.ok {
			m.lastSync = msg.at
		}
		return m, nil

	case accountLoadedMsg:
		m.setAccount(msg.user)
		return m, nil

	case inbox.MessagesLoadedMsg:
		// results may arrive while another view is active
		var cmd tea.Cmd
		m.inbox, cmd = m.inbox.Update(msg)
		return m, cmd

	case inbox.SelectedMessageMsg:
		cmd := m.openMessage(msg.ID)
		return m, cmd

	case reader.MessageLoadedMsg:
		m.reader, _ = m.reader.Update(msg)
		if p := m.pendingReply; p != nil && msg.Message != nil && msg.Message.ID == p.MessageID {
			m.pendingReply = nil
			cmd := m.reader.InsertReply(p.Text)
			return m, cmd
		}
		return m, nil

	case reader.ConversationLoadedMsg:
		m.reader, _ = m.reader.Update(msg)
		return m, nil

	case reader.BackMsg:
		m.currentView = ViewInbox
		return m, nil

	case reader.SendReplyMsg:
		return m, m.sendReply(msg)

	case replySentMsg:
		if msg.err != nil {
			m.notice = "Reply not sent: " + apperr.Message(msg.err)
			return m, nil
		}
		m.notice = "Reply sent."
		return m, nil

	case reader.ActionMsg:
		switch msg.Action {
		case reader.ActionAssistant:
			target := msg.Message
			cmd := m.openAssistant(&target)
			return m, cmd
		case reader.ActionConversation:
			return m, m.loadConversation(msg.Message.ConversationID)
		}
		return m, nil

	case assistant.ChunkMsg, assistant.CompleteMsg:
		return m, m.assistant.Update(msg)

	case assistant.CloseMsg:
		m.currentView = m.previousView
		if m.currentView == ViewAssistant {
			m.currentView = ViewInbox
		}
		return m, nil

	case assistant.UseReplyMsg:
		m.currentView = ViewReader
		if open := m.reader.Message(); open != nil && open.ID == msg.MessageID {
			cmd := m.reader.InsertReply(msg.Text)
			return m, cmd
		}
		reply := msg
		m.pendingReply = &reply
		m.reader.SetLoading(true)
		return m, m.loadMessage(msg.MessageID)

	case settings.DoneMsg:
		m.currentView = ViewInbox
		return m, nil

	case settings.PreferencesChangedMsg:
		theme.Apply(msg.Preferences.Theme)
		if m.poller != nil {
			m.poller.Stop()
		}
		cmd := m.listenForSync()
		return m, cmd

	case settings.AccountChangedMsg:
		m.setAccount(msg.User)
		show := m.inbox.Show(inbox.FolderInbox)
		if msg.User == nil {
			m.lastSync = time.Time{}
			return m, show
		}
		next, sync := m.runSync()
		return next, tea.Batch(sync, show)

	case compose.DoneMsg:
		m.currentView = m.previousView
		if m.currentView == ViewCompose || m.currentView == ViewTemplates {
			m.currentView = ViewInbox
		}
		switch {
		case msg.Err != nil:
			m.notice = apperr.Message(msg.Err)
		case msg.Notice != "":
			m.notice = msg.Notice
			return m, m.reloadInbox()
		}
		return m, nil

	case templates.CloseMsg:
		m.currentView = ViewInbox
		return m, nil

	case templates.ComposeMsg:
		cmd := m.openCompose(msg.Subject, msg.Body)
		return m, cmd

	case cacheClearedMsg:
		if msg.err != nil {
			m.notice = apperr.Message(msg.err)
			return m, nil
		}
		m.notice = "Cache cleared."
		cmd := m.inbox.Show(inbox.FolderInbox)
		return m, cmd

	case command.CommandMsg:
		m.currentView = m.previousView
		cmd := m.executeCommand(msg)
		return m, cmd

	case tea.KeyMsg:
		if next, cmd, handled := m.handleGlobalKey(msg); handled {
			return next, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKey handles keys that work outside of text inputs.
func (m Model) handleGlobalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		m.stopPoller()
		return m, tea.Quit, true
	}
	if m.typing() {
		return m, nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true

	case key.Matches(msg, m.keys.Command):
		if m.currentView == ViewCommand {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewCommand
		cmd := m.command.Focus()
		return m, cmd, true
	}

	if m.currentView != ViewInbox {
		return m, nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.stopPoller()
		return m, tea.Quit, true

	case key.Matches(msg, m.keys.Refresh):
		next, cmd := m.runSync()
		return next, cmd, true

	case key.Matches(msg, m.keys.AI):
		var target *model.Message
		if sel, ok := m.inbox.Selected(); ok {
			target = &sel
		}
		cmd := m.openAssistant(target)
		return m, cmd, true

	case key.Matches(msg, m.keys.Compose):
		cmd := m.openCompose("", "")
		return m, cmd, true

	case key.Matches(msg, m.keys.Settings):
		cmd := m.openSettings()
		return m, cmd, true

	case msg.String() == "t":
		cmd := m.openTemplates()
		return m, cmd, true
	}
	return m, nil, false
}

// typing reports whether the active view has a focused text input that
// must receive every key.
func (m Model) typing() bool {
	switch m.currentView {
	case ViewAssistant, ViewCompose, ViewCommand:
		return true
	case ViewInbox:
		return m.inbox.Searching()
	case ViewReader:
		return m.reader.Replying()
	case ViewSettings:
		return m.settings.Mode() != settings.ModeOverview
	case ViewTemplates:
		return true
	}
	return false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewInbox:
		m.inbox, cmd = m.inbox.Update(msg)
	case ViewReader:
		m.reader, cmd = m.reader.Update(msg)
	case ViewAssistant:
		cmd = m.assistant.Update(msg)
	case ViewSettings:
		m.settings, cmd = m.settings.Update(msg)
	case ViewHelp:
		m.help, cmd = m.help.Update(msg)
	case ViewCommand:
		m.command, cmd = m.command.Update(msg)
	case ViewCompose:
		m.compose, cmd = m.compose.Update(msg)
	case ViewTemplates:
		m.templates, cmd = m.templates.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("Mail Assistant", m.account, m.syncStatus())
	statusBar := m.layout.RenderStatusBar(m.keyHints(), m.notice)
	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

func (m Model) renderContent() string {
	switch m.currentView {
	case ViewReader:
		return m.reader.View()
	case ViewAssistant:
		return m.assistant.View()
	case ViewSettings:
		return m.settings.View()
	case ViewHelp:
		return m.help.View()
	case ViewCommand:
		return m.command.View()
	case ViewCompose:
		return m.compose.View()
	case ViewTemplates:
		return m.templates.View()
	default:
		return m.inbox.View()
	}
}

// syncStatus describes the sync state for the header.
func (m Model) syncStatus() string {
	if m.syncing {
		return "syncing..."
	}
	auto := ""
	if m.poller != nil && m.poller.Running() {
		auto = " (auto)"
	}
	if m.poller != nil && m.poller.Status().State == appsync.SyncRunning {
		return "syncing..." + auto
	}
	if m.lastSync.IsZero() {
		return "never synced" + auto
	}
	return "synced " + m.lastSync.Local().Format("15:04") + auto
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	case ViewReader:
		if m.reader.Replying() {
			return "ctrl+s send | esc cancel"
		}
		return "R reply | a assistant | T thread | esc back"
	case ViewAssistant:
		return "ctrl+e improve | ctrl+g reply | ctrl+t tone | tab tone | ctrl+y use | esc close"
	case ViewSettings:
		return "enter edit | x remove key | esc back"
	case ViewCompose:
		return "tab next field | enter confirm | esc cancel"
	case ViewTemplates:
		return "enter use | n new | e edit | x delete | esc back"
	default:
		return "q quit | r sync | d drafts | / search | c compose | t templates | a assistant | , settings"
	}
}

func (m *Model) setAccount(user *model.UserInfo) {
	if user == nil {
		m.account = ""
		return
	}
	m.account = user.Email
}

// listenForSync arms one listener on the poller, starting it first when
// auto-sync is on.
func (m *Model) listenForSync() tea.Cmd {
	if m.poller == nil || !m.h.Preferences().AutoSync {
		return nil
	}
	start := m.poller.Start(m.h.SyncInterval())
	if m.syncListening {
		return nil
	}
	m.syncListening = true
	if start != nil {
		return start
	}
	return m.poller.WaitForNextResult()
}

// runSync asks the poller for an immediate sync when it is running and
// otherwise syncs once in a command.
func (m Model) runSync() (Model, tea.Cmd) {
	if m.poller != nil && m.poller.Running() {
		m.poller.Refresh()
		return m, nil
	}
	m.syncing = true
	h := m.h
	return m, func() tea.Msg {
		count, err := h.Sync(context.Background())
		return manualSyncMsg{count: count, err: err}
	}
}

func (m *Model) stopPoller() {
	if m.poller != nil {
		m.poller.Stop()
	}
}

// reloadInbox refreshes the list when it shows the inbox.
func (m Model) reloadInbox() tea.Cmd {
	if m.inbox.Folder() != inbox.FolderInbox {
		return nil
	}
	return m.inbox.Load()
}

func (m *Model) openMessage(id string) tea.Cmd {
	m.previousView = m.currentView
	m.currentView = ViewReader
	m.reader.SetLoading(true)
	return m.loadMessage(id)
}

func (m *Model) openAssistant(target *model.Message) tea.Cmd {
	if m.currentView != ViewAssistant {
		m.previousView = m.currentView
	}
	m.currentView = ViewAssistant
	m.assistant.SetTarget(target)
	return m.assistant.Focus()
}

func (m *Model) openCompose(subject, body string) tea.Cmd {
	if m.currentView != ViewCompose {
		m.previousView = m.currentView
	}
	m.currentView = ViewCompose
	return m.compose.Open(subject, body)
}

func (m *Model) openSettings() tea.Cmd {
	m.previousView = m.currentView
	m.currentView = ViewSettings
	return m.settings.Init()
}

func (m *Model) openTemplates() tea.Cmd {
	m.previousView = m.currentView
	m.currentView = ViewTemplates
	return m.templates.Init()
}

func (m Model) loadMessage(id string) tea.Cmd {
	h := m.h
	return func() tea.Msg {
		msg, err := h.GetMessage(context.Background(), id)
		return reader.MessageLoadedMsg{Message: msg, Err: err}
	}
}

func (m Model) loadConversation(conversationID string) tea.Cmd {
	if conversationID == "" {
		return nil
	}
	h := m.h
	return func() tea.Msg {
		msgs, err := h.GetConversation(context.Background(), conversationID)
		return reader.ConversationLoadedMsg{Messages: msgs, Err: err}
	}
}

func (m Model) sendReply(r reader.SendReplyMsg) tea.Cmd {
	h := m.h
	return func() tea.Msg {
		return replySentMsg{err: h.SendReply(context.Background(), r.ID, r.Body, r.Subject)}
	}
}

func (m Model) loadAccount() tea.Cmd {
	h := m.h
	return func() tea.Msg {
		user, err := h.UserInfo()
		if err != nil {
			return accountLoadedMsg{}
		}
		return accountLoadedMsg{user: user}
	}
}

func (m Model) loadLastSync() tea.Cmd {
	h := m.h
	return func() tea.Msg {
		at, ok, err := h.LastSync(context.Background())
		if err != nil {
			return lastSyncMsg{}
		}
		return lastSyncMsg{at: at, ok: ok}
	}
}

func (m Model) clearCache() tea.Cmd {
	h := m.h
	return func() tea.Msg {
		return cacheClearedMsg{err: h.ClearCache(context.Background())}
	}
}

// executeCommand runs a command the palette has already validated.
func (m *Model) executeCommand(c command.CommandMsg) tea.Cmd {
	switch c.Name {
	case "sync":
		mm, cmd := m.runSync()
		*m = mm
		return cmd
	case "inbox":
		m.currentView = ViewInbox
		return m.inbox.Show(inbox.FolderInbox)
	case "drafts":
		m.currentView = ViewInbox
		return m.inbox.Show(inbox.FolderDrafts)
	case "search":
		m.currentView = ViewInbox
		return m.inbox.Search(c.Arg)
	case "compose":
		return m.openCompose("", "")
	case "templates":
		return m.openTemplates()
	case "settings":
		return m.openSettings()
	case "login":
		m.previousView = m.currentView
		m.currentView = ViewSettings
		var cmd tea.Cmd
		m.settings, cmd = m.settings.StartLogin()
		return cmd
	case "logout":
		h := m.h
		return func() tea.Msg {
			if err := h.Logout(context.Background()); err != nil {
				return cacheClearedMsg{err: err}
			}
			return settings.AccountChangedMsg{}
		}
	case "clear-cache":
		return m.clearCache()
	case "quit":
		m.stopPoller()
		return tea.Quit
	}
	return nil
}
