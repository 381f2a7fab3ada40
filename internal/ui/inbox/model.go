// Package inbox is the message list view: inbox, drafts and search
// results over the local cache.
package inbox

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/keys"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/theme"
)

// Folder is the collection the list is showing.
type Folder int

const (
	FolderInbox Folder = iota
	FolderDrafts
	FolderSearch
)

func (f Folder) String() string {
	switch f {
	case FolderDrafts:
		return "Drafts"
	case FolderSearch:
		return "Search"
	default:
		return "Inbox"
	}
}

// Source loads messages for the list.
type Source interface {
	FetchInbox(ctx context.Context, limit int) ([]model.Message, error)
	GetDrafts(ctx context.Context) ([]model.Message, error)
	SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error)
}

// MessagesLoadedMsg is sent when a folder has been loaded.
type MessagesLoadedMsg struct {
	Folder   Folder
	Messages []model.Message
	Err      error
}

// SelectedMessageMsg is sent when the user opens a message.
type SelectedMessageMsg struct {
	ID      string
	IsDraft bool
}

// Model is the message list view component.
type Model struct {
	list        list.Model
	source      Source
	keys        *keys.KeyMap
	folder      Folder
	query       string
	searchMode  bool
	searchInput textinput.Model
	err         error
	width       int
	height      int
}

// New creates a message list showing the inbox.
func New(src Source, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = FolderInbox.String()
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search cached mail..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:        l,
		source:      src,
		keys:        k,
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// Init loads the inbox.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case MessagesLoadedMsg:
		if msg.Folder != m.folder {
			return m, nil
		}
		m.err = msg.Err
		items := make([]list.Item, len(msg.Messages))
		for i, message := range msg.Messages {
			items[i] = MessageItem{Message: message}
		}
		return m, m.list.SetItems(items)

	case tea.KeyMsg:
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		return m, m.Search(m.searchInput.Value())

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		item, ok := m.list.SelectedItem().(MessageItem)
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg {
			return SelectedMessageMsg{ID: item.Message.ID, IsDraft: item.Message.IsDraft}
		}

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.Reset()
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.Drafts):
		if m.folder == FolderDrafts {
			return m, m.Show(FolderInbox)
		}
		return m, m.Show(FolderDrafts)

	case key.Matches(msg, m.keys.Back) && m.folder == FolderSearch:
		return m, m.Show(FolderInbox)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// Show switches to folder and loads it.
func (m *Model) Show(folder Folder) tea.Cmd {
	m.folder = folder
	m.list.Title = folder.String()
	m.list.ResetSelected()
	return m.Load()
}

// Search runs query against the cache. An empty query returns to the inbox.
func (m *Model) Search(query string) tea.Cmd {
	if query == "" {
		return m.Show(FolderInbox)
	}
	m.query = query
	m.folder = FolderSearch
	m.list.Title = "Search: " + query
	m.list.ResetSelected()
	return m.Load()
}

// Folder returns the folder being shown.
func (m Model) Folder() Folder {
	return m.folder
}

// Searching reports whether the search input has focus.
func (m Model) Searching() bool {
	return m.searchMode
}

// Selected returns the highlighted message, if any.
func (m Model) Selected() (model.Message, bool) {
	item, ok := m.list.SelectedItem().(MessageItem)
	return item.Message, ok
}

// Load returns a tea.Cmd that reads the current folder.
func (m Model) Load() tea.Cmd {
	src := m.source
	folder := m.folder
	query := m.query
	return func() tea.Msg {
		ctx := context.Background()
		var (
			msgs []model.Message
			err  error
		)
		switch folder {
		case FolderDrafts:
			msgs, err = src.GetDrafts(ctx)
		case FolderSearch:
			msgs, err = src.SearchMessages(ctx, query, 0)
		default:
			msgs, err = src.FetchInbox(ctx, 0)
		}
		return MessagesLoadedMsg{Folder: folder, Messages: msgs, Err: err}
	}
}

// View renders the list view.
func (m Model) View() string {
	if m.searchMode {
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, searchBar, m.list.View())
	}

	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}

	return m.list.View()
}

// renderEmptyState shows guidance text when the folder is empty.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.err != nil {
		return style.Render(theme.ErrorStyle.Render(apperr.Message(m.err)) +
			"\n\nPress r to retry or : then 'login' to sign in.")
	}

	switch m.folder {
	case FolderSearch:
		return style.Render("No cached messages match.\nPress esc to return to the inbox.")
	case FolderDrafts:
		return style.Render("No drafts.")
	default:
		return style.Render("Your inbox is empty.\n\nPress r to sync.")
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}
