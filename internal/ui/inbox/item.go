package inbox

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/theme"
)

// MessageItem wraps a model.Message so it can be used in a bubbles/list.
type MessageItem struct {
	Message model.Message
}

// FilterValue returns the string used for fuzzy filtering.
func (i MessageItem) FilterValue() string { return i.Message.Subject }

// Title returns the subject line.
func (i MessageItem) Title() string { return i.Message.Subject }

// Description returns the sender and age of the message.
func (i MessageItem) Description() string {
	parts := []string{senderLabel(i.Message), relativeTime(i.Message.ReceivedDateTime)}
	return strings.Join(parts, " | ")
}

// ItemDelegate renders one message per line.
type ItemDelegate struct{}

func (d ItemDelegate) Height() int { return 1 }

func (d ItemDelegate) Spacing() int { return 0 }

func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	mi, ok := item.(MessageItem)
	if !ok {
		return
	}
	msg := mi.Message

	prefix := "●"
	if msg.IsDraft {
		prefix = theme.DraftLabelStyle.Render("DRAFT")
	}

	sender := lipgloss.NewStyle().
		Bold(true).
		Width(22).
		MaxWidth(22).
		Render(senderLabel(msg))

	timeStr := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(msg.ReceivedDateTime))

	line := fmt.Sprintf("%s %s %s  %s", prefix, sender, msg.Subject, timeStr)

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// senderLabel shows the display name, the address, or for drafts the
// first recipient.
func senderLabel(msg model.Message) string {
	if msg.IsDraft {
		if len(msg.To) == 0 {
			return "(no recipients)"
		}
		return "To: " + firstNonEmpty(msg.To[0].Name, msg.To[0].Email)
	}
	return firstNonEmpty(msg.From.Name, msg.From.Email, "Unknown")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Local().Format("Jan 02")
	}
}
