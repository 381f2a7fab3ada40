package reader

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mail-assistant/internal/keys"
	"github.com/nhle/mail-assistant/internal/model"
)

func loaded(t *testing.T) Model {
	t.Helper()
	m := New(keys.DefaultKeyMap(), 100, 30)
	m, _ = m.Update(MessageLoadedMsg{Message: &model.Message{
		ID:      "m1",
		Subject: "Quarterly Update",
		From:    model.Address{Name: "Jane Doe", Email: "jane@example.com"},
		Body:    "<p>Numbers are <b>in</b>.</p>",
	}})
	return m
}

func TestRendersPlainBody(t *testing.T) {
	m := loaded(t)
	view := m.View()
	for _, want := range []string{"Quarterly Update", "Jane Doe <jane@example.com>", "Numbers are in."} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "<b>") {
		t.Error("markup leaked into the view")
	}
}

func TestReplyComposer(t *testing.T) {
	m := loaded(t)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("R")})
	if !m.Replying() {
		t.Fatal("composer not open")
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("Thanks!")})

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	if cmd == nil {
		t.Fatal("ctrl+s produced no command")
	}
	got, ok := cmd().(SendReplyMsg)
	if !ok {
		t.Fatalf("unexpected message")
	}
	want := SendReplyMsg{ID: "m1", Subject: "Re: Quarterly Update", Body: "Thanks!"}
	if got != want {
		t.Errorf("reply = %+v, want %+v", got, want)
	}
	if m.Replying() {
		t.Error("composer still open after send")
	}
}

func TestEmptyReplyIsNotSent(t *testing.T) {
	m := loaded(t)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("R")})
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS}); cmd != nil {
		t.Error("blank reply produced a command")
	}
}

func TestMissingMessage(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m, _ = m.Update(MessageLoadedMsg{})
	if !strings.Contains(m.View(), "not available") {
		t.Errorf("view = %q", m.View())
	}
}
