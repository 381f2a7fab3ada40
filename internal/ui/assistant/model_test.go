package assistant

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/nhle/mail-assistant/internal/ai"
	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/keys"
	"github.com/nhle/mail-assistant/internal/model"
)

// scriptedProvider streams fixed chunks.
type scriptedProvider struct {
	chunks []string
	json   string
}

func (p scriptedProvider) Stream(_ context.Context, _ ai.Request, onText func(string) error) error {
	for _, c := range p.chunks {
		if err := onText(c); err != nil {
			return err
		}
	}
	return nil
}

func (p scriptedProvider) Complete(context.Context, ai.Request) (string, error) {
	return p.json, nil
}

// runner adapts an ai.Assistant to Runner with an in-memory message set.
type runner struct {
	assistant *ai.Assistant
	messages  map[string]model.Message
}

func (r runner) ImproveDraft(ctx context.Context, dest *ai.Destination, content, subject string) error {
	return r.assistant.ImproveDraft(ctx, dest, content, subject)
}

func (r runner) GenerateResponse(ctx context.Context, dest *ai.Destination, id string, tone model.ResponseTone) error {
	msg, ok := r.messages[id]
	if !ok {
		return apperr.New(apperr.NotFound, "message not found")
	}
	return r.assistant.GenerateResponse(ctx, dest, msg, tone)
}

func (r runner) AnalyzeTone(ctx context.Context, content string) (*model.ToneAnalysis, error) {
	return r.assistant.AnalyzeTone(ctx, content)
}

func newPanel(p scriptedProvider, key string) *Model {
	keySource := func() (string, bool, error) { return key, key != "", nil }
	a := ai.NewAssistant(keySource, func(string) ai.Provider { return p }, "", zerolog.Nop())
	r := runner{
		assistant: a,
		messages: map[string]model.Message{
			"m1": {ID: "m1", Subject: "Budget", From: model.Address{Name: "Jane"}},
		},
	}
	return New(r, keys.DefaultKeyMap(), 100, 40)
}

// drive executes cmd and feeds every resulting message back into the
// panel until no commands remain.
func drive(t *testing.T, m *Model, cmd tea.Cmd) []tea.Msg {
	t.Helper()
	var seen []tea.Msg
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		msg := c()
		if batch, ok := msg.(tea.BatchMsg); ok {
			queue = append(queue, batch...)
			continue
		}
		seen = append(seen, msg)
		queue = append(queue, m.Update(msg))
		if len(seen) > 50 {
			t.Fatal("too many messages")
		}
	}
	return seen
}

func TestImproveStreamsIntoPanel(t *testing.T) {
	m := newPanel(scriptedProvider{chunks: []string{"Dear team, ", "thanks."}}, "sk-test")
	m.input.SetValue("hey thx")

	seen := drive(t, m, m.Update(tea.KeyMsg{Type: tea.KeyCtrlE}))

	var chunks []string
	completes := 0
	for _, msg := range seen {
		switch msg := msg.(type) {
		case ChunkMsg:
			chunks = append(chunks, msg.Text)
		case CompleteMsg:
			completes++
		}
	}
	if strings.Join(chunks, "|") != "Dear team, |thanks." || completes != 1 {
		t.Errorf("chunks = %q, completes = %d", chunks, completes)
	}
	if m.result == nil || m.result.Type != model.ResultImprovement {
		t.Fatalf("result = %+v", m.result)
	}
	if m.Busy() {
		t.Error("still busy after completion")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlY})
	if m.input.Value() != "Dear team, thanks." {
		t.Errorf("editor = %q", m.input.Value())
	}
}

func TestGenerateReplyNeedsReceivedMessage(t *testing.T) {
	m := newPanel(scriptedProvider{chunks: []string{"Hi Jane"}}, "sk-test")

	if cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlG}); cmd != nil {
		t.Fatal("generate without a target produced a command")
	}
	if !apperr.IsKind(m.err, apperr.ValidationFailed) {
		t.Errorf("err = %v", m.err)
	}

	m.SetTarget(&model.Message{ID: "m1", Subject: "Budget"})
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if m.Tone() != model.ToneFriendly {
		t.Errorf("tone = %v", m.Tone())
	}

	drive(t, m, m.Update(tea.KeyMsg{Type: tea.KeyCtrlG}))
	if m.result == nil || m.result.Content != "Hi Jane" {
		t.Fatalf("result = %+v", m.result)
	}

	msg := m.Update(tea.KeyMsg{Type: tea.KeyCtrlY})()
	use, ok := msg.(UseReplyMsg)
	if !ok || use.MessageID != "m1" || use.Text != "Hi Jane" {
		t.Errorf("use = %+v", msg)
	}
}

func TestMissingKeyIsShown(t *testing.T) {
	m := newPanel(scriptedProvider{}, "")
	m.input.SetValue("draft")

	// The listener stays armed; only the request result comes back.
	cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlE})
	batch, ok := cmd().(tea.BatchMsg)
	if !ok || len(batch) != 2 {
		t.Fatalf("expected request and listener")
	}
	m.Update(batch[0]())

	if !apperr.IsKind(m.err, apperr.NotConfigured) {
		t.Fatalf("err = %v", m.err)
	}
	if !strings.Contains(m.View(), "API key") {
		t.Error("view does not mention the API key")
	}
	if m.Busy() {
		t.Error("busy after a failed request")
	}

	// A second attempt must not arm a second listener.
	if _, isBatch := m.Update(tea.KeyMsg{Type: tea.KeyCtrlE})().(tea.BatchMsg); isBatch {
		t.Error("second listener armed")
	}
}

func TestAnalyzeTone(t *testing.T) {
	m := newPanel(scriptedProvider{json: `Sure! {"overallTone":"warm","professionalismScore":8,` +
		`"sentiment":"positive","strengths":["clear"],"improvements":[]}`}, "sk-test")
	m.input.SetValue("Thanks so much for the help!")

	drive(t, m, m.Update(tea.KeyMsg{Type: tea.KeyCtrlT}))
	if m.analysis == nil || m.analysis.ProfessionalismScore != 8 {
		t.Fatalf("analysis = %+v, err = %v", m.analysis, m.err)
	}
	if !strings.Contains(m.View(), "8/10") {
		t.Error("score not rendered")
	}
}
