package ai

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/model"
)

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`before {"a":1} after`, `{"a":1}`, true},
		{`{"a":{"b":2}} {"c":3}`, `{"a":{"b":2}}`, true},
		{`x {"s":"brace } in string"} y`, `{"s":"brace } in string"}`, true},
		{`{"s":"escaped \" quote }"}`, `{"s":"escaped \" quote }"}`, true},
		{`no json here`, ``, false},
		{`{"unterminated": true`, ``, false},
	}
	for _, tt := range tests {
		got, ok := firstJSONObject(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("firstJSONObject(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseToneAnalysisWithSurroundingText(t *testing.T) {
	text := `Some preamble {"overallTone":"formal","professionalismScore":8,"sentiment":"positive",` +
		`"strengths":["clear"],"improvements":["shorter"]} trailing text`

	got, err := parseToneAnalysis(text)
	if err != nil {
		t.Fatalf("parseToneAnalysis: %v", err)
	}
	want := &model.ToneAnalysis{
		OverallTone:          "formal",
		ProfessionalismScore: 8,
		Sentiment:            model.SentimentPositive,
		Strengths:            []string{"clear"},
		Improvements:         []string{"shorter"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("analysis mismatch (-want +got):\n%s", diff)
	}
}

func TestParseToneAnalysisFailures(t *testing.T) {
	inputs := map[string]string{
		"no braces":    "I cannot analyze this email.",
		"invalid json": "{overallTone: formal}",
		"score range":  `{"overallTone":"formal","professionalismScore":42,"sentiment":"neutral"}`,
		"sentiment":    `{"overallTone":"warm","professionalismScore":7,"sentiment":"ecstatic"}`,
	}
	for name, in := range inputs {
		_, err := parseToneAnalysis(in)
		if !apperr.IsKind(err, apperr.ParseFailure) {
			t.Errorf("%s: error = %v, want ParseFailure", name, err)
		}
	}
}
