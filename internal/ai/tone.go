package ai

import (
	"github.com/goccy/go-json"

	"github.com/nhle/mail-assistant/internal/apperr"
	"github.com/nhle/mail-assistant/internal/model"
)

const msgUnparsableAnalysis = "could not parse analysis"

// firstJSONObject returns the first balanced {...} substring of s.
// Braces inside JSON strings are ignored.
func firstJSONObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if start < 0 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// parseToneAnalysis extracts and decodes the analysis embedded in a
// completion. Anything short of a complete, in-range object fails.
func parseToneAnalysis(text string) (*model.ToneAnalysis, error) {
	obj, ok := firstJSONObject(text)
	if !ok {
		return nil, apperr.New(apperr.ParseFailure, msgUnparsableAnalysis)
	}

	var analysis model.ToneAnalysis
	if err := json.Unmarshal([]byte(obj), &analysis); err != nil {
		return nil, &apperr.Error{
			Kind: apperr.ParseFailure,
			Op:   "decoding tone analysis",
			Msg:  msgUnparsableAnalysis,
			Err:  err,
		}
	}
	if analysis.ProfessionalismScore < 1 || analysis.ProfessionalismScore > 10 {
		return nil, apperr.Newf(apperr.ParseFailure,
			"%s: professionalism score %d out of range", msgUnparsableAnalysis, analysis.ProfessionalismScore)
	}
	switch analysis.Sentiment {
	case model.SentimentPositive, model.SentimentNegative, model.SentimentNeutral:
	default:
		return nil, apperr.Newf(apperr.ParseFailure,
			"%s: unknown sentiment %q", msgUnparsableAnalysis, analysis.Sentiment)
	}
	if analysis.Strengths == nil {
		analysis.Strengths = []string{}
	}
	if analysis.Improvements == nil {
		analysis.Improvements = []string{}
	}
	return &analysis, nil
}
