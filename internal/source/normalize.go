package source

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nhle/mail-assistant/internal/model"
)

// PreviewLength is the maximum length, in characters, of a derived preview.
const PreviewLength = 150

// SubjectOrPlaceholder returns subject, or model.NoSubject when blank.
func SubjectOrPlaceholder(subject string) string {
	if strings.TrimSpace(subject) == "" {
		return model.NoSubject
	}
	return subject
}

// EnsureReplySubject prefixes "Re: " unless subject already carries a
// reply marker.
func EnsureReplySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(trimmed), "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}

// TimestampOrNow substitutes the current time for a zero timestamp.
func TimestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// Preview returns the provider snippet when present, otherwise the first
// PreviewLength characters of body with markup removed.
func Preview(snippet, body string) string {
	if s := strings.TrimSpace(snippet); s != "" {
		return s
	}
	text := strings.Join(strings.Fields(PlainText(body)), " ")
	runes := []rune(text)
	if len(runes) > PreviewLength {
		return string(runes[:PreviewLength])
	}
	return text
}

// blockBreaks inserts newlines ahead of tags that end a visual line.
var blockBreaks = strings.NewReplacer(
	"<br>", "\n<br>", "<br/>", "\n<br/>", "<br />", "\n<br />",
	"</p>", "\n</p>", "</div>", "\n</div>", "</li>", "\n</li>", "</tr>", "\n</tr>",
)

// PlainText renders HTML as plain text. Input without markup is returned
// trimmed.
func PlainText(body string) string {
	if !strings.Contains(body, "<") {
		return strings.TrimSpace(body)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(blockBreaks.Replace(body)))
	if err != nil {
		return strings.TrimSpace(body)
	}
	doc.Find("script, style, head").Remove()

	result := doc.Text()
	for strings.Contains(result, "\n\n\n") {
		result = strings.ReplaceAll(result, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(result)
}

var angleAddrPattern = regexp.MustCompile(`(.*?)\s*<(.+?)>`)

// ParseAddress splits a header-style address. `"Jane Doe" <jane@x.com>`
// yields name Jane Doe; a bare jane@x.com yields name jane.
func ParseAddress(s string) model.Address {
	if m := angleAddrPattern.FindStringSubmatch(s); m != nil {
		return model.Address{
			Name:  strings.ReplaceAll(strings.TrimSpace(m[1]), `"`, ""),
			Email: strings.TrimSpace(m[2]),
		}
	}

	trimmed := strings.TrimSpace(s)
	name, _, _ := strings.Cut(trimmed, "@")
	if name == "" {
		name = "Unknown"
	}
	return model.Address{Name: name, Email: trimmed}
}

// ParseAddressList splits a comma-separated header on commas outside
// quotes and angle brackets.
func ParseAddressList(s string) []model.Address {
	var (
		out     []model.Address
		current strings.Builder
		quoted  bool
		angle   bool
	)
	flush := func() {
		part := strings.TrimSpace(current.String())
		current.Reset()
		if part != "" {
			out = append(out, ParseAddress(part))
		}
	}

	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
		case r == '<' && !quoted:
			angle = true
		case r == '>' && !quoted:
			angle = false
		case r == ',' && !quoted && !angle:
			flush()
			continue
		}
		current.WriteRune(r)
	}
	flush()

	if out == nil {
		return []model.Address{}
	}
	return out
}
