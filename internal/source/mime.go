package source

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/mail-assistant/internal/model"
)

// Attachment describes a non-inline MIME part.
type Attachment struct {
	Filename string
	Size     int64
	MIMEType string
}

// ParsedMIME is an RFC 5322 message split into headers and bodies.
type ParsedMIME struct {
	MessageID   string
	Subject     string
	From        model.Address
	To          []model.Address
	Date        time.Time
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Body returns the HTML part when one exists, otherwise the plain text.
func (p *ParsedMIME) Body() string {
	if p.HTMLBody != "" {
		return p.HTMLBody
	}
	return p.TextBody
}

// ParseMIME parses a raw message using go-message. A message that cannot
// be parsed is treated as a plain-text body.
func ParseMIME(raw []byte) *ParsedMIME {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return &ParsedMIME{TextBody: string(raw)}
	}
	defer mr.Close()

	parsed := &ParsedMIME{To: []model.Address{}}

	h := mr.Header
	parsed.Subject, _ = h.Subject()
	parsed.MessageID, _ = h.MessageID()
	parsed.Date, _ = h.Date()
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		parsed.From = fromMailAddress(from[0])
	} else {
		parsed.From = ParseAddress(h.Get("From"))
	}
	if to, err := h.AddressList("To"); err == nil {
		for _, a := range to {
			parsed.To = append(parsed.To, fromMailAddress(a))
		}
	} else {
		parsed.To = ParseAddressList(h.Get("To"))
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := ph.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/html") && parsed.HTMLBody == "":
				parsed.HTMLBody = string(body)
			case strings.HasPrefix(contentType, "text/plain") && parsed.TextBody == "":
				parsed.TextBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := ph.Filename()
			contentType, _, _ := ph.ContentType()

			n, copyErr := io.Copy(io.Discard, part.Body)
			if copyErr != nil {
				continue
			}

			parsed.Attachments = append(parsed.Attachments, Attachment{
				Filename: filename,
				Size:     n,
				MIMEType: contentType,
			})
		}
	}

	return parsed
}

func fromMailAddress(a *mail.Address) model.Address {
	name := a.Name
	if name == "" {
		name, _, _ = strings.Cut(a.Address, "@")
	}
	return model.Address{Name: name, Email: a.Address}
}

func toMailAddresses(addrs []model.Address) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, &mail.Address{Name: a.Name, Address: a.Email})
	}
	return out
}

// Outgoing is a message to be serialized with ComposeMIME.
type Outgoing struct {
	From    model.Address
	To      []model.Address
	Subject string
	Body    string

	// InReplyTo is the Message-ID being answered, without angle brackets.
	InReplyTo string
}

// ComposeMIME renders msg as an RFC 5322 message. Bodies containing
// markup are sent as text/html, others as text/plain.
func ComposeMIME(msg Outgoing) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(msg.Subject)
	if msg.From.Email != "" {
		h.SetAddressList("From", []*mail.Address{{Name: msg.From.Name, Address: msg.From.Email}})
	}
	h.SetAddressList("To", toMailAddresses(msg.To))
	if msg.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{msg.InReplyTo})
		h.SetMsgIDList("References", []string{msg.InReplyTo})
	}

	contentType := "text/plain"
	if strings.Contains(msg.Body, "<") && strings.Contains(msg.Body, ">") {
		contentType = "text/html"
	}
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message writer: %w", err)
	}
	return buf.Bytes(), nil
}
