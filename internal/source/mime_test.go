package source

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nhle/mail-assistant/internal/model"
)

const alternativeMessage = "From: \"Jane Doe\" <jane@example.com>\r\n" +
	"To: bob@example.com, Carol <carol@example.com>\r\n" +
	"Subject: Launch plan\r\n" +
	"Date: Mon, 03 Mar 2025 10:15:00 +0000\r\n" +
	"Message-ID: <abc123@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Plain launch plan\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>HTML launch plan</p>\r\n" +
	"--XYZ--\r\n"

func TestParseMIMEPrefersHTML(t *testing.T) {
	p := ParseMIME([]byte(alternativeMessage))

	if p.Subject != "Launch plan" {
		t.Errorf("Subject = %q", p.Subject)
	}
	if p.MessageID != "abc123@example.com" {
		t.Errorf("MessageID = %q", p.MessageID)
	}
	if diff := cmp.Diff(model.Address{Name: "Jane Doe", Email: "jane@example.com"}, p.From); diff != "" {
		t.Errorf("From mismatch (-want +got):\n%s", diff)
	}
	wantTo := []model.Address{
		{Name: "bob", Email: "bob@example.com"},
		{Name: "Carol", Email: "carol@example.com"},
	}
	if diff := cmp.Diff(wantTo, p.To); diff != "" {
		t.Errorf("To mismatch (-want +got):\n%s", diff)
	}
	if p.Date.IsZero() {
		t.Error("Date not parsed")
	}
	if !strings.Contains(p.Body(), "<p>HTML launch plan</p>") {
		t.Errorf("Body = %q, want the HTML part", p.Body())
	}
	if !strings.Contains(p.TextBody, "Plain launch plan") {
		t.Errorf("TextBody = %q", p.TextBody)
	}
}

func TestParseMIMEPlainOnly(t *testing.T) {
	raw := "From: a@example.com\r\nSubject: hi\r\nContent-Type: text/plain\r\n\r\njust text\r\n"
	p := ParseMIME([]byte(raw))
	if got := strings.TrimSpace(p.Body()); got != "just text" {
		t.Errorf("Body = %q", got)
	}
}

func TestComposeMIMEReply(t *testing.T) {
	raw, err := ComposeMIME(Outgoing{
		From:      model.Address{Name: "Me", Email: "me@example.com"},
		To:        []model.Address{{Name: "Jane Doe", Email: "jane@example.com"}},
		Subject:   "Re: Launch plan",
		Body:      "Sounds good.",
		InReplyTo: "abc123@example.com",
	})
	if err != nil {
		t.Fatalf("ComposeMIME: %v", err)
	}

	p := ParseMIME(raw)
	if p.Subject != "Re: Launch plan" {
		t.Errorf("Subject = %q", p.Subject)
	}
	if len(p.To) != 1 || p.To[0].Email != "jane@example.com" {
		t.Errorf("To = %+v", p.To)
	}
	if got := strings.TrimSpace(p.TextBody); got != "Sounds good." {
		t.Errorf("TextBody = %q", got)
	}
	if !strings.Contains(string(raw), "In-Reply-To: <abc123@example.com>") {
		t.Errorf("In-Reply-To header missing:\n%s", raw)
	}
}
