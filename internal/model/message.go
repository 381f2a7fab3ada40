package model

import "time"

// NoSubject is stored in place of a missing subject line.
const NoSubject = "(No Subject)"

// Address is a display name and mailbox address pair.
type Address struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// String renders the address in header form.
func (a Address) String() string {
	switch {
	case a.Name == "":
		return a.Email
	case a.Email == "":
		return a.Name
	default:
		return a.Name + " <" + a.Email + ">"
	}
}

// Message is the provider-independent representation of an email.
type Message struct {
	// ID is the provider's stable identifier and the cache primary key.
	ID string `json:"id"`

	Subject string    `json:"subject"`
	From    Address   `json:"from"`
	To      []Address `json:"to"`

	// Body is the provider-native content, HTML or plain text.
	Body string `json:"body"`

	// BodyPreview is a short plain-text excerpt.
	BodyPreview string `json:"bodyPreview"`

	ReceivedDateTime time.Time `json:"receivedDateTime"`
	IsDraft          bool      `json:"isDraft"`

	// ConversationID groups messages into a thread. Empty when the
	// provider did not report one.
	ConversationID string `json:"conversationId,omitempty"`

	// SyncedAt is set by the cache on every write.
	SyncedAt time.Time `json:"syncedAt"`
}

// UserInfo identifies the signed-in mailbox owner.
type UserInfo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}
