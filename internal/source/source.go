package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/mail-assistant/internal/model"
)

// AuthError indicates that authentication has failed or expired for a
// mailbox provider. Backends return it on 401 and 403 responses.
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Gateway is the normalized contract over one upstream mail provider.
// Every backend returns canonical model.Message values and classifies
// its failures with apperr kinds.
type Gateway interface {
	// Name returns the provider identifier ("gmail", "microsoft").
	Name() string

	// ListInbox returns up to limit inbox messages, most recent first.
	ListInbox(ctx context.Context, limit int) ([]model.Message, error)

	// ListDrafts returns the drafts folder.
	ListDrafts(ctx context.Context) ([]model.Message, error)

	// GetMessage returns apperr.NotFound when the provider has no such id.
	GetMessage(ctx context.Context, id string) (*model.Message, error)

	SendMessage(ctx context.Context, to []model.Address, subject, body string) error

	// SendReply answers original in its conversation. The subject is
	// normalized with EnsureReplySubject.
	SendReply(ctx context.Context, original model.Message, body, subject string) error

	CreateDraft(ctx context.Context, to []model.Address, subject, body string) (*model.Message, error)

	// Profile returns the mailbox owner.
	Profile(ctx context.Context) (*model.UserInfo, error)
}
