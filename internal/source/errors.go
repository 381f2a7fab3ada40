package source

import (
	"fmt"
	"net/http"

	"github.com/nhle/mail-assistant/internal/apperr"
)

// StatusError classifies a failed provider response by HTTP status.
func StatusError(provider, op string, status int, detail string) error {
	switch status {
	case http.StatusNotFound:
		return apperr.Wrap(apperr.NotFound, op, fmt.Errorf("%s: not found", provider))
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.Wrap(apperr.AuthenticationFailed, op, &AuthError{
			Provider: provider,
			Message:  fmt.Sprintf("status %d: %s", status, detail),
		})
	case http.StatusBadRequest:
		return apperr.Wrap(apperr.ValidationFailed, op,
			fmt.Errorf("%s rejected request: %s", provider, detail))
	default:
		return apperr.Wrap(apperr.ProviderUnavailable, op,
			fmt.Errorf("%s returned status %d: %s", provider, status, detail))
	}
}

// TransportError classifies a failure to reach the provider at all.
func TransportError(op string, err error) error {
	return apperr.Wrap(apperr.ProviderUnavailable, op, err)
}
