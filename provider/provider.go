// Package provider defines the mailbox provider contract the sync pipeline
// depends on, and the Gmail implementation of it.
package provider

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

// ErrStartExpired reports that the provider no longer knows the requested
// start position. Permanent for that position; callers fall back to
// bootstrap semantics for the account.
var ErrStartExpired = errors.New("provider: start position expired")

// ErrMessageNotFound reports that an individual message id no longer exists,
// typically because it was deleted between the delta listing and the fetch.
var ErrMessageNotFound = errors.New("provider: message not found")

// Provider is the outbound surface of the mailbox provider. All calls may
// block on the network and honor ctx cancellation.
type Provider interface {
	// ListAddedSince returns, in provider order, the ids of messages added
	// at or after the start position. Returns ErrStartExpired when the
	// position is no longer covered by the provider's change history.
	ListAddedSince(ctx context.Context, account string, start uint64) ([]string, error)

	// GetMessage fetches one message with its full MIME tree.
	// Returns ErrMessageNotFound for deleted messages.
	GetMessage(ctx context.Context, account, messageID string) (*Message, error)

	// GetAttachment fetches the decoded bytes behind an attachment handle.
	GetAttachment(ctx context.Context, account, messageID, attachmentID string) ([]byte, error)

	// LatestPosition returns the provider's current history position for the
	// account, used to re-baseline after ErrStartExpired.
	LatestPosition(ctx context.Context, account string) (uint64, error)
}

// IsTransient reports whether an error is worth retrying via notification
// redelivery. Permanent classes (expired start, missing message, other 4xx
// provider responses) are not; rate limits, 5xx and network failures are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStartExpired) || errors.Is(err, ErrMessageNotFound) {
		return false
	}
	var googleErr *googleapi.Error
	if errors.As(err, &googleErr) {
		if googleErr.Code == http.StatusTooManyRequests {
			return true
		}
		return googleErr.Code >= 500
	}
	return true
}
