// Package notify broadcasts simplified projections of new messages to
// per-account subscribers. Delivery is best-effort: a slow or absent
// subscriber never blocks the sync pipeline.
package notify

import (
	"log/slog"
	"sync"

	"github.com/ecomops/mailsync/content"
	"github.com/ecomops/mailsync/provider"
)

// AllAccounts subscribes to updates for every account.
const AllAccounts = "all"

// Broadcast headers are filtered to the ones the frontend renders.
var broadcastHeaders = map[string]bool{
	"From": true, "To": true, "Subject": true, "Date": true,
}

// Body is the chosen body of a broadcast update.
type Body struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// Update is the simplified projection of one new message.
type Update struct {
	ID          string               `json:"id"`
	ThreadID    string               `json:"threadId"`
	Snippet     string               `json:"snippet"`
	LabelIDs    []string             `json:"labelIds"`
	Headers     []provider.Header    `json:"headers"`
	Body        Body                 `json:"body"`
	Attachments []content.Attachment `json:"attachments,omitempty"`
}

// BuildUpdate projects a message and its reconstructed content into an
// Update. A nil content value produces a metadata-only update.
func BuildUpdate(msg *provider.Message, c *content.Content) Update {
	u := Update{
		ID:       msg.ID,
		ThreadID: msg.ThreadID,
		Snippet:  msg.Snippet,
		LabelIDs: msg.LabelIDs,
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			if broadcastHeaders[h.Name] {
				u.Headers = append(u.Headers, h)
			}
		}
	}
	if c != nil {
		u.Body = Body{Data: c.BodyHTML, MimeType: "text/html"}
		u.Attachments = c.Attachments
	}
	return u
}

// Hub fans updates out to subscribers keyed by account.
type Hub struct {
	mu   sync.Mutex
	subs map[string][]chan Update
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string][]chan Update)}
}

// Subscribe registers a buffered subscription channel for the account.
// Use AllAccounts to receive every account's updates.
func (h *Hub) Subscribe(account string) <-chan Update {
	ch := make(chan Update, 16)
	h.mu.Lock()
	h.subs[account] = append(h.subs[account], ch)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (h *Hub) Unsubscribe(account string, ch <-chan Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	channels := h.subs[account]
	for i, c := range channels {
		if c == ch {
			h.subs[account] = append(channels[:i], channels[i+1:]...)
			close(c)
			return
		}
	}
}

// SubscriberCount reports how many channels are subscribed for the account.
func (h *Hub) SubscriberCount(account string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[account])
}

// Publish delivers an update to the account's subscribers and to the
// AllAccounts subscribers. A subscriber whose buffer is full misses the
// update; that is logged, not retried.
func (h *Hub) Publish(account string, u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Sends stay under the lock so Unsubscribe cannot close a channel
	// mid-publish; they never block, so the lock is held only briefly.
	targets := make([]chan Update, 0, len(h.subs[account])+len(h.subs[AllAccounts]))
	targets = append(targets, h.subs[account]...)
	if account != AllAccounts {
		targets = append(targets, h.subs[AllAccounts]...)
	}

	for _, ch := range targets {
		select {
		case ch <- u:
		default:
			slog.Warn("Dropped live update for slow subscriber",
				"account", account,
				"message_id", u.ID)
		}
	}
}
