package notify

import (
	"testing"

	"github.com/ecomops/mailsync/content"
	"github.com/ecomops/mailsync/provider"
)

func TestHub_PublishRouting(t *testing.T) {
	h := NewHub()
	u1 := h.Subscribe("u1@example.com")
	u2 := h.Subscribe("u2@example.com")
	all := h.Subscribe(AllAccounts)

	h.Publish("u1@example.com", Update{ID: "m1"})

	if got := len(u1); got != 1 {
		t.Errorf("u1 received %d updates, want 1", got)
	}
	if got := len(u2); got != 0 {
		t.Errorf("u2 received %d updates, want 0", got)
	}
	if got := len(all); got != 1 {
		t.Errorf("all received %d updates, want 1", got)
	}
	if u := <-u1; u.ID != "m1" {
		t.Errorf("update ID = %q", u.ID)
	}
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	h := NewHub()
	// Must not block or panic.
	h.Publish("nobody@example.com", Update{ID: "m1"})
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("u1@example.com")

	for i := 0; i < 40; i++ {
		h.Publish("u1@example.com", Update{ID: "m1"})
	}
	// Buffer is 16; the rest were dropped, not queued.
	if got := len(ch); got != 16 {
		t.Fatalf("buffered %d updates, want 16", got)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("u1@example.com")
	h.Unsubscribe("u1@example.com", ch)

	if _, open := <-ch; open {
		t.Fatal("channel should be closed after Unsubscribe")
	}
	h.Publish("u1@example.com", Update{ID: "m1"})
}

func TestBuildUpdate(t *testing.T) {
	msg := &provider.Message{
		ID:       "m1",
		ThreadID: "t1",
		Snippet:  "hello",
		LabelIDs: []string{"INBOX", "UNREAD"},
		Payload: &provider.Part{
			Headers: []provider.Header{
				{Name: "From", Value: "sender@example.com"},
				{Name: "Subject", Value: "hi"},
				{Name: "X-Spam-Score", Value: "0.1"},
			},
		},
	}
	c := &content.Content{
		BodyHTML: "<p>hello</p>",
		Attachments: []content.Attachment{
			{Filename: "a.pdf", MimeType: "application/pdf", Size: 3},
		},
	}

	u := BuildUpdate(msg, c)
	if u.ID != "m1" || u.ThreadID != "t1" || u.Snippet != "hello" {
		t.Errorf("unexpected projection: %+v", u)
	}
	if len(u.Headers) != 2 {
		t.Errorf("headers = %+v, want only From and Subject", u.Headers)
	}
	if u.Body.Data != "<p>hello</p>" || u.Body.MimeType != "text/html" {
		t.Errorf("body = %+v", u.Body)
	}
	if len(u.Attachments) != 1 {
		t.Errorf("attachments = %+v", u.Attachments)
	}
}

func TestBuildUpdate_NilContent(t *testing.T) {
	u := BuildUpdate(&provider.Message{ID: "m1"}, nil)
	if u.Body.Data != "" || len(u.Attachments) != 0 {
		t.Errorf("nil content should produce a metadata-only update: %+v", u)
	}
}
