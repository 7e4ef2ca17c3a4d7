package export

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"

	"github.com/ecomops/mailsync/content"
	"github.com/ecomops/mailsync/provider"
)

// headers the composite regenerates itself
var regeneratedHeaders = map[string]bool{
	"content-type":              true,
	"content-transfer-encoding": true,
	"mime-version":              true,
}

// RenderEML renders a message into a transport-ready composite: the original
// headers (minus content-type, which is regenerated), the HTML body, and one
// sibling part per inline resource tagged with its content-id, grouped as
// multipart/related so mail clients resolve cid references natively. A nil
// content value yields the fallback artifact.
func RenderEML(msg *provider.Message, c *content.Content) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("render eml: nil message")
	}
	if c == nil {
		return FallbackEML(msg.ID, "reconstruction unavailable"), nil
	}

	var h message.Header
	if msg.Payload != nil {
		// Add prepends, so the originals are walked backwards to come out in
		// their original order.
		hdrs := msg.Payload.Headers
		for i := len(hdrs) - 1; i >= 0; i-- {
			if regeneratedHeaders[strings.ToLower(hdrs[i].Name)] {
				continue
			}
			h.Add(hdrs[i].Name, hdrs[i].Value)
		}
	}
	h.SetContentType("multipart/related", map[string]string{"type": "text/html"})

	var buf bytes.Buffer
	mw, err := message.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("render eml for message %s: %w", msg.ID, err)
	}

	var bh message.Header
	bh.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	bw, err := mw.CreatePart(bh)
	if err != nil {
		return nil, fmt.Errorf("render eml body for message %s: %w", msg.ID, err)
	}
	if _, err := io.WriteString(bw, c.BodyHTML); err != nil {
		return nil, fmt.Errorf("render eml body for message %s: %w", msg.ID, err)
	}
	bw.Close()

	for _, cid := range c.InlineIDs() {
		res := c.Inline[cid]
		var ih message.Header
		ih.SetContentType(res.MimeType, nil)
		ih.Set("Content-ID", "<"+cid+">")
		ih.Set("Content-Disposition", "inline")
		ih.Set("Content-Transfer-Encoding", "base64")
		pw, err := mw.CreatePart(ih)
		if err != nil {
			slog.Error("Failed to add inline part, skipping",
				"message_id", msg.ID,
				"content_id", cid,
				"error", err)
			continue
		}
		if _, err := pw.Write(res.Data); err != nil {
			slog.Error("Failed to write inline part, skipping",
				"message_id", msg.ID,
				"content_id", cid,
				"error", err)
		}
		pw.Close()
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("render eml for message %s: %w", msg.ID, err)
	}
	return buf.Bytes(), nil
}

// FallbackEML is the minimal artifact emitted when a message could not be
// reconstructed.
func FallbackEML(messageID, note string) []byte {
	var h message.Header
	h.Set("Subject", "Email Content (Fallback)")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := message.CreateWriter(&buf, h)
	if err != nil {
		return []byte("Original email could not be fully reconstructed.\nEmail ID: " + messageID + "\nError: " + note + "\n")
	}
	fmt.Fprintf(w, "Original email could not be fully reconstructed.\nEmail ID: %s\nError: %s\n", messageID, note)
	w.Close()
	return buf.Bytes()
}
