// Package content turns a fetched message's MIME tree into a single
// reconstructed content value: one chosen HTML body, attachment descriptors,
// and the content-id mapping for inline images.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/ecomops/mailsync/blob"
	"github.com/ecomops/mailsync/provider"
)

// PlaceholderBody is used when a message carries neither HTML nor plain text.
const PlaceholderBody = "<p>No email content available.</p>"

// Attachment describes one filename-bearing part. Bytes behind Handle are
// fetched lazily, only when a renderer needs them.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Handle   string `json:"-"` // provider attachment handle, "" when inline
}

// InlineResource is one materialised inline image, addressable by content-id.
type InlineResource struct {
	Location string // where the bytes were stored
	MimeType string
	Data     []byte
}

// Content is the reconstructed view of one message. BodyHTML keeps cid:
// references untouched; renderers substitute them from Inline.
type Content struct {
	BodyHTML    string
	Inline      map[string]InlineResource // content-id -> resource
	Attachments []Attachment
}

// BodyWithLocations returns the body with every cid: reference replaced by
// the inline resource's stored location. Both renderers derive their cid
// substitutions from the same Inline map, which keeps the two output
// encodings consistent.
func (c *Content) BodyWithLocations() string {
	body := c.BodyHTML
	for _, cid := range c.InlineIDs() {
		body = strings.ReplaceAll(body, "cid:"+cid, c.Inline[cid].Location)
	}
	return body
}

// InlineIDs returns the content-ids of the inline resources in stable order.
func (c *Content) InlineIDs() []string {
	ids := make([]string, 0, len(c.Inline))
	for cid := range c.Inline {
		ids = append(ids, cid)
	}
	sort.Strings(ids)
	return ids
}

// Reconstructor builds Content values. The provider is only consulted for
// inline-image bytes that live behind attachment handles; everything else is
// local computation over the already-fetched tree.
type Reconstructor struct {
	provider provider.Provider
	blobs    blob.Store
}

// NewReconstructor creates a Reconstructor writing inline bytes to blobs.
func NewReconstructor(p provider.Provider, blobs blob.Store) *Reconstructor {
	return &Reconstructor{provider: p, blobs: blobs}
}

// Reconstruct derives the Content for one message. The body search and the
// attachment collection are two independent passes over the tree; the body
// pass never concatenates sibling text parts, so a multipart/alternative
// message with both encodings of the same text yields that text exactly once.
func (r *Reconstructor) Reconstruct(ctx context.Context, account string, msg *provider.Message) (*Content, error) {
	if msg == nil || msg.Payload == nil {
		return nil, fmt.Errorf("message %s has no payload", msgID(msg))
	}

	c := &Content{
		BodyHTML: chooseBody(msg.Payload),
		Inline:   make(map[string]InlineResource),
	}

	parts := collectFileParts(msg.Payload)
	for _, p := range parts {
		c.Attachments = append(c.Attachments, Attachment{
			Filename: p.Filename,
			MimeType: p.MimeType,
			Size:     p.Size,
			Handle:   p.AttachmentID,
		})
	}

	for _, p := range parts {
		cid := inlineContentID(p)
		if cid == "" {
			continue
		}
		if err := r.materialise(ctx, account, msg.ID, p, cid, c); err != nil {
			// A broken inline image degrades the body, it does not fail the
			// reconstruction.
			slog.Error("Failed to materialise inline image, skipping",
				"account", account,
				"message_id", msg.ID,
				"content_id", cid,
				"error", err)
		}
	}

	return c, nil
}

func (r *Reconstructor) materialise(ctx context.Context, account, messageID string, p *provider.Part, cid string, c *Content) error {
	var data []byte
	var err error
	switch {
	case p.AttachmentID != "":
		data, err = r.provider.GetAttachment(ctx, account, messageID, p.AttachmentID)
	case p.Data != "":
		data, err = provider.DecodeData(p.Data)
	default:
		return fmt.Errorf("part %s has no payload", p.Filename)
	}
	if err != nil {
		return err
	}

	location, err := r.blobs.Put(ctx, BlobName(account, messageID, p.Filename), data)
	if err != nil {
		return err
	}
	c.Inline[cid] = InlineResource{Location: location, MimeType: p.MimeType, Data: data}
	return nil
}

// chooseBody picks the message body: the first text/html leaf, else the
// first text/plain leaf escaped and wrapped as preformatted text, else a
// fixed placeholder. HTML and plain text are mutually exclusive here.
func chooseBody(root *provider.Part) string {
	if html := findByMimeType(root, "text/html"); strings.TrimSpace(html) != "" {
		return html
	}
	if plain := findByMimeType(root, "text/plain"); strings.TrimSpace(plain) != "" {
		return "<pre>" + EscapeHTML(plain) + "</pre>"
	}
	return PlaceholderBody
}

// findByMimeType returns the decoded payload of the first node with the
// exact mime type, depth first, or "".
func findByMimeType(p *provider.Part, mimeType string) string {
	if p == nil {
		return ""
	}
	if strings.EqualFold(p.MimeType, mimeType) && p.Data != "" {
		decoded, err := provider.DecodeData(p.Data)
		if err != nil {
			slog.Error("Failed to decode message body part", "mime_type", mimeType, "error", err)
			return ""
		}
		return string(decoded)
	}
	for _, child := range p.Parts {
		if found := findByMimeType(child, mimeType); found != "" {
			return found
		}
	}
	return ""
}

// collectFileParts returns every filename-bearing node in the tree, in
// depth-first order.
func collectFileParts(p *provider.Part) []*provider.Part {
	if p == nil {
		return nil
	}
	var out []*provider.Part
	if p.Filename != "" && (p.Data != "" || p.AttachmentID != "") {
		out = append(out, p)
	}
	for _, child := range p.Parts {
		out = append(out, collectFileParts(child)...)
	}
	return out
}

// inlineContentID returns the bare content-id for parts that are inline
// images, or "" for everything else.
func inlineContentID(p *provider.Part) string {
	if !strings.HasPrefix(p.MimeType, "image/") {
		return ""
	}
	cid := p.PartHeader("Content-ID")
	return strings.Trim(cid, "<>")
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes the five HTML metacharacters so plain text is never
// interpreted as markup.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)

// BlobName derives the deterministic storage name for a message part, which
// is what makes materialisation idempotent across redeliveries.
func BlobName(account, messageID, filename string) string {
	safe := unsafeFilename.ReplaceAllString(filename, "_")
	return fmt.Sprintf("attachments/Attmtreceived%s_%s_%s", LocalPart(account), messageID, safe)
}

// LocalPart returns the part of an address before the @.
func LocalPart(account string) string {
	if i := strings.Index(account, "@"); i >= 0 {
		return account[:i]
	}
	return account
}

func msgID(msg *provider.Message) string {
	if msg == nil {
		return "<nil>"
	}
	return msg.ID
}
