package provider

import (
	"encoding/base64"
	"strings"
)

// Header is one name/value pair from a message or part header list.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Part is one node of a message's MIME tree: a leaf carrying payload bytes
// (inline, base64url-encoded) or an attachment handle, or a container with
// children. Parts are immutable once fetched.
type Part struct {
	MimeType     string
	Filename     string
	Headers      []Header
	Data         string // base64url payload, empty when AttachmentID is set
	AttachmentID string // provider handle for lazily fetched bytes
	Size         int64
	Parts        []*Part
}

// Message is one fully fetched mail message with its MIME tree.
type Message struct {
	ID           string
	ThreadID     string
	LabelIDs     []string
	Snippet      string
	InternalDate int64 // epoch millis
	Payload      *Part
}

// Header returns the value of the named top-level header, matched
// case-insensitively, or "" if absent.
func (m *Message) Header(name string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// PartHeader returns the value of the named header on this part, matched
// case-insensitively, or "" if absent.
func (p *Part) PartHeader(name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// DecodeData decodes the web-safe base64 payload the provider uses for part
// bodies. Both padded and unpadded input are accepted.
func DecodeData(data string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}
