package export

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/jaytaylor/html2text"

	"github.com/ecomops/mailsync/content"
	"github.com/ecomops/mailsync/provider"
)

// RenderPDF renders a message into a paginated PDF: a monospace header
// summary, the body with cid references rewritten to stored locations, and an
// attachment listing. A nil content value yields the fallback artifact.
func RenderPDF(msg *provider.Message, c *content.Content) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("render pdf: nil message")
	}
	if c == nil {
		return FallbackPDF(msg.ID, "reconstruction unavailable"), nil
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Courier", "", 10)
	for _, name := range []string{"From", "To", "Subject", "Date"} {
		value := msg.Header(name)
		if value == "" {
			value = "N/A"
		}
		pdf.MultiCell(0, 5, tr(name+": "+value), "", "L", false)
	}
	pdf.Ln(4)

	body, err := html2text.FromString(c.BodyWithLocations(), html2text.Options{})
	if err != nil {
		return nil, fmt.Errorf("render pdf for message %s: %w", msg.ID, err)
	}
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 5, tr(body), "", "L", false)

	if len(c.Attachments) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.MultiCell(0, 5, "Attachments:", "", "L", false)
		pdf.SetFont("Helvetica", "", 11)
		for _, a := range c.Attachments {
			line := fmt.Sprintf("- %s (Type: %s, Size: %d bytes)", a.Filename, a.MimeType, a.Size)
			pdf.MultiCell(0, 5, tr(line), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf for message %s: %w", msg.ID, err)
	}
	return buf.Bytes(), nil
}

// FallbackPDF is the minimal artifact emitted when a message could not be
// reconstructed: just the message id and an explanatory note.
func FallbackPDF(messageID, note string) []byte {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 5, tr("Email ID: "+messageID), "", "L", false)
	pdf.MultiCell(0, 5, tr("Note: full email content unavailable ("+note+")"), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil
	}
	return buf.Bytes()
}
