// Package export renders reconstructed messages into durable artifacts: a
// paginated PDF document and a self-contained EML transport message.
package export

import (
	"fmt"

	"github.com/ecomops/mailsync/content"
)

// Directions for exported filenames.
const (
	DirectionReceived = "received"
	DirectionSent     = "sent"
)

// DirectionFor derives the export direction from a message's label set:
// messages labelled SENT are outbound, everything else inbound.
func DirectionFor(labelIDs []string) string {
	for _, l := range labelIDs {
		if l == "SENT" {
			return DirectionSent
		}
	}
	return DirectionReceived
}

// DocumentFilename is the suggested name for a PDF export.
func DocumentFilename(direction, account, messageID string) string {
	return fmt.Sprintf("%s_%s_%s.pdf", direction, content.LocalPart(account), messageID)
}

// TransportFilename is the suggested name for an EML export.
func TransportFilename(direction, account, messageID string) string {
	return fmt.Sprintf("%s_%s_%s.eml", direction, content.LocalPart(account), messageID)
}
