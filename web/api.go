package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ecomops/mailsync/content"
	"github.com/ecomops/mailsync/export"
	"github.com/ecomops/mailsync/ingest"
	"github.com/ecomops/mailsync/provider"
)

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// notificationPayload mirrors the push transport's JSON envelope. historyId
// arrives as a string from some publishers and as a number from others.
type notificationPayload struct {
	EmailAddress string      `json:"emailAddress"`
	HistoryID    json.Number `json:"historyId"`
}

// NotificationsHandler accepts one mailbox-change notification and queues it.
// The transport redelivers on any non-2xx response, so transient submission
// failures map to 500.
func (s *Server) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	var payload notificationPayload
	if err := decoder.Decode(&payload); err != nil {
		if handleMaxBytesError(w, r, err, NotificationMaxBodySize) {
			return
		}
		slog.Error("Failed to decode notification", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	historyID, err := parseHistoryID(payload.HistoryID)
	if err != nil || payload.EmailAddress == "" {
		slog.Warn("Notification missing required attributes",
			"email_address", payload.EmailAddress,
			"history_id", payload.HistoryID)
		http.Error(w, "emailAddress and historyId are required", http.StatusBadRequest)
		return
	}

	if err := s.intake.Submit(ingest.Notification{Account: payload.EmailAddress, HistoryID: historyID}); err != nil {
		slog.Error("Failed to submit notification",
			"account", payload.EmailAddress,
			"error", err)
		http.Error(w, "Failed to queue notification", http.StatusInternalServerError)
		return
	}
	w.Write([]byte("Received"))
}

func parseHistoryID(n json.Number) (uint64, error) {
	if n.String() == "" {
		return 0, fmt.Errorf("empty historyId")
	}
	v, err := n.Int64()
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid historyId %q", n.String())
	}
	return uint64(v), nil
}

func (s *Server) ExportPDFHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	account, messageID := vars["account"], vars["message_id"]
	slog.Info("Received request to export email to PDF", "message_id", messageID)

	msg, c, ok := s.fetchAndReconstruct(w, r, account, messageID)
	if !ok {
		return
	}

	pdfBytes, err := export.RenderPDF(msg, c)
	if err != nil {
		slog.Error("Failed to render PDF export",
			"message_id", messageID,
			"error", err)
		pdfBytes = export.FallbackPDF(messageID, "render failed")
	}
	writeArtifact(w, pdfBytes, "application/pdf",
		export.DocumentFilename(export.DirectionFor(msg.LabelIDs), account, messageID))
}

func (s *Server) ExportEMLHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	account, messageID := vars["account"], vars["message_id"]
	slog.Info("Received request to export email to EML", "message_id", messageID)

	msg, c, ok := s.fetchAndReconstruct(w, r, account, messageID)
	if !ok {
		return
	}

	emlBytes, err := export.RenderEML(msg, c)
	if err != nil {
		slog.Error("Failed to render EML export",
			"message_id", messageID,
			"error", err)
		emlBytes = export.FallbackEML(messageID, "render failed")
	}
	writeArtifact(w, emlBytes, "message/rfc822",
		export.TransportFilename(export.DirectionFor(msg.LabelIDs), account, messageID))
}

// fetchAndReconstruct resolves one message for export. It writes the error
// response itself and reports ok=false when the caller should stop: an
// explicit 404 for a missing message, 503 when the provider is unavailable —
// never a partially constructed artifact.
func (s *Server) fetchAndReconstruct(w http.ResponseWriter, r *http.Request, account, messageID string) (*provider.Message, *content.Content, bool) {
	msg, err := s.provider.GetMessage(r.Context(), account, messageID)
	if errors.Is(err, provider.ErrMessageNotFound) {
		http.Error(w, "Email not found", http.StatusNotFound)
		return nil, nil, false
	}
	if err != nil {
		slog.Error("Failed to fetch message for export",
			"account", account,
			"message_id", messageID,
			"error", err)
		http.Error(w, "Email unavailable", http.StatusServiceUnavailable)
		return nil, nil, false
	}

	c, err := s.recon.Reconstruct(r.Context(), account, msg)
	if err != nil {
		slog.Error("Failed to reconstruct message for export",
			"account", account,
			"message_id", messageID,
			"error", err)
		c = nil
	}
	return msg, c, true
}

func writeArtifact(w http.ResponseWriter, data []byte, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment;filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Warn("Failed to write export response", "error", err)
	}
}
