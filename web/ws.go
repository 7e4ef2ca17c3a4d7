package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// UpdatesHandler streams live message updates for one account over a
// WebSocket. Each update is one JSON frame.
func (s *Server) UpdatesHandler(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	if account == "" {
		http.Error(w, "account is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("Failed to accept websocket", "account", account, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	updates := s.hub.Subscribe(account)
	defer s.hub.Unsubscribe(account, updates)

	slog.Info("Client Connected.", "account", account)
	start := time.Now()

	// CloseRead surfaces client disconnects through ctx.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			slog.Info(fmt.Sprintf("Client disconnected. Connection Duration: %s", time.Since(start)),
				"account", account)
			return
		case u, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, u)
			cancel()
			if err != nil {
				slog.Warn("Unable to write update to client.",
					"account", account,
					"error", err)
				return
			}
		}
	}
}
