// Package web exposes the service over HTTP: the notification webhook, the
// on-demand export endpoints and the live-update WebSocket.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ecomops/mailsync/content"
	"github.com/ecomops/mailsync/ingest"
	"github.com/ecomops/mailsync/notify"
	"github.com/ecomops/mailsync/provider"
)

// Server wires the HTTP surface to the pipeline components.
type Server struct {
	intake      *ingest.Intake
	provider    provider.Provider
	recon       *content.Reconstructor
	hub         *notify.Hub
	frontendURL string
	router      *mux.Router
}

// NewServer builds the router and its handlers.
func NewServer(intake *ingest.Intake, p provider.Provider, recon *content.Reconstructor, hub *notify.Hub, frontendURL string) *Server {
	s := &Server{
		intake:      intake,
		provider:    p,
		recon:       recon,
		hub:         hub,
		frontendURL: frontendURL,
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/").Subrouter()
	api.HandleFunc("/health", s.HealthHandler).Methods("GET")
	api.Handle("/notifications", RequestSizeLimitMiddleware(NotificationMaxBodySize)(http.HandlerFunc(s.NotificationsHandler))).Methods("POST")
	api.HandleFunc("/export/pdf/{account}/{message_id}", s.ExportPDFHandler).Methods("GET")
	api.HandleFunc("/export/eml/{account}/{message_id}", s.ExportEMLHandler).Methods("GET")
	r.HandleFunc("/ws/updates/{account}", s.UpdatesHandler)
	s.router = r
	return s
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{s.frontendURL},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// ListenAndServe runs the server on addr until it fails.
func (s *Server) ListenAndServe(addr string) error {
	slog.Info("Starting web server.", "addr", addr)
	srv := &http.Server{
		Handler: s.Handler(),
		Addr:    addr,
		// No WriteTimeout: the WebSocket endpoint streams indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
