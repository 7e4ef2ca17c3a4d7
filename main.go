package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecomops/mailsync/blob"
	"github.com/ecomops/mailsync/config"
	"github.com/ecomops/mailsync/content"
	"github.com/ecomops/mailsync/history"
	"github.com/ecomops/mailsync/ingest"
	"github.com/ecomops/mailsync/notify"
	"github.com/ecomops/mailsync/provider"
	"github.com/ecomops/mailsync/web"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "mailsync",
		Short: "Sync delegated mailboxes from change notifications and archive new mail",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			setupLogger(cfg.LogLevel)
			return run(cfg)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "mailsync.yaml", "path to configuration file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	options := &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05.999"))
			}
			return a
		},
		Level: lvl,
	}
	handler := slog.NewTextHandler(os.Stdout, options)
	slog.SetDefault(slog.New(handler))
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store history.Store = history.NewMemoryStore(cfg.Ingest.MaxProcessedOrDefault())
	if cfg.Postgres.Enabled {
		ps, err := history.NewPostgresStore(cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("setup cursor store: %w", err)
		}
		defer ps.Close()
		store = ps
	}

	var blobs blob.Store
	switch cfg.Storage.Backend {
	case "gcs":
		gs, err := blob.NewGCSStore(ctx, cfg.Storage.Bucket)
		if err != nil {
			return fmt.Errorf("setup blob store: %w", err)
		}
		defer gs.Close()
		blobs = gs
	default:
		blobs = blob.NewLocalStore(cfg.Storage.BasePathOrDefault())
	}

	tokens := make(map[string]string, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		tokens[a.Email] = a.RefreshToken
	}
	gmailProvider := provider.NewGmail(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, tokens)

	recon := content.NewReconstructor(gmailProvider, blobs)
	hub := notify.NewHub()
	intake := ingest.New(store, gmailProvider, recon, blobs, hub, ingest.Options{
		QueueSize: cfg.Ingest.QueueSizeOrDefault(),
		Timeout:   cfg.Ingest.Timeout(),
	})

	srv := web.NewServer(intake, gmailProvider, recon, hub, cfg.FrontendURL)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.ListenOrDefault())
	}()

	slog.Info("mailsync started", "accounts", len(cfg.Accounts), "listen", cfg.ListenOrDefault())

	select {
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down, draining in-flight notifications.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return intake.Shutdown(shutdownCtx)
}
