// Package ingest receives mailbox-change notifications and drives the sync
// pipeline: cursor bookkeeping, delta resolution, content reconstruction,
// archival and live broadcast.
//
// Notifications for one account are processed strictly one at a time by a
// dedicated worker goroutine; different accounts proceed in parallel. The
// stored cursor only advances after a notification's whole batch has been
// handled, so interrupted work is safely redone on redelivery.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ecomops/mailsync/blob"
	"github.com/ecomops/mailsync/content"
	"github.com/ecomops/mailsync/export"
	"github.com/ecomops/mailsync/history"
	"github.com/ecomops/mailsync/notify"
	"github.com/ecomops/mailsync/provider"
)

// Notification is one mailbox-change signal: the account and the history
// position the provider asserts for it. Delivery is at-least-once, possibly
// duplicated, possibly out of order.
type Notification struct {
	Account   string
	HistoryID uint64
}

// Options configures an Intake.
type Options struct {
	QueueSize int           // per-account queue depth, default 16
	Timeout   time.Duration // per-notification deadline, default 2m
}

// Intake owns the per-account workers and the processing pipeline.
type Intake struct {
	store    history.Store
	provider provider.Provider
	recon    *content.Reconstructor
	blobs    blob.Store
	hub      *notify.Hub
	opts     Options

	mu         sync.Mutex
	workers    map[string]chan Notification
	wg         sync.WaitGroup
	submitters sync.WaitGroup
	closed     bool
}

// New creates an Intake wired to its collaborators.
func New(store history.Store, p provider.Provider, recon *content.Reconstructor, blobs blob.Store, hub *notify.Hub, opts Options) *Intake {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Intake{
		store:    store,
		provider: p,
		recon:    recon,
		blobs:    blobs,
		hub:      hub,
		opts:     opts,
		workers:  make(map[string]chan Notification),
	}
}

// Submit queues a notification for its account's worker. When the account is
// busy and its queue is full, Submit blocks until there is room, after
// logging a backpressure warning; nothing is silently dropped.
func (in *Intake) Submit(n Notification) error {
	if n.Account == "" {
		return fmt.Errorf("notification has empty account")
	}

	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return fmt.Errorf("intake is shut down")
	}
	// Registered under the lock, so Shutdown sees this send before it closes
	// any worker channel.
	in.submitters.Add(1)
	defer in.submitters.Done()
	ch, ok := in.workers[n.Account]
	if !ok {
		ch = make(chan Notification, in.opts.QueueSize)
		in.workers[n.Account] = ch
		in.wg.Add(1)
		go in.run(n.Account, ch)
	}
	in.mu.Unlock()

	select {
	case ch <- n:
	default:
		slog.Warn("Notification queue full, applying backpressure",
			"account", n.Account,
			"queue_size", in.opts.QueueSize)
		ch <- n
	}
	return nil
}

// Shutdown stops accepting notifications and waits for in-flight work, up to
// the context deadline.
func (in *Intake) Shutdown(ctx context.Context) error {
	in.mu.Lock()
	first := !in.closed
	in.closed = true
	in.mu.Unlock()

	done := make(chan struct{})
	go func() {
		if first {
			// In-flight Submits finish their sends while the workers are
			// still draining; only then is closing the channels safe.
			in.submitters.Wait()
			in.mu.Lock()
			for _, ch := range in.workers {
				close(ch)
			}
			in.mu.Unlock()
		}
		in.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("intake shutdown: %w", ctx.Err())
	}
}

func (in *Intake) run(account string, ch <-chan Notification) {
	defer in.wg.Done()
	for n := range ch {
		ctx, cancel := context.WithTimeout(context.Background(), in.opts.Timeout)
		if err := in.Process(ctx, n); err != nil {
			slog.Error("Failed to process notification",
				"account", n.Account,
				"history_id", n.HistoryID,
				"transient", provider.IsTransient(err),
				"error", err)
		}
		cancel()
	}
}

// Process handles one notification synchronously. A returned error means no
// cursor state changed and the notification is safe to redeliver.
func (in *Intake) Process(ctx context.Context, n Notification) error {
	stored, ok := in.store.Cursor(n.Account)
	if !ok {
		// First notification ever for this account: record the baseline and
		// treat nothing as new.
		in.store.SetCursor(n.Account, n.HistoryID)
		slog.Info("Recorded baseline cursor for new account",
			"account", n.Account,
			"history_id", n.HistoryID)
		return nil
	}

	// A concurrent handler may already have advanced the stored cursor past
	// this notification; backing off to asserted-1 guarantees no event
	// between the two is skipped. Re-listed ids are absorbed by the dedup
	// check below.
	start := stored
	if n.HistoryID > 0 && n.HistoryID-1 < start {
		start = n.HistoryID - 1
	}

	ids, err := in.provider.ListAddedSince(ctx, n.Account, start)
	if errors.Is(err, provider.ErrStartExpired) {
		return in.rebaseline(ctx, n.Account)
	}
	if err != nil {
		return fmt.Errorf("delta query for %s from %d: %w", n.Account, start, err)
	}

	for _, id := range ids {
		if in.store.IsProcessed(n.Account, id) {
			continue
		}
		if err := in.handleMessage(ctx, n.Account, id); err != nil {
			return err
		}
	}

	// Notifications are monotonic signals of provider-side state: the cursor
	// advances even when the delta was empty, but never moves backwards.
	in.advanceCursor(n.Account, n.HistoryID)
	return nil
}

// handleMessage fetches, reconstructs, archives and broadcasts one new
// message. Only a transient fetch failure propagates; a deleted message is
// logged and skipped.
func (in *Intake) handleMessage(ctx context.Context, account, id string) error {
	msg, err := in.provider.GetMessage(ctx, account, id)
	if errors.Is(err, provider.ErrMessageNotFound) {
		slog.Error("Message not found, possibly deleted, skipping",
			"account", account,
			"message_id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch message %s for %s: %w", id, account, err)
	}

	c, err := in.recon.Reconstruct(ctx, account, msg)
	if err != nil {
		// Renderers emit fallback artifacts for nil content.
		slog.Error("Failed to reconstruct message content",
			"account", account,
			"message_id", id,
			"error", err)
		c = nil
	}

	in.archive(ctx, account, msg, c)
	in.hub.Publish(account, notify.BuildUpdate(msg, c))
	in.store.MarkProcessed(account, id)
	return nil
}

// archive renders and stores the PDF and EML artifacts. Archival failures
// never abort the batch.
func (in *Intake) archive(ctx context.Context, account string, msg *provider.Message, c *content.Content) {
	direction := export.DirectionFor(msg.LabelIDs)

	pdfBytes, err := export.RenderPDF(msg, c)
	if err != nil {
		slog.Error("Failed to render PDF, archiving fallback",
			"account", account,
			"message_id", msg.ID,
			"error", err)
		pdfBytes = export.FallbackPDF(msg.ID, err.Error())
	}
	if _, err := in.blobs.Put(ctx, export.DocumentFilename(direction, account, msg.ID), pdfBytes); err != nil {
		slog.Error("Failed to store PDF archive",
			"account", account,
			"message_id", msg.ID,
			"error", err)
	}

	emlBytes, err := export.RenderEML(msg, c)
	if err != nil {
		slog.Error("Failed to render EML, archiving fallback",
			"account", account,
			"message_id", msg.ID,
			"error", err)
		emlBytes = export.FallbackEML(msg.ID, err.Error())
	}
	if _, err := in.blobs.Put(ctx, export.TransportFilename(direction, account, msg.ID), emlBytes); err != nil {
		slog.Error("Failed to store EML archive",
			"account", account,
			"message_id", msg.ID,
			"error", err)
	}
}

// rebaseline handles an expired start position: the account is re-anchored
// at the provider's current position with zero new messages, exactly like a
// first notification.
func (in *Intake) rebaseline(ctx context.Context, account string) error {
	pos, err := in.provider.LatestPosition(ctx, account)
	if err != nil {
		return fmt.Errorf("rebaseline %s: %w", account, err)
	}
	in.advanceCursor(account, pos)
	slog.Warn("Start position expired, account re-baselined",
		"account", account,
		"history_id", pos)
	return nil
}

// advanceCursor moves the stored cursor forward, never backwards.
func (in *Intake) advanceCursor(account string, position uint64) {
	if cur, ok := in.store.Cursor(account); ok && position <= cur {
		return
	}
	in.store.SetCursor(account, position)
}
