package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	MaxRetryCount = 3
	SleepTime     = 1 * time.Second
)

// Gmail implements Provider on top of the Gmail REST API. One service client
// is built lazily per account from its refresh token and cached. All calls go
// through a shared rate limiter and a bounded retry loop for transient
// errors.
type Gmail struct {
	oauth    *oauth2.Config
	tokens   map[string]string // account email -> refresh token
	limiter  *rate.Limiter
	mu       sync.Mutex
	services map[string]*gmail.Service
}

// NewGmail creates a Gmail provider for the given accounts. refreshTokens
// maps account email addresses to their OAuth refresh tokens.
func NewGmail(clientID, clientSecret string, refreshTokens map[string]string) *Gmail {
	return &Gmail{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailReadonlyScope},
		},
		tokens:   refreshTokens,
		limiter:  rate.NewLimiter(50, 5),
		services: make(map[string]*gmail.Service),
	}
}

func (g *Gmail) service(account string) (*gmail.Service, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if svc, ok := g.services[account]; ok {
		return svc, nil
	}
	token, ok := g.tokens[account]
	if ok && token == "" {
		ok = false
	}
	if !ok {
		return nil, fmt.Errorf("no refresh token configured for account %s", account)
	}
	ctx := context.Background()
	tokenSrc := oauth2.Token{RefreshToken: token}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(g.oauth.TokenSource(ctx, &tokenSrc)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service for %s: %w", account, err)
	}
	g.services[account] = svc
	return svc, nil
}

// withRetry runs fn under the rate limiter, retrying transient failures up to
// MaxRetryCount times.
func (g *Gmail) withRetry(ctx context.Context, what string, fn func() error) error {
	var lastErr error
	for i := 0; i < MaxRetryCount; i++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		slog.Info(fmt.Sprintf("Got retryable error for %s. Attempt #: %d of %d.", what, i+1, MaxRetryCount))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(SleepTime):
		}
	}
	return lastErr
}

func (g *Gmail) ListAddedSince(ctx context.Context, account string, start uint64) ([]string, error) {
	svc, err := g.service(account)
	if err != nil {
		return nil, err
	}

	var ids []string
	pageToken := ""
	for {
		var resp *gmail.ListHistoryResponse
		err := g.withRetry(ctx, "history list "+account, func() error {
			call := svc.Users.History.List(account).
				StartHistoryId(start).
				HistoryTypes("messageAdded").
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var callErr error
			resp, callErr = call.Do()
			return callErr
		})
		if err != nil {
			var googleErr *googleapi.Error
			if errors.As(err, &googleErr) && googleErr.Code == http.StatusNotFound {
				return nil, fmt.Errorf("%w: account %s position %d", ErrStartExpired, account, start)
			}
			return nil, fmt.Errorf("failed to list history for %s from %d: %w", account, start, err)
		}
		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message != nil {
					ids = append(ids, added.Message.Id)
				}
			}
		}
		if resp.NextPageToken == "" {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (g *Gmail) GetMessage(ctx context.Context, account, messageID string) (*Message, error) {
	svc, err := g.service(account)
	if err != nil {
		return nil, err
	}

	var msg *gmail.Message
	err = g.withRetry(ctx, "message get "+messageID, func() error {
		var callErr error
		msg, callErr = svc.Users.Messages.Get(account, messageID).Format("full").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		var googleErr *googleapi.Error
		if errors.As(err, &googleErr) && googleErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: id %s", ErrMessageNotFound, messageID)
		}
		return nil, fmt.Errorf("failed to get message %s for %s: %w", messageID, account, err)
	}
	return convertMessage(msg), nil
}

func (g *Gmail) GetAttachment(ctx context.Context, account, messageID, attachmentID string) ([]byte, error) {
	svc, err := g.service(account)
	if err != nil {
		return nil, err
	}

	var body *gmail.MessagePartBody
	err = g.withRetry(ctx, "attachment get "+attachmentID, func() error {
		var callErr error
		body, callErr = svc.Users.Messages.Attachments.Get(account, messageID, attachmentID).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s of message %s: %w", attachmentID, messageID, err)
	}
	data, err := DecodeData(body.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment %s of message %s: %w", attachmentID, messageID, err)
	}
	return data, nil
}

func (g *Gmail) LatestPosition(ctx context.Context, account string) (uint64, error) {
	svc, err := g.service(account)
	if err != nil {
		return 0, err
	}

	var profile *gmail.Profile
	err = g.withRetry(ctx, "profile get "+account, func() error {
		var callErr error
		profile, callErr = svc.Users.GetProfile(account).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get profile for %s: %w", account, err)
	}
	return profile.HistoryId, nil
}

func convertMessage(m *gmail.Message) *Message {
	return &Message{
		ID:           m.Id,
		ThreadID:     m.ThreadId,
		LabelIDs:     m.LabelIds,
		Snippet:      m.Snippet,
		InternalDate: m.InternalDate,
		Payload:      convertPart(m.Payload),
	}
}

func convertPart(p *gmail.MessagePart) *Part {
	if p == nil {
		return nil
	}
	part := &Part{
		MimeType: p.MimeType,
		Filename: p.Filename,
	}
	for _, h := range p.Headers {
		part.Headers = append(part.Headers, Header{Name: h.Name, Value: h.Value})
	}
	if p.Body != nil {
		part.Data = p.Body.Data
		part.AttachmentID = p.Body.AttachmentId
		part.Size = p.Body.Size
	}
	for _, child := range p.Parts {
		part.Parts = append(part.Parts, convertPart(child))
	}
	return part
}
