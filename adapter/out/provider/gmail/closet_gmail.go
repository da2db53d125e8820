// Package gmail implements the mailbox provider port on the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"closet_server/core/domain"
	"closet_server/core/port/out"
	"closet_server/pkg/apperr"
	"closet_server/pkg/httputil"
	"closet_server/pkg/logger"
	"closet_server/pkg/resilience"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Concurrent message fetches per listing. Gmail per-user quota is tight.
const fetchConcurrency = 5

// Provider is a Gmail client bound to one user's token.
type Provider struct {
	service *gmail.Service
	email   string
	breaker *resilience.CircuitBreaker
}

var _ out.MailProvider = (*Provider)(nil)

// NewProvider builds an authenticated client and verifies it by loading
// the profile.
func NewProvider(ctx context.Context, token *oauth2.Token, config *oauth2.Config) (*Provider, error) {
	// Tuned base transport under the oauth token source.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httputil.GmailClient())
	client := config.Client(ctx, token)

	service, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	profile, err := service.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, wrapGmailError("get profile", err)
	}

	return &Provider{
		service: service,
		email:   profile.EmailAddress,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("gmail")),
	}, nil
}

func (p *Provider) Email() string { return p.email }

// ListMessages lists matching message ids then fetches bodies with a
// bounded fan-out. Individual fetch failures drop the message, not the
// listing.
func (p *Provider) ListMessages(ctx context.Context, query *out.MailQuery) (*out.MailListResult, error) {
	q := buildGmailQuery(query)

	call := p.service.Users.Messages.List("me").Q(q).Context(ctx)
	if query.MaxResults > 0 {
		call = call.MaxResults(int64(query.MaxResults))
	}
	if query.PageToken != "" {
		call = call.PageToken(query.PageToken)
	}

	var listed *gmail.ListMessagesResponse
	err := p.breaker.Execute(func() error {
		var callErr error
		listed, callErr = call.Do()
		return callErr
	})
	if err != nil {
		return nil, wrapGmailError("list messages", err)
	}

	result := &out.MailListResult{NextPageToken: listed.NextPageToken}
	if len(listed.Messages) == 0 {
		return result, nil
	}

	// Fetch bodies in parallel, keeping listing order.
	type slot struct {
		email *domain.RawEmail
		err   error
	}
	slots := make([]slot, len(listed.Messages))
	sem := make(chan struct{}, fetchConcurrency)
	done := make(chan int, len(listed.Messages))

	for i, ref := range listed.Messages {
		go func(idx int, id string) {
			sem <- struct{}{}
			defer func() { <-sem }()
			email, err := p.GetMessage(ctx, id)
			slots[idx] = slot{email: email, err: err}
			done <- idx
		}(i, ref.Id)
	}
	for range listed.Messages {
		<-done
	}

	for i, s := range slots {
		if s.err != nil {
			logger.Warn("[GmailProvider] Failed to fetch message %s: %v", listed.Messages[i].Id, s.err)
			continue
		}
		result.Messages = append(result.Messages, s.email)
	}
	return result, nil
}

// GetMessage fetches one full message.
func (p *Provider) GetMessage(ctx context.Context, messageID string) (*domain.RawEmail, error) {
	var msg *gmail.Message
	err := p.breaker.Execute(func() error {
		var callErr error
		msg, callErr = p.service.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, wrapGmailError("get message", err)
	}
	return parseMessage(msg), nil
}

// MarkRead clears the UNREAD label.
func (p *Provider) MarkRead(ctx context.Context, messageID string) error {
	err := p.breaker.Execute(func() error {
		_, callErr := p.service.Users.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
			RemoveLabelIds: []string{"UNREAD"},
		}).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return wrapGmailError("mark read", err)
	}
	return nil
}

// buildGmailQuery appends the structured query fields onto the base
// search string.
func buildGmailQuery(query *out.MailQuery) string {
	q := query.Query
	if query.OnlyUnread {
		q += " is:unread"
	}
	if !query.After.IsZero() {
		q += " after:" + query.After.Format("2006/01/02")
	}
	if !query.Before.IsZero() {
		q += " before:" + query.Before.Format("2006/01/02")
	}
	return strings.TrimSpace(q)
}

// parseMessage flattens the Gmail payload into a RawEmail.
func parseMessage(msg *gmail.Message) *domain.RawEmail {
	email := &domain.RawEmail{
		ID:         msg.Id,
		Snippet:    msg.Snippet,
		ReceivedAt: time.UnixMilli(msg.InternalDate),
		IsRead:     true,
	}
	for _, label := range msg.LabelIds {
		if label == "UNREAD" {
			email.IsRead = false
			break
		}
	}

	if msg.Payload == nil {
		return email
	}
	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "From":
			email.From = header.Value
		case "Subject":
			email.Subject = header.Value
		}
	}

	html, text := parseBody(msg.Payload)
	email.BodyHTML = html
	email.BodyText = text
	return email
}

// parseBody walks the MIME tree collecting the first html and plain text
// parts.
func parseBody(part *gmail.MessagePart) (html, text string) {
	if part.Body != nil && part.Body.Data != "" {
		decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err == nil {
			switch part.MimeType {
			case "text/html":
				html = string(decoded)
			case "text/plain":
				text = string(decoded)
			}
		}
	}
	for _, child := range part.Parts {
		childHTML, childText := parseBody(child)
		if html == "" {
			html = childHTML
		}
		if text == "" {
			text = childText
		}
	}
	return html, text
}

// wrapGmailError maps API failures onto app error codes. 429 and quota
// errors become RATE_LIMITED so the sync layer backs off.
func wrapGmailError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || (apiErr.Code == 403 && strings.Contains(apiErr.Message, "quota")) {
			return apperr.RateLimited("gmail", err)
		}
		if apiErr.Code == 401 {
			return apperr.AuthExpired("gmail", err)
		}
	}
	if strings.Contains(err.Error(), "rateLimitExceeded") || strings.Contains(err.Error(), "Error 429") {
		return apperr.RateLimited("gmail", err)
	}
	return apperr.ExternalError("gmail "+op, err)
}
