package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const postmarkEndpoint = "https://api.postmarkapp.com/email"

// PostmarkProvider sends emails through the Postmark transactional API.
type PostmarkProvider struct {
	token  string
	from   string
	client *http.Client
	log    *zap.Logger
}

func NewPostmark(token, from string, log *zap.Logger) *PostmarkProvider {
	return &PostmarkProvider{
		token:  token,
		from:   from,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
}

type postmarkSendRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	ReplyTo  string `json:"ReplyTo,omitempty"`
	Subject  string `json:"Subject"`
	HTMLBody string `json:"HtmlBody,omitempty"`
	TextBody string `json:"TextBody,omitempty"`
}

type postmarkSendResponse struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

func (p *PostmarkProvider) Send(ctx context.Context, msg Message) error {
	from := msg.From
	if from == "" {
		from = p.from
	}

	payload, err := json.Marshal(postmarkSendRequest{
		From:     from,
		To:       msg.To,
		ReplyTo:  msg.ReplyTo,
		Subject:  msg.Subject,
		HTMLBody: msg.HTMLBody,
		TextBody: msg.TextBody,
	})
	if err != nil {
		return fmt.Errorf("marshal postmark request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postmarkEndpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create postmark request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.token)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("postmark request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr postmarkSendResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("postmark: %s (code %d)", apiErr.Message, apiErr.ErrorCode)
		}
		return fmt.Errorf("postmark: HTTP %d", resp.StatusCode)
	}

	p.log.Debug("email sent",
		zap.String("to", msg.To),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
