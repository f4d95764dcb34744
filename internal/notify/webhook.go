package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const signatureHeader = "X-Signature-SHA256"

var (
	errEmptyURL = errors.New("notify: webhook url is empty")
	// ErrWebhookRejected is returned when the endpoint answers outside 2xx.
	ErrWebhookRejected = errors.New("notify: webhook rejected message")
)

// Channel delivers rendered content.
type Channel interface {
	Send(ctx context.Context, content string) error
}

// webhookPayload is the chat-bot text message shape most team messengers accept.
type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// WebhookChannel posts notifications to a chat-bot webhook.
type WebhookChannel struct {
	endpoint string
	secret   []byte
	client   *http.Client
}

// WebhookOption configures the webhook channel.
type WebhookOption func(*WebhookChannel)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(ch *WebhookChannel) {
		if client != nil {
			ch.client = client
		}
	}
}

// WithSigningSecret signs every body with HMAC-SHA256 so the receiver can
// reject forged alerts.
func WithSigningSecret(secret string) WebhookOption {
	return func(ch *WebhookChannel) {
		ch.secret = []byte(secret)
	}
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(endpoint string, opts ...WebhookOption) (*WebhookChannel, error) {
	if endpoint == "" {
		return nil, errEmptyURL
	}
	ch := &WebhookChannel{endpoint: endpoint, client: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(ch)
	}
	return ch, nil
}

// Send posts content as a text message.
func (w *WebhookChannel) Send(ctx context.Context, content string) error {
	if w == nil || w.endpoint == "" {
		return errEmptyURL
	}
	var msg webhookPayload
	msg.MsgType = "text"
	msg.Text.Content = content
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: encode webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(w.secret) > 0 {
		req.Header.Set(signatureHeader, sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrWebhookRejected, resp.StatusCode)
	}
	return nil
}

func sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// LogChannel writes notifications to a logger. Used when no webhook is configured.
type LogChannel struct {
	logger *log.Logger
}

// NewLogChannel constructs a log channel.
func NewLogChannel(logger *log.Logger) *LogChannel {
	if logger == nil {
		logger = log.Default()
	}
	return &LogChannel{logger: logger}
}

// Send logs the content.
func (l *LogChannel) Send(_ context.Context, content string) error {
	l.logger.Printf("discrepancy notification:\n%s", content)
	return nil
}
