package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wardenhq/warden/types"
)

// WebhookExecutor posts actions to a remote execution endpoint. Any
// non-2xx response is a path failure; the dispatcher falls through to
// the next path.
type WebhookExecutor struct {
	name     string
	endpoint string
	client   *http.Client
	headers  map[string]string
}

// WebhookOption configures a webhook executor
type WebhookOption func(*WebhookExecutor)

// WithHeader adds a request header, e.g. an auth token
func WithHeader(key, value string) WebhookOption {
	return func(w *WebhookExecutor) {
		w.headers[key] = value
	}
}

// WithHTTPClient overrides the default client
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(w *WebhookExecutor) {
		w.client = client
	}
}

// NewWebhookExecutor creates an executor that POSTs to endpoint. The
// path timeout comes from dispatch config via the attempt context, so
// the client itself carries no deadline.
func NewWebhookExecutor(name, endpoint string, opts ...WebhookOption) *WebhookExecutor {
	w := &WebhookExecutor{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{},
		headers:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WebhookExecutor) Name() string { return w.name }

type webhookPayload struct {
	Action    types.Action `json:"action"`
	Operation string       `json:"operation"`
	SentAt    time.Time    `json:"sent_at"`
}

// Execute delivers the action to the remote endpoint
func (w *WebhookExecutor) Execute(ctx context.Context, action types.Action) error {
	return w.post(ctx, webhookPayload{
		Action:    action,
		Operation: "execute",
		SentAt:    time.Now(),
	})
}

// Reverse asks the remote endpoint to undo the action
func (w *WebhookExecutor) Reverse(ctx context.Context, action types.Action) error {
	return w.post(ctx, webhookPayload{
		Action:    action,
		Operation: "reverse",
		SentAt:    time.Now(),
	})
}

func (w *WebhookExecutor) post(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range w.headers {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", w.endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
