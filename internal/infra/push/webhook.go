package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// webhookBackend POSTs {"version","title","message","type"} as JSON.
type webhookBackend struct {
	endpoint string
	client   *http.Client
}

type webhookPayload struct {
	Version string `json:"version"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func newWebhookBackend(scheme, rest string, opts Options) (*webhookBackend, error) {
	u, err := url.Parse(scheme + "://" + rest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: webhook host is empty", ErrInvalidURL)
	}
	return &webhookBackend{endpoint: u.String(), client: opts.HTTPClient}, nil
}

func (b *webhookBackend) Name() string {
	u, err := url.Parse(b.endpoint)
	if err != nil {
		return "json://?"
	}
	return u.Scheme + "://" + u.Host + u.Path
}

func (b *webhookBackend) Send(ctx context.Context, title, body string) error {
	payload, err := json.Marshal(webhookPayload{Version: "1.0", Title: title, Message: body, Type: "info"})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
