package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultPushoverURL is the Pushover message API endpoint
const DefaultPushoverURL = "https://api.pushover.net/1/messages.json"

// Pushover sends messages through the Pushover push-notification service
type Pushover struct {
	url     string
	token   string
	userKey string
	client  *http.Client
}

// NewPushover creates a Pushover notifier. An empty endpoint uses the
// public API URL.
func NewPushover(endpoint, token, userKey string, timeout time.Duration) *Pushover {
	if endpoint == "" {
		endpoint = DefaultPushoverURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pushover{
		url:     endpoint,
		token:   token,
		userKey: userKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Send implements Notifier. A non-200 response is a delivery failure.
func (p *Pushover) Send(ctx context.Context, message string) error {
	form := url.Values{}
	form.Set("token", p.token)
	form.Set("user", p.userKey)
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pushover returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
