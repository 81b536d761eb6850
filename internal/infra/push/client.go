// Package push fans a notification out to every configured destination URL.
// Destinations use their service's own URL scheme:
//
//	tgram://<bot_token>/<chat_id>[/<chat_id>...]   Telegram bot
//	discord://<webhook_id>/<webhook_token>         Discord webhook
//	discordbot://<bot_token>/<channel_id>          Discord bot channel message
//	json://<host>[:port]/<path>                    generic JSON webhook (http)
//	jsons://<host>[:port]/<path>                   generic JSON webhook (https)
package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrInvalidURL is returned for destination URLs that fail validation.
var ErrInvalidURL = errors.New("invalid push destination url")

// Backend delivers to one destination.
type Backend interface {
	// Name identifies the destination in logs without leaking credentials.
	Name() string
	Send(ctx context.Context, title, body string) error
}

// Options tunes every backend of a client.
type Options struct {
	Timeout    time.Duration
	RatePerSec float64
	HTTPClient *http.Client
}

type destination struct {
	backend Backend
	limiter *rate.Limiter
}

// Client is a multi-backend push client. It is built per dispatch pass from the
// URLs configured at that moment.
type Client struct {
	destinations []destination
	logger       *logrus.Entry
}

// NewClient registers every valid URL; invalid ones are skipped with a warning.
func NewClient(urls []string, opts Options, logger *logrus.Entry) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{logger: logger}
	for _, raw := range urls {
		b, err := Parse(raw, opts)
		if err != nil {
			logger.WithError(err).WithField("scheme", schemeOf(raw)).Warn("Skipping invalid push destination")
			continue
		}
		var lim *rate.Limiter
		if opts.RatePerSec > 0 {
			lim = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
		}
		c.destinations = append(c.destinations, destination{backend: b, limiter: lim})
	}
	return c
}

// Available reports whether at least one destination is registered.
func (c *Client) Available() bool {
	return c != nil && len(c.destinations) > 0
}

// Len returns the number of registered destinations.
func (c *Client) Len() int {
	return len(c.destinations)
}

// Send delivers to every destination. One failing destination does not stop the
// others; the returned error joins all failures. Without destinations Send is a no-op.
func (c *Client) Send(ctx context.Context, title, body string) error {
	if !c.Available() {
		return nil
	}
	var errs []error
	for _, d := range c.destinations {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", d.backend.Name(), err))
				continue
			}
		}
		if err := d.backend.Send(ctx, title, body); err != nil {
			c.logger.WithError(err).WithField("destination", d.backend.Name()).Warn("Push destination failed")
			errs = append(errs, fmt.Errorf("%s: %w", d.backend.Name(), err))
			continue
		}
		c.logger.WithField("destination", d.backend.Name()).Debug("Push delivered")
	}
	return errors.Join(errs...)
}

// Parse validates raw and builds its backend.
func Parse(raw string, opts Options) (Backend, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(raw), "://")
	if !ok || rest == "" {
		return nil, fmt.Errorf("%w: missing scheme", ErrInvalidURL)
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch strings.ToLower(scheme) {
	case "tgram":
		return newTelegramBackend(parts, opts)
	case "discord":
		return newDiscordWebhookBackend(parts)
	case "discordbot":
		return newDiscordBotBackend(parts, opts)
	case "json":
		return newWebhookBackend("http", rest, opts)
	case "jsons":
		return newWebhookBackend("https", rest, opts)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, scheme)
	}
}

func schemeOf(raw string) string {
	scheme, _, _ := strings.Cut(raw, "://")
	return scheme
}

// mask keeps the first and last two characters of a secret.
func mask(secret string) string {
	if len(secret) <= 6 {
		return "***"
	}
	return secret[:2] + "***" + secret[len(secret)-2:]
}

// text joins title and body the way chat backends render them.
func text(title, body string) string {
	if title == "" {
		return body
	}
	if body == "" {
		return title
	}
	return title + "\n\n" + body
}
