package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"cisline/internal/config"
	"cisline/internal/domain"
	"cisline/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
	defaultWebhookTries    = 3
)

// WebhookOptions tunes the dispatcher; zero values use the defaults.
type WebhookOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	MaxTries uint
	Log      zerolog.Logger
}

type webhookDispatcher struct {
	repo     repo.Repo
	webhooks []config.Webhook
	client   *http.Client
	opts     WebhookOptions
	log      zerolog.Logger
	cursors  map[string]int64
}

// StartWebhooks forwards audit events written after startup to every enabled
// webhook. It returns once the first cursors are taken; delivery runs until
// ctx is done.
func StartWebhooks(ctx context.Context, r repo.Repo, hooks []config.Webhook, opts WebhookOptions) error {
	var enabled []config.Webhook
	for _, h := range hooks {
		if !h.Disabled && strings.TrimSpace(h.URL) != "" {
			enabled = append(enabled, h)
		}
	}
	if len(enabled) == 0 {
		return nil
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultWebhookInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultWebhookTimeout
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = defaultWebhookTries
	}
	latest, err := r.LatestEventID(ctx)
	if err != nil {
		return fmt.Errorf("webhook cursor: %w", err)
	}
	d := &webhookDispatcher{
		repo:     r,
		webhooks: enabled,
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		log:      opts.Log.With().Str("component", "webhooks").Logger(),
		cursors:  make(map[string]int64, len(enabled)),
	}
	for _, h := range enabled {
		d.cursors[h.ID] = latest
	}
	go d.run(ctx)
	return nil
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, hook := range d.webhooks {
				d.dispatch(ctx, hook)
			}
		}
	}
}

// dispatch delivers in id order and stops at the first failed delivery so
// the next tick retries from the same event.
func (d *webhookDispatcher) dispatch(ctx context.Context, hook config.Webhook) {
	events, err := d.repo.EventsAfter(ctx, d.cursors[hook.ID], defaultWebhookBatch)
	if err != nil {
		d.log.Error().Err(err).Msg("fetch events")
		return
	}
	for _, evt := range events {
		if evt.Importance.Rank() >= hook.MinImportance.Rank() {
			if err := d.deliver(ctx, hook, evt); err != nil {
				d.log.Warn().Err(err).Str("webhook", hook.ID).Int64("event_id", evt.ID).Msg("delivery failed")
				return
			}
		}
		d.cursors[hook.ID] = evt.ID
	}
}

func (d *webhookDispatcher) deliver(ctx context.Context, hook config.Webhook, evt domain.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, d.post(ctx, hook, evt.ID, data)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(d.opts.MaxTries))
	return err
}

func (d *webhookDispatcher) post(ctx context.Context, hook config.Webhook, id int64, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cisline-Delivery", strconv.FormatInt(id, 10))
	req.Header.Set("X-Cisline-Webhook", hook.ID)
	if hook.Secret != "" {
		req.Header.Set("X-Cisline-Signature", "sha256="+sign(hook.Secret, data))
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		err := fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}
	return nil
}

// sign is the hex HMAC-SHA256 of body, sent as X-Cisline-Signature.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
