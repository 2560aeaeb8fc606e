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
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/minicart-api/internal/events"
	"github.com/noah-isme/minicart-api/internal/resilience"
)

var (
	// ErrQueueFull is returned by Notify when the delivery buffer is saturated.
	ErrQueueFull = errors.New("notify: webhook queue full")
	// ErrClosed is returned by Notify after Close.
	ErrClosed = errors.New("notify: webhook closed")
)

// WebhookConfig configures a Webhook notifier.
type WebhookConfig struct {
	URL        string
	Secret     string
	Timeout    time.Duration
	BufferSize int
	HTTP       *resilience.HTTPClient
	Replay     ReplayProtector
	ReplayTTL  time.Duration
	Logger     zerolog.Logger
}

// Webhook posts cart events to a single endpoint. Notify only enqueues, so it is safe to call
// while the cart engine holds its lock; deliveries run on a background worker in emit order.
type Webhook struct {
	url       string
	secret    string
	http      *resilience.HTTPClient
	replay    ReplayProtector
	replayTTL time.Duration
	logger    zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	queue   chan events.Event
	done    chan struct{}
}

// NewWebhook validates cfg and returns a notifier. Call Start to begin delivering.
func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if err := validateURL(cfg.URL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("notify: webhook secret is required")
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 256
	}
	client := cfg.HTTP
	if client == nil {
		client = &resilience.HTTPClient{
			Client:      HttpClient(cfg.Timeout),
			Breaker: resilience.NewBreaker(resilience.BreakerConfig{
				Target:       "cart-webhook",
				MinRequests:  5,
				FailureRatio: 0.5,
				OpenFor:      30 * time.Second,
				Logger:       &cfg.Logger,
			}),
			MaxAttempts: 3,
			BaseBackoff: 200 * time.Millisecond,
			Jitter:      0.2,
			Timeout:     cfg.Timeout,
		}
	}
	replayTTL := cfg.ReplayTTL
	if replayTTL <= 0 {
		replayTTL = 24 * time.Hour
	}
	return &Webhook{
		url:       cfg.URL,
		secret:    cfg.Secret,
		http:      client,
		replay:    cfg.Replay,
		replayTTL: replayTTL,
		logger:    cfg.Logger,
		queue:     make(chan events.Event, size),
		done:      make(chan struct{}),
	}, nil
}

// Notify implements events.Notifier.
func (w *Webhook) Notify(_ context.Context, event events.Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start runs the delivery worker until Close is called and the queue is drained.
func (w *Webhook) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true
	go func() {
		defer close(w.done)
		for event := range w.queue {
			if _, err := w.Deliver(ctx, event); err != nil {
				w.logger.Warn().Err(err).
					Str("event_id", event.ID.String()).
					Str("topic", event.Topic).
					Msg("webhook delivery failed")
			}
		}
	}()
}

// Close stops accepting events and waits for queued deliveries or ctx, whichever ends first.
func (w *Webhook) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
		if !w.started {
			close(w.done)
		}
	}
	w.mu.Unlock()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type webhookPayload struct {
	EventID     string          `json:"eventId"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Data        json.RawMessage `json:"data"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// Deliver posts one event synchronously and returns the endpoint's status code.
func (w *Webhook) Deliver(ctx context.Context, ev events.Event) (int, error) {
	ctx, span := otel.Tracer("notify.Webhook").Start(ctx, "Webhook.Deliver")
	defer span.End()
	eventID := ev.ID.String()
	span.SetAttributes(
		attribute.String("webhook.event_id", eventID),
		attribute.String("webhook.topic", ev.Topic),
	)

	body, err := json.Marshal(webhookPayload{
		EventID:     eventID,
		Topic:       ev.Topic,
		AggregateID: ev.AggregateID,
		Data:        ev.Payload,
		OccurredAt:  ev.OccurredAt,
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	key := replayKey(eventID)
	if w.replay != nil {
		ok, err := w.replay.Acquire(ctx, key, w.replayTTL)
		if err != nil {
			span.RecordError(err)
			return 0, err
		}
		if !ok {
			span.AddEvent("delivery replay prevented")
			return http.StatusOK, nil
		}
	}

	ts := time.Now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "minicart-webhooks/1.0")
	req.Header.Set("X-Event-ID", eventID)
	req.Header.Set("X-Event-Topic", ev.Topic)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Idempotency-Key", eventID)
	req.Header.Set("X-Signature", ComputeSignature(w.secret, ts, eventID, body))

	resp, err := w.http.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		w.release(key)
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		w.release(key)
		return resp.StatusCode, fmt.Errorf("notify: webhook responded %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (w *Webhook) release(key string) {
	if w.replay == nil {
		return
	}
	_ = w.replay.Release(context.Background(), key)
}

func validateURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	return nil
}

// ComputeSignature calculates the webhook signature for the provided payload. The
// format is HMAC-SHA256 over "<ts>.<eventID>.<body>" using the endpoint secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HttpClient returns an HTTP client configured for webhook delivery.
func HttpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
