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
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/bookstore-storefront/internal/cache"
	"github.com/noah-isme/bookstore-storefront/internal/events"
	"github.com/noah-isme/bookstore-storefront/internal/obs"
	"github.com/noah-isme/bookstore-storefront/internal/resilience"
)

// ErrRejected is returned when the push endpoint answers with a non-2xx status.
var ErrRejected = errors.New("push endpoint rejected delivery")

// Pusher signs domain events and posts them to the configured endpoint.
type Pusher struct {
	Endpoint  string
	Secret    string
	HTTP      *resilience.HTTPClient
	Replay    ReplayProtector
	ReplayTTL time.Duration
	// ClaimTTL bounds how long an in-flight delivery blocks others. It
	// defaults to two minutes and never exceeds ReplayTTL.
	ClaimTTL time.Duration
	Now      func() time.Time
	Logger   zerolog.Logger
}

// Validate checks the endpoint URL. Plain http is only allowed for localhost.
func (p *Pusher) Validate() error {
	parsed, err := url.Parse(p.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid push endpoint: %w", err)
	}
	if parsed.Host == "" {
		return errors.New("push endpoint must include host")
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http push endpoint only allowed for localhost")
		}
		return nil
	default:
		return errors.New("push endpoint must be http or https")
	}
}

// Deliver posts one event. A delivery already acknowledged within the replay
// window is skipped. Non-2xx responses are returned as ErrRejected.
func (p *Pusher) Deliver(ctx context.Context, ev events.Event) error {
	if p == nil || p.HTTP == nil {
		return errors.New("pusher not configured")
	}
	ctx, span := otel.Tracer("notify.Pusher").Start(ctx, "Pusher.Deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("push.event_id", ev.ID),
		attribute.String("push.topic", ev.Topic),
	)
	if err := p.Validate(); err != nil {
		span.RecordError(err)
		return err
	}

	key := cache.KeyPushDelivered(ev.ID)
	if p.Replay != nil && p.ReplayTTL > 0 {
		ok, err := p.Replay.Acquire(ctx, key, p.claimTTL())
		if err != nil {
			span.RecordError(err)
			return err
		}
		if !ok {
			span.AddEvent("delivery replay prevented")
			obs.ObservePush("replayed", 0)
			return nil
		}
	}

	start := time.Now()
	status, err := p.send(ctx, ev)
	if err != nil {
		obs.ObservePush("failed", time.Since(start))
		span.RecordError(err)
		if p.Replay != nil && p.ReplayTTL > 0 {
			if relErr := p.Replay.Release(context.WithoutCancel(ctx), key); relErr != nil {
				p.Logger.Warn().Err(relErr).Str("event_id", ev.ID).Msg("release replay guard")
			}
		}
		return err
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	obs.ObservePush("delivered", time.Since(start))
	if p.Replay != nil && p.ReplayTTL > 0 {
		if err := p.Replay.Confirm(context.WithoutCancel(ctx), key, p.ReplayTTL); err != nil {
			p.Logger.Warn().Err(err).Str("event_id", ev.ID).Msg("confirm replay guard")
		}
	}
	return nil
}

func (p *Pusher) claimTTL() time.Duration {
	ttl := p.ClaimTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if ttl > p.ReplayTTL {
		ttl = p.ReplayTTL
	}
	return ttl
}

func (p *Pusher) send(ctx context.Context, ev events.Event) (int, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return 0, err
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	ts := now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "bookstore-storefront-push/1.0")
	req.Header.Set("X-Event-ID", ev.ID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Signature", ComputeSignature(p.Secret, ts, ev.ID, body))

	resp, err := p.HTTP.Do(ctx, req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// HandlePushTask is the asynq handler for events.TaskPushDeliver. Malformed
// payloads are not retried.
func (p *Pusher) HandlePushTask(ctx context.Context, task *asynq.Task) error {
	ev, err := events.DecodePushTask(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return p.Deliver(ctx, ev)
}

// ComputeSignature calculates the push signature for the provided payload. The
// format is HMAC-SHA256 over "<ts>.<eventID>.<body>" using the shared secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HTTPClient returns an HTTP client configured for push delivery.
func HTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
