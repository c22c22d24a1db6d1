package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderSignature = "X-Webhook-Signature"
	HeaderID        = "X-Webhook-ID"
)

// Dispatcher POSTs signed JSON callbacks. Transport errors and 5xx/429
// responses are retried with exponential backoff; other 4xx are final.
type Dispatcher struct {
	httpClient *http.Client
	secret     []byte
	maxRetries uint64
	backoff    func() backoff.BackOff
	log        *logrus.Entry
}

type Option func(*Dispatcher)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = c }
}

// WithBackOff replaces the retry schedule; tests use it to avoid sleeping.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(d *Dispatcher) { d.backoff = fn }
}

func NewDispatcher(secret string, maxRetries int, log *logrus.Entry, opts ...Option) *Dispatcher {
	if maxRetries < 0 {
		maxRetries = 0
	}
	d := &Dispatcher{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		secret:     []byte(secret),
		maxRetries: uint64(maxRetries),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
		log: log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver sends payload to url and returns the delivery id.
func (d *Dispatcher) Deliver(ctx context.Context, url, event string, payload []byte) (string, error) {
	id := uuid.NewString()
	signature := Sign(payload, d.secret)
	log := d.log.WithFields(logrus.Fields{"webhook_id": id, "event": event, "url": url})

	attempts := 0
	op := func() error {
		attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build webhook request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderEvent, event)
		req.Header.Set(HeaderSignature, signature)
		req.Header.Set(HeaderID, id)

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("post webhook: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("webhook returned %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(d.backoff(), d.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("retry_in", wait.String()).Warn("webhook delivery failed, retrying")
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		log.WithError(err).WithField("attempts", attempts).Error("webhook delivery abandoned")
		return id, err
	}
	log.WithField("attempts", attempts).Info("webhook delivered")
	return id, nil
}

// Sign returns the X-Webhook-Signature value for payload.
func Sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header produced by Sign.
func Verify(payload, secret []byte, header string) bool {
	got, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	want := Sign(payload, secret)[len("sha256="):]
	return hmac.Equal([]byte(got), []byte(want))
}
