// Package relay forwards normalized leads to the downstream automation
// webhook. Delivery is best effort: retries are bounded, exhaustion is logged
// and reported in the Outcome, and nothing here fails the caller's request.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rankandrent/exchange-intake/internal/leads"
	"github.com/rankandrent/exchange-intake/internal/observability/metrics"
	"github.com/rankandrent/exchange-intake/pkg/logging"
)

var tracer = otel.Tracer("relay")

// Meta carries derived context delivered alongside the lead. SourceLabel is
// tagged distinctly from the lead's own source field so the two never collide
// in the flattened wire payload.
type Meta struct {
	Site        string `json:"site"`
	Route       string `json:"route"`
	SourceLabel string `json:"sourceLabel"`
}

// Outcome summarizes one delivery, across all attempts.
type Outcome struct {
	Delivered  bool
	Attempts   int
	LastStatus int
	LastBody   string
	Err        error
}

// Config controls delivery behavior.
type Config struct {
	URL            string
	MaxAttempts    int
	AttemptTimeout time.Duration
	BackoffStep    time.Duration
	HTTPClient     *http.Client
	Logger         *logging.Logger
	Metrics        *metrics.IntakeMetrics
}

// Relay posts leads to the configured webhook with bounded retries.
type Relay struct {
	url            string
	maxAttempts    int
	attemptTimeout time.Duration
	backoffStep    time.Duration
	httpClient     *http.Client
	logger         *logging.Logger
	metrics        *metrics.IntakeMetrics
}

// New creates a Relay with sane defaults.
func New(cfg Config) *Relay {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = 20 * time.Second
	}
	backoffStep := cfg.BackoffStep
	if backoffStep <= 0 {
		backoffStep = 250 * time.Millisecond
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Relay{
		url:            strings.TrimSpace(cfg.URL),
		maxAttempts:    maxAttempts,
		attemptTimeout: attemptTimeout,
		backoffStep:    backoffStep,
		httpClient:     httpClient,
		logger:         logger,
		metrics:        cfg.Metrics,
	}
}

// Configured reports whether a webhook URL is set. Without one no lead can
// ever be delivered, so callers treat false as a hard configuration error.
func (r *Relay) Configured() bool {
	return r.url != ""
}

// payload is the wire shape: the lead's own fields (including its server-set
// submittedAt) flattened together with the derived site/route/source context.
type payload struct {
	leads.Lead
	Meta
}

// Deliver posts the lead to the webhook, retrying on timeout, transport error
// or non-2xx status with linear backoff between attempts. It never returns an
// error to the pipeline; the Outcome carries what happened for logging.
func (r *Relay) Deliver(ctx context.Context, lead leads.Lead, meta Meta) Outcome {
	ctx, span := tracer.Start(ctx, "relay.deliver")
	defer span.End()
	span.SetAttributes(attribute.String("relay.source", meta.SourceLabel))

	body, err := json.Marshal(payload{Lead: lead, Meta: meta})
	if err != nil {
		// Lead is plain strings; this only fires on a programming error.
		r.logger.Error("relay payload marshal failed", "error", err)
		return Outcome{Err: err}
	}

	start := time.Now()
	var out Outcome
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		out.Attempts = attempt
		status, respBody, err := r.attempt(ctx, body)
		out.LastStatus = status
		out.LastBody = respBody
		out.Err = err

		if err == nil && status >= 200 && status < 300 {
			out.Delivered = true
			r.metrics.ObserveRelayAttempt("success")
			break
		}
		r.metrics.ObserveRelayAttempt(attemptOutcome(status, err))
		r.logger.Warn("webhook delivery attempt failed",
			"attempt", attempt,
			"status", status,
			"error", err,
		)

		if attempt < r.maxAttempts {
			if err := r.sleep(ctx, attempt); err != nil {
				out.Err = err
				break
			}
		}
	}

	if out.Delivered {
		r.metrics.ObserveRelayDelivery("delivered", time.Since(start).Seconds())
		r.logger.Info("lead relayed", "attempts", out.Attempts, "status", out.LastStatus)
	} else {
		r.metrics.ObserveRelayDelivery("exhausted", time.Since(start).Seconds())
		span.SetAttributes(attribute.Bool("relay.exhausted", true))
		r.logger.Error("webhook delivery exhausted",
			"attempts", out.Attempts,
			"last_status", out.LastStatus,
			"last_body", truncate(out.LastBody, 512),
			"error", out.Err,
		)
	}
	return out
}

// attempt performs one bounded POST. The per-attempt context cancels the
// in-flight call on timeout rather than leaving it to leak.
func (r *Relay) attempt(ctx context.Context, body []byte) (int, string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if readErr != nil {
		return resp.StatusCode, "", readErr
	}
	return resp.StatusCode, string(respBody), nil
}

func (r *Relay) sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(attempt) * r.backoffStep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func attemptOutcome(status int, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case err != nil:
		return "error"
	default:
		return fmt.Sprintf("status_%d", status)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
