// Package intake implements the contact-form endpoint: admission control,
// captcha verification, normalization, webhook relay and notification
// dispatch. A valid submission always gets a success response, even when
// downstream integrations are degraded.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rankandrent/exchange-intake/internal/leads"
	"github.com/rankandrent/exchange-intake/internal/notify"
	"github.com/rankandrent/exchange-intake/internal/observability/metrics"
	"github.com/rankandrent/exchange-intake/internal/ratelimit"
	"github.com/rankandrent/exchange-intake/internal/relay"
	"github.com/rankandrent/exchange-intake/pkg/logging"
)

// CaptchaVerifier validates a human-presence token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) bool
}

// Relayer forwards a lead to the downstream automation endpoint.
type Relayer interface {
	Configured() bool
	Deliver(ctx context.Context, lead leads.Lead, meta relay.Meta) relay.Outcome
}

// Notifier sends the customer confirmation and internal fan-out.
type Notifier interface {
	Dispatch(ctx context.Context, brand notify.Brand, lead leads.Lead)
}

// Config wires the handler's collaborators and derived context.
type Config struct {
	Limiter       *ratelimit.Limiter
	Captcha       CaptchaVerifier
	Relay         Relayer
	Notifier      Notifier
	Brand         notify.Brand
	Site          string
	Route         string
	DefaultSource string
	NotifyTimeout time.Duration
	Logger        *logging.Logger
	Metrics       *metrics.IntakeMetrics
}

// Handler handles POST /api/contact.
type Handler struct {
	limiter       *ratelimit.Limiter
	captcha       CaptchaVerifier
	relay         Relayer
	notifier      Notifier
	brand         notify.Brand
	site          string
	route         string
	defaultSource string
	notifyTimeout time.Duration
	logger        *logging.Logger
	metrics       *metrics.IntakeMetrics
	now           func() time.Time
}

// NewHandler creates the intake handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	notifyTimeout := cfg.NotifyTimeout
	if notifyTimeout <= 0 {
		notifyTimeout = 15 * time.Second
	}
	return &Handler{
		limiter:       cfg.Limiter,
		captcha:       cfg.Captcha,
		relay:         cfg.Relay,
		notifier:      cfg.Notifier,
		brand:         cfg.Brand,
		site:          cfg.Site,
		route:         cfg.Route,
		defaultSource: cfg.DefaultSource,
		notifyTimeout: notifyTimeout,
		logger:        logger,
		metrics:       cfg.Metrics,
		now:           time.Now,
	}
}

// SubmitContact handles POST /api/contact requests.
func (h *Handler) SubmitContact(w http.ResponseWriter, r *http.Request) {
	clientKey := ratelimit.ClientKey(r)

	// The counter increment lands before any downstream work, so a client
	// disconnect cannot bypass the budget.
	admission := h.limiter.Allow(r.Context(), clientKey)
	setRateHeaders(w, admission)
	if !admission.Allowed {
		retryAfter := admission.RetryAfter(h.now())
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.metrics.ObserveSubmission("rate_limited")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":      "Too many requests",
			"retryAfter": retryAfter,
		})
		return
	}

	req, err := decodeSubmitRequest(r)
	if err != nil {
		h.metrics.ObserveSubmission("invalid_body")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
		return
	}

	token := req.CaptchaToken()
	if token == "" {
		h.metrics.ObserveSubmission("captcha_missing")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Captcha token missing"})
		return
	}

	// Without a webhook URL no lead can ever be delivered; abort rather than
	// silently swallowing submissions. The caller sees a generic server error.
	if !h.relay.Configured() {
		h.logger.Error("lead webhook URL not configured, rejecting submission")
		h.metrics.ObserveSubmission("config_error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Server configuration error"})
		return
	}

	if !h.captcha.Verify(r.Context(), token, clientIP(clientKey)) {
		h.metrics.ObserveSubmission("captcha_rejected")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Captcha verification failed"})
		return
	}

	lead, err := leads.Normalize(req, h.defaultSource, h.now())
	if err != nil {
		h.metrics.ObserveSubmission("validation_failed")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	// Relay and notification outcomes are operational concerns, not part of
	// the caller-visible contract. They run on a context detached from the
	// client connection so a disconnect doesn't abort them mid-flight.
	downstream := context.WithoutCancel(r.Context())

	outcome := h.relay.Deliver(downstream, lead, relay.Meta{
		Site:        h.site,
		Route:       h.route,
		SourceLabel: lead.Source,
	})
	if !outcome.Delivered {
		h.logger.Warn("lead relay degraded, continuing",
			"attempts", outcome.Attempts,
			"last_status", outcome.LastStatus,
		)
	}

	notifyCtx, cancel := context.WithTimeout(downstream, h.notifyTimeout)
	h.notifier.Dispatch(notifyCtx, h.brand, lead)
	cancel()

	h.metrics.ObserveSubmission("accepted")
	h.logger.Info("lead accepted",
		"email", lead.Email,
		"project_type", lead.ProjectType,
		"source", lead.Source,
		"relayed", outcome.Delivered,
	)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// decodeSubmitRequest parses a JSON or form-encoded body into a SubmitRequest.
func decodeSubmitRequest(r *http.Request) (leads.SubmitRequest, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		return decodeForm(r)
	}

	var req leads.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return leads.SubmitRequest{}, err
	}
	return req, nil
}

func decodeForm(r *http.Request) (leads.SubmitRequest, error) {
	if err := r.ParseForm(); err != nil {
		return leads.SubmitRequest{}, err
	}
	if r.PostForm == nil {
		return leads.SubmitRequest{}, errors.New("intake: empty form body")
	}
	return leads.SubmitRequest{
		Name:                r.PostFormValue("name"),
		Email:               r.PostFormValue("email"),
		Phone:               r.PostFormValue("phone"),
		Company:             r.PostFormValue("company"),
		PropertyDescription: r.PostFormValue("propertyDescription"),
		EstimatedCloseDate:  r.PostFormValue("estimatedCloseDate"),
		City:                r.PostFormValue("city"),
		Timeline:            r.PostFormValue("timeline"),
		Message:             r.PostFormValue("message"),
		ProjectType:         r.PostFormValue("projectType"),
		Source:              r.PostFormValue("source"),
		Captcha:             r.PostFormValue("captchaToken"),
		CaptchaLegacy:       r.PostFormValue("recaptchaToken"),
	}, nil
}

func setRateHeaders(w http.ResponseWriter, res ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// clientIP filters out the limiter's synthetic bucket names so the captcha
// service only ever sees real addresses.
func clientIP(key string) string {
	if key == "unknown" {
		return ""
	}
	return key
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
