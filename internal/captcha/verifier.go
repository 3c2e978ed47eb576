// Package captcha validates human-presence tokens against an external
// siteverify endpoint. Verification fails closed: any transport or decode
// problem counts as a rejection, never a pass.
package captcha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/rankandrent/exchange-intake/pkg/logging"
)

var tracer = otel.Tracer("captcha")

const defaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// Config controls how the verifier behaves.
type Config struct {
	Secret     string
	VerifyURL  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Verifier checks tokens against the verification service.
type Verifier struct {
	secret     string
	verifyURL  string
	httpClient *http.Client
	logger     *logging.Logger
}

// New creates a Verifier with sane defaults.
func New(cfg Config) *Verifier {
	verifyURL := strings.TrimSpace(cfg.VerifyURL)
	if verifyURL == "" {
		verifyURL = defaultVerifyURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Verifier{
		secret:     cfg.Secret,
		verifyURL:  verifyURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify reports whether the service affirms the token. Tokens are single-use
// and short-lived, so there are no retries: a failed check is terminal for the
// submission attempt.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) bool {
	ctx, span := tracer.Start(ctx, "captcha.verify")
	defer span.End()

	form := url.Values{
		"secret":   {v.secret},
		"response": {token},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		v.logger.Error("captcha request build failed", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Warn("captcha verification unreachable", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		v.logger.Warn("captcha verification returned error status", "status", resp.StatusCode)
		return false
	}

	var parsed verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		v.logger.Warn("captcha verification returned malformed body", "error", err)
		return false
	}
	if !parsed.Success {
		v.logger.Info("captcha token rejected", "error_codes", parsed.ErrorCodes)
	}
	return parsed.Success
}
