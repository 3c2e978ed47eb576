package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	SiteName      string
	SiteBaseURL   string
	RouteID       string
	DefaultSource string

	// Downstream automation webhook
	WebhookURL            string
	WebhookMaxAttempts    int
	WebhookAttemptTimeout time.Duration
	WebhookBackoffStep    time.Duration

	// Captcha verification
	CaptchaSecret    string
	CaptchaSiteKey   string
	CaptchaVerifyURL string
	CaptchaTimeout   time.Duration

	// Email notifications
	EmailProvider      string // sendgrid, ses or stub
	SendGridAPIKey     string
	EmailFromAddress   string
	EmailFromName      string
	CustomerTemplateID string
	InternalTemplateID string
	InternalRecipients []string
	NotifyTimeout      time.Duration

	// AWS (SES provider)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Rate limiting
	RateLimitBackend string // memory or redis
	RateLimitBudget  int
	RateLimitWindow  time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		SiteName:      getEnv("SITE_NAME", "Seattle 1031 Exchange"),
		SiteBaseURL:   getEnv("SITE_BASE_URL", ""),
		RouteID:       getEnv("ROUTE_ID", "api/contact"),
		DefaultSource: getEnv("DEFAULT_SOURCE", "website"),

		WebhookURL:            getEnv("LEAD_WEBHOOK_URL", ""),
		WebhookMaxAttempts:    getEnvAsInt("LEAD_WEBHOOK_MAX_ATTEMPTS", 3),
		WebhookAttemptTimeout: getEnvAsDuration("LEAD_WEBHOOK_ATTEMPT_TIMEOUT", 20*time.Second),
		WebhookBackoffStep:    getEnvAsDuration("LEAD_WEBHOOK_BACKOFF_STEP", 250*time.Millisecond),

		CaptchaSecret:    getEnv("CAPTCHA_SECRET", ""),
		CaptchaSiteKey:   getEnv("CAPTCHA_SITE_KEY", ""),
		CaptchaVerifyURL: getEnv("CAPTCHA_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
		CaptchaTimeout:   getEnvAsDuration("CAPTCHA_TIMEOUT", 10*time.Second),

		EmailProvider:      strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress:   getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:      getEnv("EMAIL_FROM_NAME", "Seattle 1031 Exchange"),
		CustomerTemplateID: getEnv("CUSTOMER_TEMPLATE_ID", ""),
		InternalTemplateID: getEnv("INTERNAL_TEMPLATE_ID", ""),
		InternalRecipients: getEnvAsList("INTERNAL_RECIPIENTS", nil),
		NotifyTimeout:      getEnvAsDuration("NOTIFY_TIMEOUT", 15*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RateLimitBackend: strings.ToLower(strings.TrimSpace(getEnv("RATE_LIMIT_BACKEND", "memory"))),
		RateLimitBudget:  getEnvAsInt("RATE_LIMIT_BUDGET", 5),
		RateLimitWindow:  getEnvAsDuration("RATE_LIMIT_WINDOW", 60*time.Second),
		RedisAddr:        getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
	}
}

// Resolve applies global defaults and normalizations that should happen once
// at startup rather than inline at call sites. It returns the receiver after:
//   - appending a trailing slash to the webhook URL when missing (the
//     downstream automation endpoint redirects bare paths otherwise)
//   - filling an empty default source label
//   - clamping retry constants to sane minimums
func (c *Config) Resolve() *Config {
	if c.WebhookURL != "" && !strings.HasSuffix(c.WebhookURL, "/") {
		c.WebhookURL += "/"
	}
	if strings.TrimSpace(c.DefaultSource) == "" {
		c.DefaultSource = "website"
	}
	if c.WebhookMaxAttempts < 1 {
		c.WebhookMaxAttempts = 1
	}
	if c.WebhookBackoffStep <= 0 {
		c.WebhookBackoffStep = 250 * time.Millisecond
	}
	if c.RateLimitBudget < 1 {
		c.RateLimitBudget = 1
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = 60 * time.Second
	}
	return c
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
