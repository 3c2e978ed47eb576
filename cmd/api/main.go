package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/rankandrent/exchange-intake/cmd/mainconfig"
	"github.com/rankandrent/exchange-intake/internal/api/router"
	"github.com/rankandrent/exchange-intake/internal/captcha"
	appconfig "github.com/rankandrent/exchange-intake/internal/config"
	"github.com/rankandrent/exchange-intake/internal/intake"
	"github.com/rankandrent/exchange-intake/internal/notify"
	"github.com/rankandrent/exchange-intake/internal/observability/metrics"
	"github.com/rankandrent/exchange-intake/internal/ratelimit"
	"github.com/rankandrent/exchange-intake/internal/relay"
	"github.com/rankandrent/exchange-intake/pkg/logging"
)

func main() {
	// Local development convenience; ignored when no .env exists.
	_ = godotenv.Load()

	cfg := appconfig.Load().Resolve()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting lead intake API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	intakeMetrics := metrics.NewIntakeMetrics(prometheus.DefaultRegisterer)

	// Rate-limit window store: in-process by default, Redis when instances
	// need to share one budget.
	var store ratelimit.Store
	switch cfg.RateLimitBackend {
	case "redis":
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		store = ratelimit.NewRedisStore(redis.NewClient(opts))
		logger.Info("rate limiting backed by redis", "addr", cfg.RedisAddr)
	default:
		store = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.NewLimiter(store, cfg.RateLimitBudget, cfg.RateLimitWindow, logger)

	verifier := captcha.New(captcha.Config{
		Secret:    cfg.CaptchaSecret,
		VerifyURL: cfg.CaptchaVerifyURL,
		Timeout:   cfg.CaptchaTimeout,
		Logger:    logger,
	})

	leadRelay := relay.New(relay.Config{
		URL:            cfg.WebhookURL,
		MaxAttempts:    cfg.WebhookMaxAttempts,
		AttemptTimeout: cfg.WebhookAttemptTimeout,
		BackoffStep:    cfg.WebhookBackoffStep,
		Logger:         logger,
		Metrics:        intakeMetrics,
	})
	if !leadRelay.Configured() {
		logger.Error("LEAD_WEBHOOK_URL is not set; submissions will be rejected until it is configured")
	}

	sender := buildEmailSender(cfg, logger)
	dispatcher := notify.NewDispatcher(sender, notify.DispatcherConfig{
		CustomerTemplateID: cfg.CustomerTemplateID,
		InternalTemplateID: cfg.InternalTemplateID,
		InternalRecipients: cfg.InternalRecipients,
	}, intakeMetrics, logger)

	intakeHandler := intake.NewHandler(intake.Config{
		Limiter:       limiter,
		Captcha:       verifier,
		Relay:         leadRelay,
		Notifier:      dispatcher,
		Brand:         notify.Brand{SiteName: cfg.SiteName, SiteURL: cfg.SiteBaseURL},
		Site:          cfg.SiteName,
		Route:         cfg.RouteID,
		DefaultSource: cfg.DefaultSource,
		NotifyTimeout: cfg.NotifyTimeout,
		Logger:        logger,
		Metrics:       intakeMetrics,
	})

	r := router.New(&router.Config{
		Logger:             logger,
		IntakeHandler:      intakeHandler,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // relay retries can hold a request open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildEmailSender picks the notification provider. A stub is returned when
// the configured provider has no credentials so the pipeline keeps serving;
// the dispatcher logs the degradation on first send.
func buildEmailSender(cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "ses":
		awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
		if err != nil {
			logger.Error("failed to load AWS config, falling back to stub email sender", "error", err)
			return notify.NewStubEmailSender(logger)
		}
		if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); s != nil {
			return s
		}
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); s != nil {
			return s
		}
		logger.Error("SENDGRID_API_KEY is not set, falling back to stub email sender")
	}
	return notify.NewStubEmailSender(logger)
}
