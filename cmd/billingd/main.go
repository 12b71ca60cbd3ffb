// Command billingd serves the billing API: checkout and portal sessions,
// subscription reads and processor webhooks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/freightdesk/billingsync/migrations"
	"github.com/freightdesk/billingsync/modules/billing"
	"github.com/freightdesk/billingsync/pkg/alert"
	"github.com/freightdesk/billingsync/pkg/broadcast"
	"github.com/freightdesk/billingsync/pkg/credential"
	"github.com/freightdesk/billingsync/pkg/httpserver"
	"github.com/freightdesk/billingsync/pkg/logger"
	"github.com/freightdesk/billingsync/pkg/metrics"
	"github.com/freightdesk/billingsync/pkg/pg"
	"github.com/freightdesk/billingsync/pkg/redis"
	"github.com/freightdesk/billingsync/pkg/requestid"
	"github.com/freightdesk/billingsync/pkg/subscription"
)

const (
	serviceName   = "billingd"
	noticeChannel = "billing:transitions"
)

func main() {
	cfg, err := loadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logger.New(
		logger.WithEnvironment(cfg.App.Env, serviceName),
		logger.WithContextExtractors(requestid.LoggerExtractor(), credential.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("billingd stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg settings, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, cfg.PG, migrations.FS, log); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	catalog, err := loadCatalog(ctx, cfg.App.CatalogPath)
	if err != nil {
		return err
	}

	processor, err := newProcessor(cfg, catalog)
	if err != nil {
		return err
	}

	alerts, err := newAlerts(cfg.Alert, log)
	if err != nil {
		return err
	}

	var notices broadcast.Broadcaster[subscription.TransitionNotice]
	switch cfg.App.NotifyBackend {
	case backendRedis:
		notices = broadcast.NewRedisBroadcaster[subscription.TransitionNotice](rdb, noticeChannel,
			broadcast.WithBufferSize(32),
			broadcast.WithLogger(log),
		)
	default:
		notices = broadcast.NewMemoryBroadcaster[subscription.TransitionNotice](32)
	}
	defer notices.Close()

	creds, err := credential.New(cfg.App.JWTSecret, credential.WithIssuer(cfg.App.JWTIssuer))
	if err != nil {
		return err
	}

	m := metrics.New()
	svc := subscription.NewService(
		subscription.NewPGStore(pool),
		processor,
		catalog,
		subscription.WithLogger(log),
		subscription.WithDeduper(subscription.NewRedisDeduper(rdb, subscription.DefaultDedupeLease, cfg.App.DedupeRetention)),
		subscription.WithNotices(notices),
		subscription.WithAlerts(alerts),
		subscription.WithRecorder(m),
		subscription.WithCASAttempts(cfg.App.CASAttempts),
		subscription.WithRedirectURLs(cfg.App.SuccessURL, cfg.App.CancelURL, cfg.App.PortalReturnURL),
	)

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	r.Mount("/billing", billing.Router(svc, creds, billing.WithLogger(log)))
	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(log, cfg.App.ReadyTimeout, map[string]httpserver.Check{
		"postgres": pg.Healthcheck(pool),
		"redis":    redis.Healthcheck(rdb),
	}))
	r.Method(http.MethodGet, "/metrics", m.Handler())

	log.InfoContext(ctx, "billing service configured",
		logger.Processor(processor.Name()),
		slog.String("notify_backend", cfg.App.NotifyBackend),
		slog.Duration("dedupe_retention", cfg.App.DedupeRetention),
	)

	return httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log)).Run(ctx, r)
}

func loadCatalog(ctx context.Context, path string) (*subscription.Catalog, error) {
	if path == "" {
		return subscription.LoadCatalog(ctx, subscription.DefaultPlans())
	}
	return subscription.LoadCatalog(ctx, subscription.YAMLFile(path))
}

func newProcessor(cfg settings, catalog *subscription.Catalog) (subscription.Processor, error) {
	switch cfg.App.Processor {
	case "paddle":
		return subscription.NewPaddleProcessor(cfg.Paddle, catalog)
	case "stripe":
		return subscription.NewStripeProcessor(cfg.Stripe, catalog)
	default:
		return nil, fmt.Errorf("%w: %q", subscription.ErrUnknownProcessor, cfg.App.Processor)
	}
}

// newAlerts always logs alerts and also posts them when an operator
// endpoint is configured.
func newAlerts(cfg alert.Config, log *slog.Logger) (alert.Notifier, error) {
	logged := alert.LogNotifier{Log: log}
	if cfg.URL == "" {
		return logged, nil
	}
	hook, err := alert.NewWebhookNotifier(cfg)
	if err != nil {
		return nil, err
	}
	return alert.Multi(logged, hook), nil
}
