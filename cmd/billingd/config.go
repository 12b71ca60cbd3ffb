package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/freightdesk/billingsync/pkg/alert"
	"github.com/freightdesk/billingsync/pkg/config"
	"github.com/freightdesk/billingsync/pkg/httpserver"
	"github.com/freightdesk/billingsync/pkg/pg"
	"github.com/freightdesk/billingsync/pkg/redis"
	"github.com/freightdesk/billingsync/pkg/subscription"
)

const (
	backendMemory = "memory"
	backendRedis  = "redis"
)

var errInvalidConfig = errors.New("billingd: invalid configuration")

// appConfig holds the settings owned by the binary itself.
type appConfig struct {
	Env             string        `env:"APP_ENV" envDefault:"development"`
	Processor       string        `env:"BILLING_PROCESSOR" envDefault:"stripe"`
	CatalogPath     string        `env:"BILLING_CATALOG_PATH"`
	SuccessURL      string        `env:"BILLING_SUCCESS_URL,required"`
	CancelURL       string        `env:"BILLING_CANCEL_URL,required"`
	PortalReturnURL string        `env:"BILLING_PORTAL_RETURN_URL,required"`
	DedupeRetention time.Duration `env:"BILLING_DEDUPE_RETENTION" envDefault:"168h"`
	CASAttempts     int           `env:"BILLING_CAS_ATTEMPTS" envDefault:"5"`
	JWTSecret       string        `env:"AUTH_JWT_SECRET,required"`
	JWTIssuer       string        `env:"AUTH_JWT_ISSUER" envDefault:"billingsync"`
	NotifyBackend   string        `env:"NOTIFY_BACKEND" envDefault:"redis"`
	ReadyTimeout    time.Duration `env:"HEALTH_READY_TIMEOUT" envDefault:"2s"`
}

// settings is the composed configuration of every component.
type settings struct {
	App    appConfig
	PG     pg.Config
	Redis  redis.Config
	HTTP   httpserver.Config
	Alert  alert.Config
	Stripe subscription.StripeConfig
	Paddle subscription.PaddleConfig
}

func loadSettings() (settings, error) {
	var s settings
	if err := config.Load(&s.App); err != nil {
		return s, err
	}
	if err := config.Load(&s.PG); err != nil {
		return s, err
	}
	if err := config.Load(&s.Redis); err != nil {
		return s, err
	}
	if err := config.Load(&s.HTTP); err != nil {
		return s, err
	}
	if err := config.Load(&s.Alert); err != nil {
		return s, err
	}
	switch s.App.Processor {
	case "stripe":
		if err := config.Load(&s.Stripe); err != nil {
			return s, err
		}
	case "paddle":
		if err := config.Load(&s.Paddle); err != nil {
			return s, err
		}
	default:
		return s, fmt.Errorf("%w: %w: BILLING_PROCESSOR=%q", errInvalidConfig, subscription.ErrUnknownProcessor, s.App.Processor)
	}
	if s.App.NotifyBackend != backendMemory && s.App.NotifyBackend != backendRedis {
		return s, fmt.Errorf("%w: NOTIFY_BACKEND=%q", errInvalidConfig, s.App.NotifyBackend)
	}
	return s, nil
}
