package subscription

import (
	"log/slog"
	"time"

	"github.com/freightdesk/billingsync/pkg/alert"
	"github.com/freightdesk/billingsync/pkg/backoff"
	"github.com/freightdesk/billingsync/pkg/broadcast"
)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l.With(slog.String("component", "subscription"))
		}
	}
}

// WithDeduper replaces the in-memory event deduper. Deployments with more
// than one replica need a shared one.
func WithDeduper(d Deduper) ServiceOption {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithNotices publishes a TransitionNotice after every write and lets the
// reconciliation wait listen to them.
func WithNotices(b broadcast.Broadcaster[TransitionNotice]) ServiceOption {
	return func(s *Service) { s.notices = b }
}

// WithAlerts sets where unattributable events are reported. Alerts are
// logged when unset.
func WithAlerts(n alert.Notifier) ServiceOption {
	return func(s *Service) { s.alerts = n }
}

// WithAlertTimeout bounds how long a webhook response waits on the operator
// alert (default 2s).
func WithAlertTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.alertTimeout = d
		}
	}
}

func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithProcessorRetry sets the backoff used for calls that fail with
// ErrProcessorUnavailable.
func WithProcessorRetry(strategy backoff.Strategy, retries int) ServiceOption {
	return func(s *Service) {
		if strategy != nil {
			s.retry = strategy
		}
		if retries >= 0 {
			s.retries = retries
		}
	}
}

// WithCASAttempts bounds optimistic write attempts per webhook.
func WithCASAttempts(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.casAttempts = n
		}
	}
}

// WithRedirectURLs sets where the processor sends the browser after a
// checkout and the return target of portal sessions.
func WithRedirectURLs(success, cancel, portalReturn string) ServiceOption {
	return func(s *Service) {
		s.successURL, s.cancelURL, s.portalReturn = success, cancel, portalReturn
	}
}

// WithReconcileSchedule overrides the reconciliation wait bound.
func WithReconcileSchedule(rereads int, schedule backoff.Strategy) ServiceOption {
	return func(s *Service) {
		s.waitOpts = append(s.waitOpts, WithWaitSchedule(rereads, schedule))
	}
}
