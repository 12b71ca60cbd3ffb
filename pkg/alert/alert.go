package alert

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/freightdesk/billingsync/pkg/logger"
)

// Severity of an operator alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a message for the on-call operator.
type Alert struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Severity   Severity          `json:"severity"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// New builds an alert with a fresh id and the current time.
func New(kind string, severity Severity, message string, details map[string]string) Alert {
	return Alert{
		ID:         uuid.NewString(),
		Kind:       kind,
		Severity:   severity,
		Message:    message,
		Details:    details,
		OccurredAt: time.Now().UTC(),
	}
}

// Notifier delivers alerts to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, a Alert) error

func (f NotifierFunc) Notify(ctx context.Context, a Alert) error { return f(ctx, a) }

// LogNotifier writes alerts to the log at error level.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, a Alert) error {
	log := n.Log
	if log == nil {
		log = logger.Discard()
	}
	attrs := []any{
		slog.String("alert_id", a.ID),
		slog.String("alert_kind", a.Kind),
		slog.String("severity", string(a.Severity)),
	}
	for k, v := range a.Details {
		attrs = append(attrs, slog.String(k, v))
	}
	log.ErrorContext(ctx, a.Message, attrs...)
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
func Multi(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(ctx context.Context, a Alert) error {
		var errs []error
		for _, n := range notifiers {
			if n == nil {
				continue
			}
			if err := n.Notify(ctx, a); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
