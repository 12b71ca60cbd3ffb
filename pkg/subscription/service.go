package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/freightdesk/billingsync/pkg/alert"
	"github.com/freightdesk/billingsync/pkg/backoff"
	"github.com/freightdesk/billingsync/pkg/broadcast"
	"github.com/freightdesk/billingsync/pkg/credential"
	"github.com/freightdesk/billingsync/pkg/logger"
)

// Recorder receives operational measurements. *metrics.Metrics satisfies it.
type Recorder interface {
	WebhookProcessed(processor, kind, outcome string, d time.Duration)
	CheckoutInitiated(plan, outcome string)
	PortalIssued(outcome string)
	ReconciliationFinished(outcome string)
	CustomerRaceLost()
	TransitionConflict()
}

type nopRecorder struct{}

func (nopRecorder) WebhookProcessed(string, string, string, time.Duration) {}
func (nopRecorder) CheckoutInitiated(string, string)                       {}
func (nopRecorder) PortalIssued(string)                                    {}
func (nopRecorder) ReconciliationFinished(string)                          {}
func (nopRecorder) CustomerRaceLost()                                      {}
func (nopRecorder) TransitionConflict()                                    {}

// Webhook outcomes.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// CheckoutInput is what a caller asks to buy. PriceReference is optional;
// when given it must match the catalog price for the plan and cycle.
type CheckoutInput struct {
	PlanID         string       `json:"plan_id"`
	PriceReference string       `json:"price_reference,omitempty"`
	Cycle          BillingCycle `json:"billing_cycle"`
}

// WebhookResult summarizes the handling of one delivery.
type WebhookResult struct {
	EventID string
	Kind    string
	Outcome string
	Reason  string
}

// Service implements checkout, portal, webhook processing and the
// reconciliation wait over a Store and a Processor.
type Service struct {
	store     Store
	processor Processor
	catalog   *Catalog
	deduper   Deduper
	notices   broadcast.Broadcaster[TransitionNotice]
	alerts    alert.Notifier
	metrics   Recorder
	log       *slog.Logger

	alertTimeout time.Duration
	retry        backoff.Strategy
	retries      int
	casAttempts  int
	successURL   string
	cancelURL    string
	portalReturn string
	waitOpts     []WaiterOption
	waiter       *Waiter
}

// NewService panics when a required dependency is nil so that wiring
// mistakes fail at startup.
func NewService(store Store, processor Processor, catalog *Catalog, opts ...ServiceOption) *Service {
	if store == nil {
		panic("subscription: Store is required")
	}
	if processor == nil {
		panic("subscription: Processor is required")
	}
	if catalog == nil {
		panic("subscription: Catalog is required")
	}

	s := &Service{
		store:     store,
		processor: processor,
		catalog:   catalog,
		deduper:   NewMemoryDeduper(0, 0),
		metrics:   nopRecorder{},
		log:       logger.Discard(),
		retry: backoff.Exponential{
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2,
			JitterFactor:    0.1,
		},
		retries:      3,
		casAttempts:  5,
		alertTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.alerts == nil {
		s.alerts = alert.LogNotifier{Log: s.log}
	}

	waitOpts := []WaiterOption{WithWaitLogger(s.log)}
	if s.notices != nil {
		waitOpts = append(waitOpts, WithWaitNotices(s.notices))
	}
	s.waiter = NewWaiter(s.read, append(waitOpts, s.waitOpts...)...)
	return s
}

// Checkout ensures the account has a processor customer and opens a hosted
// checkout for the requested plan.
func (s *Service) Checkout(ctx context.Context, caller credential.Credential, in CheckoutInput) (CheckoutSession, error) {
	session, err := s.checkout(ctx, caller, in)
	s.metrics.CheckoutInitiated(in.PlanID, outcomeLabel(err))
	return session, err
}

func (s *Service) checkout(ctx context.Context, caller credential.Credential, in CheckoutInput) (CheckoutSession, error) {
	if !caller.Valid() {
		return CheckoutSession{}, ErrUnauthenticated
	}

	price, err := s.catalog.Resolve(in.PlanID, in.Cycle)
	if err != nil {
		return CheckoutSession{}, err
	}
	if in.PriceReference != "" && in.PriceReference != price {
		return CheckoutSession{}, fmt.Errorf("%w: price %q does not belong to %s %s", ErrInvalidPlan, in.PriceReference, in.PlanID, in.Cycle)
	}

	log := s.log.With(logger.AccountID(caller.AccountID), logger.Processor(s.processor.Name()))

	customerID, err := s.ensureCustomer(ctx, caller, log)
	if err != nil {
		return CheckoutSession{}, err
	}

	var session CheckoutSession
	err = s.callProcessor(ctx, func(ctx context.Context) error {
		var err error
		session, err = s.processor.CreateCheckout(ctx, CheckoutRequest{
			AccountID:  caller.AccountID,
			CustomerID: customerID,
			PriceID:    price,
			PlanID:     in.PlanID,
			Cycle:      in.Cycle,
			SuccessURL: s.successURL,
			CancelURL:  s.cancelURL,
		})
		return err
	})
	if err != nil {
		log.WarnContext(ctx, "checkout creation failed", logger.Error(err))
		return CheckoutSession{}, err
	}

	log.InfoContext(ctx, "checkout opened",
		slog.String("plan_id", in.PlanID),
		slog.String("billing_cycle", string(in.Cycle)),
		slog.String("session_id", session.SessionID),
	)
	return session, nil
}

// ensureCustomer returns the persisted processor customer of the account,
// creating it when absent. Concurrent callers converge on the first
// persisted id.
func (s *Service) ensureCustomer(ctx context.Context, caller credential.Credential, log *slog.Logger) (string, error) {
	cur, err := s.read(ctx, caller.AccountID)
	switch {
	case err == nil && cur.CustomerID != "":
		return cur.CustomerID, nil
	case err != nil && !errors.Is(err, ErrSubscriptionNotFound):
		log.ErrorContext(ctx, "failed to read subscription", logger.Error(err))
		return "", err
	}

	var created string
	err = s.callProcessor(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.processor.CreateCustomer(ctx, CustomerRequest{
			AccountID:      caller.AccountID,
			Email:          caller.Email,
			IdempotencyKey: "customer:" + caller.AccountID,
		})
		return err
	})
	if err != nil {
		return "", err
	}

	persisted, err := s.store.EnsureCustomer(ctx, caller.AccountID, created)
	if err != nil {
		log.ErrorContext(ctx, "failed to persist processor customer",
			logger.CustomerID(created),
			logger.Error(err),
		)
		return "", errors.Join(ErrStoreWriteFailed, err)
	}
	if persisted != created {
		s.metrics.CustomerRaceLost()
		log.WarnContext(ctx, "concurrent checkout persisted another customer; orphaned processor customer",
			logger.CustomerID(persisted),
			slog.String("orphan_customer_id", created),
		)
	}
	return persisted, nil
}

// Portal opens a self-service management session for the account.
func (s *Service) Portal(ctx context.Context, caller credential.Credential) (PortalSession, error) {
	session, err := s.portal(ctx, caller)
	s.metrics.PortalIssued(outcomeLabel(err))
	return session, err
}

func (s *Service) portal(ctx context.Context, caller credential.Credential) (PortalSession, error) {
	if !caller.Valid() {
		return PortalSession{}, ErrUnauthenticated
	}

	cur, err := s.read(ctx, caller.AccountID)
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
		return PortalSession{}, ErrNoSubscription
	case err != nil:
		return PortalSession{}, err
	case cur.CustomerID == "":
		return PortalSession{}, ErrNoSubscription
	}

	var session PortalSession
	err = s.callProcessor(ctx, func(ctx context.Context) error {
		var err error
		session, err = s.processor.CreatePortal(ctx, PortalRequest{
			CustomerID:     cur.CustomerID,
			SubscriptionID: cur.SubscriptionID,
			ReturnURL:      s.portalReturn,
		})
		return err
	})
	if err != nil {
		s.log.WarnContext(ctx, "portal session failed", logger.AccountID(caller.AccountID), logger.Error(err))
		return PortalSession{}, err
	}
	return session, nil
}

// Subscription returns the caller's record.
func (s *Service) Subscription(ctx context.Context, caller credential.Credential) (Subscription, error) {
	if !caller.Valid() {
		return Subscription{}, ErrUnauthenticated
	}
	return s.read(ctx, caller.AccountID)
}

// read returns the account's record. Failures other than a missing record
// are ErrStoreReadFailed.
func (s *Service) read(ctx context.Context, accountID string) (Subscription, error) {
	sub, err := s.store.Get(ctx, accountID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return Subscription{}, errors.Join(ErrStoreReadFailed, err)
	}
	return sub, err
}

// AwaitActive waits, within a bound, for the caller's record to become
// active-like after a checkout redirect.
func (s *Service) AwaitActive(ctx context.Context, caller credential.Credential) (Reconciliation, error) {
	if !caller.Valid() {
		return Reconciliation{}, ErrUnauthenticated
	}
	res, err := s.waiter.Await(ctx, caller.AccountID)
	switch {
	case err != nil:
		s.metrics.ReconciliationFinished("error")
	case res.Pending:
		s.metrics.ReconciliationFinished("pending")
	default:
		s.metrics.ReconciliationFinished("active")
	}
	return res, err
}

// HandleWebhook verifies, deduplicates and applies one processor delivery.
// Errors for which IsRetryable holds must be answered with a status that
// makes the processor redeliver.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, header http.Header) (WebhookResult, error) {
	start := time.Now()
	res, err := s.handleWebhook(ctx, payload, header)
	if err != nil {
		res.Outcome = OutcomeRejected
		if IsRetryable(err) {
			res.Outcome = OutcomeFailed
		}
	}
	s.metrics.WebhookProcessed(s.processor.Name(), res.Kind, res.Outcome, time.Since(start))
	return res, err
}

func (s *Service) handleWebhook(ctx context.Context, payload []byte, header http.Header) (WebhookResult, error) {
	res := WebhookResult{Kind: "unknown"}

	ev, err := s.processor.DecodeEvent(ctx, payload, header)
	if err != nil {
		s.log.WarnContext(ctx, "webhook rejected", logger.Processor(s.processor.Name()), logger.Error(err))
		return res, err
	}

	meta := ev.EventMeta()
	res.EventID, res.Kind = meta.ID, Kind(ev)
	log := s.log.With(
		logger.Processor(meta.Processor),
		logger.EventID(meta.ID),
		logger.EventType(meta.Type),
		logger.AccountID(meta.AccountID),
	)

	if _, ok := ev.(Unrecognized); ok {
		log.DebugContext(ctx, "ignoring unrecognized event")
		res.Outcome, res.Reason = OutcomeIgnored, ReasonIgnored
		return res, nil
	}
	if meta.AccountID == "" {
		s.reportUnattributable(ctx, log, meta)
		return res, ErrUnattributable
	}

	lease, state, err := s.deduper.Claim(ctx, EventKey(meta))
	if err != nil {
		log.ErrorContext(ctx, "event dedupe unavailable", logger.Error(err))
		return res, errors.Join(ErrStoreWriteFailed, err)
	}
	switch state {
	case ClaimDone:
		log.DebugContext(ctx, "duplicate delivery")
		res.Outcome, res.Reason = OutcomeDuplicate, OutcomeDuplicate
		return res, nil
	case ClaimInFlight:
		return res, ErrEventInFlight
	}

	dec, err := s.apply(ctx, log, ev)
	if err != nil {
		if rerr := s.deduper.Release(ctx, lease); rerr != nil {
			log.WarnContext(ctx, "failed to release event claim", logger.Error(rerr))
		}
		return res, err
	}
	if err := s.deduper.Complete(ctx, lease); err != nil {
		// The write is durable; a redelivery re-applies as a no-op.
		log.WarnContext(ctx, "failed to mark event processed", logger.Error(err))
	}

	res.Reason = dec.Reason
	res.Outcome = OutcomeIgnored
	if dec.Changed {
		res.Outcome = OutcomeApplied
	}
	return res, nil
}

// apply runs the transition under optimistic concurrency control.
func (s *Service) apply(ctx context.Context, log *slog.Logger, ev Event) (Decision, error) {
	meta := ev.EventMeta()

	for attempt := 1; attempt <= s.casAttempts; attempt++ {
		var current *Subscription
		cur, err := s.read(ctx, meta.AccountID)
		switch {
		case err == nil:
			current = &cur
		case !errors.Is(err, ErrSubscriptionNotFound):
			log.ErrorContext(ctx, "failed to read subscription", logger.Error(err))
			return Decision{}, err
		}

		next, dec, err := Transition(current, ev)
		if err != nil {
			if errors.Is(err, ErrRecordNotReady) {
				log.InfoContext(ctx, "no record for event yet; asking for redelivery")
			} else {
				log.ErrorContext(ctx, "event rejected by transition rules", logger.Error(err))
			}
			return Decision{}, err
		}
		if !dec.Changed {
			log.InfoContext(ctx, "event applied without change", slog.String("reason", dec.Reason))
			return dec, nil
		}

		var stored Subscription
		if current == nil {
			next.AccountID = meta.AccountID
			stored, err = s.store.Insert(ctx, next)
		} else {
			stored, err = s.store.CompareAndSwap(ctx, next, current.Revision)
		}
		switch {
		case errors.Is(err, ErrRevisionConflict):
			s.metrics.TransitionConflict()
			log.DebugContext(ctx, "revision conflict; retrying", logger.Attempt(attempt))
			continue
		case errors.Is(err, ErrInvariantViolation):
			log.ErrorContext(ctx, "store rejected transition", logger.Error(err))
			return Decision{}, err
		case err != nil:
			log.ErrorContext(ctx, "failed to write subscription", logger.Error(err))
			return Decision{}, errors.Join(ErrStoreWriteFailed, err)
		}

		log.InfoContext(ctx, "subscription transitioned",
			logger.Status(string(stored.Status)),
			slog.String("plan_id", stored.PlanID),
			slog.String("reason", dec.Reason),
			slog.Int64("revision", stored.Revision),
		)
		s.announce(ctx, log, stored)
		return dec, nil
	}

	log.ErrorContext(ctx, "gave up after repeated revision conflicts", logger.Attempt(s.casAttempts))
	return Decision{}, errors.Join(ErrStoreWriteFailed, ErrRevisionConflict)
}

func (s *Service) announce(ctx context.Context, log *slog.Logger, sub Subscription) {
	if s.notices == nil {
		return
	}
	notice := TransitionNotice{AccountID: sub.AccountID, Status: sub.Status, Revision: sub.Revision}
	if err := s.notices.Broadcast(ctx, broadcast.Message[TransitionNotice]{Data: notice}); err != nil {
		log.WarnContext(ctx, "failed to announce transition", logger.Error(err))
	}
}

func (s *Service) reportUnattributable(ctx context.Context, log *slog.Logger, meta Meta) {
	log.ErrorContext(ctx, "webhook event has no account attribution")
	a := alert.New("billing.unattributable_event", alert.SeverityCritical,
		"processor event could not be attributed to an account",
		map[string]string{
			"processor":   meta.Processor,
			"event_id":    meta.ID,
			"event_type":  meta.Type,
			"occurred_at": meta.OccurredAt.UTC().Format(time.RFC3339),
		},
	)
	// The delivery is answered only after the alert, so a slow endpoint must
	// not hold it open; a canceled delivery still alerts.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.alertTimeout)
	defer cancel()
	if err := s.alerts.Notify(actx, a); err != nil {
		log.ErrorContext(ctx, "failed to alert operator", logger.Error(err))
	}
}

// callProcessor retries fn only while the processor reports itself
// unavailable.
func (s *Service) callProcessor(ctx context.Context, fn func(ctx context.Context) error) error {
	return backoff.Retry(ctx, s.retry, s.retries, func(err error) bool {
		return errors.Is(err, ErrProcessorUnavailable)
	}, fn)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInvalidPlan):
		return "invalid_plan"
	case errors.Is(err, ErrNoSubscription):
		return "no_subscription"
	case errors.Is(err, ErrProcessorUnavailable):
		return "processor_unavailable"
	default:
		return "error"
	}
}
