// Package ingress feeds gateway payment confirmations into the settlement
// engine: the webhook listener, the pending-payment poller and the manual
// recheck all end up in Checker.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"energybot/internal/ledger"
	"energybot/internal/models"
	"energybot/internal/payments"
	"energybot/internal/topup"
)

// Outcome is what a check did to the payment.
type Outcome string

const (
	OutcomeSettled          Outcome = "settled"
	OutcomeAlreadyCompleted Outcome = "already_completed"
	OutcomeCanceled         Outcome = "canceled"
	OutcomePending          Outcome = "pending"
	OutcomeUnknown          Outcome = "unknown"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeNotFound         Outcome = "not_found"
)

// Gateway reports the provider-side status of a payment.
type Gateway interface {
	GetStatus(ctx context.Context, externalID string) (payments.PaymentInfo, error)
}

// Settler settles a payment the gateway confirmed.
type Settler interface {
	ProcessSuccessfulPayment(ctx context.Context, payment models.Payment) (topup.Result, error)
}

// Notifier tells users about settled payments.
type Notifier interface {
	PaymentSettled(ctx context.Context, res topup.Result)
}

// DefaultUnknownGrace is how long a payment the gateway has never heard of
// stays pending before it is canceled.
const DefaultUnknownGrace = 24 * time.Hour

// Checker routes a gateway status to the right ledger transition.
type Checker struct {
	payments     *ledger.Payments
	settler      Settler
	gateway      Gateway
	notifier     Notifier
	timeout      time.Duration
	unknownGrace time.Duration
	log          *slog.Logger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithUnknownGrace overrides DefaultUnknownGrace.
func WithUnknownGrace(d time.Duration) CheckerOption {
	return func(c *Checker) { c.unknownGrace = d }
}

func NewChecker(p *ledger.Payments, settler Settler, gateway Gateway, notifier Notifier, gatewayTimeout time.Duration, log *slog.Logger, opts ...CheckerOption) *Checker {
	c := &Checker{
		payments:     p,
		settler:      settler,
		gateway:      gateway,
		notifier:     notifier,
		timeout:      gatewayTimeout,
		unknownGrace: DefaultUnknownGrace,
		log:          log.With("component", "checker"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check asks the gateway for the payment's status and applies it. A failed
// or timed out gateway call yields OutcomeUnknown and leaves the payment as is.
func (c *Checker) Check(ctx context.Context, externalID string) (Outcome, error) {
	payment, err := c.payments.GetByExternalID(ctx, externalID)
	if errors.Is(err, ledger.ErrPaymentNotFound) {
		return OutcomeNotFound, err
	}
	if err != nil {
		return OutcomeUnknown, err
	}
	switch payment.Status {
	case models.PaymentCompleted:
		return OutcomeAlreadyCompleted, nil
	case models.PaymentCanceled:
		return OutcomeCanceled, nil
	}

	gctx, cancel := context.WithTimeout(ctx, c.timeout)
	info, err := c.gateway.GetStatus(gctx, externalID)
	cancel()
	if errors.Is(err, payments.ErrNotFound) {
		return c.unknownAtGateway(ctx, payment)
	}
	if err != nil {
		c.log.WarnContext(ctx, "gateway status unavailable", "payment_id", externalID, "error", err)
		return OutcomeUnknown, nil
	}
	return c.apply(ctx, payment, info.Status)
}

// unknownAtGateway handles a payment the gateway denies knowing. It stays
// pending through the grace period and is canceled after it.
func (c *Checker) unknownAtGateway(ctx context.Context, payment models.Payment) (Outcome, error) {
	age := time.Since(payment.CreatedAt)
	log := c.log.With("payment_id", payment.ExternalPaymentID, "age", age.Truncate(time.Second))
	if payment.Status != models.PaymentPending || age < c.unknownGrace {
		log.ErrorContext(ctx, "payment not found at gateway")
		return OutcomeUnknown, nil
	}
	log.ErrorContext(ctx, "payment not found at gateway, canceling")
	return c.apply(ctx, payment, payments.StatusCanceled)
}

// Apply handles a status pushed by the gateway.
func (c *Checker) Apply(ctx context.Context, externalID string, status payments.Status) (Outcome, error) {
	payment, err := c.payments.GetByExternalID(ctx, externalID)
	if errors.Is(err, ledger.ErrPaymentNotFound) {
		return OutcomeNotFound, err
	}
	if err != nil {
		return OutcomeUnknown, err
	}
	return c.apply(ctx, payment, status)
}

func (c *Checker) apply(ctx context.Context, payment models.Payment, status payments.Status) (Outcome, error) {
	log := c.log.With("payment_id", payment.ExternalPaymentID, "gateway_status", status)
	if payment.Status == models.PaymentCompleted {
		log.InfoContext(ctx, "payment already completed")
		return OutcomeAlreadyCompleted, nil
	}

	switch status {
	case payments.StatusSucceeded:
		return c.settle(ctx, payment, log)
	case payments.StatusCanceled:
		_, _, err := c.payments.TransitionStatus(ctx, payment.ExternalPaymentID, models.PaymentCanceled, nil)
		if errors.Is(err, ledger.ErrIllegalTransition) {
			log.WarnContext(ctx, "cancel ignored", "error", err)
			return OutcomeIgnored, nil
		}
		if err != nil {
			return OutcomeUnknown, err
		}
		return OutcomeCanceled, nil
	case payments.StatusPending:
		return OutcomePending, nil
	}
	return OutcomeIgnored, nil
}

func (c *Checker) settle(ctx context.Context, payment models.Payment, log *slog.Logger) (Outcome, error) {
	// succeeded is recorded first so a crash before crediting leaves a
	// visible recovery point.
	marked, _, err := c.payments.TransitionStatus(ctx, payment.ExternalPaymentID, models.PaymentSucceeded, nil)
	switch {
	case err == nil:
		payment = marked
	case errors.Is(err, ledger.ErrIllegalTransition) && marked.Status == models.PaymentCompleted:
		return OutcomeAlreadyCompleted, nil
	case errors.Is(err, ledger.ErrIllegalTransition) && marked.Status == models.PaymentCanceled:
		log.ErrorContext(ctx, "gateway reports success for a canceled payment")
		return OutcomeIgnored, nil
	default:
		return OutcomeUnknown, err
	}

	res, err := c.settler.ProcessSuccessfulPayment(ctx, payment)
	var refErr *topup.ReferralError
	if err != nil && !errors.As(err, &refErr) {
		return OutcomeUnknown, fmt.Errorf("settle %s: %w", payment.ExternalPaymentID, err)
	}
	if !res.Settled {
		return OutcomeAlreadyCompleted, nil
	}
	if c.notifier != nil {
		c.notifier.PaymentSettled(ctx, res)
	}
	return OutcomeSettled, nil
}
