package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"energybot/internal/models"
)

// Payments manages Payment records and enforces the status state machine:
// pending → succeeded → completed, pending → completed and pending → canceled.
type Payments struct {
	store Store
	log   *slog.Logger
}

func NewPayments(store Store, log *slog.Logger) *Payments {
	return &Payments{store: store, log: log.With("component", "payments")}
}

// Create stores a new pending payment.
func (p *Payments) Create(ctx context.Context, userID int64, externalID string, credits, rub int64) (models.Payment, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return models.Payment{}, errors.New("create payment: empty external id")
	}
	if credits <= 0 || rub <= 0 {
		return models.Payment{}, fmt.Errorf("create payment %s: %w", externalID, ErrInvalidAmount)
	}
	payment, err := p.store.InsertPayment(ctx, models.Payment{
		UserID:            userID,
		ExternalPaymentID: externalID,
		Amount:            credits,
		RubAmount:         rub,
		Status:            models.PaymentPending,
	})
	if err != nil {
		return models.Payment{}, fmt.Errorf("create payment %s: %w", externalID, err)
	}
	p.log.InfoContext(ctx, "payment created",
		"payment_id", externalID, "user_id", userID, "credits", credits, "rub", rub)
	return payment, nil
}

// GetByExternalID looks a payment up by its gateway id.
func (p *Payments) GetByExternalID(ctx context.Context, externalID string) (models.Payment, error) {
	payment, err := p.store.FindPaymentByExternalID(ctx, externalID)
	if err != nil {
		return models.Payment{}, fmt.Errorf("get payment %s: %w", externalID, err)
	}
	return payment, nil
}

// GetAllPending returns every payment still waiting for the gateway.
func (p *Payments) GetAllPending(ctx context.Context) ([]models.Payment, error) {
	payments, err := p.store.ListPendingPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	return payments, nil
}

// GetAllSucceeded returns payments stuck between the gateway confirmation
// and settlement.
func (p *Payments) GetAllSucceeded(ctx context.Context) ([]models.Payment, error) {
	payments, err := p.store.ListSucceededPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list succeeded payments: %w", err)
	}
	return payments, nil
}

// TransitionStatus moves the payment to `to`, committing immediately.
func (p *Payments) TransitionStatus(ctx context.Context, externalID string, to models.PaymentStatus, completedAt *time.Time) (models.Payment, bool, error) {
	return p.Transition(ctx, p.store, externalID, to, completedAt)
}

// Transition moves the payment to `to` through q, which may be a unit of
// work. The write is a compare-and-swap on the legal source statuses, so of
// several concurrent callers only one observes changed == true. A payment
// already in `to` is a no-op; any other rejected edge is ErrIllegalTransition.
func (p *Payments) Transition(ctx context.Context, q Tx, externalID string, to models.PaymentStatus, completedAt *time.Time) (models.Payment, bool, error) {
	if !to.Valid() {
		return models.Payment{}, false, fmt.Errorf("payment %s to unknown status %q: %w", externalID, to, ErrIllegalTransition)
	}
	from := models.TransitionSources(to)
	if len(from) == 0 {
		return models.Payment{}, false, fmt.Errorf("payment %s to %q: %w", externalID, to, ErrIllegalTransition)
	}
	if to != models.PaymentCompleted {
		completedAt = nil
	}

	payment, changed, err := q.UpdatePaymentStatus(ctx, externalID, from, to, completedAt)
	if err != nil {
		return models.Payment{}, false, fmt.Errorf("update payment %s status: %w", externalID, err)
	}
	if changed {
		p.log.InfoContext(ctx, "payment status changed", "payment_id", externalID, "status", to)
		return payment, true, nil
	}

	current, err := q.FindPaymentByExternalID(ctx, externalID)
	if err != nil {
		return models.Payment{}, false, fmt.Errorf("reload payment %s: %w", externalID, err)
	}
	if current.Status == to {
		return current, false, nil
	}
	return current, false, fmt.Errorf("payment %s %s -> %s: %w", externalID, current.Status, to, ErrIllegalTransition)
}
