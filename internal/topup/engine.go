// Package topup settles confirmed payments: it marks them completed, credits
// the payer and pays the referral bonus, exactly once per payment.
package topup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"energybot/internal/ledger"
	"energybot/internal/models"
)

// DefaultReferralPercent is the share of the credited amount paid to the referrer.
const DefaultReferralPercent = 0.1

// errAlreadySettled aborts the settlement transaction when another caller
// completed the payment first.
var errAlreadySettled = errors.New("payment already settled")

// ReferralError reports a failed referral payout. The payer's settlement
// it follows has been committed and is not affected.
type ReferralError struct {
	PaymentID  string
	ReferrerID int64
	Err        error
}

func (e *ReferralError) Error() string {
	return fmt.Sprintf("referral bonus for payment %s to user %d: %v", e.PaymentID, e.ReferrerID, e.Err)
}

func (e *ReferralError) Unwrap() error { return e.Err }

// ReferralBonus returns ceil(amount * percent).
func ReferralBonus(amount int64, percent float64) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	// Round away float noise before taking the ceiling: 1300*0.1 is 130.00000000000003.
	raw := math.Round(float64(amount)*percent*1e6) / 1e6
	return int64(math.Ceil(raw))
}

// Result describes the outcome of a settlement attempt.
type Result struct {
	Payment models.Payment
	// Settled is true only for the call that credited the payer.
	Settled bool
	// Bonus is the referral bonus paid by this call, if any.
	Bonus int64
}

// Engine is the reconciliation engine.
type Engine struct {
	store           ledger.Store
	payments        *ledger.Payments
	balance         *ledger.Balance
	referralPercent float64
	log             *slog.Logger
}

type Option func(*Engine)

// WithReferralPercent overrides DefaultReferralPercent.
func WithReferralPercent(p float64) Option {
	return func(e *Engine) { e.referralPercent = p }
}

func NewEngine(store ledger.Store, payments *ledger.Payments, balance *ledger.Balance, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		payments:        payments,
		balance:         balance,
		referralPercent: DefaultReferralPercent,
		log:             log.With("component", "topup"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessSuccessfulPayment settles a payment the gateway reported as
// succeeded. It is safe to call repeatedly and concurrently for the same
// payment: the status write is conditional, so only one caller's
// transaction can move it to completed and credit the balance.
//
// A non-nil *ReferralError is returned together with a settled Result when
// the payer was credited but the referral payout failed.
func (e *Engine) ProcessSuccessfulPayment(ctx context.Context, payment models.Payment) (Result, error) {
	log := e.log.With("payment_id", payment.ExternalPaymentID)
	if payment.Status == models.PaymentCompleted {
		log.InfoContext(ctx, "payment already completed")
		return Result{Payment: payment}, nil
	}
	if payment.Status == models.PaymentCanceled {
		return Result{Payment: payment}, fmt.Errorf("settle payment %s: %w", payment.ExternalPaymentID, ledger.ErrIllegalTransition)
	}

	owner, err := e.store.GetUser(ctx, payment.UserID)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			log.ErrorContext(ctx, "payment owner not found", "user_id", payment.UserID)
		}
		return Result{Payment: payment}, fmt.Errorf("settle payment %s: %w", payment.ExternalPaymentID, err)
	}

	var completed models.Payment
	err = e.store.InTx(ctx, func(tx ledger.Tx) error {
		p, changed, err := e.payments.Transition(ctx, tx, payment.ExternalPaymentID, models.PaymentCompleted, nil)
		if err != nil {
			return err
		}
		if !changed {
			completed = p
			return errAlreadySettled
		}
		completed = p
		if _, err := e.balance.Increase(ctx, tx, owner.ID, p.Amount, "topup "+p.ExternalPaymentID); err != nil {
			return err
		}
		return tx.AdvanceSegment(ctx, owner.ID, models.SegmentClient)
	})
	if errors.Is(err, errAlreadySettled) {
		log.InfoContext(ctx, "payment settled by another caller")
		return Result{Payment: completed}, nil
	}
	if err != nil {
		log.ErrorContext(ctx, "settlement rolled back", "error", err)
		return Result{Payment: payment}, fmt.Errorf("settle payment %s: %w", payment.ExternalPaymentID, err)
	}
	log.InfoContext(ctx, "payment settled", "user_id", owner.ID, "credits", completed.Amount)

	res := Result{Payment: completed, Settled: true}
	if !owner.ReferredBy.Valid {
		return res, nil
	}
	bonus, err := e.payReferral(ctx, completed, owner)
	res.Bonus = bonus
	return res, err
}

// ReplayReferral re-runs the referral payout of a completed payment. The
// (payment, referrer) uniqueness of bonus rows keeps it from paying twice.
func (e *Engine) ReplayReferral(ctx context.Context, externalID string) (int64, error) {
	payment, err := e.payments.GetByExternalID(ctx, externalID)
	if err != nil {
		return 0, err
	}
	if payment.Status != models.PaymentCompleted {
		return 0, fmt.Errorf("replay referral for %s in status %s: %w", externalID, payment.Status, ledger.ErrIllegalTransition)
	}
	owner, err := e.store.GetUser(ctx, payment.UserID)
	if err != nil {
		return 0, fmt.Errorf("replay referral for %s: %w", externalID, err)
	}
	if !owner.ReferredBy.Valid {
		return 0, nil
	}
	return e.payReferral(ctx, payment, owner)
}

func (e *Engine) payReferral(ctx context.Context, payment models.Payment, owner models.User) (int64, error) {
	referrerID := owner.ReferredBy.Int64
	bonus := ReferralBonus(payment.Amount, e.referralPercent)
	if bonus <= 0 {
		return 0, nil
	}
	log := e.log.With("payment_id", payment.ExternalPaymentID, "referrer_id", referrerID)

	paid := false
	err := e.store.InTx(ctx, func(tx ledger.Tx) error {
		inserted, err := tx.InsertReferralBonus(ctx, models.ReferralBonus{
			ReferrerUserID:     referrerID,
			ReferredUserID:     owner.ID,
			BonusType:          models.BonusTypeDeposit,
			Amount:             bonus,
			DepositRubAmount:   payment.RubAmount,
			DepositTokenAmount: payment.Amount,
			PayID:              sql.NullInt64{Int64: payment.ID, Valid: true},
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		if _, err := e.balance.Increase(ctx, tx, referrerID, bonus, "referral "+payment.ExternalPaymentID); err != nil {
			return err
		}
		paid = true
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "referral bonus failed", "bonus", bonus, "error", err)
		return 0, &ReferralError{PaymentID: payment.ExternalPaymentID, ReferrerID: referrerID, Err: err}
	}
	if !paid {
		log.InfoContext(ctx, "referral bonus already paid")
		return 0, nil
	}
	log.InfoContext(ctx, "referral bonus paid", "bonus", bonus)
	return bonus, nil
}
