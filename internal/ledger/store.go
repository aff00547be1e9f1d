// Package ledger holds the storage contract of the energy ledger together
// with the balance and payment record primitives built on top of it.
package ledger

import (
	"context"
	"time"

	"energybot/internal/models"
)

// Tx is the set of ledger reads and writes available both directly on a
// Store, where every call commits on its own, and inside a unit of work
// opened with Store.InTx, where the enclosing transaction commits them.
type Tx interface {
	FindPaymentByExternalID(ctx context.Context, externalID string) (models.Payment, error)
	// UpdatePaymentStatus sets status to `to` only when the current status is
	// one of from. It reports whether a row was changed and returns it.
	// Entering completed with a nil completedAt uses the storage clock.
	UpdatePaymentStatus(ctx context.Context, externalID string, from []models.PaymentStatus, to models.PaymentStatus, completedAt *time.Time) (models.Payment, bool, error)

	GetUser(ctx context.Context, id int64) (models.User, error)
	IncreaseBalance(ctx context.Context, userID, amount int64) (int64, error)
	// ConditionalDecreaseBalance subtracts amount only if the balance covers
	// it, returning ErrInsufficientBalance otherwise.
	ConditionalDecreaseBalance(ctx context.Context, userID, amount int64) (int64, error)
	UpdateUserFields(ctx context.Context, userID int64, fields models.UserFields) error
	// AdvanceSegment moves the user to seg if their current segment is
	// below it. Banned users are never touched.
	AdvanceSegment(ctx context.Context, userID int64, seg models.Segment) error

	// InsertReferralBonus reports false when a bonus for the same
	// (payment, referrer) pair already exists.
	InsertReferralBonus(ctx context.Context, b models.ReferralBonus) (bool, error)
	// GrantUserBonus upserts a named bonus as deposited. It reports true only
	// for the call that moved it into the deposited state.
	GrantUserBonus(ctx context.Context, userID int64, name string, amount int64) (bool, error)
	InsertGenerationRecord(ctx context.Context, r models.GenerationRecord) error
}

// Store is the durable ledger.
type Store interface {
	Tx

	InsertPayment(ctx context.Context, p models.Payment) (models.Payment, error)
	ListPendingPayments(ctx context.Context) ([]models.Payment, error)
	// ListSucceededPayments returns payments the gateway confirmed but the
	// ledger has not credited yet.
	ListSucceededPayments(ctx context.Context) ([]models.Payment, error)
	GetUserByExternalID(ctx context.Context, telegramID int64) (models.User, error)

	// InTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
