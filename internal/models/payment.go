package models

import (
	"database/sql"
	"time"
)

// PaymentStatus is the lifecycle state of a Payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentCanceled  PaymentStatus = "canceled"
	PaymentCompleted PaymentStatus = "completed"
)

// paymentTransitions lists for each target status the statuses it may be
// entered from. succeeded means the gateway confirmed the money; completed
// means the ledger has been credited.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentSucceeded: {PaymentPending},
	PaymentCanceled:  {PaymentPending},
	PaymentCompleted: {PaymentPending, PaymentSucceeded},
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentSucceeded, PaymentCanceled, PaymentCompleted:
		return true
	}
	return false
}

// TransitionSources returns the statuses from which to can be entered.
// The result is nil for pending and unknown statuses.
func TransitionSources(to PaymentStatus) []PaymentStatus {
	src := paymentTransitions[to]
	out := make([]PaymentStatus, len(src))
	copy(out, src)
	return out
}

// Payment is a checkout initiated through the payment gateway.
type Payment struct {
	ID                int64
	UserID            int64
	ExternalPaymentID string
	Amount            int64 // energy credits granted on success
	RubAmount         int64 // currency units charged
	Status            PaymentStatus
	CreatedAt         time.Time
	CompletedAt       sql.NullTime
}

// PaymentStats aggregates payment counts per status.
type PaymentStats struct {
	Total       int
	ByStatus    map[PaymentStatus]int
	RubReceived int64
}
