package ledger

import "errors"

var (
	// ErrInvalidAmount is returned for non-positive balance deltas.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientBalance is returned when a decrease would drive the balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUserNotFound        = errors.New("user not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	// ErrDuplicateExternalID is returned when a payment with the same gateway id already exists.
	ErrDuplicateExternalID = errors.New("duplicate external payment id")
	// ErrIllegalTransition is returned when the payment state machine forbids a status change.
	ErrIllegalTransition = errors.New("illegal payment status transition")
)
