package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// BalanceWriter is satisfied by both Store (immediate commit) and Tx
// (deferred commit), so the same operation composes into a larger unit of work.
type BalanceWriter interface {
	IncreaseBalance(ctx context.Context, userID, amount int64) (int64, error)
	ConditionalDecreaseBalance(ctx context.Context, userID, amount int64) (int64, error)
}

// Balance performs audited balance mutations.
type Balance struct {
	log *slog.Logger
}

func NewBalance(log *slog.Logger) *Balance {
	return &Balance{log: log.With("component", "balance")}
}

// Increase credits amount to the user and returns the new balance.
func (b *Balance) Increase(ctx context.Context, w BalanceWriter, userID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("increase balance of user %d by %d: %w", userID, amount, ErrInvalidAmount)
	}
	balance, err := w.IncreaseBalance(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("increase balance of user %d: %w", userID, err)
	}
	b.log.InfoContext(ctx, "balance increased",
		"user_id", userID, "delta", amount, "balance", balance, "reason", reason)
	return balance, nil
}

// Decrease debits amount from the user only if the balance covers it.
// The check and the write are a single conditional update in storage.
func (b *Balance) Decrease(ctx context.Context, w BalanceWriter, userID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("decrease balance of user %d by %d: %w", userID, amount, ErrInvalidAmount)
	}
	balance, err := w.ConditionalDecreaseBalance(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			b.log.InfoContext(ctx, "balance decrease rejected",
				"user_id", userID, "delta", -amount, "reason", reason)
		}
		return 0, fmt.Errorf("decrease balance of user %d: %w", userID, err)
	}
	b.log.InfoContext(ctx, "balance decreased",
		"user_id", userID, "delta", -amount, "balance", balance, "reason", reason)
	return balance, nil
}
