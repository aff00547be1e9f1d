package ledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"energybot/internal/ledger"
	"energybot/internal/ledger/ledgertest"
	"energybot/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBalanceIncreaseDecrease(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	u := store.AddUser(models.User{TelegramID: 1, Balance: 10})
	b := ledger.NewBalance(discardLogger())

	got, err := b.Increase(ctx, store, u.ID, 5, "test")
	if err != nil || got != 15 {
		t.Fatalf("Increase = %d, %v, want 15, nil", got, err)
	}
	got, err = b.Decrease(ctx, store, u.ID, 15, "test")
	if err != nil || got != 0 {
		t.Fatalf("Decrease = %d, %v, want 0, nil", got, err)
	}
	if _, err := b.Decrease(ctx, store, u.ID, 1, "test"); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("Decrease below zero error = %v, want ErrInsufficientBalance", err)
	}
}

func TestBalanceRejectsNonPositive(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	u := store.AddUser(models.User{TelegramID: 1, Balance: 10})
	b := ledger.NewBalance(discardLogger())

	for _, amount := range []int64{0, -5} {
		if _, err := b.Increase(ctx, store, u.ID, amount, "test"); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Errorf("Increase(%d) error = %v, want ErrInvalidAmount", amount, err)
		}
		if _, err := b.Decrease(ctx, store, u.ID, amount, "test"); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Errorf("Decrease(%d) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
	if got, _ := store.User(u.ID); got.Balance != 10 {
		t.Errorf("balance = %d, want unchanged 10", got.Balance)
	}
}

func TestBalanceConcurrentDecreaseFloor(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	u := store.AddUser(models.User{TelegramID: 1, Balance: 100})
	b := ledger.NewBalance(discardLogger())

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Decrease(ctx, store, u.ID, 30, "race"); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 3 {
		t.Errorf("successful decreases = %d, want 3", ok.Load())
	}
	if got, _ := store.User(u.ID); got.Balance != 10 {
		t.Errorf("balance = %d, want 10", got.Balance)
	}
}

func TestBalanceDeferredCommit(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	u := store.AddUser(models.User{TelegramID: 1})
	b := ledger.NewBalance(discardLogger())
	boom := errors.New("boom")

	err := store.InTx(ctx, func(tx ledger.Tx) error {
		if _, err := b.Increase(ctx, tx, u.ID, 100, "tx"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx error = %v", err)
	}
	if got, _ := store.User(u.ID); got.Balance != 0 {
		t.Errorf("balance after rollback = %d, want 0", got.Balance)
	}
}

func TestPaymentsCreate(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	u := store.AddUser(models.User{TelegramID: 1})
	p := ledger.NewPayments(store, discardLogger())

	created, err := p.Create(ctx, u.ID, "ext-1", 550, 499)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != models.PaymentPending || created.Amount != 550 || created.RubAmount != 499 {
		t.Errorf("created = %+v", created)
	}
	if _, err := p.Create(ctx, u.ID, "ext-1", 550, 499); !errors.Is(err, ledger.ErrDuplicateExternalID) {
		t.Errorf("duplicate Create error = %v", err)
	}
	if _, err := p.Create(ctx, u.ID, "ext-2", 0, 499); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("zero credit Create error = %v", err)
	}
	if _, err := p.Create(ctx, u.ID, "  ", 1, 1); err == nil {
		t.Error("empty external id accepted")
	}

	pending, err := p.GetAllPending(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("GetAllPending = %v, %v", pending, err)
	}
	if _, err := p.GetByExternalID(ctx, "nope"); !errors.Is(err, ledger.ErrPaymentNotFound) {
		t.Errorf("GetByExternalID(nope) error = %v", err)
	}
}

func TestPaymentsTransitionStateMachine(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.New()
	u := store.AddUser(models.User{TelegramID: 1})
	p := ledger.NewPayments(store, discardLogger())
	if _, err := p.Create(ctx, u.ID, "ext", 100, 99); err != nil {
		t.Fatal(err)
	}

	_, changed, err := p.TransitionStatus(ctx, "ext", models.PaymentSucceeded, nil)
	if err != nil || !changed {
		t.Fatalf("pending->succeeded = %v, %v", changed, err)
	}
	_, changed, err = p.TransitionStatus(ctx, "ext", models.PaymentSucceeded, nil)
	if err != nil || changed {
		t.Errorf("succeeded->succeeded = %v, %v, want no-op", changed, err)
	}
	done, changed, err := p.TransitionStatus(ctx, "ext", models.PaymentCompleted, nil)
	if err != nil || !changed || !done.CompletedAt.Valid {
		t.Fatalf("succeeded->completed = %+v, %v, %v", done, changed, err)
	}

	for _, to := range []models.PaymentStatus{models.PaymentPending, models.PaymentSucceeded, models.PaymentCanceled} {
		t.Run("completed->"+string(to), func(t *testing.T) {
			got, changed, err := p.TransitionStatus(ctx, "ext", to, nil)
			if !errors.Is(err, ledger.ErrIllegalTransition) || changed {
				t.Errorf("error = %v, changed = %v, want ErrIllegalTransition", err, changed)
			}
			if got.Status == to {
				t.Errorf("status became %s", to)
			}
		})
	}

	stored, _ := store.Payment("ext")
	if stored.Status != models.PaymentCompleted || !stored.CompletedAt.Time.Equal(done.CompletedAt.Time) {
		t.Errorf("stored = %+v, want completed with the original completed_at", stored)
	}

	if _, _, err := p.TransitionStatus(ctx, "missing", models.PaymentCanceled, nil); !errors.Is(err, ledger.ErrPaymentNotFound) {
		t.Errorf("missing payment error = %v", err)
	}
	if _, _, err := p.TransitionStatus(ctx, "ext", models.PaymentStatus("refunded"), nil); !errors.Is(err, ledger.ErrIllegalTransition) {
		t.Errorf("unknown status error = %v", err)
	}
}
