package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"energybot/internal/ledger"
	"energybot/internal/models"
)

// openTestStore connects to TEST_DATABASE_URL. These tests talk to a real
// PostgreSQL and are skipped when it is not configured.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestUser(t *testing.T, s *Store) models.User {
	t.Helper()
	u, created, err := s.InsertUser(context.Background(), models.User{
		TelegramID: time.Now().UnixNano(),
		Username:   sql.NullString{String: "tester", Valid: true},
	})
	if err != nil {
		t.Fatalf("InsertUser: %v", err)
	}
	if !created {
		t.Fatal("expected a new user")
	}
	return u
}

func TestStorePaymentLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)
	ext := fmt.Sprintf("pay-%d", time.Now().UnixNano())

	p, err := s.InsertPayment(ctx, models.Payment{UserID: u.ID, ExternalPaymentID: ext, Amount: 550, RubAmount: 499})
	if err != nil {
		t.Fatalf("InsertPayment: %v", err)
	}
	if p.Status != models.PaymentPending {
		t.Errorf("status = %s, want pending", p.Status)
	}

	if _, err := s.InsertPayment(ctx, models.Payment{UserID: u.ID, ExternalPaymentID: ext, Amount: 1, RubAmount: 1}); !errors.Is(err, ledger.ErrDuplicateExternalID) {
		t.Errorf("duplicate insert error = %v, want ErrDuplicateExternalID", err)
	}

	done, changed, err := s.UpdatePaymentStatus(ctx, ext,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentSucceeded}, models.PaymentCompleted, nil)
	if err != nil || !changed {
		t.Fatalf("UpdatePaymentStatus = %v, %v", changed, err)
	}
	if !done.CompletedAt.Valid {
		t.Error("completed_at not set")
	}

	_, changed, err = s.UpdatePaymentStatus(ctx, ext,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentSucceeded}, models.PaymentCompleted, nil)
	if err != nil || changed {
		t.Errorf("second UpdatePaymentStatus = %v, %v, want false, nil", changed, err)
	}

	if _, err := s.FindPaymentByExternalID(ctx, "missing-"+ext); !errors.Is(err, ledger.ErrPaymentNotFound) {
		t.Errorf("FindPaymentByExternalID(missing) error = %v", err)
	}
}

func TestStoreConcurrentDecrease(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)
	if _, err := s.IncreaseBalance(ctx, u.ID, 100); err != nil {
		t.Fatalf("IncreaseBalance: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConditionalDecreaseBalance(ctx, u.ID, 30); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 3 {
		t.Errorf("successful decreases = %d, want 3", ok)
	}
	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Balance != 10 {
		t.Errorf("balance = %d, want 10", got.Balance)
	}
}

func TestStoreReferralBonusUnique(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	referrer := newTestUser(t, s)
	referred := newTestUser(t, s)
	p, err := s.InsertPayment(ctx, models.Payment{
		UserID: referred.ID, ExternalPaymentID: fmt.Sprintf("ref-%d", time.Now().UnixNano()), Amount: 1300, RubAmount: 999,
	})
	if err != nil {
		t.Fatalf("InsertPayment: %v", err)
	}
	b := models.ReferralBonus{
		ReferrerUserID: referrer.ID, ReferredUserID: referred.ID, BonusType: models.BonusTypeDeposit,
		Amount: 130, PayID: sql.NullInt64{Int64: p.ID, Valid: true},
	}
	for i, want := range []bool{true, false} {
		got, err := s.InsertReferralBonus(ctx, b)
		if err != nil {
			t.Fatalf("InsertReferralBonus #%d: %v", i, err)
		}
		if got != want {
			t.Errorf("InsertReferralBonus #%d = %v, want %v", i, got, want)
		}
	}
}

func TestStoreTxRollback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.IncreaseBalance(ctx, u.ID, 50); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx error = %v, want boom", err)
	}
	got, _ := s.GetUser(ctx, u.ID)
	if got.Balance != 0 {
		t.Errorf("balance after rollback = %d, want 0", got.Balance)
	}
}

func TestStoreGrantUserBonusOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)
	for i, want := range []bool{true, false, false} {
		got, err := s.GrantUserBonus(ctx, u.ID, "sub_2", 10)
		if err != nil {
			t.Fatalf("GrantUserBonus #%d: %v", i, err)
		}
		if got != want {
			t.Errorf("GrantUserBonus #%d = %v, want %v", i, got, want)
		}
	}
}
