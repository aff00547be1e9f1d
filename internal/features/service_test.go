package features

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"energybot/internal/constants"
	"energybot/internal/generation"
	"energybot/internal/ledger"
	"energybot/internal/ledger/ledgertest"
	"energybot/internal/models"
)

type fakeProvider struct {
	mu    sync.Mutex
	err   error
	calls []generation.Request
}

func (p *fakeProvider) Generate(ctx context.Context, req generation.Request) (generation.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.err != nil {
		return generation.Response{}, p.err
	}
	return generation.Response{Text: "ответ", Model: "gpt-test"}, nil
}

func setup(t *testing.T, balance int64) (*Service, *ledgertest.Store, *fakeProvider, models.User) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := ledgertest.New()
	p := &fakeProvider{}
	svc := NewService(store, p, ledger.NewBalance(log), log)
	u := store.AddUser(models.User{TelegramID: 10, Balance: balance})
	return svc, store, p, u
}

func TestSpendCharges(t *testing.T) {
	svc, store, _, u := setup(t, 15)
	res, err := svc.Spend(context.Background(), u.ID, constants.FEATURE_WITCHCRAFT, "любовь")
	if err != nil {
		t.Fatal(err)
	}
	if res.Cost != 10 || res.Balance != 5 || res.Text != "ответ" {
		t.Errorf("res = %+v", res)
	}
	h := store.History()
	if len(h) != 1 || !h[0].GenSuccessful || h[0].Cost != 10 || h[0].Model != "gpt-test" || h[0].Request != "любовь" {
		t.Errorf("history = %+v", h)
	}
}

func TestSpendInsufficientSkipsProvider(t *testing.T) {
	svc, store, p, u := setup(t, 1)
	_, err := svc.Spend(context.Background(), u.ID, constants.FEATURE_AI_PORTRAIT, "")
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v", err)
	}
	if len(p.calls) != 0 || len(store.History()) != 0 {
		t.Error("provider called or history written")
	}
}

func TestSpendProviderFailureChargesNothing(t *testing.T) {
	svc, store, p, u := setup(t, 10)
	p.err = &generation.Error{Kind: generation.KindUnsupportedLocation, Status: 403, Err: errors.New("region")}

	_, err := svc.Spend(context.Background(), u.ID, constants.FEATURE_READING, "работа")
	if generation.KindOf(err) != generation.KindUnsupportedLocation {
		t.Fatalf("err = %v", err)
	}
	if got, _ := store.User(u.ID); got.Balance != 10 {
		t.Errorf("balance = %d, want 10", got.Balance)
	}
	h := store.History()
	if len(h) != 1 || h[0].GenSuccessful || h[0].Cost != 0 {
		t.Errorf("history = %+v", h)
	}
}

func TestSpendUnknownAndBanned(t *testing.T) {
	svc, store, _, u := setup(t, 100)
	if _, err := svc.Spend(context.Background(), u.ID, "horoscope", ""); !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("unknown err = %v", err)
	}
	banned := store.AddUser(models.User{TelegramID: 11, Balance: 100, Segment: models.SegmentBanned})
	if _, err := svc.Spend(context.Background(), banned.ID, constants.FEATURE_READING, ""); !errors.Is(err, ErrBanned) {
		t.Errorf("banned err = %v", err)
	}
}

func TestDailyCardOncePerDay(t *testing.T) {
	svc, store, _, u := setup(t, 10)
	day := time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return day }
	svc.now = clock
	store.SetClock(clock)
	ctx := context.Background()

	if _, err := svc.Spend(ctx, u.ID, constants.FEATURE_DAILY_CARD, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Spend(ctx, u.ID, constants.FEATURE_DAILY_CARD, ""); !errors.Is(err, ErrAlreadyUsedToday) {
		t.Fatalf("second draw err = %v", err)
	}
	day = day.Add(24 * time.Hour)
	if _, err := svc.Spend(ctx, u.ID, constants.FEATURE_DAILY_CARD, ""); err != nil {
		t.Errorf("next day draw err = %v", err)
	}
	if got, _ := store.User(u.ID); got.Balance != 6 {
		t.Errorf("balance = %d, want 6", got.Balance)
	}
}

func TestConcurrentSpendNeverOverdraws(t *testing.T) {
	svc, store, _, u := setup(t, 5)
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Spend(context.Background(), u.ID, constants.FEATURE_AI_PORTRAIT, ""); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	got, _ := store.User(u.ID)
	if ok != 2 || got.Balance != 1 {
		t.Errorf("successes = %d balance = %d, want 2 and 1", ok, got.Balance)
	}
}

func TestPromptIncludesProfile(t *testing.T) {
	svc, store, p, _ := setup(t, 0)
	u := store.AddUser(models.User{
		TelegramID: 12,
		Balance:    5,
		Name:       sql.NullString{String: "Анна", Valid: true},
		Birthday:   sql.NullTime{Time: time.Date(1996, 7, 12, 0, 0, 0, 0, time.UTC), Valid: true},
	})
	if _, err := svc.Spend(context.Background(), u.ID, constants.FEATURE_READING, "переезд"); err != nil {
		t.Fatal(err)
	}
	prompt := p.calls[0].Prompt
	for _, want := range []string{"Анна", "12.07.1996", "переезд"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
