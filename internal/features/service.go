// Package features charges credits for the paid bot features.
package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"energybot/internal/constants"
	"energybot/internal/generation"
	"energybot/internal/ledger"
	"energybot/internal/models"
)

var (
	ErrUnknownFeature   = errors.New("unknown feature")
	ErrBanned           = errors.New("user is banned")
	ErrAlreadyUsedToday = errors.New("daily card already drawn today")
)

// Store is the ledger plus the generation history lookup.
type Store interface {
	ledger.Store
	LastGeneration(ctx context.Context, userID int64, genType string) (models.GenerationRecord, bool, error)
}

// Result is a paid generation.
type Result struct {
	Text    string
	Cost    int64
	Balance int64
}

type Service struct {
	store    Store
	provider generation.Provider
	balance  *ledger.Balance
	now      func() time.Time
	log      *slog.Logger
}

func NewService(store Store, provider generation.Provider, balance *ledger.Balance, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		provider: provider,
		balance:  balance,
		now:      time.Now,
		log:      log.With("component", "features"),
	}
}

// Cost returns the price of feature.
func Cost(feature string) (int64, bool) {
	c, ok := constants.COST[feature]
	return c, ok
}

// Spend runs feature for the user and charges its cost. Nothing is charged
// when the provider fails; the attempt is still written to the history.
func (s *Service) Spend(ctx context.Context, userID int64, feature, request string) (Result, error) {
	cost, ok := Cost(feature)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownFeature, feature)
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if user.Segment == models.SegmentBanned {
		return Result{}, ErrBanned
	}
	now := s.now()
	if feature == constants.FEATURE_DAILY_CARD {
		last, found, err := s.store.LastGeneration(ctx, userID, feature)
		if err != nil {
			return Result{}, err
		}
		if found && sameDay(last.Timestamp, now) {
			return Result{}, ErrAlreadyUsedToday
		}
	}
	if user.Balance < cost {
		return Result{}, ledger.ErrInsufficientBalance
	}

	log := s.log.With("user_id", userID, "feature", feature)
	resp, err := s.provider.Generate(ctx, buildRequest(feature, user, request, now))
	if err != nil {
		log.ErrorContext(ctx, "generation failed", "kind", generation.KindOf(err), "error", err)
		rec := models.GenerationRecord{UserID: userID, Request: request, GenType: feature}
		if herr := s.store.InsertGenerationRecord(ctx, rec); herr != nil {
			log.ErrorContext(ctx, "record failed generation", "error", herr)
		}
		return Result{}, fmt.Errorf("generate %s: %w", feature, err)
	}

	var balance int64
	err = s.store.InTx(ctx, func(tx ledger.Tx) error {
		var err error
		balance, err = s.balance.Decrease(ctx, tx, userID, cost, "feature:"+feature)
		if err != nil {
			return err
		}
		return tx.InsertGenerationRecord(ctx, models.GenerationRecord{
			UserID:        userID,
			Model:         resp.Model,
			Request:       request,
			Cost:          cost,
			GenSuccessful: true,
			GenType:       feature,
		})
	})
	if err != nil {
		return Result{}, err
	}
	log.InfoContext(ctx, "feature charged", "cost", cost, "balance", balance)
	return Result{Text: resp.Text, Cost: cost, Balance: balance}, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
