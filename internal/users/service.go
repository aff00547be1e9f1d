// Package users covers first contact, profile updates, the personal cabinet
// and one-off bonuses.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"energybot/internal/constants"
	"energybot/internal/ledger"
	"energybot/internal/models"
	"energybot/internal/utils"
)

var (
	ErrNotSubscribed  = errors.New("user is not subscribed to the channel")
	ErrBonusDisabled  = errors.New("subscription bonus is not configured")
	ErrNothingToApply = errors.New("no profile fields to update")
)

// Store is the part of the database the user service needs.
type Store interface {
	ledger.Store
	InsertUser(ctx context.Context, u models.User) (models.User, bool, error)
	SetReferrer(ctx context.Context, userID, referrerID int64) (bool, error)
	InsertUserSource(ctx context.Context, userID int64, source string) (bool, error)
	ReferralSummary(ctx context.Context, userID int64) (models.ReferralSummary, error)
	GetUserBonus(ctx context.Context, userID int64, name string) (models.UserBonus, bool, error)
}

// MembershipChecker reports whether a Telegram user is subscribed to the
// bonus channel.
type MembershipChecker interface {
	IsMember(ctx context.Context, telegramID int64) (bool, error)
}

// Profile is what Telegram tells us about the sender.
type Profile struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// Cabinet is the personal cabinet view.
type Cabinet struct {
	User      models.User
	Referrals models.ReferralSummary
}

type Service struct {
	store             Store
	balance           *ledger.Balance
	membership        MembershipChecker
	subscriptionBonus int64
	log               *slog.Logger
}

type Option func(*Service)

// WithSubscriptionBonus enables the channel subscription bonus.
func WithSubscriptionBonus(m MembershipChecker, amount int64) Option {
	return func(s *Service) {
		s.membership = m
		s.subscriptionBonus = amount
	}
}

func NewService(store Store, balance *ledger.Balance, log *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, balance: balance, log: log.With("component", "users")}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Merge creates the user on first contact, otherwise refreshes the Telegram
// profile columns. Balance, referrer and segment are never written here.
func (s *Service) Merge(ctx context.Context, p Profile) (models.User, bool, error) {
	u, created, err := s.store.InsertUser(ctx, models.User{
		TelegramID: p.TelegramID,
		Username:   nullString(p.Username),
		FirstName:  nullString(p.FirstName),
		LastName:   nullString(p.LastName),
		Segment:    models.SegmentLead,
	})
	if err != nil {
		return models.User{}, false, fmt.Errorf("merge user %d: %w", p.TelegramID, err)
	}
	if created {
		s.log.InfoContext(ctx, "new user", "user_id", u.ID, "telegram_id", p.TelegramID)
		return u, true, nil
	}

	var f models.UserFields
	if changed(u.Username.String, p.Username) {
		f.Username = &p.Username
	}
	if changed(u.FirstName.String, p.FirstName) {
		f.FirstName = &p.FirstName
	}
	if changed(u.LastName.String, p.LastName) {
		f.LastName = &p.LastName
	}
	if f.Empty() {
		return u, false, nil
	}
	if err := s.store.UpdateUserFields(ctx, u.ID, f); err != nil {
		return models.User{}, false, fmt.Errorf("refresh profile %d: %w", u.ID, err)
	}
	u, err = s.store.GetUser(ctx, u.ID)
	return u, false, err
}

// Start handles /start with an optional payload. A ref_<telegram_id>
// payload attaches the referrer to a new user; any other payload is kept
// as the user's source.
func (s *Service) Start(ctx context.Context, p Profile, payload string) (models.User, bool, error) {
	u, created, err := s.Merge(ctx, p)
	if err != nil {
		return u, false, err
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return u, created, nil
	}
	log := s.log.With("user_id", u.ID, "payload", payload)

	if refTgID, ok := utils.ParseReferralPayload(payload); ok {
		if !created || refTgID == p.TelegramID {
			return u, created, nil
		}
		referrer, err := s.store.GetUserByExternalID(ctx, refTgID)
		if errors.Is(err, ledger.ErrUserNotFound) {
			log.WarnContext(ctx, "referrer not found")
			return u, created, nil
		}
		if err != nil {
			return u, created, err
		}
		set, err := s.store.SetReferrer(ctx, u.ID, referrer.ID)
		if err != nil {
			return u, created, fmt.Errorf("set referrer: %w", err)
		}
		if set {
			u.ReferredBy.Int64, u.ReferredBy.Valid = referrer.ID, true
			log.InfoContext(ctx, "referrer attached", "referrer_id", referrer.ID)
		}
		return u, created, nil
	}

	if _, err := s.store.InsertUserSource(ctx, u.ID, payload); err != nil {
		return u, created, fmt.Errorf("save user source: %w", err)
	}
	return u, created, nil
}

// UpdateProfile applies onboarding answers. Only name, birthday, sex and
// email are accepted; anything else in f is dropped.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, f models.UserFields) error {
	allowed := models.UserFields{Name: f.Name, Birthday: f.Birthday, Sex: f.Sex, Email: f.Email}
	if allowed.Empty() {
		return ErrNothingToApply
	}
	return s.store.UpdateUserFields(ctx, userID, allowed)
}

// SetEmail validates and stores the receipt address.
func (s *Service) SetEmail(ctx context.Context, userID int64, email string) (string, error) {
	email, err := utils.ValidateEmail(email)
	if err != nil {
		return "", err
	}
	if err := s.store.UpdateUserFields(ctx, userID, models.UserFields{Email: &email}); err != nil {
		return "", err
	}
	return email, nil
}

// CompleteOnboarding promotes a lead to qualified.
func (s *Service) CompleteOnboarding(ctx context.Context, userID int64) error {
	return s.store.AdvanceSegment(ctx, userID, models.SegmentQualified)
}

// ClaimSubscriptionBonus credits the channel bonus once per user. It
// returns false when the bonus was already paid.
func (s *Service) ClaimSubscriptionBonus(ctx context.Context, userID int64) (bool, error) {
	if s.membership == nil || s.subscriptionBonus <= 0 {
		return false, ErrBonusDisabled
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if b, found, err := s.store.GetUserBonus(ctx, userID, constants.BONUS_SUB_2); err != nil {
		return false, err
	} else if found && b.Deposited {
		return false, nil
	}

	member, err := s.membership.IsMember(ctx, u.TelegramID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return false, ErrNotSubscribed
	}

	granted := false
	err = s.store.InTx(ctx, func(tx ledger.Tx) error {
		var err error
		granted, err = tx.GrantUserBonus(ctx, userID, constants.BONUS_SUB_2, s.subscriptionBonus)
		if err != nil || !granted {
			return err
		}
		_, err = s.balance.Increase(ctx, tx, userID, s.subscriptionBonus, "bonus:"+constants.BONUS_SUB_2)
		return err
	})
	if err != nil {
		return false, err
	}
	return granted, nil
}

// Cabinet returns the balance and referral numbers for the user.
func (s *Service) Cabinet(ctx context.Context, userID int64) (Cabinet, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Cabinet{}, err
	}
	sum, err := s.store.ReferralSummary(ctx, userID)
	if err != nil {
		return Cabinet{}, fmt.Errorf("referral summary: %w", err)
	}
	return Cabinet{User: u, Referrals: sum}, nil
}

func changed(stored, incoming string) bool {
	return incoming != "" && incoming != stored
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
