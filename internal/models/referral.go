package models

import (
	"database/sql"
	"time"
)

// BonusType tells what kind of activity earned a referral bonus.
type BonusType string

const (
	BonusTypeDeposit    BonusType = "deposit"
	BonusTypeGeneration BonusType = "generation"
)

// ReferralBonus is an immutable credit event paid to a referrer.
type ReferralBonus struct {
	ID                 int64
	ReferrerUserID     int64 // User.ID of the inviter
	ReferredUserID     int64 // User.ID of the paying invitee
	BonusType          BonusType
	Amount             int64
	DepositRubAmount   int64
	DepositTokenAmount int64
	PayID              sql.NullInt64 // Payment.ID that triggered the bonus
	CreatedAt          time.Time
}

// UserBonus is a named one-time grant. Deposited separates "earned" from
// "paid out".
type UserBonus struct {
	ID        int64
	UserID    int64
	BonusName string
	Amount    int64
	Deposited bool
	CreatedAt time.Time
}

// ReferralSummary is what the personal cabinet shows about invitees.
type ReferralSummary struct {
	Invited     int
	BonusEarned int64
}
