package models

import (
	"database/sql"
	"time"
)

// Segment - грубая классификация пользователя по жизненному циклу.
// Segment is a coarse lifecycle classification of a user.
type Segment string

const (
	SegmentLead      Segment = "lead"
	SegmentQualified Segment = "qualified"
	SegmentClient    Segment = "client"
	SegmentBanned    Segment = "banned"
)

// segmentRank orders the automatic lead→qualified→client progression.
// banned is outside the progression and is never entered or left automatically.
var segmentRank = map[Segment]int{
	SegmentLead:      1,
	SegmentQualified: 2,
	SegmentClient:    3,
}

// Valid reports whether s is one of the known segments.
func (s Segment) Valid() bool {
	_, ok := segmentRank[s]
	return ok || s == SegmentBanned
}

// Advance returns the segment a user in s ends up in when an event
// promotes them to target. Segments never regress and banned is sticky.
func (s Segment) Advance(target Segment) Segment {
	if s == SegmentBanned || target == SegmentBanned {
		return s
	}
	if segmentRank[target] > segmentRank[s] {
		return target
	}
	return s
}

// User - пользователь бота.
// User represents a bot user and the owner of an energy balance.
type User struct {
	ID         int64
	TelegramID int64
	Username   sql.NullString
	FirstName  sql.NullString
	LastName   sql.NullString
	Name       sql.NullString
	Birthday   sql.NullTime
	Sex        sql.NullString
	Email      sql.NullString
	Balance    int64
	ReferredBy sql.NullInt64
	Segment    Segment
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DisplayName returns the best human readable name available.
func (u User) DisplayName() string {
	switch {
	case u.Name.Valid && u.Name.String != "":
		return u.Name.String
	case u.FirstName.Valid && u.FirstName.String != "":
		return u.FirstName.String
	case u.Username.Valid && u.Username.String != "":
		return "@" + u.Username.String
	}
	return "друг"
}

// UserFields is the set of mutable profile columns. Nil pointers are left
// untouched by an update.
type UserFields struct {
	Username  *string
	FirstName *string
	LastName  *string
	Name      *string
	Birthday  *time.Time
	Sex       *string
	Email     *string
	Segment   *Segment
}

// Empty reports whether the update would change nothing.
func (f UserFields) Empty() bool {
	return f.Username == nil && f.FirstName == nil && f.LastName == nil &&
		f.Name == nil && f.Birthday == nil && f.Sex == nil && f.Email == nil &&
		f.Segment == nil
}

// UserSource records the start payload a user arrived with.
type UserSource struct {
	ID        int64
	UserID    int64
	Source    string
	CreatedAt time.Time
}

// Below returns the segments an automatic promotion to s may start from.
func (s Segment) Below() []Segment {
	var out []Segment
	for _, seg := range []Segment{SegmentLead, SegmentQualified, SegmentClient} {
		if segmentRank[seg] < segmentRank[s] {
			out = append(out, seg)
		}
	}
	return out
}
