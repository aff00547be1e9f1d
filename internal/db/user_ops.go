package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"energybot/internal/ledger"
	"energybot/internal/models"
)

const userColumns = `id, telegram_id, username, first_name, last_name, name, birthday, sex, email,
        balance, referred_by, segment, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	var segment string
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName, &u.Name,
		&u.Birthday, &u.Sex, &u.Email, &u.Balance, &u.ReferredBy, &segment, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return u, err
	}
	u.Segment = models.Segment(segment)
	if u.Segment != "" && !u.Segment.Valid() {
		return u, fmt.Errorf("user %d: unknown segment %q", u.ID, segment)
	}
	return u, nil
}

func (q queries) getUserWhere(ctx context.Context, where string, arg any) (models.User, error) {
	u, err := scanUser(q.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ledger.ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// GetUser возвращает пользователя по внутреннему ID.
func (q queries) GetUser(ctx context.Context, id int64) (models.User, error) {
	return q.getUserWhere(ctx, "id = $1", id)
}

// GetUserByExternalID возвращает пользователя по Telegram ID.
func (q queries) GetUserByExternalID(ctx context.Context, telegramID int64) (models.User, error) {
	return q.getUserWhere(ctx, "telegram_id = $1", telegramID)
}

// InsertUser creates the user unless one with the same Telegram id exists,
// in which case the stored row is returned with created == false.
func (q queries) InsertUser(ctx context.Context, u models.User) (models.User, bool, error) {
	if u.Segment == "" {
		u.Segment = models.SegmentLead
	}
	row := q.q.QueryRowContext(ctx, `
        INSERT INTO users (telegram_id, username, first_name, last_name, segment)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (telegram_id) DO NOTHING
        RETURNING `+userColumns,
		u.TelegramID, u.Username, u.FirstName, u.LastName, string(u.Segment))
	created, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := q.GetUserByExternalID(ctx, u.TelegramID)
		return existing, false, err
	}
	if err != nil {
		return models.User{}, false, fmt.Errorf("insert user %d: %w", u.TelegramID, err)
	}
	return created, true, nil
}

// UpdateUserFields обновляет только переданные поля профиля.
func (q queries) UpdateUserFields(ctx context.Context, userID int64, f models.UserFields) error {
	if f.Empty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.Username != nil {
		add("username", *f.Username)
	}
	if f.FirstName != nil {
		add("first_name", *f.FirstName)
	}
	if f.LastName != nil {
		add("last_name", *f.LastName)
	}
	if f.Name != nil {
		add("name", *f.Name)
	}
	if f.Birthday != nil {
		add("birthday", *f.Birthday)
	}
	if f.Sex != nil {
		add("sex", *f.Sex)
	}
	if f.Email != nil {
		add("email", *f.Email)
	}
	if f.Segment != nil {
		add("segment", string(*f.Segment))
	}
	args = append(args, userID)
	query := fmt.Sprintf("UPDATE users SET %s, updated_at = now() WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	res, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user %d: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrUserNotFound
	}
	return nil
}

// SetReferrer sets referred_by once. It reports false when the user already
// has a referrer or referrerID is the user itself.
func (q queries) SetReferrer(ctx context.Context, userID, referrerID int64) (bool, error) {
	res, err := q.q.ExecContext(ctx, `
        UPDATE users SET referred_by = $2, updated_at = now()
        WHERE id = $1 AND referred_by IS NULL AND id <> $2`, userID, referrerID)
	if err != nil {
		return false, fmt.Errorf("set referrer of user %d: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (q queries) IncreaseBalance(ctx context.Context, userID, amount int64) (int64, error) {
	var balance int64
	err := q.q.QueryRowContext(ctx, `
        UPDATE users SET balance = balance + $1, updated_at = now()
        WHERE id = $2
        RETURNING balance`, amount, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ledger.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increase balance: %w", err)
	}
	return balance, nil
}

// ConditionalDecreaseBalance is a single guarded write, so concurrent
// callers can never push the balance below zero.
func (q queries) ConditionalDecreaseBalance(ctx context.Context, userID, amount int64) (int64, error) {
	var balance int64
	err := q.q.QueryRowContext(ctx, `
        UPDATE users SET balance = balance - $1, updated_at = now()
        WHERE id = $2 AND balance >= $1
        RETURNING balance`, amount, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := q.GetUser(ctx, userID); getErr != nil {
			return 0, getErr
		}
		return 0, ledger.ErrInsufficientBalance
	}
	if err != nil {
		return 0, fmt.Errorf("decrease balance: %w", err)
	}
	return balance, nil
}

func (q queries) AdvanceSegment(ctx context.Context, userID int64, seg models.Segment) error {
	below := seg.Below()
	if len(below) == 0 {
		return nil
	}
	from := make([]string, len(below))
	for i, s := range below {
		from[i] = string(s)
	}
	_, err := q.q.ExecContext(ctx, `
        UPDATE users SET segment = $2, updated_at = now()
        WHERE id = $1 AND segment = ANY($3)`, userID, string(seg), pq.Array(from))
	if err != nil {
		return fmt.Errorf("advance segment of user %d: %w", userID, err)
	}
	return nil
}

// InsertUserSource records where the user came from, once per user.
func (q queries) InsertUserSource(ctx context.Context, userID int64, source string) (bool, error) {
	res, err := q.q.ExecContext(ctx, `
        INSERT INTO user_sources (user_id, source) VALUES ($1, $2)
        ON CONFLICT (user_id) DO NOTHING`, userID, source)
	if err != nil {
		return false, fmt.Errorf("insert user source: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
