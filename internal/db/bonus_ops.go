package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"energybot/internal/models"
)

// GrantUserBonus upserts the named bonus as deposited. The conflict branch
// only flips deposited from false to true, so exactly one caller gets true.
func (q queries) GrantUserBonus(ctx context.Context, userID int64, name string, amount int64) (bool, error) {
	var id int64
	err := q.q.QueryRowContext(ctx, `
        INSERT INTO user_bonuses (user_id, bonus_name, amount, deposited)
        VALUES ($1, $2, $3, TRUE)
        ON CONFLICT (user_id, bonus_name) DO UPDATE SET deposited = TRUE
        WHERE user_bonuses.deposited = FALSE
        RETURNING id`, userID, name, amount).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("grant bonus %q to user %d: %w", name, userID, err)
	}
	return true, nil
}

// GetUserBonus returns the named bonus of the user, if any.
func (q queries) GetUserBonus(ctx context.Context, userID int64, name string) (models.UserBonus, bool, error) {
	var b models.UserBonus
	err := q.q.QueryRowContext(ctx, `
        SELECT id, user_id, bonus_name, amount, deposited, created_at
        FROM user_bonuses WHERE user_id = $1 AND bonus_name = $2`, userID, name).
		Scan(&b.ID, &b.UserID, &b.BonusName, &b.Amount, &b.Deposited, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserBonus{}, false, nil
	}
	if err != nil {
		return models.UserBonus{}, false, fmt.Errorf("select bonus %q of user %d: %w", name, userID, err)
	}
	return b, true, nil
}

// InsertGenerationRecord appends a row to generation history.
func (q queries) InsertGenerationRecord(ctx context.Context, r models.GenerationRecord) error {
	_, err := q.q.ExecContext(ctx, `
        INSERT INTO generation_history (user_id, model, request, cost, gen_successful, gen_type)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		r.UserID, r.Model, r.Request, r.Cost, r.GenSuccessful, r.GenType)
	if err != nil {
		return fmt.Errorf("insert generation record of user %d: %w", r.UserID, err)
	}
	return nil
}

// LastGeneration returns the newest successful history row of the given type.
func (q queries) LastGeneration(ctx context.Context, userID int64, genType string) (models.GenerationRecord, bool, error) {
	var r models.GenerationRecord
	err := q.q.QueryRowContext(ctx, `
        SELECT id, user_id, generated_at, model, request, cost, gen_successful, gen_type
        FROM generation_history
        WHERE user_id = $1 AND gen_type = $2 AND gen_successful
        ORDER BY generated_at DESC LIMIT 1`, userID, genType).
		Scan(&r.ID, &r.UserID, &r.Timestamp, &r.Model, &r.Request, &r.Cost, &r.GenSuccessful, &r.GenType)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GenerationRecord{}, false, nil
	}
	if err != nil {
		return models.GenerationRecord{}, false, fmt.Errorf("select last generation: %w", err)
	}
	return r, true, nil
}
