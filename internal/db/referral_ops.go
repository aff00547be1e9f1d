package db

import (
	"context"
	"fmt"

	"energybot/internal/models"
)

// InsertReferralBonus добавляет запись о реферальном бонусе.
// InsertReferralBonus records a referral bonus. The (pay_id, ref_id) unique
// index makes a repeated insert for the same payment a no-op reported as false.
func (q queries) InsertReferralBonus(ctx context.Context, b models.ReferralBonus) (bool, error) {
	res, err := q.q.ExecContext(ctx, `
        INSERT INTO referral_bonuses
            (ref_id, referred_user_id, bonus_type, amount, deposit_rub_amount, deposit_token_amount, pay_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (pay_id, ref_id) DO NOTHING`,
		b.ReferrerUserID, b.ReferredUserID, string(b.BonusType), b.Amount,
		b.DepositRubAmount, b.DepositTokenAmount, b.PayID)
	if err != nil {
		return false, fmt.Errorf("insert referral bonus (ref %d, pay %v): %w", b.ReferrerUserID, b.PayID.Int64, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ReferralSummary возвращает количество приглашенных и сумму бонусов.
func (q queries) ReferralSummary(ctx context.Context, userID int64) (models.ReferralSummary, error) {
	var s models.ReferralSummary
	err := q.q.QueryRowContext(ctx, `
        SELECT
            (SELECT COUNT(*) FROM users WHERE referred_by = $1),
            (SELECT COALESCE(SUM(amount), 0) FROM referral_bonuses WHERE ref_id = $1)`,
		userID).Scan(&s.Invited, &s.BonusEarned)
	if err != nil {
		return models.ReferralSummary{}, fmt.Errorf("referral summary of user %d: %w", userID, err)
	}
	return s, nil
}

// ListReferralBonuses returns the most recent bonuses, newest first.
func (q queries) ListReferralBonuses(ctx context.Context, limit int) ([]models.ReferralBonus, error) {
	rows, err := q.q.QueryContext(ctx, `
        SELECT id, ref_id, referred_user_id, bonus_type, amount, deposit_rub_amount,
               deposit_token_amount, pay_id, created_at
        FROM referral_bonuses
        ORDER BY created_at DESC
        LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select referral bonuses: %w", err)
	}
	defer rows.Close()

	var bonuses []models.ReferralBonus
	for rows.Next() {
		var b models.ReferralBonus
		var bonusType string
		if err := rows.Scan(&b.ID, &b.ReferrerUserID, &b.ReferredUserID, &bonusType, &b.Amount,
			&b.DepositRubAmount, &b.DepositTokenAmount, &b.PayID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan referral bonus: %w", err)
		}
		b.BonusType = models.BonusType(bonusType)
		bonuses = append(bonuses, b)
	}
	return bonuses, rows.Err()
}
