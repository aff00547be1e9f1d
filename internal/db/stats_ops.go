package db

import (
	"context"
	"fmt"

	"energybot/internal/models"
)

// Stats собирает сводную статистику для администратора.
func (q queries) Stats(ctx context.Context) (models.Stats, error) {
	stats := models.Stats{
		Segments: make(map[models.Segment]int),
		Payments: models.PaymentStats{ByStatus: make(map[models.PaymentStatus]int)},
	}

	rows, err := q.q.QueryContext(ctx, `SELECT segment, COUNT(*) FROM users GROUP BY segment`)
	if err != nil {
		return stats, fmt.Errorf("count users: %w", err)
	}
	for rows.Next() {
		var seg string
		var n int
		if err := rows.Scan(&seg, &n); err != nil {
			rows.Close()
			return stats, fmt.Errorf("scan user count: %w", err)
		}
		stats.Segments[models.Segment(seg)] = n
		stats.TotalUsers += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	rows, err = q.q.QueryContext(ctx, `
        SELECT status, COUNT(*),
               COALESCE(SUM(rub_amount) FILTER (WHERE status = 'completed'), 0)
        FROM payments GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("count payments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		var rub int64
		if err := rows.Scan(&status, &n, &rub); err != nil {
			return stats, fmt.Errorf("scan payment count: %w", err)
		}
		stats.Payments.ByStatus[models.PaymentStatus(status)] = n
		stats.Payments.Total += n
		stats.Payments.RubReceived += rub
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if err := q.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM referral_bonuses`).Scan(&stats.Bonuses); err != nil {
		return stats, fmt.Errorf("sum referral bonuses: %w", err)
	}
	return stats, nil
}
