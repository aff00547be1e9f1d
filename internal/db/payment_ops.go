package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // Для работы с массивами PostgreSQL / For working with PostgreSQL arrays

	"energybot/internal/ledger"
	"energybot/internal/models"
)

const paymentColumns = `id, user_id, external_payment_id, amount, rub_amount, status, created_at, completed_at`

func scanPayment(row interface{ Scan(...any) error }) (models.Payment, error) {
	var p models.Payment
	var status string
	err := row.Scan(&p.ID, &p.UserID, &p.ExternalPaymentID, &p.Amount, &p.RubAmount, &status, &p.CreatedAt, &p.CompletedAt)
	if err != nil {
		return p, err
	}
	p.Status = models.PaymentStatus(status)
	if !p.Status.Valid() {
		return p, fmt.Errorf("payment %s: unknown status %q", p.ExternalPaymentID, status)
	}
	return p, nil
}

// InsertPayment добавляет новый платеж.
// InsertPayment inserts a new payment. A duplicate gateway id yields
// ledger.ErrDuplicateExternalID.
func (q queries) InsertPayment(ctx context.Context, p models.Payment) (models.Payment, error) {
	if p.Status == "" {
		p.Status = models.PaymentPending
	}
	row := q.q.QueryRowContext(ctx, `
        INSERT INTO payments (user_id, external_payment_id, amount, rub_amount, status)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING `+paymentColumns,
		p.UserID, p.ExternalPaymentID, p.Amount, p.RubAmount, string(p.Status))
	created, err := scanPayment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Payment{}, ledger.ErrDuplicateExternalID
		}
		return models.Payment{}, fmt.Errorf("insert payment %s: %w", p.ExternalPaymentID, err)
	}
	return created, nil
}

func (q queries) FindPaymentByExternalID(ctx context.Context, externalID string) (models.Payment, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE external_payment_id = $1`, externalID)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Payment{}, ledger.ErrPaymentNotFound
	}
	if err != nil {
		return models.Payment{}, fmt.Errorf("select payment %s: %w", externalID, err)
	}
	return p, nil
}

// ListPendingPayments возвращает все платежи в статусе pending.
func (q queries) ListPendingPayments(ctx context.Context) ([]models.Payment, error) {
	return q.listPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE status = $1 ORDER BY created_at`,
		string(models.PaymentPending))
}

// ListSucceededPayments возвращает оплаченные, но ещё не зачисленные платежи.
func (q queries) ListSucceededPayments(ctx context.Context) ([]models.Payment, error) {
	return q.listPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE status = $1 ORDER BY created_at`,
		string(models.PaymentSucceeded))
}

// ListPayments returns the most recent payments, newest first.
func (q queries) ListPayments(ctx context.Context, limit int) ([]models.Payment, error) {
	return q.listPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments ORDER BY created_at DESC LIMIT $1`, limit)
}

func (q queries) listPayments(ctx context.Context, query string, args ...any) ([]models.Payment, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// UpdatePaymentStatus is a compare-and-swap on status: the row changes only
// while its status is one of from.
func (q queries) UpdatePaymentStatus(ctx context.Context, externalID string, from []models.PaymentStatus, to models.PaymentStatus, completedAt *time.Time) (models.Payment, bool, error) {
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}
	var completed sql.NullTime
	if completedAt != nil {
		completed = sql.NullTime{Time: *completedAt, Valid: true}
	}

	row := q.q.QueryRowContext(ctx, `
        UPDATE payments
        SET status = $2,
            completed_at = CASE WHEN $2 = 'completed' THEN COALESCE($3, now()) ELSE completed_at END
        WHERE external_payment_id = $1 AND status = ANY($4)
        RETURNING `+paymentColumns,
		externalID, string(to), completed, pq.Array(fromStr))
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Payment{}, false, nil
	}
	if err != nil {
		return models.Payment{}, false, fmt.Errorf("update payment %s: %w", externalID, err)
	}
	return p, true, nil
}
