// Package reports builds admin spreadsheets.
package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"energybot/internal/models"
)

const (
	SheetPayments  = "Платежи"
	SheetReferrals = "Рефералы"

	// ExportLimit caps the rows per sheet.
	ExportLimit = 10000
)

// Source lists the rows that go into the export.
type Source interface {
	ListPayments(ctx context.Context, limit int) ([]models.Payment, error)
	ListReferralBonuses(ctx context.Context, limit int) ([]models.ReferralBonus, error)
}

// WriteLedgerExport writes an xlsx workbook with a payments sheet and a
// referral bonuses sheet to w.
func WriteLedgerExport(ctx context.Context, src Source, w io.Writer) error {
	pays, err := src.ListPayments(ctx, ExportLimit)
	if err != nil {
		return fmt.Errorf("list payments: %w", err)
	}
	bonuses, err := src.ListReferralBonuses(ctx, ExportLimit)
	if err != nil {
		return fmt.Errorf("list referral bonuses: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetPayments)
	if err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetReferrals); err != nil {
		return err
	}
	f.DeleteSheet("Sheet1") // Удаляем стандартный лист
	f.SetActiveSheet(index)

	rows := make([][]any, 0, len(pays))
	for _, p := range pays {
		completed := ""
		if p.CompletedAt.Valid {
			completed = formatTime(p.CompletedAt.Time)
		}
		rows = append(rows, []any{p.ID, p.ExternalPaymentID, p.UserID, p.Amount, p.RubAmount, string(p.Status), formatTime(p.CreatedAt), completed})
	}
	if err := writeSheet(f, SheetPayments,
		[]string{"ID", "ID платежа ЮKassa", "ID пользователя", "Энергия", "Сумма, ₽", "Статус", "Создан", "Зачислен"}, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, b := range bonuses {
		var payID any = ""
		if b.PayID.Valid {
			payID = b.PayID.Int64
		}
		rows = append(rows, []any{b.ID, b.ReferrerUserID, b.ReferredUserID, string(b.BonusType), b.Amount, b.DepositRubAmount, b.DepositTokenAmount, payID, formatTime(b.CreatedAt)})
	}
	if err := writeSheet(f, SheetReferrals,
		[]string{"ID", "Пригласивший", "Приглашённый", "Тип", "Бонус", "Пополнение, ₽", "Пополнение, энергия", "ID платежа", "Создан"}, rows); err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}
	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, r+2, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02.01.2006 15:04:05")
}
