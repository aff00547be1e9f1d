package formatters

import (
	"fmt"
	"strings"

	"energybot/internal/constants"
	"energybot/internal/models"
	"energybot/internal/users"
	"energybot/internal/utils"
)

const (
	separator = "─ ─ ─ ─ ─ ─ ─ ─ ─ ─ ─ ─ ─"
)

// FormatMainMenu - приветствие главного меню.
func FormatMainMenu(u models.User) string {
	return fmt.Sprintf("Привет, %s! ✨\n\nВаш баланс: <b>%s</b>\n\n👇 <b>Выберите, что вас интересует:</b>",
		utils.EscapeHTML(u.DisplayName()), utils.FormatCredits(u.Balance))
}

// FormatCabinet форматирует личный кабинет: баланс, профиль и рефералы.
func FormatCabinet(c users.Cabinet) string {
	var b strings.Builder
	u := c.User
	b.WriteString("👤 <b>ЛИЧНЫЙ КАБИНЕТ</b>\n")
	b.WriteString(separator + "\n")
	fmt.Fprintf(&b, " •  Баланс: <b>%s</b>\n", utils.FormatCredits(u.Balance))
	if u.Name.Valid {
		fmt.Fprintf(&b, " •  Имя: %s\n", utils.EscapeHTML(u.Name.String))
	}
	if u.Birthday.Valid {
		fmt.Fprintf(&b, " •  Дата рождения: %s\n", utils.FormatDateRu(u.Birthday.Time))
	}
	if u.Email.Valid {
		fmt.Fprintf(&b, " •  Email для чеков: %s\n", utils.EscapeHTML(u.Email.String))
	}
	b.WriteString("\n👥 <b>ДРУЗЬЯ</b>\n")
	b.WriteString(separator + "\n")
	fmt.Fprintf(&b, " •  Приглашено: %d\n", c.Referrals.Invited)
	fmt.Fprintf(&b, " •  Заработано бонусов: %s\n", utils.FormatCredits(c.Referrals.BonusEarned))
	return b.String()
}

// FormatTopupMenu lists the tariffs above their buttons.
func FormatTopupMenu(balance int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚡️ <b>Пополнение баланса</b>\n\nСейчас на балансе: %s\n\n", utils.FormatCredits(balance))
	for _, t := range constants.Tariffs {
		fmt.Fprintf(&b, " •  <b>%s</b>: %s за %s\n", t.Name, utils.FormatCredits(t.Credits), utils.FormatRub(t.Rub))
	}
	b.WriteString("\nВыберите пакет:")
	return b.String()
}

// FormatCheckout - сообщение со ссылкой на оплату.
func FormatCheckout(t constants.Tariff) string {
	return fmt.Sprintf("🧾 Пакет «%s»: %s за %s.\n\nНажмите «Оплатить», а после оплаты вернитесь и нажмите «Проверить платеж».",
		t.Name, utils.FormatCredits(t.Credits), utils.FormatRub(t.Rub))
}

// FormatReferral describes the referral program around link.
func FormatReferral(link string, percent float64, sum models.ReferralSummary) string {
	return fmt.Sprintf("👥 <b>Приглашайте друзей!</b>\n\n"+
		"Вы получите %d%% энергии с каждого пополнения друга.\n\n"+
		"Ваша ссылка:\n%s\n\n"+
		"Приглашено: %d\nЗаработано: %s",
		int(percent*100+0.5), utils.EscapeHTML(link), sum.Invited, utils.FormatCredits(sum.BonusEarned))
}

// FormatFeatureMenu lists paid features with prices.
func FormatFeatureMenu(balance int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔮 <b>Что сделаем?</b>\n\nБаланс: %s\n\n", utils.FormatCredits(balance))
	for _, f := range constants.FeatureOrder {
		fmt.Fprintf(&b, "%s: %s\n", constants.FeatureDisplayMap[f], utils.FormatCredits(constants.COST[f]))
	}
	return b.String()
}

// FormatFeatureResult appends the charge line to the generated text.
func FormatFeatureResult(feature, text string, cost, balance int64) string {
	return fmt.Sprintf("%s\n\n%s\n\n%s\nСписано: %s, осталось: %s",
		constants.FeatureDisplayMap[feature], utils.EscapeHTML(text), separator,
		utils.FormatCredits(cost), utils.FormatCredits(balance))
}

// FormatStats - сводка для владельца.
func FormatStats(s models.Stats) string {
	var b strings.Builder
	b.WriteString("📊 <b>СТАТИСТИКА</b>\n")
	b.WriteString(separator + "\n")
	fmt.Fprintf(&b, "Пользователей: %d\n", s.TotalUsers)
	for _, seg := range []models.Segment{models.SegmentLead, models.SegmentQualified, models.SegmentClient, models.SegmentBanned} {
		fmt.Fprintf(&b, " •  %s: %d (%d%%)\n", seg, s.Segments[seg], s.SegmentShare(seg))
	}
	fmt.Fprintf(&b, "\n💳 <b>Платежи</b>: %d\n", s.Payments.Total)
	for _, st := range []models.PaymentStatus{models.PaymentPending, models.PaymentSucceeded, models.PaymentCompleted, models.PaymentCanceled} {
		fmt.Fprintf(&b, " •  %s: %d\n", st, s.Payments.ByStatus[st])
	}
	fmt.Fprintf(&b, " •  Получено: %s\n", utils.FormatRub(s.Payments.RubReceived))
	fmt.Fprintf(&b, "\n🎁 Реферальных бонусов: %s", utils.FormatCredits(s.Bonuses))
	return b.String()
}
