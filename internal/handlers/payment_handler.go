// Файл: internal/handlers/payment_handler.go
package handlers

import (
	"context"
	"errors"
	"strconv"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"energybot/internal/constants"
	"energybot/internal/formatters"
	"energybot/internal/ingress"
	"energybot/internal/ledger"
	"energybot/internal/models"
	"energybot/internal/session"
	"energybot/internal/telegram_api"
)

// handleTariff начинает оплату выбранного пакета. Без email сначала
// спрашиваем адрес для чека.
func (bh *BotHandler) handleTariff(ctx context.Context, chatID int64, user models.User, messageID int, rubStr string) {
	rub, err := strconv.ParseInt(rubStr, 10, 64)
	tariff, ok := constants.TariffByRub(rub)
	if err != nil || !ok {
		bh.sendErrorMessageHelper(chatID, messageID, "❌ Такого тарифа нет.")
		return
	}
	if !user.Email.Valid || user.Email.String == "" {
		bh.Deps.SessionManager.UpdateTempFlow(chatID, func(d *session.TempFlowData) { d.PendingTariffRub = tariff.Rub })
		bh.Deps.SessionManager.SetState(chatID, constants.STATE_AWAIT_EMAIL)
		keyboard := backKeyboard()
		bh.sendOrEditMessageHelper(chatID, messageID, constants.EmailPromptMessage, &keyboard)
		return
	}
	bh.startCheckout(ctx, chatID, user, messageID, tariff)
}

// handleEmailInput сохраняет email и продолжает отложенную оплату.
// Сообщение с адресом удаляется из чата после сохранения.
func (bh *BotHandler) handleEmailInput(ctx context.Context, chatID int64, user models.User, userMessageID int, text string) {
	email, err := bh.Deps.Users.SetEmail(ctx, user.ID, text)
	if err != nil {
		bh.sendMessage(chatID, constants.EmailInvalidMessage)
		return
	}
	telegram_api.DeleteMessage(bh.Deps.BotClient, chatID, userMessageID)
	user.Email.String, user.Email.Valid = email, true

	pending := bh.Deps.SessionManager.GetTempFlow(chatID).PendingTariffRub
	bh.Deps.SessionManager.ClearState(chatID)
	tariff, ok := constants.TariffByRub(pending)
	if !ok {
		bh.SendTopupMenu(chatID, user, 0)
		return
	}
	bh.startCheckout(ctx, chatID, user, 0, tariff)
}

func (bh *BotHandler) startCheckout(ctx context.Context, chatID int64, user models.User, messageID int, tariff constants.Tariff) {
	log := bh.log.With("user_id", user.ID, "rub", tariff.Rub)
	checkout, err := bh.Deps.Gateway.CreatePayment(ctx, tariff.Credits, tariff.Rub, user.TelegramID, user.Email.String,
		map[string]string{"user_id": strconv.FormatInt(user.ID, 10)})
	if err != nil {
		log.ErrorContext(ctx, "create checkout", "error", err)
		bh.sendErrorMessageHelper(chatID, messageID, "❌ Платёжная система недоступна. Попробуйте позже.")
		return
	}
	if _, err := bh.Deps.Payments.Create(ctx, user.ID, checkout.ID, tariff.Credits, checkout.RubAmount); err != nil {
		log.ErrorContext(ctx, "record payment", "payment_id", checkout.ID, "error", err)
		bh.sendErrorMessageHelper(chatID, messageID, "❌ Не удалось создать платёж. Попробуйте позже.")
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("💳 Оплатить", checkout.ConfirmationURL),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Проверить платеж", constants.CALLBACK_PREFIX_CHECK_PAYMENT+checkout.ID),
		),
		backKeyboard().InlineKeyboard[0],
	)
	bh.sendOrEditMessageHelper(chatID, messageID, formatters.FormatCheckout(tariff), &keyboard)
}

// handleCheckPayment - ручная проверка платежа по кнопке.
func (bh *BotHandler) handleCheckPayment(ctx context.Context, chatID int64, user models.User, messageID int, externalID string) {
	payment, err := bh.Deps.Payments.GetByExternalID(ctx, externalID)
	if errors.Is(err, ledger.ErrPaymentNotFound) || (err == nil && payment.UserID != user.ID) {
		bh.sendErrorMessageHelper(chatID, messageID, "❌ Платёж не найден.")
		return
	}
	if err != nil {
		bh.log.ErrorContext(ctx, "load payment", "payment_id", externalID, "error", err)
		bh.sendErrorMessageHelper(chatID, messageID, "❌ Ошибка проверки платежа. Попробуйте позже.")
		return
	}

	outcome, err := bh.Deps.Checker.Check(ctx, externalID)
	if err != nil {
		bh.log.ErrorContext(ctx, "check payment", "payment_id", externalID, "error", err)
		bh.sendErrorMessageHelper(chatID, messageID, "❌ Ошибка проверки платежа. Попробуйте позже.")
		return
	}

	var text string
	retry := false
	switch outcome {
	case ingress.OutcomeSettled:
		text = "✅ Платёж подтверждён, энергия зачислена!"
	case ingress.OutcomeAlreadyCompleted:
		text = "✅ Этот платёж уже зачислен."
	case ingress.OutcomeCanceled:
		text = "❌ Платёж отменён. Выберите пакет заново."
	case ingress.OutcomePending:
		text, retry = "⏳ Оплата ещё не поступила. Если вы уже оплатили, проверьте через минуту.", true
	default:
		text, retry = "⚠️ Не удалось связаться с платёжной системой. Попробуйте позже.", true
	}

	rows := [][]tgbotapi.InlineKeyboardButton{}
	if retry {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Проверить платеж", constants.CALLBACK_PREFIX_CHECK_PAYMENT+externalID),
		))
	}
	rows = append(rows, backKeyboard().InlineKeyboard[0])
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	bh.sendOrEditMessageHelper(chatID, messageID, text, &keyboard)
}
