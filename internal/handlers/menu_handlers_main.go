package handlers

import (
	"context"
	"errors"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"energybot/internal/constants"
	"energybot/internal/formatters"
	"energybot/internal/models"
	"energybot/internal/telegram_api"
	"energybot/internal/users"
	"energybot/internal/utils"
)

// SendMainMenu отправляет главное меню пользователю.
func (bh *BotHandler) SendMainMenu(chatID int64, user models.User, messageIDToEdit int) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(constants.FeatureOrder); i += 2 {
		row := []tgbotapi.InlineKeyboardButton{featureButton(constants.FeatureOrder[i])}
		if i+1 < len(constants.FeatureOrder) {
			row = append(row, featureButton(constants.FeatureOrder[i+1]))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⚡️ Пополнить", constants.CALLBACK_TOPUP),
		tgbotapi.NewInlineKeyboardButtonData("👤 Кабинет", constants.CALLBACK_CABINET),
	))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("👥 Пригласить друга", constants.CALLBACK_REFERRAL),
	))
	if bh.Deps.Config.SubscriptionChannelID != 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎁 Бонус за подписку", constants.CALLBACK_CHECK_SUB),
		))
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	bh.sendOrEditMessageHelper(chatID, messageIDToEdit, formatters.FormatMainMenu(user), &keyboard)
}

func featureButton(feature string) tgbotapi.InlineKeyboardButton {
	label := constants.FeatureDisplayMap[feature] + " · " + utils.FormatCredits(constants.COST[feature])
	return tgbotapi.NewInlineKeyboardButtonData(label, constants.CALLBACK_PREFIX_FEATURE+feature)
}

// SendTopupMenu показывает тарифы пополнения.
func (bh *BotHandler) SendTopupMenu(chatID int64, user models.User, messageIDToEdit int) {
	keyboard := topupKeyboard()
	bh.sendOrEditMessageHelper(chatID, messageIDToEdit, formatters.FormatTopupMenu(user.Balance), &keyboard)
}

// SendCabinet показывает личный кабинет.
func (bh *BotHandler) SendCabinet(ctx context.Context, chatID int64, user models.User, messageIDToEdit int) {
	cabinet, err := bh.Deps.Users.Cabinet(ctx, user.ID)
	if err != nil {
		bh.log.ErrorContext(ctx, "load cabinet", "user_id", user.ID, "error", err)
		bh.sendErrorMessageHelper(chatID, messageIDToEdit, "❌ Не удалось загрузить кабинет. Попробуйте позже.")
		return
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⚡️ Пополнить", constants.CALLBACK_TOPUP),
			tgbotapi.NewInlineKeyboardButtonData("👥 Пригласить", constants.CALLBACK_REFERRAL),
		),
		backKeyboard().InlineKeyboard[0],
	)
	bh.sendOrEditMessageHelper(chatID, messageIDToEdit, formatters.FormatCabinet(cabinet), &keyboard)
}

// SendReferral отправляет реферальную ссылку и QR-код с ней.
func (bh *BotHandler) SendReferral(ctx context.Context, chatID int64, user models.User, messageIDToEdit int) {
	botName := bh.Deps.Config.BotUsername
	link, err := utils.GenerateReferralLink(botName, user.TelegramID)
	if err != nil {
		bh.log.ErrorContext(ctx, "referral link", "user_id", user.ID, "error", err)
		bh.sendErrorMessageHelper(chatID, messageIDToEdit, "❌ Реферальная ссылка сейчас недоступна.")
		return
	}
	cabinet, err := bh.Deps.Users.Cabinet(ctx, user.ID)
	if err != nil {
		bh.log.WarnContext(ctx, "referral summary", "user_id", user.ID, "error", err)
	}
	keyboard := backKeyboard()
	text := formatters.FormatReferral(link, bh.Deps.Config.ReferralBonusPercent, cabinet.Referrals)
	bh.sendOrEditMessageHelper(chatID, messageIDToEdit, text, &keyboard)

	png, err := utils.GenerateQRCode(botName, user.TelegramID)
	if err != nil {
		bh.log.WarnContext(ctx, "referral qr", "user_id", user.ID, "error", err)
		return
	}
	if err := telegram_api.SendPhotoBytes(bh.Deps.BotClient, chatID, "referral.png", png, "📷 QR-код вашей ссылки"); err != nil {
		bh.log.WarnContext(ctx, "send referral qr", "chat_id", chatID, "error", err)
	}
}

// handleCheckSubscription начисляет бонус за подписку на канал.
func (bh *BotHandler) handleCheckSubscription(ctx context.Context, chatID int64, user models.User, messageID int) {
	granted, err := bh.Deps.Users.ClaimSubscriptionBonus(ctx, user.ID)
	keyboard := backKeyboard()
	switch {
	case errors.Is(err, users.ErrNotSubscribed):
		bh.sendOrEditMessageHelper(chatID, messageID, "📢 Подпишитесь на канал и нажмите кнопку ещё раз.", &keyboard)
	case errors.Is(err, users.ErrBonusDisabled):
		bh.sendErrorMessageHelper(chatID, messageID, "Бонус за подписку сейчас не действует.")
	case err != nil:
		bh.log.ErrorContext(ctx, "claim subscription bonus", "user_id", user.ID, "error", err)
		bh.sendErrorMessageHelper(chatID, messageID, "❌ Не удалось проверить подписку. Попробуйте позже.")
	case !granted:
		bh.sendOrEditMessageHelper(chatID, messageID, "Вы уже получили бонус за подписку 💛", &keyboard)
	default:
		text := "🎁 Спасибо за подписку! Начислено " + utils.FormatCredits(bh.Deps.Config.SubscriptionBonus) + "."
		bh.sendOrEditMessageHelper(chatID, messageID, text, &keyboard)
	}
}
