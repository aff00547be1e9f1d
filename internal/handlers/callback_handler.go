package handlers

import (
	"context"
	"strings"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"energybot/internal/constants"
	"energybot/internal/models"
)

// HandleCallback обрабатывает входящие callback query от Telegram.
func (bh *BotHandler) HandleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query == nil || query.Message == nil || query.From == nil {
		return
	}
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	data := query.Data
	log := bh.log.With("chat_id", chatID, "data", data)

	if _, err := bh.Deps.BotClient.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		log.WarnContext(ctx, "answer callback", "error", err)
	}

	user, _, err := bh.Deps.Users.Merge(ctx, profileOf(query.From))
	if err != nil {
		log.ErrorContext(ctx, "merge user", "error", err)
		bh.sendErrorMessageHelper(chatID, 0, "Произошла ошибка с данными пользователя. Попробуйте /start.")
		return
	}
	if user.Segment == models.SegmentBanned {
		bh.sendErrorMessageHelper(chatID, messageID, "Ваш аккаунт заблокирован.")
		return
	}

	switch {
	case data == constants.CALLBACK_BACK_TO_MAIN:
		bh.Deps.SessionManager.ClearState(chatID)
		bh.SendMainMenu(chatID, user, messageID)
	case data == constants.CALLBACK_TOPUP:
		bh.SendTopupMenu(chatID, user, messageID)
	case data == constants.CALLBACK_CABINET:
		bh.SendCabinet(ctx, chatID, user, messageID)
	case data == constants.CALLBACK_REFERRAL:
		bh.SendReferral(ctx, chatID, user, messageID)
	case data == constants.CALLBACK_BIO_BACK:
		bh.handleBioBack(chatID, user, messageID)
	case data == constants.CALLBACK_CHECK_SUB:
		bh.handleCheckSubscription(ctx, chatID, user, messageID)
	case strings.HasPrefix(data, constants.CALLBACK_PREFIX_TARIFF):
		bh.handleTariff(ctx, chatID, user, messageID, strings.TrimPrefix(data, constants.CALLBACK_PREFIX_TARIFF))
	case strings.HasPrefix(data, constants.CALLBACK_PREFIX_CHECK_PAYMENT):
		bh.handleCheckPayment(ctx, chatID, user, messageID, strings.TrimPrefix(data, constants.CALLBACK_PREFIX_CHECK_PAYMENT))
	case strings.HasPrefix(data, constants.CALLBACK_PREFIX_FEATURE):
		bh.handleFeature(ctx, chatID, user, messageID, strings.TrimPrefix(data, constants.CALLBACK_PREFIX_FEATURE))
	case strings.HasPrefix(data, constants.CALLBACK_PREFIX_SEX):
		bh.handleBioSex(ctx, chatID, user, messageID, strings.TrimPrefix(data, constants.CALLBACK_PREFIX_SEX))
	default:
		log.WarnContext(ctx, "unknown callback")
		bh.sendErrorMessageHelper(chatID, messageID, "❌ Некорректный запрос.")
	}
}
