package handlers

import (
	"context"
	"errors"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"energybot/internal/constants"
	"energybot/internal/features"
	"energybot/internal/formatters"
	"energybot/internal/ledger"
	"energybot/internal/models"
	"energybot/internal/session"
)

// featurePrompts - что спросить у пользователя перед запуском функции.
// Карта дня запускается сразу.
var featurePrompts = map[string]string{
	constants.FEATURE_READING:     "🃏 Задайте вопрос для расклада:",
	constants.FEATURE_FOLLOW_UP:   "💬 Какой вопрос хотите уточнить?",
	constants.FEATURE_AI_PORTRAIT: "🎨 Опишите, каким должен быть портрет:",
	constants.FEATURE_WITCHCRAFT:  "🔮 Расскажите, с чем нужна помощь:",
}

// handleFeature начинает платную функцию: спрашивает запрос или сразу выполняет.
func (bh *BotHandler) handleFeature(ctx context.Context, chatID int64, user models.User, messageID int, feature string) {
	cost, ok := features.Cost(feature)
	if !ok {
		bh.sendErrorMessageHelper(chatID, messageID, "❌ Некорректный запрос.")
		return
	}
	if user.Balance < cost {
		bh.sendInsufficient(chatID, messageID)
		return
	}
	prompt, needsInput := featurePrompts[feature]
	if !needsInput {
		bh.runFeature(ctx, chatID, user, messageID, feature, "")
		return
	}
	bh.Deps.SessionManager.UpdateTempFlow(chatID, func(d *session.TempFlowData) { d.Feature = feature })
	bh.Deps.SessionManager.SetState(chatID, constants.STATE_FEATURE_INPUT)
	keyboard := backKeyboard()
	bh.sendOrEditMessageHelper(chatID, messageID, prompt, &keyboard)
}

func (bh *BotHandler) handleFeatureInput(ctx context.Context, chatID int64, user models.User, text string) {
	feature := bh.Deps.SessionManager.GetTempFlow(chatID).Feature
	bh.Deps.SessionManager.ClearState(chatID)
	if text == "" {
		bh.sendMessage(chatID, "Напишите запрос текстом.")
		return
	}
	bh.runFeature(ctx, chatID, user, 0, feature, text)
}

func (bh *BotHandler) runFeature(ctx context.Context, chatID int64, user models.User, messageID int, feature, request string) {
	res, err := bh.Deps.Features.Spend(ctx, user.ID, feature, request)
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		bh.sendInsufficient(chatID, messageID)
		return
	case errors.Is(err, features.ErrAlreadyUsedToday):
		bh.sendErrorMessageHelper(chatID, messageID, "🌅 Карта дня уже получена сегодня. Возвращайтесь завтра!")
		return
	case errors.Is(err, features.ErrBanned):
		bh.sendMessage(chatID, "Ваш аккаунт заблокирован.")
		return
	case err != nil:
		bh.log.WarnContext(ctx, "feature failed", "user_id", user.ID, "feature", feature, "error", err)
		bh.sendErrorMessageHelper(chatID, messageID, constants.GenerationFailMessage)
		return
	}
	keyboard := backKeyboard()
	bh.sendOrEditMessageHelper(chatID, 0, formatters.FormatFeatureResult(feature, res.Text, res.Cost, res.Balance), &keyboard)
}

func (bh *BotHandler) sendInsufficient(chatID int64, messageID int) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⚡️ Пополнить", constants.CALLBACK_TOPUP),
		),
		backKeyboard().InlineKeyboard[0],
	)
	bh.sendOrEditMessageHelper(chatID, messageID, constants.InsufficientMessage, &keyboard)
}
