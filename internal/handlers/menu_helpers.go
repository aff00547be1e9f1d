package handlers

import (
	"strconv"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"energybot/internal/constants"
	"energybot/internal/session"
	"energybot/internal/telegram_api"
)

// --- Вспомогательные функции для отправки сообщений и управления сессией ---
// --- Helper functions for sending messages and managing session ---

// sendOrEditMessageHelper отправляет или редактирует сообщение и запоминает его как текущее меню.
func (bh *BotHandler) sendOrEditMessageHelper(
	chatID int64,
	messageIDToTryEdit int,
	text string,
	keyboard *tgbotapi.InlineKeyboardMarkup,
) (tgbotapi.Message, error) {
	sentMsg, err := telegram_api.SendOrEditMessage(bh.Deps.BotClient, chatID, messageIDToTryEdit, text, keyboard, tgbotapi.ModeHTML)
	if err != nil {
		bh.log.Error("send menu", "chat_id", chatID, "error", err)
		return tgbotapi.Message{}, err
	}
	if sentMsg.MessageID != 0 {
		bh.Deps.SessionManager.UpdateTempFlow(chatID, func(d *session.TempFlowData) {
			d.MenuMessageID = sentMsg.MessageID
		})
	}
	return sentMsg, nil
}

// sendErrorMessageHelper отправляет сообщение об ошибке с кнопкой главного меню.
func (bh *BotHandler) sendErrorMessageHelper(chatID int64, messageIDToEdit int, errorText string) {
	if _, err := telegram_api.SendErrorMessage(bh.Deps.BotClient, chatID, messageIDToEdit, errorText); err != nil {
		bh.log.Error("send error message", "chat_id", chatID, "error", err)
	}
}

// sendMessage отправляет простое сообщение без клавиатуры.
func (bh *BotHandler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := bh.Deps.BotClient.Send(msg); err != nil {
		bh.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (bh *BotHandler) menuMessageID(chatID int64) int {
	return bh.Deps.SessionManager.GetTempFlow(chatID).MenuMessageID
}

func backKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Главное меню", constants.CALLBACK_BACK_TO_MAIN),
		),
	)
}

func topupKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, t := range constants.Tariffs {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(t.Label(), constants.CALLBACK_PREFIX_TARIFF+strconv.FormatInt(t.Rub, 10)),
		))
	}
	rows = append(rows, backKeyboard().InlineKeyboard...)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func sexKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(constants.SexDisplayMap["female"], constants.CALLBACK_PREFIX_SEX+"female"),
			tgbotapi.NewInlineKeyboardButtonData(constants.SexDisplayMap["male"], constants.CALLBACK_PREFIX_SEX+"male"),
		),
		tgbotapi.NewInlineKeyboardRow(bioBackButton()),
	)
}

func bioBackButton() tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", constants.CALLBACK_BIO_BACK)
}
