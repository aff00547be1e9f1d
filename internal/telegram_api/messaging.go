package telegram_api

import (
	"fmt"
	"strings"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"energybot/internal/constants"
)

// SendOrEditMessage пытается отредактировать существующее сообщение или отправляет новое.
// Если редактирование не удалось из-за "message is not modified", возвращает
// Message с ID исходного сообщения и nil в качестве ошибки.
func SendOrEditMessage(
	s Sender,
	chatID int64,
	messageIDToTryEdit int,
	text string,
	keyboard *tgbotapi.InlineKeyboardMarkup,
	parseMode string,
) (tgbotapi.Message, error) {
	if messageIDToTryEdit != 0 {
		var edit tgbotapi.EditMessageTextConfig
		if keyboard != nil {
			edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageIDToTryEdit, text, *keyboard)
		} else {
			edit = tgbotapi.NewEditMessageText(chatID, messageIDToTryEdit, text)
		}
		edit.ParseMode = parseMode

		_, err := s.Request(edit)
		if err == nil || strings.Contains(err.Error(), "message is not modified") {
			var msg tgbotapi.Message
			msg.Chat.ID = chatID
			msg.MessageID = messageIDToTryEdit
			msg.Text = text
			msg.ReplyMarkup = keyboard
			return msg, nil
		}
		// "message to edit not found" и прочие ошибки: отправляем новое сообщение.
	}

	newMsg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		newMsg.ReplyMarkup = keyboard
	}
	newMsg.ParseMode = parseMode
	sent, err := s.Send(newMsg)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return sent, nil
}

// SendErrorMessage отправляет сообщение об ошибке с кнопкой главного меню.
func SendErrorMessage(s Sender, chatID int64, messageIDToTryEdit int, errorText string) (tgbotapi.Message, error) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Главное меню", constants.CALLBACK_BACK_TO_MAIN),
		),
	)
	return SendOrEditMessage(s, chatID, messageIDToTryEdit, errorText, &keyboard, tgbotapi.ModeHTML)
}

// SendPhotoBytes отправляет картинку из памяти.
func SendPhotoBytes(s Sender, chatID int64, name string, data []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	_, err := s.Send(photo)
	return err
}

// SendDocumentBytes отправляет файл из памяти.
func SendDocumentBytes(s Sender, chatID int64, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	_, err := s.Send(doc)
	return err
}

// DeleteMessage удаляет сообщение. Уже удалённые сообщения не считаются ошибкой.
func DeleteMessage(s Sender, chatID int64, messageID int) bool {
	if messageID == 0 {
		return false
	}
	resp, err := s.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err == nil && resp != nil && resp.Ok
}
