// Файл: internal/handlers/message_handler.go

package handlers

import (
	"context"
	"strings"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"energybot/internal/constants"
	"energybot/internal/models"
	"energybot/internal/users"
)

// HandleUpdate направляет обновление нужному обработчику.
func (bh *BotHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		bh.HandleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		bh.HandleCallback(ctx, update.CallbackQuery)
	}
}

func profileOf(from *tgbotapi.User) users.Profile {
	return users.Profile{
		TelegramID: from.ID,
		Username:   from.UserName,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
	}
}

// HandleMessage обрабатывает входящие сообщения от Telegram.
func (bh *BotHandler) HandleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message == nil || message.From == nil {
		return
	}
	chatID := message.Chat.ID
	text := strings.TrimSpace(message.Text)
	log := bh.log.With("chat_id", chatID)

	if message.IsCommand() && message.Command() == "start" {
		bh.handleStart(ctx, message)
		return
	}

	user, _, err := bh.Deps.Users.Merge(ctx, profileOf(message.From))
	if err != nil {
		log.ErrorContext(ctx, "merge user", "error", err)
		bh.sendErrorMessageHelper(chatID, 0, "❌ Произошла ошибка при обработке ваших данных. Попробуйте /start.")
		return
	}
	if user.Segment == models.SegmentBanned {
		bh.sendMessage(chatID, "Ваш аккаунт заблокирован.")
		return
	}

	if message.IsCommand() {
		bh.Deps.SessionManager.ClearState(chatID)
		switch message.Command() {
		case "balance":
			bh.SendCabinet(ctx, chatID, user, 0)
		case "topup":
			bh.SendTopupMenu(chatID, user, 0)
		case "ref":
			bh.SendReferral(ctx, chatID, user, 0)
		default:
			if !bh.handleAdminCommand(ctx, message) {
				log.InfoContext(ctx, "unknown command", "command", message.Command())
				bh.sendErrorMessageHelper(chatID, 0, "Неизвестная команда.")
			}
		}
		return
	}

	switch state := bh.Deps.SessionManager.GetState(chatID); state {
	case constants.STATE_BIO_NAME:
		bh.handleBioName(ctx, chatID, user, text)
	case constants.STATE_BIO_BIRTHDAY:
		bh.handleBioBirthday(ctx, chatID, user, text)
	case constants.STATE_BIO_SEX:
		keyboard := sexKeyboard()
		bh.sendOrEditMessageHelper(chatID, 0, "Выберите пол кнопкой ниже:", &keyboard)
	case constants.STATE_AWAIT_EMAIL:
		bh.handleEmailInput(ctx, chatID, user, message.MessageID, text)
	case constants.STATE_FEATURE_INPUT:
		bh.handleFeatureInput(ctx, chatID, user, text)
	default:
		bh.SendMainMenu(chatID, user, 0)
	}
}

// handleStart регистрирует пользователя и запускает анкету, если она не заполнена.
func (bh *BotHandler) handleStart(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	user, created, err := bh.Deps.Users.Start(ctx, profileOf(message.From), message.CommandArguments())
	if err != nil {
		bh.log.ErrorContext(ctx, "start", "chat_id", chatID, "error", err)
		bh.sendErrorMessageHelper(chatID, 0, "❌ Произошла ошибка при обработке ваших данных. Попробуйте еще раз.")
		return
	}
	if user.Segment == models.SegmentBanned {
		bh.sendMessage(chatID, "Ваш аккаунт заблокирован.")
		return
	}
	bh.Deps.SessionManager.ClearState(chatID)
	if created || !user.Name.Valid || !user.Birthday.Valid || !user.Sex.Valid {
		bh.startOnboarding(chatID)
		return
	}
	bh.SendMainMenu(chatID, user, 0)
}
