package handlers

import (
	"context"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"energybot/internal/constants"
	"energybot/internal/models"
	"energybot/internal/session"
	"energybot/internal/utils"
)

const (
	maxNameLength  = 64
	promptName     = "✨ Давайте познакомимся!\n\nКак вас зовут?"
	promptBirthday = "📅 Когда вы родились? Например: 12.07.1996 или 12 июля 1996"
)

// startOnboarding задаёт первый вопрос анкеты.
func (bh *BotHandler) startOnboarding(chatID int64) {
	bh.Deps.SessionManager.ClearState(chatID)
	bh.Deps.SessionManager.SetState(chatID, constants.STATE_BIO_NAME)
	bh.sendOrEditMessageHelper(chatID, 0, promptName, nil)
}

func (bh *BotHandler) handleBioName(ctx context.Context, chatID int64, user models.User, text string) {
	if text == "" || utf8.RuneCountInString(text) > maxNameLength {
		bh.sendMessage(chatID, "Введите имя длиной до 64 символов.")
		return
	}
	if err := bh.Deps.Users.UpdateProfile(ctx, user.ID, models.UserFields{Name: &text}); err != nil {
		bh.log.ErrorContext(ctx, "save name", "user_id", user.ID, "error", err)
		bh.sendErrorMessageHelper(chatID, 0, "❌ Не удалось сохранить ответ. Попробуйте /start.")
		return
	}
	bh.Deps.SessionManager.UpdateTempFlow(chatID, func(d *session.TempFlowData) { d.BioName = text })
	bh.Deps.SessionManager.SetState(chatID, constants.STATE_BIO_BIRTHDAY)
	bh.sendBirthdayPrompt(chatID, 0)
}

func (bh *BotHandler) sendBirthdayPrompt(chatID int64, messageID int) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(bioBackButton()))
	bh.sendOrEditMessageHelper(chatID, messageID, promptBirthday, &keyboard)
}

// handleBioBack возвращает анкету на предыдущий вопрос.
func (bh *BotHandler) handleBioBack(chatID int64, user models.User, messageID int) {
	switch bh.Deps.SessionManager.GetState(chatID) {
	case constants.STATE_BIO_BIRTHDAY, constants.STATE_BIO_SEX:
	default:
		bh.SendMainMenu(chatID, user, messageID)
		return
	}
	switch bh.Deps.SessionManager.PopState(chatID) {
	case constants.STATE_BIO_NAME:
		bh.sendOrEditMessageHelper(chatID, messageID, promptName, nil)
	case constants.STATE_BIO_BIRTHDAY:
		bh.sendBirthdayPrompt(chatID, messageID)
	default:
		bh.startOnboarding(chatID)
	}
}

func (bh *BotHandler) handleBioBirthday(ctx context.Context, chatID int64, user models.User, text string) {
	birthday, err := utils.ValidateBirthday(text, time.Now())
	if err != nil {
		bh.sendMessage(chatID, "Не получилось разобрать дату. Введите её в формате ДД.ММ.ГГГГ.")
		return
	}
	if err := bh.Deps.Users.UpdateProfile(ctx, user.ID, models.UserFields{Birthday: &birthday}); err != nil {
		bh.log.ErrorContext(ctx, "save birthday", "user_id", user.ID, "error", err)
		bh.sendErrorMessageHelper(chatID, 0, "❌ Не удалось сохранить ответ. Попробуйте /start.")
		return
	}
	bh.Deps.SessionManager.UpdateTempFlow(chatID, func(d *session.TempFlowData) { d.BioBirthday = birthday })
	bh.Deps.SessionManager.SetState(chatID, constants.STATE_BIO_SEX)
	keyboard := sexKeyboard()
	bh.sendOrEditMessageHelper(chatID, 0, "Укажите ваш пол:", &keyboard)
}

// handleBioSex завершает анкету и переводит пользователя в qualified.
func (bh *BotHandler) handleBioSex(ctx context.Context, chatID int64, user models.User, messageID int, sex string) {
	if bh.Deps.SessionManager.GetState(chatID) != constants.STATE_BIO_SEX {
		bh.SendMainMenu(chatID, user, messageID)
		return
	}
	if _, ok := constants.SexDisplayMap[sex]; !ok {
		bh.sendErrorMessageHelper(chatID, messageID, "❌ Некорректный запрос.")
		return
	}
	if err := bh.Deps.Users.UpdateProfile(ctx, user.ID, models.UserFields{Sex: &sex}); err != nil {
		bh.log.ErrorContext(ctx, "save sex", "user_id", user.ID, "error", err)
		bh.sendErrorMessageHelper(chatID, messageID, "❌ Не удалось сохранить ответ. Попробуйте /start.")
		return
	}
	if err := bh.Deps.Users.CompleteOnboarding(ctx, user.ID); err != nil {
		bh.log.ErrorContext(ctx, "complete onboarding", "user_id", user.ID, "error", err)
	}
	bh.Deps.SessionManager.ClearState(chatID)

	if fresh, err := bh.Deps.Store.GetUser(ctx, user.ID); err == nil {
		user = fresh
	}
	bh.SendMainMenu(chatID, user, messageID)
}
