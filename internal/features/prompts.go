package features

import (
	"fmt"
	"strings"
	"time"

	"energybot/internal/constants"
	"energybot/internal/generation"
	"energybot/internal/models"
)

const systemPrompt = "Ты мудрый и бережный эзотерический наставник. Отвечай по-русски, тепло и без медицинских или финансовых советов."

var featureTasks = map[string]string{
	constants.FEATURE_WITCHCRAFT:  "Составь подробный ритуал силы на запрос пользователя.",
	constants.FEATURE_READING:     "Сделай расклад Таро на три карты по запросу пользователя и растолкуй его.",
	constants.FEATURE_AI_PORTRAIT: "Опиши энергетический портрет пользователя так, чтобы по описанию можно было нарисовать картину.",
	constants.FEATURE_DAILY_CARD:  "Вытяни карту дня и дай короткое напутствие на сегодня.",
	constants.FEATURE_FOLLOW_UP:   "Ответь на уточняющий вопрос к предыдущему раскладу.",
}

func buildRequest(feature string, u models.User, request string, now time.Time) generation.Request {
	var b strings.Builder
	b.WriteString(featureTasks[feature])
	fmt.Fprintf(&b, "\nДата: %s.", now.Format("02.01.2006"))
	fmt.Fprintf(&b, "\nИмя: %s.", u.DisplayName())
	if u.Sex.Valid {
		fmt.Fprintf(&b, "\nПол: %s.", u.Sex.String)
	}
	if u.Birthday.Valid {
		fmt.Fprintf(&b, "\nДата рождения: %s.", u.Birthday.Time.Format("02.01.2006"))
	}
	if request = strings.TrimSpace(request); request != "" {
		fmt.Fprintf(&b, "\nЗапрос: %s", request)
	}
	return generation.Request{System: systemPrompt, Prompt: b.String()}
}
