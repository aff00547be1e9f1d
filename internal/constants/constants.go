package constants

import (
	"fmt"
	"time"
)

// Session States
// Состояния диалога
const (
	STATE_IDLE          = "idle"
	STATE_AWAIT_EMAIL   = "await_email"
	STATE_BIO_NAME      = "bio_name"
	STATE_BIO_BIRTHDAY  = "bio_birthday"
	STATE_BIO_SEX       = "bio_sex"
	STATE_FEATURE_INPUT = "feature_input"
)

// Callback Data Prefixes
// Префиксы данных обратного вызова
const (
	CALLBACK_PREFIX_TARIFF        = "tariff:"
	CALLBACK_PREFIX_CHECK_PAYMENT = "check_payment:"
	CALLBACK_PREFIX_FEATURE       = "feature:"
	CALLBACK_PREFIX_SEX           = "sex:"
	CALLBACK_CHECK_SUB            = "check_sub"
	CALLBACK_BACK_TO_MAIN         = "back_to_main"
	CALLBACK_TOPUP                = "topup"
	CALLBACK_CABINET              = "cabinet"
	CALLBACK_REFERRAL             = "referral"
	CALLBACK_BIO_BACK             = "bio_back"
)

// Start payload prefix for referral links
// Префикс реферальной ссылки в /start
const ReferralPayloadPrefix = "ref_"

// Bonus names
// Названия разовых бонусов
const (
	BONUS_SUB_2 = "sub_2"
)

// General Text Messages
// Общие текстовые сообщения
const (
	AccessDeniedMessage   = "❌ У вас нет прав доступа для этого действия."
	InsufficientMessage   = "⚡️ Недостаточно энергии. Пополните баланс."
	GenerationFailMessage = "😔 Не удалось выполнить запрос, энергия не списана. Попробуйте позже."
	EmailPromptMessage    = "🧾 На какой email отправить чек?"
	EmailInvalidMessage   = "Проверьте что email указан корректно\nВведите ещё раз"
)

// Tariff is one top-up package.
type Tariff struct {
	Rub     int64
	Credits int64
	Name    string
}

// Тарифы пополнения
var Tariffs = []Tariff{
	{Rub: 99, Credits: 100, Name: "Искорка"},
	{Rub: 499, Credits: 550, Name: "Поток"},
	{Rub: 999, Credits: 1300, Name: "Ресурс"},
	{Rub: 1999, Credits: 3000, Name: "Изобилие"},
}

// TariffByRub finds the package priced at rub rubles.
func TariffByRub(rub int64) (Tariff, bool) {
	for _, t := range Tariffs {
		if t.Rub == rub {
			return t, true
		}
	}
	return Tariff{}, false
}

// Label is the button text for the tariff.
func (t Tariff) Label() string {
	return fmt.Sprintf("%s: %d ⚡️ за %d ₽", t.Name, t.Credits, t.Rub)
}

// Features
// Платные функции
const (
	FEATURE_WITCHCRAFT  = "witchcraft"
	FEATURE_READING     = "reading"
	FEATURE_AI_PORTRAIT = "ai_portrait"
	FEATURE_DAILY_CARD  = "daily_card"
	FEATURE_FOLLOW_UP   = "follow_up"
)

// COST is the price of one feature use in credits.
var COST = map[string]int64{
	FEATURE_WITCHCRAFT:  10,
	FEATURE_READING:     1,
	FEATURE_AI_PORTRAIT: 2,
	FEATURE_DAILY_CARD:  2,
	FEATURE_FOLLOW_UP:   1,
}

var FeatureDisplayMap = map[string]string{
	FEATURE_WITCHCRAFT:  "🔮 Ведьмина сила",
	FEATURE_READING:     "🃏 Расклад",
	FEATURE_AI_PORTRAIT: "🎨 ИИ-портрет",
	FEATURE_DAILY_CARD:  "🌅 Карта дня",
	FEATURE_FOLLOW_UP:   "💬 Уточняющий вопрос",
}

// FeatureOrder is the menu order of FeatureDisplayMap.
var FeatureOrder = []string{
	FEATURE_DAILY_CARD,
	FEATURE_READING,
	FEATURE_FOLLOW_UP,
	FEATURE_AI_PORTRAIT,
	FEATURE_WITCHCRAFT,
}

var SexDisplayMap = map[string]string{
	"female": "👩 Женский",
	"male":   "👨 Мужской",
}

// ChannelMemberStatuses are the chat member statuses that count as subscribed.
var ChannelMemberStatuses = map[string]bool{
	"member":        true,
	"administrator": true,
	"creator":       true,
	"restricted":    true,
}

var MonthMap = map[time.Month]string{
	time.January:   "января",
	time.February:  "февраля",
	time.March:     "марта",
	time.April:     "апреля",
	time.May:       "мая",
	time.June:      "июня",
	time.July:      "июля",
	time.August:    "августа",
	time.September: "сентября",
	time.October:   "октября",
	time.November:  "ноября",
	time.December:  "декабря",
}
