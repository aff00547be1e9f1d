// Файл: internal/utils/formatters.go

package utils

import (
	"fmt"
	"html"
	"time"

	"energybot/internal/constants"
)

// FormatCredits форматирует сумму энергии для сообщений.
func FormatCredits(n int64) string {
	return fmt.Sprintf("%d ⚡️", n)
}

// FormatRub форматирует сумму в рублях.
func FormatRub(n int64) string {
	return fmt.Sprintf("%d ₽", n)
}

// FormatDateRu форматирует дату как "12 июля 1996".
func FormatDateRu(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), constants.MonthMap[t.Month()], t.Year())
}

// EscapeHTML экранирует пользовательский текст для ParseMode HTML.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}
