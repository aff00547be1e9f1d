package session

import "time"

// TempFlowData хранит промежуточные ответы пользователя в многошаговых диалогах.
// TempFlowData holds a user's answers while a multi-step dialogue is in progress.
type TempFlowData struct {
	// Тариф, выбранный до запроса email.
	PendingTariffRub int64
	// Функция, для которой ждём текст запроса.
	Feature string

	BioName     string
	BioBirthday time.Time

	// Сообщение с кнопками, которое редактируется на каждом шаге.
	MenuMessageID int
}
