package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"

	"energybot/internal/constants"
)

// GenerateReferralLink генерирует реферальную ссылку для пользователя.
// botUsername должен передаваться, так как это конфигурационное значение.
func GenerateReferralLink(botUsername string, telegramID int64) (string, error) {
	if botUsername == "" {
		return "", fmt.Errorf("имя пользователя бота не настроено")
	}
	if telegramID <= 0 {
		return "", fmt.Errorf("невалидный ID пользователя для реферальной ссылки: %d", telegramID)
	}
	return fmt.Sprintf("https://t.me/%s?start=%s%d", botUsername, constants.ReferralPayloadPrefix, telegramID), nil
}

// GenerateQRCode генерирует PNG с QR-кодом реферальной ссылки.
func GenerateQRCode(botUsername string, telegramID int64) ([]byte, error) {
	link, err := GenerateReferralLink(botUsername, telegramID)
	if err != nil {
		return nil, err
	}
	// qrcode.Medium - уровень коррекции ошибок, 256 - размер в пикселях.
	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr for %s: %w", link, err)
	}
	return png, nil
}

// ParseReferralPayload extracts the referrer's Telegram id from a /start
// payload of the form ref_<telegram_id>.
func ParseReferralPayload(payload string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(payload), constants.ReferralPayloadPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
