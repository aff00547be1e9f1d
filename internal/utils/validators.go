package utils

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"energybot/internal/constants"
)

// ValidateEmail проверяет адрес для чека и возвращает его без имени и пробелов.
func ValidateEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", fmt.Errorf("некорректный email: %q", s)
	}
	at := strings.LastIndexByte(s, '@')
	if at < 1 || !strings.Contains(s[at+1:], ".") {
		return "", fmt.Errorf("некорректный email: %q", s)
	}
	return s, nil
}

// ValidateBirthday проверяет и парсит дату рождения.
// Поддерживает форматы "ДД.ММ.ГГГГ", "ГГГГ-ММ-ДД" и "ДД месяца ГГГГ".
func ValidateBirthday(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("строка даты пуста")
	}
	d, err := parseDate(s)
	if err != nil {
		return time.Time{}, err
	}
	if d.After(now) {
		return time.Time{}, fmt.Errorf("дата рождения в будущем: %s", s)
	}
	if d.Year() < now.Year()-120 {
		return time.Time{}, fmt.Errorf("слишком ранняя дата рождения: %s", s)
	}
	return d, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"02.01.2006", "2.1.2006", "2006-01-02"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}

	// "12 июля 1996"
	parts := strings.Fields(strings.ToLower(s))
	if len(parts) == 3 {
		day, errDay := strconv.Atoi(parts[0])
		year, errYear := strconv.Atoi(parts[2])
		if errDay == nil && errYear == nil {
			for m, name := range constants.MonthMap {
				if name == parts[1] || (len([]rune(parts[1])) >= 3 && strings.HasPrefix(name, parts[1])) {
					d := time.Date(year, m, day, 0, 0, 0, 0, time.UTC)
					if d.Day() == day {
						return d, nil
					}
				}
			}
		}
	}
	return time.Time{}, fmt.Errorf("некорректный формат даты: %q, ожидается ДД.ММ.ГГГГ", s)
}
