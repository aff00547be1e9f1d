// Файл: internal/api/middleware.go
package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// AdminContextKey - ключ, под которым в контексте запроса лежит способ входа.
var AdminContextKey = &contextKey{"Admin"}

type contextKey struct {
	name string
}

// AdminMiddleware пропускает запрос с заголовком "Authorization: Bearer <token>"
// или с initData владельца бота в X-Telegram-Auth не старше maxAge.
func AdminMiddleware(token, botToken string, ownerChatID int64, maxAge time.Duration, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			via := ""
			if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
				if subtle.ConstantTimeCompare([]byte(bearer), []byte(token)) == 1 {
					via = "token"
				}
			}
			if via == "" && botToken != "" && ownerChatID != 0 {
				if initData := r.Header.Get("X-Telegram-Auth"); initData != "" {
					valid, user, err := validateInitData(initData, botToken, maxAge, time.Now())
					if err != nil {
						log.WarnContext(r.Context(), "invalid initData", "error", err)
					}
					if valid && user.ID == ownerChatID {
						via = "telegram"
					}
				}
			}
			if via == "" {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), AdminContextKey, via)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Структура для парсинга JSON из initData
type telegramUserData struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// validateInitData - функция для проверки подлинности данных от Telegram.
// Подпись старше maxAge отклоняется; maxAge <= 0 отключает проверку.
func validateInitData(initData, botToken string, maxAge time.Duration, now time.Time) (bool, telegramUserData, error) {
	var userData telegramUserData

	q, err := url.ParseQuery(initData)
	if err != nil {
		return false, userData, fmt.Errorf("failed to parse initData: %w", err)
	}
	hash := q.Get("hash")
	if hash == "" {
		return false, userData, fmt.Errorf("hash is not present in initData")
	}
	userJSON := q.Get("user")
	if userJSON == "" {
		return false, userData, fmt.Errorf("user data is not present in initData")
	}
	if err := json.Unmarshal([]byte(userJSON), &userData); err != nil {
		return false, userData, fmt.Errorf("failed to unmarshal user data: %w", err)
	}

	expected := signInitData(q, botToken)
	if !hmac.Equal([]byte(expected), []byte(hash)) {
		return false, userData, nil
	}
	if maxAge > 0 {
		ts, err := strconv.ParseInt(q.Get("auth_date"), 10, 64)
		if err != nil {
			return false, userData, fmt.Errorf("invalid auth_date: %w", err)
		}
		if age := now.Sub(time.Unix(ts, 0)); age > maxAge {
			return false, userData, fmt.Errorf("initData expired %s ago", (age - maxAge).Truncate(time.Second))
		}
	}
	return true, userData, nil
}

// signInitData считает hash по правилам Telegram WebApp.
func signInitData(q url.Values, botToken string) string {
	var pairs []string
	for k, v := range q {
		if k != "hash" {
			pairs = append(pairs, fmt.Sprintf("%s=%s", k, v[0]))
		}
	}
	sort.Strings(pairs)
	dataCheckString := strings.Join(pairs, "\n")

	secretKey := hmac.New(sha256.New, []byte("WebAppData"))
	secretKey.Write([]byte(botToken))

	h := hmac.New(sha256.New, secretKey.Sum(nil))
	h.Write([]byte(dataCheckString))
	return hex.EncodeToString(h.Sum(nil))
}
