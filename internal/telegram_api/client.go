package telegram_api

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
)

// Sender is the part of the Bot API the handlers use. BotClient implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// BotClient представляет собой обертку для Telegram Bot API.
// BotClient represents a wrapper for the Telegram Bot API.
type BotClient struct {
	api   *tgbotapi.BotAPI
	Debug bool
	log   *slog.Logger
}

var _ Sender = (*BotClient)(nil)

// NewBotClient инициализирует Telegram бота и отключает вебхук, чтобы
// работал getUpdates.
// NewBotClient initializes the Telegram bot and drops any webhook so that
// getUpdates works.
func NewBotClient(token string, debug bool, log *slog.Logger) (*BotClient, error) {
	if token == "" {
		return nil, fmt.Errorf("токен Telegram API не предоставлен")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации Telegram Bot API: %w", err)
	}
	api.Debug = debug
	log = log.With("component", "telegram")
	log.Info("авторизован", "bot", api.Self.UserName)

	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: false}); err != nil {
		// Ошибка может возникнуть, если вебхука и не было.
		log.Warn("не удалось отключить вебхук", "error", err)
	}
	return &BotClient{api: api, Debug: debug, log: log}, nil
}

// Username returns the bot's @username without the @.
func (bc *BotClient) Username() string {
	return bc.api.Self.UserName
}

// GetUpdatesChan возвращает канал обновлений от Telegram.
func (bc *BotClient) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return bc.api.GetUpdatesChan(config)
}

// StopReceivingUpdates closes the updates channel.
func (bc *BotClient) StopReceivingUpdates() {
	bc.api.StopReceivingUpdates()
}

// Send отправляет сообщение через BotClient.
func (bc *BotClient) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if bc.Debug {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			bc.log.Debug("отправка сообщения", "chat_id", m.ChatID, "text", truncate(m.Text, 50))
		case tgbotapi.EditMessageTextConfig:
			bc.log.Debug("редактирование сообщения", "chat_id", m.ChatID, "message_id", m.MessageID, "text", truncate(m.Text, 50))
		default:
			bc.log.Debug("отправка", "type", fmt.Sprintf("%T", c))
		}
	}
	return bc.api.Send(c)
}

// Request выполняет запрос через BotClient.
func (bc *BotClient) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if bc.Debug {
		bc.log.Debug("запрос", "type", fmt.Sprintf("%T", c))
	}
	return bc.api.Request(c)
}

// MakeRequest выполняет произвольный запрос к API Telegram.
// Полезен для методов, не обернутых в tgbotapi.
func (bc *BotClient) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	if bc.Debug {
		bc.log.Debug("MakeRequest", "endpoint", endpoint, "params", params)
	}
	return bc.api.MakeRequest(endpoint, params)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
