package handlers

import (
	"context"
	"log/slog"

	"energybot/internal/config"
	"energybot/internal/features"
	"energybot/internal/ingress"
	"energybot/internal/ledger"
	"energybot/internal/models"
	"energybot/internal/payments"
	"energybot/internal/reports"
	"energybot/internal/session"
	"energybot/internal/telegram_api"
	"energybot/internal/topup"
	"energybot/internal/users"
)

// CheckoutCreator opens payment intents with the gateway.
type CheckoutCreator interface {
	CreatePayment(ctx context.Context, credits, rub, payerTelegramID int64, email string, metadata map[string]string) (payments.Checkout, error)
}

// Store - то, что обработчикам нужно от базы напрямую: админ-команды и выгрузка.
type Store interface {
	ledger.Store
	reports.Source
	Stats(ctx context.Context) (models.Stats, error)
}

// HandlerDependencies содержит все зависимости, необходимые для обработчиков.
// HandlerDependencies contains all dependencies required for handlers.
type HandlerDependencies struct {
	Config         *config.Config
	BotClient      telegram_api.Sender
	SessionManager *session.SessionManager

	Users    *users.Service
	Features *features.Service
	Gateway  CheckoutCreator
	Payments *ledger.Payments
	Checker  *ingress.Checker
	Engine   *topup.Engine
	Balance  *ledger.Balance
	Store    Store

	Log *slog.Logger
}

// BotHandler инкапсулирует логику обработки сообщений и коллбэков.
// BotHandler encapsulates the logic for handling messages and callbacks.
type BotHandler struct {
	Deps HandlerDependencies
	log  *slog.Logger
}

// NewBotHandler создает новый экземпляр BotHandler.
// NewBotHandler creates a new instance of BotHandler.
func NewBotHandler(deps HandlerDependencies) *BotHandler {
	if deps.Config == nil || deps.BotClient == nil || deps.SessionManager == nil ||
		deps.Users == nil || deps.Features == nil || deps.Gateway == nil ||
		deps.Payments == nil || deps.Checker == nil || deps.Engine == nil ||
		deps.Balance == nil || deps.Store == nil || deps.Log == nil {
		// Без любой из зависимостей бот работать не сможет.
		panic("Не все зависимости для BotHandler были предоставлены.")
	}
	return &BotHandler{Deps: deps, log: deps.Log.With("component", "bot")}
}

func (bh *BotHandler) isOwner(chatID int64) bool {
	return bh.Deps.Config.OwnerChatID != 0 && chatID == bh.Deps.Config.OwnerChatID
}
