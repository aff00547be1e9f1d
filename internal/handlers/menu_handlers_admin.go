package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"energybot/internal/constants"
	"energybot/internal/formatters"
	"energybot/internal/ledger"
	"energybot/internal/reports"
	"energybot/internal/telegram_api"
)

// handleAdminCommand обрабатывает команды владельца. Возвращает false,
// если команда не админская.
func (bh *BotHandler) handleAdminCommand(ctx context.Context, message *tgbotapi.Message) bool {
	chatID := message.Chat.ID
	switch message.Command() {
	case "stats", "deposit", "withdraw", "replay_ref", "export":
	default:
		return false
	}
	if !bh.isOwner(chatID) {
		bh.log.WarnContext(ctx, "admin command denied", "chat_id", chatID, "command", message.Command())
		bh.sendMessage(chatID, constants.AccessDeniedMessage)
		return true
	}

	args := message.CommandArguments()
	switch message.Command() {
	case "stats":
		stats, err := bh.Deps.Store.Stats(ctx)
		if err != nil {
			bh.log.ErrorContext(ctx, "load stats", "error", err)
			bh.sendMessage(chatID, "❌ "+err.Error())
			return true
		}
		bh.sendMessage(chatID, formatters.FormatStats(stats))

	case "deposit", "withdraw":
		var tgID, amount int64
		if _, err := fmt.Sscanf(args, "%d %d", &tgID, &amount); err != nil || amount <= 0 {
			bh.sendMessage(chatID, fmt.Sprintf("Формат: /%s TG_ID Сумма", message.Command()))
			return true
		}
		bh.adminAdjustBalance(ctx, chatID, message.Command(), tgID, amount)

	case "replay_ref":
		if args == "" {
			bh.sendMessage(chatID, "Формат: /replay_ref PAYMENT_ID")
			return true
		}
		bonus, err := bh.Deps.Engine.ReplayReferral(ctx, args)
		if err != nil {
			bh.sendMessage(chatID, "❌ "+err.Error())
			return true
		}
		if bonus == 0 {
			bh.sendMessage(chatID, "Реферальный бонус уже начислен или не положен.")
			return true
		}
		bh.sendMessage(chatID, fmt.Sprintf("✅ Начислен реферальный бонус %d ⚡️", bonus))

	case "export":
		var buf bytes.Buffer
		if err := reports.WriteLedgerExport(ctx, bh.Deps.Store, &buf); err != nil {
			bh.log.ErrorContext(ctx, "export ledger", "error", err)
			bh.sendMessage(chatID, "❌ "+err.Error())
			return true
		}
		name := "ledger_" + time.Now().Format("2006-01-02") + ".xlsx"
		if err := telegram_api.SendDocumentBytes(bh.Deps.BotClient, chatID, name, buf.Bytes(), "📄 Выгрузка платежей"); err != nil {
			bh.log.ErrorContext(ctx, "send export", "error", err)
		}
	}
	return true
}

func (bh *BotHandler) adminAdjustBalance(ctx context.Context, chatID int64, command string, tgID, amount int64) {
	target, err := bh.Deps.Store.GetUserByExternalID(ctx, tgID)
	if errors.Is(err, ledger.ErrUserNotFound) {
		bh.sendMessage(chatID, fmt.Sprintf("❌ Пользователь %d не найден", tgID))
		return
	}
	if err != nil {
		bh.sendMessage(chatID, "❌ "+err.Error())
		return
	}

	reason := "admin:" + command
	var balance int64
	if command == "deposit" {
		balance, err = bh.Deps.Balance.Increase(ctx, bh.Deps.Store, target.ID, amount, reason)
	} else {
		balance, err = bh.Deps.Balance.Decrease(ctx, bh.Deps.Store, target.ID, amount, reason)
	}
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		bh.sendMessage(chatID, fmt.Sprintf("❌ Недостаточно средств: на балансе %d ⚡️", target.Balance))
		return
	}
	if err != nil {
		bh.sendMessage(chatID, "❌ "+err.Error())
		return
	}
	bh.sendMessage(chatID, fmt.Sprintf("✅ Баланс %d: %d ⚡️", tgID, balance))
}
