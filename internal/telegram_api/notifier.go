package telegram_api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"energybot/internal/models"
	"energybot/internal/topup"
)

// UserGetter loads users by their ledger id.
type UserGetter interface {
	GetUser(ctx context.Context, id int64) (models.User, error)
}

// notifyTimeout bounds one background delivery.
const notifyTimeout = 30 * time.Second

// PaymentNotifier сообщает пользователю о зачислении, а пригласившему о бонусе.
type PaymentNotifier struct {
	sender Sender
	users  UserGetter
	log    *slog.Logger
	wg     sync.WaitGroup
}

func NewPaymentNotifier(sender Sender, users UserGetter, log *slog.Logger) *PaymentNotifier {
	return &PaymentNotifier{sender: sender, users: users, log: log.With("component", "notifier")}
}

// PaymentSettled sends the payer a confirmation with the new balance in the
// background, so the webhook response does not wait for Telegram. A delivery
// failure is logged only; the payment is already settled.
func (n *PaymentNotifier) PaymentSettled(ctx context.Context, res topup.Result) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		n.notify(ctx, res)
	}()
}

// Wait blocks until every pending notification has been sent or dropped.
func (n *PaymentNotifier) Wait() { n.wg.Wait() }

func (n *PaymentNotifier) notify(ctx context.Context, res topup.Result) {
	payer, err := n.users.GetUser(ctx, res.Payment.UserID)
	if err != nil {
		n.log.ErrorContext(ctx, "load payer", "user_id", res.Payment.UserID, "error", err)
		return
	}
	text := fmt.Sprintf("✅ <b>Оплата прошла успешно!</b>\n\n+%d энергии ⚡️\nВаш баланс: %d ⚡️",
		res.Payment.Amount, payer.Balance)
	n.send(ctx, payer.TelegramID, text)

	if res.Bonus <= 0 || !payer.ReferredBy.Valid {
		return
	}
	referrer, err := n.users.GetUser(ctx, payer.ReferredBy.Int64)
	if err != nil {
		n.log.ErrorContext(ctx, "load referrer", "user_id", payer.ReferredBy.Int64, "error", err)
		return
	}
	n.send(ctx, referrer.TelegramID, fmt.Sprintf("🎁 Ваш друг пополнил баланс. Вам начислено %d ⚡️!", res.Bonus))
}

func (n *PaymentNotifier) send(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := n.sender.Send(msg); err != nil {
		n.log.WarnContext(ctx, "notification not delivered", "chat_id", chatID, "error", err)
	}
}
