package telegram_api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"energybot/internal/ledger/ledgertest"
	"energybot/internal/models"
	"energybot/internal/topup"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	editErr  error
	sendErr  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 100 + len(f.sent)}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	if _, ok := c.(tgbotapi.EditMessageTextConfig); ok && f.editErr != nil {
		return nil, f.editErr
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSendOrEditMessageEdits(t *testing.T) {
	s := &fakeSender{}
	msg, err := SendOrEditMessage(s, 1, 42, "hi", nil, tgbotapi.ModeHTML)
	if err != nil {
		t.Fatal(err)
	}
	if msg.MessageID != 42 || len(s.sent) != 0 || len(s.requests) != 1 {
		t.Fatalf("edit expected, got id=%d sent=%d requests=%d", msg.MessageID, len(s.sent), len(s.requests))
	}
}

func TestSendOrEditMessageNotModified(t *testing.T) {
	s := &fakeSender{editErr: errors.New("Bad Request: message is not modified")}
	msg, err := SendOrEditMessage(s, 1, 42, "hi", nil, "")
	if err != nil || msg.MessageID != 42 || len(s.sent) != 0 {
		t.Fatalf("not modified must be a success, got %v id=%d sent=%d", err, msg.MessageID, len(s.sent))
	}
}

func TestSendOrEditMessageFallsBackToSend(t *testing.T) {
	s := &fakeSender{editErr: errors.New("Bad Request: message to edit not found")}
	msg, err := SendOrEditMessage(s, 1, 42, "hi", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(s.sent) != 1 || msg.MessageID == 42 {
		t.Fatalf("expected a new message, got sent=%d id=%d", len(s.sent), msg.MessageID)
	}
}

func TestSendOrEditMessageSendError(t *testing.T) {
	s := &fakeSender{sendErr: errors.New("forbidden")}
	if _, err := SendOrEditMessage(s, 1, 0, "hi", nil, ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeleteMessageZeroID(t *testing.T) {
	s := &fakeSender{}
	if DeleteMessage(s, 1, 0) {
		t.Fatal("message id 0 must not be deleted")
	}
	if !DeleteMessage(s, 1, 5) {
		t.Fatal("delete failed")
	}
}

func settledResult(payer models.User, bonus int64) topup.Result {
	return topup.Result{
		Payment: models.Payment{UserID: payer.ID, Amount: 500, ExternalPaymentID: "p1"},
		Settled: true,
		Bonus:   bonus,
	}
}

func TestPaymentNotifier(t *testing.T) {
	store := ledgertest.New()
	referrer := store.AddUser(models.User{TelegramID: 10})
	payer := store.AddUser(models.User{
		TelegramID: 20,
		Balance:    500,
		ReferredBy: sql.NullInt64{Int64: referrer.ID, Valid: true},
	})
	s := &fakeSender{}
	n := NewPaymentNotifier(s, store, discard())

	n.PaymentSettled(context.Background(), settledResult(payer, 50))
	n.Wait()

	texts := s.texts()
	if len(texts) != 2 {
		t.Fatalf("sent %d messages, want 2", len(texts))
	}
	if !strings.Contains(texts[0], "500") {
		t.Errorf("payer message %q lacks the amount", texts[0])
	}
	if !strings.Contains(texts[1], "50") {
		t.Errorf("referrer message %q lacks the bonus", texts[1])
	}
	if got := s.sent[1].(tgbotapi.MessageConfig).ChatID; got != 10 {
		t.Errorf("bonus sent to %d, want 10", got)
	}
}

func TestPaymentNotifierNoBonus(t *testing.T) {
	store := ledgertest.New()
	payer := store.AddUser(models.User{TelegramID: 20, Balance: 500})
	s := &fakeSender{}
	n := NewPaymentNotifier(s, store, discard())
	n.PaymentSettled(context.Background(), settledResult(payer, 0))
	n.Wait()
	if got := len(s.texts()); got != 1 {
		t.Fatalf("sent %d messages, want 1", got)
	}
}

func TestPaymentNotifierUnknownPayer(t *testing.T) {
	s := &fakeSender{}
	n := NewPaymentNotifier(s, ledgertest.New(), discard())
	n.PaymentSettled(context.Background(), topup.Result{Payment: models.Payment{UserID: 99}})
	n.Wait()
	if len(s.texts()) != 0 {
		t.Fatal("nothing should be sent for an unknown payer")
	}
}

type fakeRequester struct {
	status string
	err    error
	params tgbotapi.Params
}

func (f *fakeRequester) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	raw, _ := json.Marshal(map[string]string{"status": f.status})
	return &tgbotapi.APIResponse{Ok: true, Result: raw}, nil
}

func TestChannelMembership(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"member", true},
		{"administrator", true},
		{"creator", true},
		{"restricted", true},
		{"left", false},
		{"kicked", false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			r := &fakeRequester{status: tt.status}
			got, err := NewChannelMembership(r, -100123).IsMember(context.Background(), 7)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("IsMember = %v, want %v", got, tt.want)
			}
			if r.params["chat_id"] != "-100123" || r.params["user_id"] != "7" {
				t.Errorf("params = %v", r.params)
			}
		})
	}
}

func TestChannelMembershipError(t *testing.T) {
	r := &fakeRequester{err: errors.New("chat not found")}
	if _, err := NewChannelMembership(r, 1).IsMember(context.Background(), 7); err == nil {
		t.Fatal("expected error")
	}
}
