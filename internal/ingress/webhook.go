package ingress

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"energybot/internal/ledger"
	"energybot/internal/payments"
)

const maxNotificationBytes = 1 << 20

// Authenticator decides whether a webhook request comes from the gateway.
type Authenticator interface {
	Allow(r *http.Request) bool
}

// WebhookHandler принимает уведомления от ЮKassa.
// WebhookHandler receives YooKassa payment notifications.
type WebhookHandler struct {
	checker *Checker
	auth    Authenticator
	log     *slog.Logger
}

func NewWebhookHandler(checker *Checker, auth Authenticator, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{checker: checker, auth: auth, log: log.With("component", "webhook")}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.auth.Allow(r) {
		h.log.WarnContext(ctx, "webhook rejected", "ip", RemoteIP(r).String())
		writeStatus(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNotificationBytes))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "cannot read body")
		return
	}
	defer r.Body.Close()

	var n payments.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		h.log.WarnContext(ctx, "invalid notification json", "error", err)
		writeStatus(w, http.StatusBadRequest, "invalid json")
		return
	}
	if n.Object.ID == "" {
		writeStatus(w, http.StatusBadRequest, "missing payment id")
		return
	}

	status := n.Object.Status
	if status == "" {
		status = strings.TrimPrefix(n.Event, "payment.")
	}
	log := h.log.With("payment_id", n.Object.ID, "event", n.Event, "status", status)
	if chatID, ok := payments.ChatID(n.Object.Metadata); ok {
		log = log.With("chat_id", chatID)
	}
	log.InfoContext(ctx, "notification received")

	outcome, err := h.checker.Apply(ctx, n.Object.ID, payments.ParseStatus(status))
	switch {
	case errors.Is(err, ledger.ErrPaymentNotFound):
		log.WarnContext(ctx, "notification for unknown payment")
		writeStatus(w, http.StatusOK, string(OutcomeNotFound))
	case err != nil:
		log.ErrorContext(ctx, "notification handling failed", "error", err)
		writeStatus(w, http.StatusInternalServerError, "internal error")
	default:
		log.InfoContext(ctx, "notification handled", "outcome", outcome)
		writeStatus(w, http.StatusOK, string(outcome))
	}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
