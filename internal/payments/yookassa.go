package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// API-адрес YooKassa
const DefaultBaseURL = "https://api.yookassa.ru/v3"

// ErrNotFound is returned when the gateway does not know the payment id.
var ErrNotFound = errors.New("payment not found at gateway")

// Status is the gateway-side state of a payment as the ledger sees it.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusCanceled  Status = "canceled"
	// StatusUnknown covers timeouts and statuses the ledger does not act on.
	StatusUnknown Status = "unknown"
)

// ParseStatus maps a YooKassa status string. waiting_for_capture is still
// pending from the ledger's point of view because payments are auto-captured.
func ParseStatus(s string) Status {
	switch s {
	case "pending", "waiting_for_capture":
		return StatusPending
	case "succeeded":
		return StatusSucceeded
	case "canceled":
		return StatusCanceled
	}
	return StatusUnknown
}

// Receipt представляет структуру фискального чека.
type Receipt struct {
	Customer Customer      `json:"customer"`
	Items    []ReceiptItem `json:"items"`
}

// Customer представляет данные о покупателе.
type Customer struct {
	Email string `json:"email,omitempty"`
}

// ReceiptItem представляет товарную позицию в чеке.
type ReceiptItem struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	Amount      Amount `json:"amount"`
	VATCode     int    `json:"vat_code"` // Код ставки НДС. 1 = без НДС.
}

// PaymentRequest - структура запроса на создание платежа.
type PaymentRequest struct {
	Amount       Amount            `json:"amount"`
	Confirmation Confirmation      `json:"confirmation"`
	Description  string            `json:"description"`
	Capture      bool              `json:"capture"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Receipt      *Receipt          `json:"receipt,omitempty"`
}

// Amount - сумма платежа.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Rubles returns the amount in whole currency units, rounding kopecks up.
func (a Amount) Rubles() (int64, error) {
	d, err := decimal.NewFromString(a.Value)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", a.Value, err)
	}
	return d.Ceil().IntPart(), nil
}

// RubAmount formats whole rubles the way the API expects them.
func RubAmount(rub int64) Amount {
	return Amount{Value: decimal.NewFromInt(rub).StringFixed(2), Currency: "RUB"}
}

// Confirmation - способ подтверждения платежа.
type Confirmation struct {
	Type      string `json:"type"`
	ReturnURL string `json:"return_url,omitempty"`
}

// PaymentResponse - структура ответа от API YooKassa.
type PaymentResponse struct {
	ID           string               `json:"id"`
	Status       string               `json:"status"`
	Paid         bool                 `json:"paid"`
	Amount       Amount               `json:"amount"`
	Confirmation ConfirmationResponse `json:"confirmation"`
	CreatedAt    time.Time            `json:"created_at"`
	Description  string               `json:"description"`
	Metadata     map[string]string    `json:"metadata"`
	Test         bool                 `json:"test"`
}

// ConfirmationResponse - содержит URL для подтверждения платежа пользователем.
type ConfirmationResponse struct {
	Type            string `json:"type"`
	ConfirmationURL string `json:"confirmation_url"`
}

// Notification представляет структуру входящего уведомления от ЮKassa.
type Notification struct {
	Type   string          `json:"type"`  // e.g., "notification"
	Event  string          `json:"event"` // e.g., "payment.succeeded"
	Object PaymentResponse `json:"object"`
}

// ChatID returns the Telegram chat id carried in payment metadata, if any.
func ChatID(metadata map[string]string) (int64, bool) {
	v, ok := metadata["chat_id"]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	return id, err == nil
}

// Checkout is a freshly created payment intent.
type Checkout struct {
	ID              string
	ConfirmationURL string
	RubAmount       int64
}

// PaymentInfo is the gateway-side view of a payment.
type PaymentInfo struct {
	ID        string
	Status    Status
	RubAmount int64
	Metadata  map[string]string
}

// YooKassa is the payment gateway client.
type YooKassa struct {
	BaseURL    string
	ShopID     string
	SecretKey  string
	ReturnURL  string
	HTTPClient *http.Client
	log        *slog.Logger
}

func NewYooKassa(shopID, secretKey, returnURL string, log *slog.Logger) *YooKassa {
	return &YooKassa{
		BaseURL:    DefaultBaseURL,
		ShopID:     shopID,
		SecretKey:  secretKey,
		ReturnURL:  returnURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.With("component", "yookassa"),
	}
}

// CreatePayment создает платеж и возвращает ссылку на оплату.
// CreatePayment opens a checkout for rub currency units granting credits.
func (y *YooKassa) CreatePayment(ctx context.Context, credits, rub, payerTelegramID int64, email string, metadata map[string]string) (Checkout, error) {
	description := fmt.Sprintf("Пополнение баланса: %d энергии", credits)
	meta := map[string]string{
		"chat_id": strconv.FormatInt(payerTelegramID, 10),
		"credits": strconv.FormatInt(credits, 10),
	}
	for k, v := range metadata {
		meta[k] = v
	}

	req := PaymentRequest{
		Amount: RubAmount(rub),
		Confirmation: Confirmation{
			Type:      "redirect",
			ReturnURL: y.ReturnURL,
		},
		Description: description,
		Capture:     true,
		Metadata:    meta,
	}
	if email != "" {
		req.Receipt = &Receipt{
			Customer: Customer{Email: email},
			Items: []ReceiptItem{{
				Description: description,
				Quantity:    "1.00",
				Amount:      RubAmount(rub),
				VATCode:     1,
			}},
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return Checkout{}, fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	var resp PaymentResponse
	if err := y.do(ctx, http.MethodPost, "/payments", payload, &resp); err != nil {
		return Checkout{}, err
	}
	if resp.Confirmation.ConfirmationURL == "" {
		return Checkout{}, errors.New("API не вернул ссылку на оплату")
	}
	charged, err := resp.Amount.Rubles()
	if err != nil {
		return Checkout{}, err
	}

	y.log.InfoContext(ctx, "payment created", "payment_id", resp.ID, "status", resp.Status, "rub", charged)
	return Checkout{ID: resp.ID, ConfirmationURL: resp.Confirmation.ConfirmationURL, RubAmount: charged}, nil
}

// GetStatus fetches the current gateway status of the payment.
func (y *YooKassa) GetStatus(ctx context.Context, externalID string) (PaymentInfo, error) {
	var resp PaymentResponse
	if err := y.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(externalID), nil, &resp); err != nil {
		return PaymentInfo{Status: StatusUnknown}, err
	}
	info := PaymentInfo{ID: resp.ID, Status: ParseStatus(resp.Status), Metadata: resp.Metadata}
	if resp.Amount.Value != "" {
		rub, err := resp.Amount.Rubles()
		if err != nil {
			return PaymentInfo{Status: StatusUnknown}, err
		}
		info.RubAmount = rub
	}
	return info, nil
}

func (y *YooKassa) do(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, y.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("ошибка создания HTTP-запроса: %w", err)
	}
	req.SetBasicAuth(y.ShopID, y.SecretKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotence-Key", uuid.New().String())
	}

	resp, err := y.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка выполнения запроса к API YooKassa: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа API: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		y.log.ErrorContext(ctx, "yookassa error response", "status", resp.StatusCode, "body", string(responseBody))
		return fmt.Errorf("ошибка API YooKassa, статус: %d", resp.StatusCode)
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("ошибка обработки ответа API: %w", err)
	}
	return nil
}
