package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"loyalpay/internal/domain"
	"loyalpay/internal/ledger"

	"github.com/shopspring/decimal"
)

const StatusSucceeded = "SUCCEEDED"

// Notification is a payment processor push. PaymentID is the dedup key.
type Notification struct {
	Status        string
	Amount        decimal.Decimal
	UserID        uint
	PaymentID     string
	Currency      string
	TransactionID string
	// OrderID is set when the payment settles a card order rather than topping up.
	OrderID uint
}

// Ack is the business result returned in the 200 reply.
type Ack struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
}

// flexID accepts 12 and "12".
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type notificationBody struct {
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	UserID        flexID          `json:"userId"`
	UserIDSnake   flexID          `json:"user_id"`
	PaymentID     flexID          `json:"paymentId"`
	PaymentSnake  flexID          `json:"payment_id"`
	Currency      string          `json:"currency"`
	TransactionID flexID          `json:"transactionId"`
	OrderID       flexID          `json:"orderId"`
	OrderIDSnake  flexID          `json:"order_id"`
}

// ParseNotification decodes a webhook body, accepting camelCase and snake_case ids.
func ParseNotification(body []byte) (Notification, error) {
	var raw notificationBody
	if err := json.Unmarshal(body, &raw); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	userRaw := string(raw.UserID)
	if userRaw == "" {
		userRaw = string(raw.UserIDSnake)
	}
	paymentID := string(raw.PaymentID)
	if paymentID == "" {
		paymentID = string(raw.PaymentSnake)
	}
	n := Notification{
		Status:        strings.TrimSpace(raw.Status),
		Amount:        raw.Amount,
		PaymentID:     paymentID,
		Currency:      strings.TrimSpace(raw.Currency),
		TransactionID: string(raw.TransactionID),
	}
	if userRaw != "" {
		id, err := strconv.ParseUint(userRaw, 10, 64)
		if err != nil {
			return n, fmt.Errorf("decode notification: bad user id %q", userRaw)
		}
		n.UserID = uint(id)
	}
	orderRaw := string(raw.OrderID)
	if orderRaw == "" {
		orderRaw = string(raw.OrderIDSnake)
	}
	if orderRaw != "" {
		id, err := strconv.ParseUint(orderRaw, 10, 64)
		if err != nil {
			return n, fmt.Errorf("decode notification: bad order id %q", orderRaw)
		}
		n.OrderID = uint(id)
	}
	return n, nil
}

// OrderPayments confirms gateway payments against pending orders.
type OrderPayments interface {
	MarkPaid(ctx context.Context, orderID uint, amount decimal.Decimal, ref string) error
}

// Webhook credits loyalty top-ups pushed by the payment processor and confirms card
// order payments. Redelivery is safe: credits are keyed by (gateway, paymentId) and
// confirming a paid order is a no-op.
type Webhook struct {
	gateway         string
	loyaltyCurrency string
	ledger          *ledger.Ledger
	orders          OrderPayments
}

func NewWebhook(l *ledger.Ledger, orders OrderPayments, gateway, loyaltyCurrency string) *Webhook {
	return &Webhook{gateway: gateway, loyaltyCurrency: loyaltyCurrency, ledger: l, orders: orders}
}

func (w *Webhook) OnNotify(ctx context.Context, n Notification) Ack {
	ack := Ack{TransactionID: n.TransactionID}

	if !strings.EqualFold(n.Status, StatusSucceeded) {
		log.Printf("[Webhook] payment %s status %s, nothing to do", n.PaymentID, n.Status)
		ack.Success = true
		return ack
	}
	if n.OrderID != 0 {
		return w.confirmOrder(ctx, n)
	}
	if !strings.EqualFold(n.Currency, w.loyaltyCurrency) {
		log.Printf("[Webhook] payment %s currency %s is not a loyalty top-up, ignored", n.PaymentID, n.Currency)
		ack.Success = true
		return ack
	}
	if n.UserID == 0 || n.PaymentID == "" {
		log.Printf("[Webhook] payment %q missing user or payment id", n.PaymentID)
		return ack
	}

	entry, err := w.ledger.Credit(ctx, ledger.CreditRequest{
		UserID:        n.UserID,
		Amount:        n.Amount,
		Type:          domain.EntryTopup,
		Kind:          domain.KindLoyalty,
		Gateway:       w.gateway,
		GatewayRef:    n.PaymentID,
		PaymentMethod: w.gateway,
		Description:   fmt.Sprintf("Loyalty top-up via %s", w.gateway),
		Metadata: map[string]interface{}{
			"transactionId": n.TransactionID,
			"currency":      n.Currency,
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrWalletNotFound):
			log.Printf("[Webhook] payment %s rejected: %v", n.PaymentID, err)
		default:
			log.Printf("[Webhook] ALERT credit payment %s user %d failed: %v", n.PaymentID, n.UserID, err)
		}
		return ack
	}
	ack.Success = true
	ack.TransactionID = strconv.FormatUint(uint64(entry.ID), 10)
	log.Printf("[Webhook] payment %s credited %s to user %d (entry %d)", n.PaymentID, entry.Amount.StringFixed(2), n.UserID, entry.ID)
	return ack
}

func (w *Webhook) confirmOrder(ctx context.Context, n Notification) Ack {
	ack := Ack{TransactionID: n.TransactionID}
	if n.PaymentID == "" || w.orders == nil {
		log.Printf("[Webhook] order %d payment missing id or no order handler", n.OrderID)
		return ack
	}
	if err := w.orders.MarkPaid(ctx, n.OrderID, n.Amount, n.PaymentID); err != nil {
		log.Printf("[Webhook] payment %s for order %d rejected: %v", n.PaymentID, n.OrderID, err)
		return ack
	}
	ack.Success = true
	log.Printf("[Webhook] payment %s confirmed order %d", n.PaymentID, n.OrderID)
	return ack
}
