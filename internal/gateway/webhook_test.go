package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"loyalpay/internal/database/dbtest"
	"loyalpay/internal/domain"
	"loyalpay/internal/ledger"
	"loyalpay/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	calls []string
	err   error
}

func (f *fakeOrders) MarkPaid(ctx context.Context, orderID uint, amount decimal.Decimal, ref string) error {
	f.calls = append(f.calls, fmt.Sprintf("%d:%s:%s", orderID, amount, ref))
	return f.err
}

func TestParseNotification(t *testing.T) {
	n, err := ParseNotification([]byte(`{"status":"SUCCEEDED","amount":12.5,"userId":7,"paymentId":"p-1","currency":"coin","transactionId":"t-1"}`))
	require.NoError(t, err)
	require.EqualValues(t, 7, n.UserID)
	require.Equal(t, "p-1", n.PaymentID)
	require.Equal(t, "12.5", n.Amount.String())

	n, err = ParseNotification([]byte(`{"status":"SUCCEEDED","amount":"3","user_id":"8","payment_id":991,"currency":"COIN"}`))
	require.NoError(t, err)
	require.EqualValues(t, 8, n.UserID)
	require.Equal(t, "991", n.PaymentID)

	n, err = ParseNotification([]byte(`{"status":"SUCCEEDED","amount":"25","order_id":"31","paymentId":"card-1","currency":"USD"}`))
	require.NoError(t, err)
	require.EqualValues(t, 31, n.OrderID)
	require.Zero(t, n.UserID)

	_, err = ParseNotification([]byte(`{"orderId":"abc"}`))
	require.Error(t, err)
	_, err = ParseNotification([]byte(`{"userId":"x"}`))
	require.Error(t, err)
	_, err = ParseNotification([]byte(`not json`))
	require.Error(t, err)
}

func TestOnNotifyCreditsOncePerPayment(t *testing.T) {
	db := dbtest.New(t)
	u := seedAccount(t, db, "hooked", true)
	w := NewWebhook(ledger.New(db, nil), nil, "processor", "COIN")
	ctx := context.Background()
	n := Notification{Status: "SUCCEEDED", Amount: dec("20"), UserID: u.ID, PaymentID: "pay-1", Currency: "coin", TransactionID: "tx"}

	first := w.OnNotify(ctx, n)
	require.True(t, first.Success)
	second := w.OnNotify(ctx, n)
	require.True(t, second.Success)
	require.Equal(t, first.TransactionID, second.TransactionID)

	var wallet models.Wallet
	require.NoError(t, db.Where("user_id = ?", u.ID).First(&wallet).Error)
	require.True(t, wallet.LoyaltyBalance.Equal(dec("20")))
	require.True(t, wallet.Balance.IsZero())

	var entry models.LedgerEntry
	require.NoError(t, db.Where("gateway_ref = ?", "pay-1").First(&entry).Error)
	require.Equal(t, fmt.Sprint(entry.ID), first.TransactionID)
	require.Equal(t, domain.KindLoyalty, entry.BalanceKind)
}

func TestOnNotifyIgnoresAndRejects(t *testing.T) {
	db := dbtest.New(t)
	u := seedAccount(t, db, "ignored", true)
	w := NewWebhook(ledger.New(db, nil), nil, "processor", "COIN")
	ctx := context.Background()

	ack := w.OnNotify(ctx, Notification{Status: "FAILED", Amount: dec("5"), UserID: u.ID, PaymentID: "a", Currency: "COIN", TransactionID: "t"})
	require.True(t, ack.Success)
	require.Equal(t, "t", ack.TransactionID)

	ack = w.OnNotify(ctx, Notification{Status: "SUCCEEDED", Amount: dec("5"), UserID: u.ID, PaymentID: "b", Currency: "USD"})
	require.True(t, ack.Success)

	ack = w.OnNotify(ctx, Notification{Status: "SUCCEEDED", Amount: dec("5"), PaymentID: "c", Currency: "COIN"})
	require.False(t, ack.Success)

	ack = w.OnNotify(ctx, Notification{Status: "SUCCEEDED", Amount: dec("5"), UserID: 4040, PaymentID: "d", Currency: "COIN"})
	require.False(t, ack.Success)

	ack = w.OnNotify(ctx, Notification{Status: "SUCCEEDED", Amount: dec("-5"), UserID: u.ID, PaymentID: "e", Currency: "COIN"})
	require.False(t, ack.Success)

	var count int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestOnNotifyConfirmsOrderPayment(t *testing.T) {
	db := dbtest.New(t)
	orders := &fakeOrders{}
	w := NewWebhook(ledger.New(db, nil), orders, "processor", "COIN")
	ctx := context.Background()

	ack := w.OnNotify(ctx, Notification{Status: "SUCCEEDED", Amount: dec("25"), OrderID: 31, PaymentID: "card-1", Currency: "USD", TransactionID: "t-9"})
	require.True(t, ack.Success)
	require.Equal(t, "t-9", ack.TransactionID)
	require.Equal(t, []string{"31:25:card-1"}, orders.calls)

	// failed payments never touch the order
	ack = w.OnNotify(ctx, Notification{Status: "FAILED", Amount: dec("25"), OrderID: 31, PaymentID: "card-2"})
	require.True(t, ack.Success)
	require.Len(t, orders.calls, 1)

	ack = w.OnNotify(ctx, Notification{Status: "SUCCEEDED", Amount: dec("25"), OrderID: 31})
	require.False(t, ack.Success)

	orders.err = errors.New("amount mismatch")
	ack = w.OnNotify(ctx, Notification{Status: "SUCCEEDED", Amount: dec("2"), OrderID: 31, PaymentID: "card-3"})
	require.False(t, ack.Success)

	var count int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Count(&count).Error)
	require.Zero(t, count)
}
