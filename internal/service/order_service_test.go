package service

import (
	"context"
	"sync"
	"testing"

	"loyalpay/internal/database/dbtest"
	"loyalpay/internal/domain"
	"loyalpay/internal/ledger"
	"loyalpay/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type orderFixture struct {
	db      *gorm.DB
	svc     *OrderService
	user    *models.User
	partner *models.Partner
	coffee  *models.Product // 10.00, was 15.00
	cake    *models.Product // 5.00
}

func newOrderFixture(t *testing.T, loyalty string) *orderFixture {
	db := dbtest.New(t)
	partner := seedPartner(t, db, "M-ORD", "20", nil)
	return &orderFixture{
		db:      db,
		svc:     NewOrderService(db, ledger.New(db, nil), decimal.NewFromInt(5)),
		user:    seedUser(t, db, domain.RoleClient, loyalty),
		partner: partner,
		coffee:  seedProduct(t, db, partner.ID, "Coffee", "10", decPtr("15"), 10),
		cake:    seedProduct(t, db, partner.ID, "Cake", "5", nil, 10),
	}
}

func (f *orderFixture) basket() []ItemRequest {
	return []ItemRequest{{ProductID: f.coffee.ID, Quantity: 2}, {ProductID: f.cake.ID, Quantity: 1}}
}

func TestCalculate(t *testing.T) {
	f := newOrderFixture(t, "50")
	ctx := context.Background()

	q, err := f.svc.Calculate(ctx, f.partner.ID, f.basket(), nil)
	require.NoError(t, err)
	require.Equal(t, "25", q.OrderTotal.String())
	require.Equal(t, "10", q.Discount.String())
	require.Equal(t, "15", q.FinalAmount.String())
	require.Equal(t, "1.25", q.Cashback.String())
	require.Nil(t, q.UserLoyaltyBalance)
	require.Len(t, q.Lines, 2)

	q, err = f.svc.Calculate(ctx, f.partner.ID, f.basket(), &f.user.ID)
	require.NoError(t, err)
	require.True(t, q.UserLoyaltyBalance.Equal(dec("50")))
}

func TestCalculateUsesPartnerCashbackRate(t *testing.T) {
	db := dbtest.New(t)
	partner := seedPartner(t, db, "M-RATE", "0", decPtr("12.5"))
	p := seedProduct(t, db, partner.ID, "Tea", "8", nil, 5)
	svc := NewOrderService(db, ledger.New(db, nil), decimal.Zero)

	q, err := svc.Calculate(context.Background(), partner.ID, []ItemRequest{{ProductID: p.ID, Quantity: 1}}, nil)
	require.NoError(t, err)
	require.Equal(t, "1", q.Cashback.String())
	require.True(t, q.Discount.IsZero())
}

func TestCalculateClampsDiscountToTotal(t *testing.T) {
	db := dbtest.New(t)
	partner := seedPartner(t, db, "M-FREE", "0", nil)
	gift := seedProduct(t, db, partner.ID, "Gift", "0", decPtr("30"), 5)
	svc := NewOrderService(db, ledger.New(db, nil), decimal.NewFromInt(5))

	q, err := svc.Calculate(context.Background(), partner.ID, []ItemRequest{{ProductID: gift.ID, Quantity: 1}}, nil)
	require.NoError(t, err)
	require.True(t, q.Discount.IsZero())
	require.True(t, q.FinalAmount.IsZero())
}

func TestCalculateErrors(t *testing.T) {
	f := newOrderFixture(t, "5")
	ctx := context.Background()

	_, err := f.svc.Calculate(ctx, f.partner.ID, f.basket(), &f.user.ID)
	require.ErrorIs(t, err, ErrInsufficientLoyaltyBalance)

	_, err = f.svc.Calculate(ctx, 9999, f.basket(), nil)
	require.ErrorIs(t, err, ErrPartnerNotFound)

	other := seedPartner(t, f.db, "M-OTHER", "0", nil)
	foreign := seedProduct(t, f.db, other.ID, "Foreign", "1", nil, 1)
	_, err = f.svc.Calculate(ctx, f.partner.ID, []ItemRequest{{ProductID: foreign.ID, Quantity: 1}}, nil)
	require.ErrorIs(t, err, ErrProductNotFound)

	_, err = f.svc.Calculate(ctx, f.partner.ID, nil, nil)
	require.ErrorIs(t, err, ErrInvalidItems)
	_, err = f.svc.Calculate(ctx, f.partner.ID, []ItemRequest{{ProductID: f.cake.ID, Quantity: 0}}, nil)
	require.ErrorIs(t, err, ErrInvalidItems)

	_, err = f.svc.Calculate(ctx, f.partner.ID, []ItemRequest{{ProductID: f.cake.ID, Quantity: 11}}, nil)
	require.ErrorIs(t, err, ErrOutOfStock)

	require.NoError(t, f.db.Model(f.partner).Update("is_active", false).Error)
	_, err = f.svc.Calculate(ctx, f.partner.ID, f.basket(), nil)
	require.ErrorIs(t, err, ErrPartnerNotFound)
}

func TestDeriveIdempotencyKey(t *testing.T) {
	a := DeriveIdempotencyKey(1, 2, []ItemRequest{{ProductID: 5, Quantity: 1}, {ProductID: 3, Quantity: 2}})
	b := DeriveIdempotencyKey(1, 2, []ItemRequest{{ProductID: 3, Quantity: 2}, {ProductID: 5, Quantity: 1}})
	c := DeriveIdempotencyKey(1, 2, []ItemRequest{{ProductID: 3, Quantity: 1}, {ProductID: 3, Quantity: 1}, {ProductID: 5, Quantity: 1}})
	require.Equal(t, a, b)
	require.Equal(t, a, c)
	require.Len(t, a, 64)
	require.NotEqual(t, a, DeriveIdempotencyKey(2, 2, []ItemRequest{{ProductID: 5, Quantity: 1}, {ProductID: 3, Quantity: 2}}))
	require.NotEqual(t, a, DeriveIdempotencyKey(1, 2, []ItemRequest{{ProductID: 5, Quantity: 2}, {ProductID: 3, Quantity: 2}}))
}

func TestCreateOrderLoyaltyIsIdempotent(t *testing.T) {
	f := newOrderFixture(t, "50")
	ctx := context.Background()
	req := CreateOrderRequest{
		PartnerID: f.partner.ID, Items: f.basket(), PaymentMethod: domain.PaymentMethodLoyalty, IdempotencyKey: "order-1",
	}

	first, created, err := f.svc.CreateOrder(ctx, f.user.ID, req)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, domain.OrderStatusPaid, first.Status)
	require.Equal(t, domain.PaymentStatusPaid, first.PaymentStatus)
	require.NotNil(t, first.LedgerEntryID)
	require.Equal(t, "10", first.Discount.String())
	require.Equal(t, "15", first.FinalAmount.String())
	require.Len(t, first.Items, 2)

	second, created, err := f.svc.CreateOrder(ctx, f.user.ID, req)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	require.True(t, loyaltyOf(t, f.db, f.user.ID).Equal(dec("40")))
	require.EqualValues(t, 1, countEntries(t, f.db, domain.EntryLoyaltyPayment))
	require.Equal(t, 8, stockOf(t, f.db, f.coffee.ID))
	require.Equal(t, 9, stockOf(t, f.db, f.cake.ID))
}

func TestCreateOrderDerivedKeyDeduplicates(t *testing.T) {
	f := newOrderFixture(t, "50")
	ctx := context.Background()
	req := CreateOrderRequest{PartnerID: f.partner.ID, Items: f.basket()}

	first, created, err := f.svc.CreateOrder(ctx, f.user.ID, req)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, DeriveIdempotencyKey(f.user.ID, f.partner.ID, f.basket()), first.IdempotencyKey)

	second, created, err := f.svc.CreateOrder(ctx, f.user.ID, req)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
	require.True(t, loyaltyOf(t, f.db, f.user.ID).Equal(dec("40")))
}

func TestCreateOrderConcurrentDuplicates(t *testing.T) {
	f := newOrderFixture(t, "50")
	req := CreateOrderRequest{PartnerID: f.partner.ID, Items: f.basket(), IdempotencyKey: "race"}

	var wg sync.WaitGroup
	ids := make([]uint, 6)
	errs := make([]error, 6)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, _, err := f.svc.CreateOrder(context.Background(), f.user.ID, req)
			errs[i] = err
			if o != nil {
				ids[i] = o.ID
			}
		}(i)
	}
	wg.Wait()
	for i := range ids {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
	}
	var orders int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orders).Error)
	require.EqualValues(t, 1, orders)
	require.EqualValues(t, 1, countEntries(t, f.db, domain.EntryLoyaltyPayment))
	require.Equal(t, 8, stockOf(t, f.db, f.coffee.ID))
}

func TestCreateOrderCardStaysPending(t *testing.T) {
	f := newOrderFixture(t, "0")
	o, created, err := f.svc.CreateOrder(context.Background(), f.user.ID, CreateOrderRequest{
		PartnerID: f.partner.ID, Items: f.basket(), PaymentMethod: "CARD", DeliveryType: domain.DeliveryDelivery,
		DeliveryAddress: "1 Main St",
	})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, domain.OrderStatusPending, o.Status)
	require.Equal(t, domain.PaymentMethodCard, o.PaymentMethod)
	require.True(t, o.Discount.IsZero())
	require.Equal(t, "25", o.FinalAmount.String())
	require.Nil(t, o.LedgerEntryID)
	require.EqualValues(t, 0, countEntries(t, f.db, domain.EntryLoyaltyPayment))
}

func TestCreateOrderFailuresLeaveNoTrace(t *testing.T) {
	f := newOrderFixture(t, "5")
	ctx := context.Background()

	_, _, err := f.svc.CreateOrder(ctx, f.user.ID, CreateOrderRequest{PartnerID: f.partner.ID, Items: f.basket()})
	require.ErrorIs(t, err, ErrInsufficientLoyaltyBalance)

	_, _, err = f.svc.CreateOrder(ctx, f.user.ID, CreateOrderRequest{
		PartnerID: f.partner.ID, Items: []ItemRequest{{ProductID: f.cake.ID, Quantity: 50}}, PaymentMethod: domain.PaymentMethodCash,
	})
	require.ErrorIs(t, err, ErrOutOfStock)

	_, _, err = f.svc.CreateOrder(ctx, f.user.ID, CreateOrderRequest{
		PartnerID: f.partner.ID, Items: f.basket(), PaymentMethod: "bitcoin",
	})
	require.ErrorIs(t, err, ErrInvalidPaymentMethod)

	var orders int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orders).Error)
	require.Zero(t, orders)
	require.True(t, loyaltyOf(t, f.db, f.user.ID).Equal(dec("5")))
	require.Equal(t, 10, stockOf(t, f.db, f.coffee.ID))
}

func TestCreateOrderKeyOwnedByAnotherUser(t *testing.T) {
	f := newOrderFixture(t, "50")
	ctx := context.Background()
	other := seedUser(t, f.db, domain.RoleClient, "50")
	req := CreateOrderRequest{PartnerID: f.partner.ID, Items: f.basket(), IdempotencyKey: "shared"}

	_, _, err := f.svc.CreateOrder(ctx, f.user.ID, req)
	require.NoError(t, err)
	_, _, err = f.svc.CreateOrder(ctx, other.ID, req)
	require.ErrorIs(t, err, ErrIdempotencyKeyReused)
	require.True(t, loyaltyOf(t, f.db, other.ID).Equal(dec("50")))
}

func TestCancelOrderRefundsAndRestocks(t *testing.T) {
	f := newOrderFixture(t, "50")
	ctx := context.Background()
	o, _, err := f.svc.CreateOrder(ctx, f.user.ID, CreateOrderRequest{PartnerID: f.partner.ID, Items: f.basket()})
	require.NoError(t, err)

	cancelled, err := f.svc.CancelOrder(ctx, f.user.ID, o.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	require.Equal(t, domain.PaymentStatusRefunded, cancelled.PaymentStatus)
	require.True(t, loyaltyOf(t, f.db, f.user.ID).Equal(dec("50")))
	require.Equal(t, 10, stockOf(t, f.db, f.coffee.ID))
	require.EqualValues(t, 1, countEntries(t, f.db, domain.EntryRefund))

	_, err = f.svc.CancelOrder(ctx, f.user.ID, o.ID)
	require.ErrorIs(t, err, ErrInvalidOrderState)

	stranger := seedUser(t, f.db, domain.RoleClient, "0")
	_, err = f.svc.CancelOrder(ctx, stranger.ID, o.ID)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCompleteOrderCreditsCashbackOnce(t *testing.T) {
	f := newOrderFixture(t, "50")
	ctx := context.Background()
	o, _, err := f.svc.CreateOrder(ctx, f.user.ID, CreateOrderRequest{PartnerID: f.partner.ID, Items: f.basket()})
	require.NoError(t, err)

	_, err = f.svc.CompleteOrder(ctx, f.user.ID, o.ID)
	require.ErrorIs(t, err, ErrForbidden)

	staff := seedUser(t, f.db, domain.RolePartner, "0")
	require.NoError(t, f.db.Model(staff).Update("partner_id", f.partner.ID).Error)

	done, err := f.svc.CompleteOrder(ctx, staff.ID, o.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCompleted, done.Status)
	// 40 left after the 10 discount, plus 5% of 25
	require.True(t, loyaltyOf(t, f.db, f.user.ID).Equal(dec("41.25")))

	_, err = f.svc.CompleteOrder(ctx, staff.ID, o.ID)
	require.ErrorIs(t, err, ErrInvalidOrderState)
	require.EqualValues(t, 1, countEntries(t, f.db, domain.EntryCashback))
}

func TestCompleteCardOrderRequiresPayment(t *testing.T) {
	f := newOrderFixture(t, "0")
	ctx := context.Background()
	admin := seedUser(t, f.db, domain.RoleAdmin, "0")
	o, _, err := f.svc.CreateOrder(ctx, f.user.ID, CreateOrderRequest{
		PartnerID: f.partner.ID, Items: f.basket(), PaymentMethod: domain.PaymentMethodCard,
	})
	require.NoError(t, err)
	_, err = f.svc.CompleteOrder(ctx, admin.ID, o.ID)
	require.ErrorIs(t, err, ErrInvalidOrderState)

	err = f.svc.MarkPaid(ctx, o.ID, dec("24.99"), "pay-card-1")
	require.ErrorIs(t, err, ErrPaymentMismatch)
	require.NoError(t, f.svc.MarkPaid(ctx, o.ID, dec("25.00"), "pay-card-1"))
	require.NoError(t, f.svc.MarkPaid(ctx, o.ID, dec("25"), "pay-card-1"))

	paid, err := f.svc.GetOrder(ctx, f.user.ID, o.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPaid, paid.Status)
	require.Equal(t, domain.PaymentStatusPaid, paid.PaymentStatus)
	require.Equal(t, "pay-card-1", paid.PaymentRef)

	done, err := f.svc.CompleteOrder(ctx, admin.ID, o.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCompleted, done.Status)
	require.True(t, loyaltyOf(t, f.db, f.user.ID).Equal(dec("1.25")))

	cash, _, err := f.svc.CreateOrder(ctx, f.user.ID, CreateOrderRequest{
		PartnerID: f.partner.ID, Items: []ItemRequest{{ProductID: f.cake.ID, Quantity: 1}}, PaymentMethod: domain.PaymentMethodCash,
	})
	require.NoError(t, err)
	done, err = f.svc.CompleteOrder(ctx, admin.ID, cash.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, done.PaymentStatus)
}

func TestMarkPaidRejectsClosedOrders(t *testing.T) {
	f := newOrderFixture(t, "0")
	ctx := context.Background()
	o, _, err := f.svc.CreateOrder(ctx, f.user.ID, CreateOrderRequest{
		PartnerID: f.partner.ID, Items: f.basket(), PaymentMethod: domain.PaymentMethodCard,
	})
	require.NoError(t, err)
	_, err = f.svc.CancelOrder(ctx, f.user.ID, o.ID)
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.MarkPaid(ctx, o.ID, dec("25"), "late"), ErrInvalidOrderState)
	require.ErrorIs(t, f.svc.MarkPaid(ctx, 9999, dec("25"), "nope"), ErrOrderNotFound)
}

func TestCompleteLoyaltyOrderWithoutDiscount(t *testing.T) {
	f := newOrderFixture(t, "0")
	ctx := context.Background()
	admin := seedUser(t, f.db, domain.RoleAdmin, "0")

	// cake has no original price, so there is nothing to debit
	o, _, err := f.svc.CreateOrder(ctx, f.user.ID, CreateOrderRequest{
		PartnerID: f.partner.ID, Items: []ItemRequest{{ProductID: f.cake.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, o.Status)
	require.Nil(t, o.LedgerEntryID)

	done, err := f.svc.CompleteOrder(ctx, admin.ID, o.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCompleted, done.Status)
	require.Equal(t, domain.PaymentStatusPaid, done.PaymentStatus)
	require.True(t, loyaltyOf(t, f.db, f.user.ID).Equal(dec("0.25")))
	require.EqualValues(t, 1, countEntries(t, f.db, domain.EntryCashback))
}

func TestCreateOrderLosingInsertRaceReplaysWinner(t *testing.T) {
	f := newOrderFixture(t, "50")
	ctx := context.Background()

	winner := &models.Order{
		UserID: f.user.ID, PartnerID: f.partner.ID, OrderTotal: dec("25"), Discount: dec("10"),
		FinalAmount: dec("15"), Status: domain.OrderStatusPaid, PaymentMethod: domain.PaymentMethodLoyalty,
		PaymentStatus: domain.PaymentStatusPaid, IdempotencyKey: "slow",
	}
	dbtest.AfterFirstQuery(t, f.db, "orders", func(db *gorm.DB) {
		require.NoError(t, db.Create(winner).Error)
	})

	got, created, err := f.svc.CreateOrder(ctx, f.user.ID, CreateOrderRequest{
		PartnerID: f.partner.ID, Items: f.basket(), IdempotencyKey: "slow",
	})
	require.NoError(t, err)
	require.False(t, created)
	require.NotZero(t, winner.ID)
	require.Equal(t, winner.ID, got.ID)

	// the losing transaction rolled back its debit and stock changes
	var orders int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orders).Error)
	require.EqualValues(t, 1, orders)
	require.True(t, loyaltyOf(t, f.db, f.user.ID).Equal(dec("50")))
	require.Zero(t, countEntries(t, f.db, domain.EntryLoyaltyPayment))
	require.Equal(t, 10, stockOf(t, f.db, f.coffee.ID))
}

func TestCreateOrderLosingInsertRaceToAnotherUser(t *testing.T) {
	f := newOrderFixture(t, "50")
	other := seedUser(t, f.db, domain.RoleClient, "0")

	dbtest.AfterFirstQuery(t, f.db, "orders", func(db *gorm.DB) {
		require.NoError(t, db.Create(&models.Order{
			UserID: other.ID, PartnerID: f.partner.ID, OrderTotal: dec("5"), FinalAmount: dec("5"),
			Status: domain.OrderStatusPending, PaymentMethod: domain.PaymentMethodCash,
			PaymentStatus: domain.PaymentStatusPending, IdempotencyKey: "taken",
		}).Error)
	})

	_, _, err := f.svc.CreateOrder(context.Background(), f.user.ID, CreateOrderRequest{
		PartnerID: f.partner.ID, Items: f.basket(), IdempotencyKey: "taken",
	})
	require.ErrorIs(t, err, ErrIdempotencyKeyReused)
	require.True(t, loyaltyOf(t, f.db, f.user.ID).Equal(dec("50")))
}

func TestGetAndListOrders(t *testing.T) {
	f := newOrderFixture(t, "50")
	ctx := context.Background()
	o, _, err := f.svc.CreateOrder(ctx, f.user.ID, CreateOrderRequest{PartnerID: f.partner.ID, Items: f.basket()})
	require.NoError(t, err)

	got, err := f.svc.GetOrder(ctx, f.user.ID, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)

	_, err = f.svc.GetOrder(ctx, f.user.ID, 12345)
	require.ErrorIs(t, err, ErrOrderNotFound)

	list, total, err := f.svc.ListOrders(ctx, f.user.ID, 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, list, 1)
}
