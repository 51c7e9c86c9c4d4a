package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"loyalpay/internal/domain"
	"loyalpay/internal/ledger"
	"loyalpay/internal/models"
	"loyalpay/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type ItemRequest struct {
	ProductID uint `json:"productId" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required"`
}

type CreateOrderRequest struct {
	PartnerID       uint          `json:"partnerId" binding:"required"`
	Items           []ItemRequest `json:"items" binding:"required"`
	DeliveryAddress string        `json:"deliveryAddress"`
	DeliveryType    string        `json:"deliveryType"`
	PaymentMethod   string        `json:"paymentMethod"`
	IdempotencyKey  string        `json:"idempotencyKey"`
}

type QuoteLine struct {
	ProductID     uint            `json:"productId"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	OriginalPrice decimal.Decimal `json:"originalPrice"`
	Quantity      int             `json:"quantity"`
	Subtotal      decimal.Decimal `json:"subtotal"`
}

type Quote struct {
	PartnerID          uint             `json:"partnerId"`
	OrderTotal         decimal.Decimal  `json:"orderTotal"`
	Discount           decimal.Decimal  `json:"discount"`
	Cashback           decimal.Decimal  `json:"cashback"`
	FinalAmount        decimal.Decimal  `json:"finalAmount"`
	UserLoyaltyBalance *decimal.Decimal `json:"userLoyaltyBalance,omitempty"`
	Lines              []QuoteLine      `json:"items"`
}

// OrderService prices orders and creates them exactly once per idempotency key. Loyalty
// settlement goes through the ledger inside the order's transaction.
type OrderService struct {
	db                  *gorm.DB
	ledger              *ledger.Ledger
	orders              *repository.OrderRepository
	users               *repository.UserRepository
	defaultCashbackRate decimal.Decimal
}

func NewOrderService(db *gorm.DB, l *ledger.Ledger, defaultCashbackRate decimal.Decimal) *OrderService {
	if !defaultCashbackRate.IsPositive() {
		defaultCashbackRate = decimal.NewFromInt(domain.DefaultCashbackRate)
	}
	return &OrderService{
		db:                  db,
		ledger:              l,
		orders:              repository.NewOrderRepository(db),
		users:               repository.NewUserRepository(db),
		defaultCashbackRate: defaultCashbackRate,
	}
}

// Calculate prices items without side effects. When userID is set the user's loyalty
// balance must cover the discount.
func (s *OrderService) Calculate(ctx context.Context, partnerID uint, items []ItemRequest, userID *uint) (*Quote, error) {
	merged, err := normalizeItems(items)
	if err != nil {
		return nil, err
	}
	return s.calculate(ctx, s.db, partnerID, merged, userID)
}

func (s *OrderService) calculate(ctx context.Context, db *gorm.DB, partnerID uint, items []ItemRequest, userID *uint) (*Quote, error) {
	partner, err := repository.NewPartnerRepository(db).GetByID(ctx, partnerID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !partner.IsActive) {
		return nil, ErrPartnerNotFound
	}
	if err != nil {
		return nil, err
	}

	ids := make([]uint, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	products, err := repository.NewProductRepository(db).GetByIDs(ctx, partnerID, ids)
	if err != nil {
		return nil, err
	}

	q := &Quote{PartnerID: partnerID, Lines: make([]QuoteLine, 0, len(items))}
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok || !p.IsActive {
			return nil, fmt.Errorf("%w: %d", ErrProductNotFound, it.ProductID)
		}
		if p.Stock < it.Quantity {
			return nil, fmt.Errorf("%w: %s", ErrOutOfStock, p.Name)
		}
		qty := decimal.NewFromInt(int64(it.Quantity))
		original := p.Price
		if p.OriginalPrice != nil && p.OriginalPrice.GreaterThan(p.Price) {
			original = *p.OriginalPrice
			q.Discount = q.Discount.Add(original.Sub(p.Price).Mul(qty))
		}
		subtotal := p.Price.Mul(qty)
		q.OrderTotal = q.OrderTotal.Add(subtotal)
		q.Lines = append(q.Lines, QuoteLine{
			ProductID:     p.ID,
			Name:          p.Name,
			UnitPrice:     p.Price,
			OriginalPrice: original,
			Quantity:      it.Quantity,
			Subtotal:      subtotal,
		})
	}
	if q.Discount.GreaterThan(q.OrderTotal) {
		q.Discount = q.OrderTotal
	}
	q.FinalAmount = q.OrderTotal.Sub(q.Discount)
	rate := partner.EffectiveCashbackRate(s.defaultCashbackRate)
	q.Cashback = q.OrderTotal.Mul(rate).Div(hundred).Round(2)

	if userID != nil {
		w, err := repository.NewWalletRepository(db).GetByUserID(ctx, *userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrWalletNotFound
		}
		if err != nil {
			return nil, err
		}
		balance := w.LoyaltyBalance
		q.UserLoyaltyBalance = &balance
		if balance.LessThan(q.Discount) {
			return nil, ErrInsufficientLoyaltyBalance
		}
	}
	return q, nil
}

// DeriveIdempotencyKey is the key used when the caller sends none. It depends only on
// the user, the partner and the item multiset, so retries of the same basket collapse
// into one order.
func DeriveIdempotencyKey(userID, partnerID uint, items []ItemRequest) string {
	merged := mergeItems(items)
	parts := make([]string, len(merged))
	for i, it := range merged {
		parts[i] = fmt.Sprintf("%d:%d", it.ProductID, it.Quantity)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%s", userID, partnerID, strings.Join(parts, ","))))
	return hex.EncodeToString(sum[:])
}

// CreateOrder returns created=false when an order with the same idempotency key already
// exists; that order is returned unchanged.
func (s *OrderService) CreateOrder(ctx context.Context, userID uint, req CreateOrderRequest) (*models.Order, bool, error) {
	items, err := normalizeItems(req.Items)
	if err != nil {
		return nil, false, err
	}
	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = domain.PaymentMethodLoyalty
	}
	if method != domain.PaymentMethodLoyalty && method != domain.PaymentMethodCard && method != domain.PaymentMethodCash {
		return nil, false, ErrInvalidPaymentMethod
	}
	deliveryType := req.DeliveryType
	if deliveryType == "" {
		deliveryType = domain.DeliveryPickup
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = DeriveIdempotencyKey(userID, req.PartnerID, items)
	}

	existing, err := s.orders.GetByIdempotencyKey(ctx, key)
	if err == nil {
		return s.replay(existing, userID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	var (
		orderID uint
		debit   *models.LedgerEntry
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var loyaltyUser *uint
		if method == domain.PaymentMethodLoyalty {
			loyaltyUser = &userID
		}
		q, err := s.calculate(ctx, tx, req.PartnerID, items, loyaltyUser)
		if err != nil {
			return err
		}
		discount, final := q.Discount, q.FinalAmount
		if method != domain.PaymentMethodLoyalty {
			discount, final = decimal.Zero, q.OrderTotal
		}

		orders := s.orders.WithTx(tx)
		o := &models.Order{
			UserID:          userID,
			PartnerID:       req.PartnerID,
			OrderTotal:      q.OrderTotal,
			Discount:        discount,
			CashbackAmount:  q.Cashback,
			FinalAmount:     final,
			Status:          domain.OrderStatusPending,
			PaymentMethod:   method,
			PaymentStatus:   domain.PaymentStatusPending,
			IdempotencyKey:  key,
			DeliveryType:    deliveryType,
			DeliveryAddress: req.DeliveryAddress,
		}
		if err := orders.Create(ctx, o); err != nil {
			return err
		}

		if method == domain.PaymentMethodLoyalty && discount.IsPositive() {
			partnerID := req.PartnerID
			e, err := s.ledger.WithTx(tx).Debit(ctx, ledger.DebitRequest{
				UserID:      userID,
				Amount:      discount,
				Type:        domain.EntryLoyaltyPayment,
				Kind:        domain.KindLoyalty,
				PartnerID:   &partnerID,
				OrderID:     &o.ID,
				Description: fmt.Sprintf("Order #%d", o.ID),
			})
			if errors.Is(err, ledger.ErrInsufficientFunds) {
				return ErrInsufficientLoyaltyBalance
			}
			if err != nil {
				return err
			}
			ok, err := orders.TransitionStatus(ctx, o.ID, []string{domain.OrderStatusPending}, map[string]interface{}{
				"status":          domain.OrderStatusPaid,
				"payment_status":  domain.PaymentStatusPaid,
				"ledger_entry_id": e.ID,
			})
			if err != nil {
				return err
			}
			if !ok {
				return ErrInvalidOrderState
			}
			debit = e
		}

		products := repository.NewProductRepository(tx)
		lines := make([]models.OrderItem, 0, len(q.Lines))
		for _, l := range q.Lines {
			ok, err := products.DecrementStock(ctx, l.ProductID, l.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", ErrOutOfStock, l.Name)
			}
			lines = append(lines, models.OrderItem{
				OrderID:       o.ID,
				ProductID:     l.ProductID,
				Name:          l.Name,
				UnitPrice:     l.UnitPrice,
				OriginalPrice: l.OriginalPrice,
				Quantity:      l.Quantity,
				Subtotal:      l.Subtotal,
			})
		}
		if err := orders.CreateItems(ctx, lines); err != nil {
			return err
		}
		orderID = o.ID
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		winner, rerr := s.orders.GetByIdempotencyKey(ctx, key)
		if rerr != nil {
			return nil, false, fmt.Errorf("re-read order %s after conflict: %w", key, rerr)
		}
		log.Printf("[Order] concurrent create for key %s resolved to order %d", key, winner.ID)
		return s.replay(winner, userID)
	}
	if err != nil {
		return nil, false, err
	}

	s.ledger.Announce(ctx, debit)
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	log.Printf("[Order] created order %d user=%d partner=%d method=%s status=%s", order.ID, userID, order.PartnerID, method, order.Status)
	return order, true, nil
}

func (s *OrderService) replay(o *models.Order, userID uint) (*models.Order, bool, error) {
	if o.UserID != userID {
		return nil, false, ErrIdempotencyKeyReused
	}
	return o, false, nil
}

func (s *OrderService) GetOrder(ctx context.Context, userID, orderID uint) (*models.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID uint, limit, offset int) ([]models.Order, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.orders.ListByUser(ctx, userID, limit, offset)
}

// CancelOrder cancels a pending or paid order of userID, refunds the loyalty debit and
// restores stock.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID uint) (*models.Order, error) {
	o, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	var refund *models.LedgerEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]interface{}{"status": domain.OrderStatusCancelled}
		if o.LedgerEntryID != nil {
			fields["payment_status"] = domain.PaymentStatusRefunded
		}
		ok, err := s.orders.WithTx(tx).TransitionStatus(ctx, o.ID,
			[]string{domain.OrderStatusPending, domain.OrderStatusPaid}, fields)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidOrderState
		}
		if o.LedgerEntryID != nil && o.Discount.IsPositive() {
			partnerID := o.PartnerID
			refund, err = s.ledger.WithTx(tx).Credit(ctx, ledger.CreditRequest{
				UserID:      o.UserID,
				Amount:      o.Discount,
				Type:        domain.EntryRefund,
				Kind:        domain.KindLoyalty,
				Gateway:     domain.GatewayOrderRefund,
				GatewayRef:  strconv.FormatUint(uint64(o.ID), 10),
				PartnerID:   &partnerID,
				OrderID:     &o.ID,
				Description: fmt.Sprintf("Refund for order #%d", o.ID),
			})
			if err != nil {
				return err
			}
		}
		products := repository.NewProductRepository(tx)
		for _, it := range o.Items {
			if err := products.IncrementStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.ledger.Announce(ctx, refund)
	log.Printf("[Order] order %d cancelled by user %d", o.ID, userID)
	return s.orders.GetByID(ctx, o.ID)
}

// MarkPaid records the gateway confirmation for a pending order. amount must equal the
// order's final amount. Confirming an order that is already paid or completed is a no-op.
func (s *OrderService) MarkPaid(ctx context.Context, orderID uint, amount decimal.Decimal, ref string) error {
	o, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	switch o.Status {
	case domain.OrderStatusPaid, domain.OrderStatusCompleted:
		return nil
	case domain.OrderStatusPending:
	default:
		return ErrInvalidOrderState
	}
	if !amount.Round(2).Equal(o.FinalAmount) {
		return fmt.Errorf("%w: order %d expects %s, got %s", ErrPaymentMismatch, o.ID, o.FinalAmount, amount)
	}
	ok, err := s.orders.TransitionStatus(ctx, o.ID, []string{domain.OrderStatusPending}, map[string]interface{}{
		"status":         domain.OrderStatusPaid,
		"payment_status": domain.PaymentStatusPaid,
		"payment_ref":    ref,
	})
	if err != nil {
		return err
	}
	if !ok {
		// lost a race: fine if someone else confirmed it
		cur, err := s.orders.GetByID(ctx, o.ID)
		if err != nil {
			return err
		}
		if cur.Status == domain.OrderStatusPaid || cur.Status == domain.OrderStatusCompleted {
			return nil
		}
		return ErrInvalidOrderState
	}
	log.Printf("[Order] order %d paid ref=%s amount=%s", o.ID, ref, o.FinalAmount)
	return nil
}

// settledAtHandOver reports whether a pending order may be completed directly: cash
// orders and loyalty orders that had no discount to debit are paid at the counter.
func settledAtHandOver(o *models.Order) bool {
	switch o.PaymentMethod {
	case domain.PaymentMethodCash:
		return true
	case domain.PaymentMethodLoyalty:
		return o.LedgerEntryID == nil
	}
	return false
}

// CompleteOrder marks an order fulfilled and credits the cashback. Only the partner's
// own accounts and admins may complete. Card orders must be confirmed by the gateway
// first; see MarkPaid.
func (s *OrderService) CompleteOrder(ctx context.Context, actorID, orderID uint) (*models.Order, error) {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return nil, ErrForbidden
	}
	o, err := s.orders.GetByID(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !(actor.IsPartner() && actor.PartnerID != nil && *actor.PartnerID == o.PartnerID) {
		return nil, ErrForbidden
	}

	from := []string{domain.OrderStatusPaid}
	if settledAtHandOver(o) {
		from = append(from, domain.OrderStatusPending)
	}
	var cashback *models.LedgerEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.orders.WithTx(tx).TransitionStatus(ctx, o.ID, from, map[string]interface{}{
			"status":         domain.OrderStatusCompleted,
			"payment_status": domain.PaymentStatusPaid,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidOrderState
		}
		if !o.CashbackAmount.IsPositive() {
			return nil
		}
		partnerID := o.PartnerID
		cashback, err = s.ledger.WithTx(tx).Credit(ctx, ledger.CreditRequest{
			UserID:      o.UserID,
			Amount:      o.CashbackAmount,
			Type:        domain.EntryCashback,
			Kind:        domain.KindLoyalty,
			Gateway:     domain.GatewayCashback,
			GatewayRef:  strconv.FormatUint(uint64(o.ID), 10),
			PartnerID:   &partnerID,
			OrderID:     &o.ID,
			Description: fmt.Sprintf("Cashback for order #%d", o.ID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.ledger.Announce(ctx, cashback)
	log.Printf("[Order] order %d completed by user %d", o.ID, actorID)
	return s.orders.GetByID(ctx, o.ID)
}

func normalizeItems(items []ItemRequest) ([]ItemRequest, error) {
	if len(items) == 0 {
		return nil, ErrInvalidItems
	}
	for _, it := range items {
		if it.ProductID == 0 || it.Quantity <= 0 {
			return nil, ErrInvalidItems
		}
	}
	return mergeItems(items), nil
}

// mergeItems sums quantities per product and sorts by product id.
func mergeItems(items []ItemRequest) []ItemRequest {
	qty := make(map[uint]int, len(items))
	for _, it := range items {
		qty[it.ProductID] += it.Quantity
	}
	out := make([]ItemRequest, 0, len(qty))
	for id, q := range qty {
		out = append(out, ItemRequest{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
