package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"loyalpay/internal/domain"
	"loyalpay/internal/ledger"
	"loyalpay/internal/models"
	"loyalpay/internal/repository"
	"loyalpay/pkg/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type QRRequest struct {
	MerchantID string          `json:"merchantId" binding:"required"`
	Amount     decimal.Decimal `json:"amount" binding:"required"`
}

type QRResult struct {
	Success         bool            `json:"success"`
	Reference       string          `json:"reference"`
	AmountCharged   decimal.Decimal `json:"amountCharged"`
	DiscountApplied decimal.Decimal `json:"discountApplied"`
	NewBalance      decimal.Decimal `json:"newBalance"`
	PartnerName     string          `json:"partnerName"`
	LedgerEntryID   *uint           `json:"ledgerEntryId,omitempty"`
}

// QRService redeems a scanned merchant code: loyalty coins cover up to the partner's
// discount cap and the remainder is charged through the settlement service. Coins are
// debited only after the charge is accepted.
type QRService struct {
	partners *repository.PartnerRepository
	ledger   *ledger.Ledger
	settler  payment.Settler
	currency string
	timeout  time.Duration
}

func NewQRService(db *gorm.DB, l *ledger.Ledger, settler payment.Settler, currency string, timeout time.Duration) *QRService {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &QRService{
		partners: repository.NewPartnerRepository(db),
		ledger:   l,
		settler:  settler,
		currency: currency,
		timeout:  timeout,
	}
}

// QRDiscount computes discount and remainder for amount without charging anything.
func QRDiscount(amount, loyaltyBalance, maxDiscountPercent decimal.Decimal) (discount, final decimal.Decimal) {
	capAmount := amount.Mul(maxDiscountPercent).Div(hundred).Round(2)
	discount = decimal.Min(loyaltyBalance, capAmount, amount)
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount, amount.Sub(discount)
}

func (s *QRService) Redeem(ctx context.Context, userID uint, req QRRequest) (*QRResult, error) {
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	partner, err := s.partners.GetByMerchantID(ctx, strings.TrimSpace(req.MerchantID))
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !partner.IsActive) {
		return nil, ErrPartnerNotFound
	}
	if err != nil {
		return nil, err
	}
	wallet, err := s.ledger.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	discount, final := QRDiscount(amount, wallet.LoyaltyBalance, partner.MaxDiscountPercent)
	reference := "qr-" + uuid.NewString()

	if final.IsPositive() {
		if err := s.settle(ctx, reference, userID, partner, final); err != nil {
			return nil, err
		}
	}

	res := &QRResult{
		Success:         true,
		Reference:       reference,
		AmountCharged:   final,
		DiscountApplied: discount,
		NewBalance:      wallet.LoyaltyBalance,
		PartnerName:     partner.Name,
	}
	if !discount.IsPositive() {
		return res, nil
	}

	partnerID := partner.ID
	entry, err := s.ledger.Debit(ctx, ledger.DebitRequest{
		UserID:      userID,
		Amount:      discount,
		Type:        domain.EntryQRSpend,
		Kind:        domain.KindLoyalty,
		PartnerID:   &partnerID,
		Description: fmt.Sprintf("QR payment at %s", partner.Name),
		Metadata: map[string]interface{}{
			"reference":  reference,
			"merchantId": partner.MerchantID,
			"amount":     amount.StringFixed(2),
			"charged":    final.StringFixed(2),
		},
	})
	if err != nil {
		if final.IsPositive() {
			s.void(ctx, reference)
		}
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, ErrInsufficientLoyaltyBalance
		}
		return nil, err
	}
	res.NewBalance = *entry.BalanceAfter
	res.LedgerEntryID = &entry.ID
	log.Printf("[QR] user=%d partner=%d amount=%s discount=%s charged=%s ref=%s",
		userID, partner.ID, amount.StringFixed(2), discount.StringFixed(2), final.StringFixed(2), reference)
	return res, nil
}

func (s *QRService) settle(ctx context.Context, reference string, userID uint, partner *models.Partner, amount decimal.Decimal) error {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.settler.Settle(sctx, payment.SettlementRequest{
		Reference:   reference,
		UserID:      userID,
		PartnerID:   partner.ID,
		MerchantID:  partner.MerchantID,
		Amount:      amount,
		Currency:    s.currency,
		Description: "QR payment at " + partner.Name,
	})
	if err != nil {
		log.Printf("[QR] settlement %s failed: %v", reference, err)
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	if !resp.Accepted {
		log.Printf("[QR] settlement %s not accepted: %s", reference, resp.Status)
		return fmt.Errorf("%w: status %s", ErrSettlementFailed, resp.Status)
	}
	return nil
}

// void reverses an accepted charge after the loyalty debit failed. It runs detached
// from ctx so a cancelled request still voids.
func (s *QRService) void(ctx context.Context, reference string) {
	vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.settler.Void(vctx, reference); err != nil {
		log.Printf("[QR] void %s failed, manual reconciliation needed: %v", reference, err)
		return
	}
	log.Printf("[QR] voided charge %s after failed loyalty debit", reference)
}
