// Package ledger is the single place where wallet balances change. Every debit and
// credit locks the wallet row, updates it and appends a completed LedgerEntry in one
// transaction.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"loyalpay/internal/domain"
	"loyalpay/internal/models"
	"loyalpay/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrInvalidKind        = errors.New("unknown balance kind")
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrEntryNotFound      = errors.New("ledger entry not found")
	ErrGatewayRefConflict = errors.New("gateway reference is held by an uncompleted entry")
)

// Notifier receives the wallet state after a committed mutation.
type Notifier interface {
	WalletChanged(w *models.Wallet, e *models.LedgerEntry)
}

type DebitRequest struct {
	UserID      uint
	Amount      decimal.Decimal
	Type        string
	Kind        string
	PartnerID   *uint
	OrderID     *uint
	Description string
	Metadata    map[string]interface{}
}

// CreditRequest credits a wallet. When GatewayRef is set the credit is idempotent per
// (Gateway, GatewayRef).
type CreditRequest struct {
	UserID        uint
	Amount        decimal.Decimal
	Type          string
	Kind          string
	Gateway       string
	GatewayRef    string
	PaymentMethod string
	PartnerID     *uint
	OrderID       *uint
	Description   string
	Metadata      map[string]interface{}
}

type Ledger struct {
	db       *gorm.DB
	wallets  *repository.WalletRepository
	entries  *repository.LedgerRepository
	notifier Notifier
	bound    bool
}

func New(db *gorm.DB, notifier Notifier) *Ledger {
	return &Ledger{
		db:       db,
		wallets:  repository.NewWalletRepository(db),
		entries:  repository.NewLedgerRepository(db),
		notifier: notifier,
	}
}

// WithTx returns a ledger whose mutations join tx (as savepoints). It publishes no
// events because it cannot see the commit; callers use Announce afterwards.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{
		db:      tx,
		wallets: l.wallets.WithTx(tx),
		entries: l.entries.WithTx(tx),
		bound:   true,
	}
}

func (l *Ledger) Debit(ctx context.Context, req DebitRequest) (*models.LedgerEntry, error) {
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !validKind(req.Kind) {
		return nil, ErrInvalidKind
	}
	meta, err := encodeMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	var (
		entry  *models.LedgerEntry
		wallet *models.Wallet
	)
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallets := l.wallets.WithTx(tx)
		w, err := lockWallet(ctx, wallets, req.UserID)
		if err != nil {
			return err
		}
		before := w.BalanceOf(req.Kind)
		if before.LessThan(amount) {
			return ErrInsufficientFunds
		}
		after := before.Sub(amount)
		setBalance(w, req.Kind, after)
		w.TotalSpent = w.TotalSpent.Add(amount)
		if err := wallets.SaveBalances(ctx, w); err != nil {
			return fmt.Errorf("save wallet: %w", err)
		}

		now := time.Now()
		e := &models.LedgerEntry{
			UserID:        req.UserID,
			PartnerID:     req.PartnerID,
			OrderID:       req.OrderID,
			Type:          req.Type,
			BalanceKind:   req.Kind,
			Amount:        amount,
			Status:        domain.EntryStatusCompleted,
			BalanceBefore: &before,
			BalanceAfter:  &after,
			Description:   req.Description,
			Metadata:      meta,
			CompletedAt:   &now,
		}
		if req.Kind == domain.KindLoyalty {
			e.LoyaltyUsed = amount
		}
		if err := l.entries.WithTx(tx).Create(ctx, e); err != nil {
			return fmt.Errorf("append entry: %w", err)
		}
		entry, wallet = e, w
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.publish(wallet, entry)
	return entry, nil
}

// Credit increments the wallet and appends a completed entry. With a gateway reference
// the insert into ledger_entries is the serialization point: a duplicate rolls the whole
// unit back and the winning entry is returned instead.
func (l *Ledger) Credit(ctx context.Context, req CreditRequest) (*models.LedgerEntry, error) {
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !validKind(req.Kind) {
		return nil, ErrInvalidKind
	}
	if (req.Gateway == "") != (req.GatewayRef == "") {
		return nil, errors.New("gateway and gateway reference must be set together")
	}
	meta, err := encodeMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	if req.GatewayRef != "" {
		existing, err := l.entries.GetByGatewayRef(ctx, req.Gateway, req.GatewayRef)
		if err == nil && existing.IsCompleted() {
			return existing, nil
		}
	}

	var (
		entry  *models.LedgerEntry
		wallet *models.Wallet
	)
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallets := l.wallets.WithTx(tx)
		w, err := lockWallet(ctx, wallets, req.UserID)
		if err != nil {
			return err
		}
		before := w.BalanceOf(req.Kind)
		after := before.Add(amount)

		now := time.Now()
		e := &models.LedgerEntry{
			UserID:        req.UserID,
			PartnerID:     req.PartnerID,
			OrderID:       req.OrderID,
			Type:          req.Type,
			BalanceKind:   req.Kind,
			Amount:        amount,
			Status:        domain.EntryStatusCompleted,
			PaymentMethod: req.PaymentMethod,
			BalanceBefore: &before,
			BalanceAfter:  &after,
			Description:   req.Description,
			Metadata:      meta,
			CompletedAt:   &now,
		}
		if req.GatewayRef != "" {
			gw, ref := req.Gateway, req.GatewayRef
			e.Gateway, e.GatewayRef = &gw, &ref
		}
		if req.Kind == domain.KindLoyalty && req.Type == domain.EntryCashback {
			e.LoyaltyEarned = amount
		}
		if err := l.entries.WithTx(tx).Create(ctx, e); err != nil {
			return err
		}

		setBalance(w, req.Kind, after)
		w.TotalEarned = w.TotalEarned.Add(amount)
		if err := wallets.SaveBalances(ctx, w); err != nil {
			return fmt.Errorf("save wallet: %w", err)
		}
		entry, wallet = e, w
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) && req.GatewayRef != "" {
		existing, rerr := l.entries.GetByGatewayRef(ctx, req.Gateway, req.GatewayRef)
		if rerr != nil {
			return nil, fmt.Errorf("re-read %s/%s after conflict: %w", req.Gateway, req.GatewayRef, rerr)
		}
		if existing.IsCompleted() {
			log.Printf("[Ledger] duplicate credit %s/%s resolved to entry %d", req.Gateway, req.GatewayRef, existing.ID)
			return existing, nil
		}
		return nil, ErrGatewayRefConflict
	}
	if err != nil {
		return nil, err
	}
	l.publish(wallet, entry)
	return entry, nil
}

// EntryByGatewayRef returns ErrEntryNotFound when no entry holds the reference.
func (l *Ledger) EntryByGatewayRef(ctx context.Context, gateway, ref string) (*models.LedgerEntry, error) {
	e, err := l.entries.GetByGatewayRef(ctx, gateway, ref)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

// DiscardUncompleted drops an entry that never completed so its gateway reference can
// be settled again. It is a no-op for completed entries.
func (l *Ledger) DiscardUncompleted(ctx context.Context, id uint) error {
	deleted, err := l.entries.DeleteUncompleted(ctx, id)
	if err != nil {
		return err
	}
	if deleted {
		log.Printf("[Ledger] discarded uncompleted entry %d", id)
	}
	return nil
}

func (l *Ledger) Wallet(ctx context.Context, userID uint) (*models.Wallet, error) {
	w, err := l.wallets.GetByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	return w, err
}

func (l *Ledger) History(ctx context.Context, userID uint, limit, offset int) ([]models.LedgerEntry, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return l.entries.ListByUser(ctx, userID, limit, offset)
}

// Announce publishes the current wallet state for an entry written through a
// transaction-bound ledger, once that transaction has committed.
func (l *Ledger) Announce(ctx context.Context, e *models.LedgerEntry) {
	if l.notifier == nil || e == nil {
		return
	}
	w, err := l.wallets.GetByUserID(ctx, e.UserID)
	if err != nil {
		log.Printf("[Ledger] announce wallet %d: %v", e.UserID, err)
		return
	}
	l.notifier.WalletChanged(w, e)
}

func (l *Ledger) publish(w *models.Wallet, e *models.LedgerEntry) {
	if l.bound || l.notifier == nil {
		return
	}
	l.notifier.WalletChanged(w, e)
}

func lockWallet(ctx context.Context, wallets *repository.WalletRepository, userID uint) (*models.Wallet, error) {
	w, err := wallets.GetByUserIDForUpdate(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	return w, nil
}

func setBalance(w *models.Wallet, kind string, v decimal.Decimal) {
	if kind == domain.KindLoyalty {
		w.LoyaltyBalance = v
		return
	}
	w.Balance = v
}

func validKind(kind string) bool {
	return kind == domain.KindFiat || kind == domain.KindLoyalty
}

func encodeMetadata(m map[string]interface{}) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}
