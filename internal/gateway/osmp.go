package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"loyalpay/internal/domain"
	"loyalpay/internal/ledger"
	"loyalpay/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TxnDateLayout is the pay command's txn_date format (YYYYMMDDHHMMSS).
const TxnDateLayout = "20060102150405"

const (
	CommandCheck = "check"
	CommandPay   = "pay"
)

type CheckRequest struct {
	Account string
	TxnID   string
	Sum     decimal.Decimal
}

type PayRequest struct {
	Account string
	TxnID   string
	Sum     decimal.Decimal
	TxnDate time.Time // zero when the provider sent none
}

// OSMP implements the bank-style check/pay protocol. Every txn_id is credited at most
// once: a repeated pay for a completed txn_id answers OK with the original entry id.
type OSMP struct {
	name          string
	paymentMethod string
	users         *repository.UserRepository
	ledger        *ledger.Ledger
	settings      *SettingsStore
}

func NewOSMP(db *gorm.DB, l *ledger.Ledger, settings *SettingsStore, name, paymentMethod string) *OSMP {
	if name == "" {
		name = "osmp"
	}
	return &OSMP{
		name:          name,
		paymentMethod: paymentMethod,
		users:         repository.NewUserRepository(db),
		ledger:        l,
		settings:      settings,
	}
}

// Handle parses the query of GET /payment and dispatches the command. Malformed input
// yields ResultOtherError.
func (g *OSMP) Handle(ctx context.Context, q url.Values) Response {
	txnID := strings.TrimSpace(q.Get("txn_id"))
	account := strings.TrimSpace(q.Get("account"))
	resp := Response{OsmpTxnID: txnID}

	if !validTxnID(txnID) {
		return withResult(resp, ResultOtherError)
	}
	sum, err := decimal.NewFromString(strings.TrimSpace(q.Get("sum")))
	if err != nil || sum.IsNegative() {
		return withResult(resp, ResultOtherError)
	}
	resp.Sum = sum

	switch strings.ToLower(strings.TrimSpace(q.Get("command"))) {
	case CommandCheck:
		return g.Check(ctx, CheckRequest{Account: account, TxnID: txnID, Sum: sum})
	case CommandPay:
		var txnDate time.Time
		if raw := strings.TrimSpace(q.Get("txn_date")); raw != "" {
			txnDate, err = time.Parse(TxnDateLayout, raw)
			if err != nil {
				return withResult(resp, ResultOtherError)
			}
		}
		return g.Pay(ctx, PayRequest{Account: account, TxnID: txnID, Sum: sum, TxnDate: txnDate})
	default:
		return withResult(resp, ResultOtherError)
	}
}

// Check validates without touching the ledger.
func (g *OSMP) Check(ctx context.Context, req CheckRequest) (resp Response) {
	resp = Response{OsmpTxnID: req.TxnID, Sum: req.Sum}
	defer g.recoverInto(&resp, "check")

	code, _ := g.validate(ctx, req.Account, req.Sum)
	return withResult(resp, code)
}

func (g *OSMP) Pay(ctx context.Context, req PayRequest) (resp Response) {
	resp = Response{OsmpTxnID: req.TxnID, Sum: req.Sum}
	defer g.recoverInto(&resp, "pay")

	existing, err := g.ledger.EntryByGatewayRef(ctx, g.name, req.TxnID)
	switch {
	case err == nil && existing.IsCompleted():
		if existing.Type != domain.EntryTopup {
			log.Printf("[OSMP] txn %s held by non-topup entry %d", req.TxnID, existing.ID)
			return withResult(resp, ResultOtherError)
		}
		resp.PrvTxn = strconv.FormatUint(uint64(existing.ID), 10)
		return withResult(resp, ResultOK)
	case err == nil:
		if err := g.ledger.DiscardUncompleted(ctx, existing.ID); err != nil {
			log.Printf("[OSMP] discard stale entry for txn %s: %v", req.TxnID, err)
			return withResult(resp, ResultTemporaryError)
		}
	case !errors.Is(err, ledger.ErrEntryNotFound):
		log.Printf("[OSMP] lookup txn %s: %v", req.TxnID, err)
		return withResult(resp, ResultTemporaryError)
	}

	code, userID := g.validate(ctx, req.Account, req.Sum)
	if code != ResultOK {
		return withResult(resp, code)
	}

	meta := map[string]interface{}{"osmp_txn_id": req.TxnID}
	if !req.TxnDate.IsZero() {
		meta["txn_date"] = req.TxnDate.Format(TxnDateLayout)
	}
	entry, err := g.ledger.Credit(ctx, ledger.CreditRequest{
		UserID:        userID,
		Amount:        req.Sum,
		Type:          domain.EntryTopup,
		Kind:          domain.KindFiat,
		Gateway:       g.name,
		GatewayRef:    req.TxnID,
		PaymentMethod: g.paymentMethod,
		Description:   fmt.Sprintf("Top-up via %s", g.name),
		Metadata:      meta,
	})
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrWalletNotFound):
		return withResult(resp, ResultCannotCheckAccount)
	case errors.Is(err, ledger.ErrInvalidAmount):
		return withResult(resp, ResultOtherError)
	default:
		log.Printf("[OSMP] credit txn %s account %s: %v", req.TxnID, req.Account, err)
		return withResult(resp, ResultTemporaryError)
	}
	resp.PrvTxn = strconv.FormatUint(uint64(entry.ID), 10)
	log.Printf("[OSMP] pay txn=%s account=%d sum=%s prv_txn=%s", req.TxnID, userID, req.Sum.StringFixed(2), resp.PrvTxn)
	return withResult(resp, ResultOK)
}

// validate runs the ordered checks shared by check and pay, stopping at the first failure.
func (g *OSMP) validate(ctx context.Context, account string, sum decimal.Decimal) (ResultCode, uint) {
	settings, err := g.settings.Load(ctx)
	if err != nil {
		log.Printf("[OSMP] load settings: %v", err)
		return ResultTemporaryError, 0
	}
	if !settings.Enabled {
		return ResultForbidden, 0
	}
	if sum.LessThan(settings.MinSum) {
		return ResultAmountTooSmall, 0
	}
	if sum.GreaterThan(settings.MaxSum) {
		return ResultAmountTooLarge, 0
	}

	id, err := strconv.ParseUint(account, 10, 64)
	if err != nil || id == 0 {
		return ResultInvalidAccountFormat, 0
	}
	userID := uint(id)
	user, err := g.users.GetByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ResultAccountNotFound, 0
	}
	if err != nil {
		log.Printf("[OSMP] load account %d: %v", userID, err)
		return ResultTemporaryError, 0
	}
	if !user.CanTransact() {
		return ResultAccountNotActive, 0
	}
	if _, err := g.ledger.Wallet(ctx, userID); err != nil {
		if !errors.Is(err, ledger.ErrWalletNotFound) {
			log.Printf("[OSMP] load wallet %d: %v", userID, err)
		}
		return ResultCannotCheckAccount, 0
	}
	return ResultOK, userID
}

func (g *OSMP) recoverInto(resp *Response, command string) {
	if r := recover(); r != nil {
		log.Printf("[OSMP] panic in %s txn %s: %v", command, resp.OsmpTxnID, r)
		resp.PrvTxn = ""
		*resp = withResult(*resp, ResultTemporaryError)
	}
}

func withResult(resp Response, code ResultCode) Response {
	resp.Result = code
	resp.Comment = code.Comment()
	return resp
}

// validTxnID accepts the provider's numeric transaction ids.
func validTxnID(s string) bool {
	if s == "" || len(s) > 20 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
