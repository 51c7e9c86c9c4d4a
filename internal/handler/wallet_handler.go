package handler

import (
	"errors"
	"net/http"

	"loyalpay/internal/ledger"
	"loyalpay/internal/middleware"

	"github.com/gin-gonic/gin"
)

type WalletHandler struct {
	ledger *ledger.Ledger
}

func NewWalletHandler(l *ledger.Ledger) *WalletHandler {
	return &WalletHandler{ledger: l}
}

// GetWallet handles GET /api/v1/me/wallet.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	w, err := h.ledger.Wallet(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		respondError(c, err, "wallet", "wallet error")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":         w.Balance,
		"loyalty_balance": w.LoyaltyBalance,
		"total_earned":    w.TotalEarned,
		"total_spent":     w.TotalSpent,
		"last_updated":    w.LastUpdated,
	})
}

// Transactions handles GET /api/v1/me/wallet/transactions, newest first.
func (h *WalletHandler) Transactions(c *gin.Context) {
	limit, offset := pagination(c)
	entries, total, err := h.ledger.History(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		respondError(c, err, "wallet", "failed to load transactions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": entries, "total": total, "limit": limit, "offset": offset})
}
