package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"loyalpay/internal/ledger"
	"loyalpay/internal/service"

	"github.com/gin-gonic/gin"
)

// respondError maps service and ledger sentinels to statuses. Unknown errors are
// logged under tag and answered 500 with fallback.
func respondError(c *gin.Context, err error, tag, fallback string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidItems),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrPaymentMismatch),
		errors.Is(err, ledger.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrPartnerNotFound),
		errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, ledger.ErrWalletNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidOrderState),
		errors.Is(err, service.ErrIdempotencyKeyReused),
		errors.Is(err, service.ErrOutOfStock):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInsufficientLoyaltyBalance),
		errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrSettlementFailed):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		log.Printf("[%s] %s: %v", tag, fallback, err)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
