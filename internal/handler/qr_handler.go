package handler

import (
	"net/http"

	"loyalpay/internal/middleware"
	"loyalpay/internal/service"

	"github.com/gin-gonic/gin"
)

type QRHandler struct {
	svc *service.QRService
}

func NewQRHandler(svc *service.QRService) *QRHandler {
	return &QRHandler{svc: svc}
}

// Redeem handles POST /api/v1/qr/redeem.
func (h *QRHandler) Redeem(c *gin.Context) {
	var req service.QRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.Redeem(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, err, "QR", "redemption failed")
		return
	}
	c.JSON(http.StatusOK, res)
}
