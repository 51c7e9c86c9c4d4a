package handler

import (
	"errors"
	"net/http"

	"loyalpay/internal/gateway"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type AdminHandler struct {
	settings *gateway.SettingsStore
}

func NewAdminHandler(settings *gateway.SettingsStore) *AdminHandler {
	return &AdminHandler{settings: settings}
}

// GetGateway handles GET /api/v1/admin/gateway.
func (h *AdminHandler) GetGateway(c *gin.Context) {
	s, err := h.settings.Load(c.Request.Context())
	if err != nil {
		respondError(c, err, "admin", "failed to load gateway settings")
		return
	}
	c.JSON(http.StatusOK, s)
}

type GatewaySettingsRequest struct {
	Enabled *bool            `json:"enabled"`
	MinSum  *decimal.Decimal `json:"minSum"`
	MaxSum  *decimal.Decimal `json:"maxSum"`
}

// UpdateGateway handles PUT /api/v1/admin/gateway. Omitted fields keep their current value.
func (h *AdminHandler) UpdateGateway(c *gin.Context) {
	var req GatewaySettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	s, err := h.settings.Load(ctx)
	if err != nil {
		respondError(c, err, "admin", "failed to load gateway settings")
		return
	}
	if req.Enabled != nil {
		s.Enabled = *req.Enabled
	}
	if req.MinSum != nil {
		s.MinSum = *req.MinSum
	}
	if req.MaxSum != nil {
		s.MaxSum = *req.MaxSum
	}
	if err := h.settings.Save(ctx, s); err != nil {
		if errors.Is(err, gateway.ErrInvalidSettings) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "minSum must be positive and not above maxSum"})
			return
		}
		respondError(c, err, "admin", "failed to save gateway settings")
		return
	}
	c.JSON(http.StatusOK, s)
}
