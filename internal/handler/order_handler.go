package handler

import (
	"net/http"
	"strconv"

	"loyalpay/internal/middleware"
	"loyalpay/internal/service"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	svc *service.OrderService
}

func NewOrderHandler(svc *service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

type CalculateRequest struct {
	PartnerID uint                  `json:"partnerId" binding:"required"`
	Items     []service.ItemRequest `json:"items" binding:"required"`
}

// Calculate handles POST /api/v1/orders/calculate. It quotes against the caller's
// loyalty balance without reserving anything.
func (h *OrderHandler) Calculate(c *gin.Context) {
	var req CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := middleware.GetUserID(c)
	q, err := h.svc.Calculate(c.Request.Context(), req.PartnerID, req.Items, &userID)
	if err != nil {
		respondError(c, err, "orders", "failed to calculate order")
		return
	}
	c.JSON(http.StatusOK, q)
}

// Create handles POST /api/v1/orders. The Idempotency-Key header wins over the body
// field; a replay answers 200 with the stored order.
func (h *OrderHandler) Create(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}
	if len(req.IdempotencyKey) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idempotency key too long"})
		return
	}
	order, created, err := h.svc.CreateOrder(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, err, "orders", "failed to create order")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, order)
}

func (h *OrderHandler) List(c *gin.Context) {
	limit, offset := pagination(c)
	orders, total, err := h.svc.ListOrders(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		respondError(c, err, "orders", "failed to list orders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total, "limit": limit, "offset": offset})
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	order, err := h.svc.GetOrder(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, err, "orders", "failed to load order")
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	order, err := h.svc.CancelOrder(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, err, "orders", "failed to cancel order")
		return
	}
	c.JSON(http.StatusOK, order)
}

// Complete handles POST /api/v1/orders/:id/complete (partner or admin).
func (h *OrderHandler) Complete(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	order, err := h.svc.CompleteOrder(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, err, "orders", "failed to complete order")
		return
	}
	c.JSON(http.StatusOK, order)
}

func orderID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return 0, false
	}
	return uint(id), true
}
