package handler

import (
	"io"
	"log"
	"net/http"

	"loyalpay/internal/gateway"
	"loyalpay/internal/signature"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

type PaymentWebhookHandler struct {
	webhook  *gateway.Webhook
	verifier *signature.Service
}

// NewPaymentWebhookHandler verifies X-Signature only when verifier holds a public key.
func NewPaymentWebhookHandler(webhook *gateway.Webhook, verifier *signature.Service) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{webhook: webhook, verifier: verifier}
}

// Handle serves POST /api/v1/webhooks/payments. The transport always acks with 200;
// the business outcome is in the success flag.
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		log.Printf("[Webhook] read body: %v", err)
		c.JSON(http.StatusOK, gateway.Ack{})
		return
	}
	if h.verifier.CanVerify() {
		if err := h.verifier.VerifyRequest(c.Request, body); err != nil {
			log.Printf("[Webhook] rejected notification from %s: %v", c.ClientIP(), err)
			c.JSON(http.StatusOK, gateway.Ack{})
			return
		}
	}
	n, err := gateway.ParseNotification(body)
	if err != nil {
		log.Printf("[Webhook] %v", err)
		c.JSON(http.StatusOK, gateway.Ack{TransactionID: n.TransactionID})
		return
	}
	c.JSON(http.StatusOK, h.webhook.OnNotify(c.Request.Context(), n))
}
