package handler

import (
	"log"
	"net/http"

	"loyalpay/internal/gateway"

	"github.com/gin-gonic/gin"
)

const xmlContentType = "application/xml; charset=utf-8"

type OSMPHandler struct {
	gw *gateway.OSMP
}

func NewOSMPHandler(gw *gateway.OSMP) *OSMPHandler {
	return &OSMPHandler{gw: gw}
}

// Handle serves GET /payment. The provider reads the result code from the body, so
// every protocol outcome is a 200.
func (h *OSMPHandler) Handle(c *gin.Context) {
	resp := h.gw.Handle(c.Request.Context(), c.Request.URL.Query())
	body, err := resp.MarshalXMLBody()
	if err != nil {
		log.Printf("[OSMP] encode response txn %s: %v", resp.OsmpTxnID, err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, xmlContentType, body)
}

// Forbidden is the allow-list rejection body for /payment.
func (h *OSMPHandler) Forbidden() []byte {
	return gateway.ForbiddenXML()
}
