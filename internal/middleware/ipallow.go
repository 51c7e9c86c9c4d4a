package middleware

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// IPAllowList restricts a route group to the given CIDRs or single addresses. An empty
// list allows everyone. Rejected callers get a 403 with the body produced by deny.
type IPAllowList struct {
	nets []*net.IPNet
}

func NewIPAllowList(entries []string) (*IPAllowList, error) {
	a := &IPAllowList{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("allow-list: bad address %q", e)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			e = fmt.Sprintf("%s/%d", e, bits)
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("allow-list: %w", err)
		}
		a.nets = append(a.nets, n)
	}
	return a, nil
}

func (a *IPAllowList) Allows(ip string) bool {
	if len(a.nets) == 0 {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range a.nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

func (a *IPAllowList) Middleware(contentType string, deny func() []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !a.Allows(ip) {
			log.Printf("[IPAllow] rejected %s %s from %s", c.Request.Method, c.Request.URL.Path, ip)
			c.Data(http.StatusForbidden, contentType, deny())
			c.Abort()
			return
		}
		c.Next()
	}
}
