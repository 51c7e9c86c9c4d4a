package router

import (
	"errors"
	"fmt"

	"loyalpay/config"
	"loyalpay/internal/domain"
	"loyalpay/internal/gateway"
	"loyalpay/internal/handler"
	"loyalpay/internal/ledger"
	"loyalpay/internal/middleware"
	"loyalpay/internal/service"
	"loyalpay/internal/signature"
	"loyalpay/internal/ws"
	"loyalpay/pkg/payment"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps are the collaborators built in main from configuration.
type Deps struct {
	Settler   payment.Settler
	Signature *signature.Service // webhook verification; may hold no key
	Hub       *ws.Hub
	Limiter   *middleware.InMemoryRateLimiter
}

func Setup(cfg *config.Config, db *gorm.DB, deps Deps) (*gin.Engine, error) {
	if cfg.Server.Env == "production" {
		if !deps.Signature.CanVerify() {
			return nil, errors.New("webhook.public_key_path is required in production")
		}
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	// ClientIP feeds the gateway allow-list, so forwarded headers count only from known proxies.
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	if cfg.Server.Env != "production" {
		r.Use(gin.Logger())
	}

	allow, err := middleware.NewIPAllowList(cfg.Gateway.AllowedCIDRs)
	if err != nil {
		return nil, fmt.Errorf("gateway allow-list: %w", err)
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = middleware.NewInMemoryRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}
	hub := deps.Hub
	if hub == nil {
		hub = ws.NewHub()
	}
	settler := deps.Settler
	if settler == nil {
		settler = &payment.StubSettler{}
	}

	// Core
	l := ledger.New(db, hub)
	settings := gateway.NewSettingsStore(db, gateway.Settings{
		Enabled: cfg.Gateway.Enabled,
		MinSum:  cfg.Gateway.MinSum,
		MaxSum:  cfg.Gateway.MaxSum,
	})
	osmp := gateway.NewOSMP(db, l, settings, cfg.Gateway.Name, cfg.Gateway.PaymentMethod)

	// Services
	authSvc := service.NewAuthService(&cfg.JWT, db)
	orderSvc := service.NewOrderService(db, l, cfg.Loyalty.DefaultCashbackRate)
	webhook := gateway.NewWebhook(l, orderSvc, cfg.Webhook.Gateway, cfg.Webhook.LoyaltyCurrency)
	qrSvc := service.NewQRService(db, l, settler, cfg.Settlement.Currency, cfg.Settlement.Timeout)

	// Handlers
	osmpHandler := handler.NewOSMPHandler(osmp)
	webhookHandler := handler.NewPaymentWebhookHandler(webhook, deps.Signature)
	authHandler := handler.NewAuthHandler(authSvc)
	walletHandler := handler.NewWalletHandler(l)
	orderHandler := handler.NewOrderHandler(orderSvc)
	qrHandler := handler.NewQRHandler(qrSvc)
	adminHandler := handler.NewAdminHandler(settings)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Bank gateway speaks XML and is restricted by source address.
	r.GET("/payment", allow.Middleware("application/xml; charset=utf-8", osmpHandler.Forbidden), osmpHandler.Handle)

	r.GET("/ws/wallet", ws.ServeWalletWS(&cfg.JWT, hub))

	api := r.Group("/api/v1")
	api.POST("/webhooks/payments", webhookHandler.Handle)

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimit(limiter))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	// Limit after auth so each account gets its own bucket.
	protected := api.Group("")
	protected.Use(middleware.AuthRequired(&cfg.JWT), middleware.RateLimit(limiter))
	{
		protected.GET("/me/wallet", walletHandler.GetWallet)
		protected.GET("/me/wallet/transactions", walletHandler.Transactions)

		protected.POST("/qr/redeem", qrHandler.Redeem)

		protected.POST("/orders/calculate", orderHandler.Calculate)
		protected.POST("/orders", orderHandler.Create)
		protected.GET("/orders", orderHandler.List)
		protected.GET("/orders/:id", orderHandler.Get)
		protected.POST("/orders/:id/cancel", orderHandler.Cancel)
		protected.POST("/orders/:id/complete", middleware.RequireRole(domain.RolePartner, domain.RoleAdmin), orderHandler.Complete)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.AdminRequired())
	{
		admin.GET("/gateway", adminHandler.GetGateway)
		admin.PUT("/gateway", adminHandler.UpdateGateway)
	}

	return r, nil
}
