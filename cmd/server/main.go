package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loyalpay/config"
	"loyalpay/internal/database"
	"loyalpay/internal/middleware"
	"loyalpay/internal/router"
	"loyalpay/internal/signature"
	"loyalpay/internal/ws"
	"loyalpay/pkg/payment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	database.SeedAdmin(db, cfg.Admin.Email, cfg.Admin.Password)

	keys, err := signature.Load(cfg.Settlement.PrivateKeyPath, cfg.Webhook.PublicKeyPath)
	if err != nil {
		log.Fatalf("signature keys: %v", err)
	}
	if !keys.CanVerify() {
		if cfg.Server.Env == "production" {
			log.Fatalf("[Webhook] webhook.public_key_path is required in production")
		}
		log.Printf("[Webhook] no public key configured, notifications are not signature-checked")
	}

	var settler payment.Settler
	if cfg.Settlement.BaseURL != "" {
		var signer payment.RequestSigner
		if keys.CanSign() {
			signer = keys
		}
		settler = payment.NewHTTPSettler(cfg.Settlement.BaseURL, cfg.Settlement.APIKey, cfg.Settlement.Timeout, signer)
		log.Printf("[payment] settlement via %s", cfg.Settlement.BaseURL)
	} else {
		if cfg.Server.Env == "production" {
			log.Fatalf("settlement: SETTLEMENT_BASE_URL is required in production")
		}
		settler = &payment.StubSettler{}
		log.Printf("[payment] settlement stub enabled (development only)")
	}

	limiter := middleware.NewInMemoryRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()

	engine, err := router.Setup(cfg, db, router.Deps{
		Settler:   settler,
		Signature: keys,
		Hub:       ws.NewHub(),
		Limiter:   limiter,
	})
	if err != nil {
		log.Fatalf("router: %v", err)
	}
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server shutdown:", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	fmt.Println("server stopped")
}
