package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marathon-billing-engine/internal/client"
	"marathon-billing-engine/internal/clock"
	"marathon-billing-engine/internal/config"
	"marathon-billing-engine/internal/repository"
	"marathon-billing-engine/internal/server"
	"marathon-billing-engine/internal/service"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	db := client.InitMysqlClient(cfg.DatabaseURL)
	gatewayClient := client.NewAlfabankClient(&cfg.AlfaBank)
	emailClient := client.NewEmailClient(&cfg.Mailer)
	clk := clock.NewSystem()

	txManager := repository.NewTxManager(db)
	orderRepo := repository.NewOrderRepository(db)
	grantRepo := repository.NewGrantRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	purchaseRepo := repository.NewPurchaseRepository(db)
	premiumRepo := repository.NewPremiumRepository(db)
	dayProgressRepo := repository.NewDayProgressRepository(db)

	entitlementService := service.NewEntitlementService(
		grantRepo, enrollmentRepo, purchaseRepo, premiumRepo, emailClient, clk,
	)
	paymentService := service.NewPaymentService(
		txManager, gatewayClient, orderRepo, entitlementService, clk,
		cfg.AlfaBank.ReturnURL, cfg.AlfaBank.FailURL,
	)
	progressionService := service.NewProgressionService(
		txManager, enrollmentRepo, purchaseRepo, dayProgressRepo, clk,
	)
	sweeperService := service.NewSweeperService(
		txManager, orderRepo, gatewayClient, paymentService, entitlementService, clk,
	)

	cronScheduler := cron.New(cron.WithSeconds())

	if _, err := cronScheduler.AddFunc(cfg.Sweep.GrantGapSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		repaired, err := sweeperService.RepairGrantGaps(ctx)
		if err != nil {
			log.Printf("[CRON] grant gap sweep: %v", err)
			return
		}
		if repaired > 0 {
			log.Printf("[CRON] repaired %d missing entitlements", repaired)
		}
	}); err != nil {
		log.Fatal("failed to add grant gap sweep:", err)
	}

	if _, err := cronScheduler.AddFunc(cfg.Sweep.StalePendingSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		cancelled, err := sweeperService.ExpireStaleOrders(ctx)
		if err != nil {
			log.Printf("[CRON] stale order sweep: %v", err)
			return
		}
		if cancelled > 0 {
			log.Printf("[CRON] cancelled %d stale orders", cancelled)
		}
	}); err != nil {
		log.Fatal("failed to add stale order sweep:", err)
	}

	cronScheduler.Start()

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	srv := server.NewServer(paymentService, progressionService, cfg.JWTSecret)

	log.Println("Starting HTTP server on", serverAddr)
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Println("Signal received, starting graceful shutdown...")

	cronCtx := cronScheduler.Stop()
	<-cronCtx.Done()

	if err := srv.Shutdown(); err != nil {
		log.Fatal("HTTP server shutdown error")
	}
}
