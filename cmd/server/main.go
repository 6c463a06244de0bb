package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolio-trader-go/internal/auth"
	"portfolio-trader-go/internal/backend"
	"portfolio-trader-go/internal/config"
	"portfolio-trader-go/internal/database"
	"portfolio-trader-go/internal/ledger"
	"portfolio-trader-go/internal/logger"
	"portfolio-trader-go/internal/pricefeed"
	"portfolio-trader-go/internal/store"
	"portfolio-trader-go/internal/wallet"

	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Store and catalog over the local database
	accounts := store.NewGormStore(db, log, cfg.Ledger.TxRetries)
	catalog := store.NewGormCatalog(db)

	// Bearer credential for the remote backend
	tokens := auth.NewCachingTokenSource(auth.NewStaticTokenSource(cfg.Backend.AuthToken))

	// Backend REST client
	client := backend.NewClient(&cfg.Backend, tokens, log)

	// Ledger: local store transactions, or delegated to the backend
	local := ledger.NewLocal(accounts, catalog, log)
	var book ledger.Ledger = local
	if cfg.Ledger.Mode == "remote" {
		log.Info("Using remote ledger mode")
		book = ledger.NewRemote(local, client, log)
	}

	coordinator := pricefeed.NewCoordinator(&cfg.PriceFeed, client, log)
	wallets := wallet.NewService(client, accounts, log)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Setup HTTP server
	apiHandler := NewAPIHandler(log, book, coordinator, wallets)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/portfolio", apiHandler.PortfolioHandler)
	mux.HandleFunc("/api/position", apiHandler.PositionHandler)
	mux.HandleFunc("/api/buy", apiHandler.BuyHandler)
	mux.HandleFunc("/api/sell", apiHandler.SellHandler)
	mux.HandleFunc("/api/graph", apiHandler.GraphHandler)
	mux.HandleFunc("/api/wallet/balance", apiHandler.BalanceHandler)
	mux.HandleFunc("/api/wallet/topup", apiHandler.TopUpHandler)
	mux.HandleFunc("/api/wallet/withdraw", apiHandler.WithdrawHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		apiHandler.StopSubscriptions()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown failed", zap.Error(err))
		}
	}()

	log.Info("Starting API server", zap.String("address", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("API server failed", zap.Error(err))
	}

	log.Info("Server has been shut down.")
}
