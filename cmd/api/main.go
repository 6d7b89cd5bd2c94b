package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"

	"github.com/microgate-project/microgate/internal/api"
	"github.com/microgate-project/microgate/internal/config"
	"github.com/microgate-project/microgate/internal/ledger"
	"github.com/microgate-project/microgate/internal/logger"
	"github.com/microgate-project/microgate/internal/store"
	"github.com/microgate-project/microgate/internal/verify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zlog := logger.NewZapLogger(cfg.LogLevel)

	replay, err := store.NewPostgresStore(context.Background(), cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to replay store: %v", err)
	}
	defer replay.Close()

	reader, err := ledger.NewEthReader(cfg.RPCURL, zlog)
	if err != nil {
		log.Fatalf("Unable to connect to chain RPC: %v", err)
	}
	defer reader.Close()

	verifier := verify.New(verify.Params{
		PayTo:            cfg.WalletAddress,
		MinAmountWei:     cfg.MinAmountWei,
		ChainID:          cfg.ChainID,
		MinConfirmations: cfg.MinConfirmations,
	}, reader, replay, zlog)

	handler := api.NewHandler(cfg, verifier, replay, zlog)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{cfg.FrontendURL, "http://localhost:5173", "http://localhost:3000"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", api.PaymentHashHeader}),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      cors(handler.Router()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zlog.Info("server starting", map[string]any{
		"port":      cfg.Port,
		"network":   cfg.ChainName,
		"chain_id":  cfg.ChainID,
		"wallet":    cfg.WalletAddress,
		"min_confs": cfg.MinConfirmations,
	})
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
