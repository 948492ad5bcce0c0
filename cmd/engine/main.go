package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rawblock/attack-correlator/internal/alertstore"
	"github.com/rawblock/attack-correlator/internal/api"
	"github.com/rawblock/attack-correlator/internal/blobstore"
	"github.com/rawblock/attack-correlator/internal/chainclient"
	"github.com/rawblock/attack-correlator/internal/cluster"
	"github.com/rawblock/attack-correlator/internal/config"
	"github.com/rawblock/attack-correlator/internal/contextstore"
	"github.com/rawblock/attack-correlator/internal/decision"
	"github.com/rawblock/attack-correlator/internal/dispatch"
	"github.com/rawblock/attack-correlator/internal/labelclient"
	"github.com/rawblock/attack-correlator/internal/persist"
	"github.com/rawblock/attack-correlator/internal/registry"
	"github.com/rawblock/attack-correlator/internal/suppression"
)

func main() {
	log.Println("Starting RawBlock Attack Detector (Microservice: attack-correlator)...")
	log.Println("Loading bot registry and correlation thresholds...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Use a .env file for local
	// development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	dbURL := os.Getenv("DATABASE_URL")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A state-store error is never fatal: the engine falls back to running
	// with in-memory-only state.
	var blob *blobstore.Store
	if dbURL == "" {
		log.Println("Warning: DATABASE_URL not set, running without durable state")
	} else {
		var err error
		blob, err = blobstore.Connect(ctx, dbURL)
		if err != nil {
			log.Printf("Warning: failed to connect to PostgreSQL, continuing without persisting correlator state. Error: %v", err)
		} else {
			defer blob.Close()
			if err := blob.InitSchema(ctx, config.GetEnvOrDefault("SCHEMA_PATH", "internal/blobstore/schema.sql")); err != nil {
				log.Printf("Warning: schema init failed: %v", err)
			}
		}
	}

	rpcURL := config.GetEnvOrDefault("CHAIN_RPC_URL", "")
	var chain decision.ChainChecker = chainclient.NoOp{}
	chainIDFallback := int64(1)
	if rpcURL == "" {
		log.Println("WARNING: CHAIN_RPC_URL not set — contract/validator checks run in no-op mode")
	} else {
		chainCfg := chainclient.Config{
			RPCURL:           rpcURL,
			FeeTransferBlock: getEnvInt64("VALIDATOR_FEE_TRANSFER_BLOCK", 0),
			CallTimeout:      5 * time.Second,
		}
		rpcClient, err := chainclient.Dial(ctx, chainCfg)
		if err != nil {
			log.Printf("Warning: failed to connect to chain RPC, continuing in no-op mode: %v", err)
		} else {
			defer rpcClient.Close()
			chain = rpcClient
			if id, err := rpcClient.ChainID(ctx); err == nil {
				chainIDFallback = id
			} else {
				log.Printf("Warning: could not resolve chain id from RPC, defaulting to %d: %v", chainIDFallback, err)
			}
		}
	}

	cfg := config.Load(chainIDFallback)
	log.Printf("Configured for chain id %d (production=%v)", cfg.ChainID, cfg.Production)

	labelBaseURL := config.GetEnvOrDefault("LABEL_API_URL", "https://labels.internal")
	labels := labelclient.New(labelBaseURL)

	reg := registry.New()
	clusterIdx := cluster.NewIndex(cfg.EntityClustersMaxSize)
	alerts := alertstore.New(cfg.LookbackWindow)
	contexts := contextstore.New(cfg.ContextQueueMaxSize)
	suppressionSets := suppression.New(cfg.FPMitigationMaxSize, cfg.EndUserAttackMaxSize, cfg.AlertedClustersMaxSize)

	var persistor *persist.Persistor
	if blob != nil {
		persistor = &persist.Persistor{
			ChainID:     cfg.ChainID,
			Blob:        blob,
			Cluster:     clusterIdx,
			Alerts:      alerts,
			Context:     contexts,
			Suppression: suppressionSets,
		}
		if err := persistor.Restore(ctx); err != nil {
			log.Printf("Warning: failed to restore persisted state, starting empty: %v", err)
		} else {
			log.Printf("Restored state: %d tracked addresses", clusterIdx.Size())
		}
	}

	engine := &decision.Engine{
		Registry:    reg,
		Alerts:      alerts,
		Context:     contexts,
		Suppression: suppressionSets,
		Chain:       chain,
		Labels:      labels,
		Config:      cfg,
	}

	dispatcher := &dispatch.Dispatcher{
		Registry:    reg,
		Cluster:     clusterIdx,
		Alerts:      alerts,
		Context:     contexts,
		Suppression: suppressionSets,
		Decision:    engine,
		Config:      cfg,
	}

	persistCtx, persistCancel := context.WithCancel(context.Background())
	if persistor != nil {
		dispatcher.PersistNow = persistor.Snapshot
		go persistor.Run(persistCtx, 5*time.Minute)
	} else {
		log.Println("WARNING: no durable state store configured — running in-memory only")
	}

	wsHub := api.NewHub()
	go wsHub.Run()

	r := api.SetupRouter(dispatcher, reg, wsHub, cfg.ChainID)

	port := config.GetEnvOrDefault("PORT", "5339")

	srvDone := make(chan error, 1)
	go func() {
		log.Printf("Engine running on :%s (chain %d)\n", port, cfg.ChainID)
		srvDone <- r.Run(":" + port)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srvDone:
		if err != nil {
			log.Printf("Server exited: %v", err)
		}
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down...", sig)
	}

	persistCancel()
	time.Sleep(200 * time.Millisecond) // let the persistor's final snapshot land
}

func getEnvInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("Warning: invalid int64 for %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return v
}
