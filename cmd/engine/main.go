package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/rawblock/tradeloop-engine/internal/api"
	"github.com/rawblock/tradeloop-engine/internal/engine"
	"github.com/rawblock/tradeloop-engine/internal/notify"
	"github.com/rawblock/tradeloop-engine/internal/store"
	"github.com/rawblock/tradeloop-engine/pkg/models"
)

func main() {
	log.Println("Starting trade-loop discovery engine...")

	cfg := buildConfig()

	cacheTTL := time.Duration(cfg.CacheTTLMs) * time.Millisecond
	extCacheTTL := time.Duration(cfg.ExtendedCacheTTLMs) * time.Millisecond

	hub := notify.NewHub()
	go hub.Run()

	notifier := notify.NewRegistry()
	notifier.Register(hub)

	var st store.Store
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pg, err := store.ConnectPostgres(context.Background(), dbURL)
		if err != nil {
			log.Printf("Warning: failed to connect to PostgreSQL, falling back to the in-memory store. Error: %v", err)
			st = store.NewMemoryStore(cfg.MaxCacheEntries, cacheTTL, extCacheTTL, onDiscoveryEvent(notifier))
		} else {
			if err := pg.InitSchema(context.Background()); err != nil {
				log.Printf("Warning: schema init failed: %v", err)
			}
			defer pg.Close()
			st = pg
		}
	} else {
		st = store.NewMemoryStore(cfg.MaxCacheEntries, cacheTTL, extCacheTTL, onDiscoveryEvent(notifier))
	}

	eng := engine.New(cfg, st, notifier)

	r := api.SetupRouter(eng, hub)

	port := getEnvOrDefault("PORT", "5339")
	log.Printf("Engine listening on :%s\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// onDiscoveryEvent adapts MemoryStore's raw callback onto the notifier's
// typed events for the invalidations only the store itself originates
// (TTL-expiry sweeps). Engine-driven inserts and invalidations already fire
// through the notifier directly; forwarding them here again would emit every
// event twice.
func onDiscoveryEvent(notifier *notify.Registry) func(models.TenantID, *models.TradeLoop, bool, string) {
	return func(tenant models.TenantID, loop *models.TradeLoop, invalidated bool, reason string) {
		if invalidated && reason == "ttl_expired" {
			notifier.FireInvalidated(models.LoopInvalidatedEvent{Tenant: tenant, LoopID: loop.ID, Reason: reason})
		}
	}
}

func buildConfig() models.Config {
	cfg := models.Config{
		MaxDepth:           envInt("MAX_DEPTH", 0),
		MinEfficiency:      envFloat("MIN_EFFICIENCY", 0),
		MaxResults:         envInt("MAX_RESULTS", 0),
		TimeoutMs:          envInt64("TIMEOUT_MS", 0),
		SCCTimeoutMs:       envInt64("SCC_TIMEOUT_MS", 0),
		CyclesCap:          envInt("CYCLES_CAP", 0),
		CyclesCapDense:     envInt("CYCLES_CAP_DENSE", 0),
		MaxCommunitySize:   envInt("MAX_COMMUNITY_SIZE", 0),
		ParallelWorkers:    envInt("PARALLEL_WORKERS", 0),
		MaxCacheEntries:    envInt("MAX_CACHE_ENTRIES", 0),
		CacheTTLMs:         envInt64("CACHE_TTL_MS", 0),
		ExtendedCacheTTLMs: envInt64("EXTENDED_CACHE_TTL_MS", 0),
		BloomCapacity:      uint64(envInt64("BLOOM_CAPACITY", 0)),
		BloomFPRate:        envFloat("BLOOM_FP_RATE", 0),
		MaxBundleSize:      envInt("MAX_BUNDLE_SIZE", 0),
		SCCBatchSize:       envInt("SCC_BATCH_SIZE", 0),
	}
	if v := os.Getenv("ENABLE_PARTITION"); v != "" {
		enabled := v == "true"
		cfg.EnablePartition = &enabled
	}
	if v := os.Getenv("ENABLE_BLOOM_DEDUP"); v != "" {
		enabled := v == "true"
		cfg.EnableBloomDedup = &enabled
	}
	return cfg.WithDefaults()
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvOrDefault returns the env var value or a safe default for
// non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
