package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-lazymint/internal/api"
	"github.com/0gfoundation/0g-lazymint/internal/config"
	"github.com/0gfoundation/0g-lazymint/internal/redeem"
	"github.com/0gfoundation/0g-lazymint/internal/settler"
	"github.com/0gfoundation/0g-lazymint/internal/verifier"
	"github.com/0gfoundation/0g-lazymint/internal/voucher"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Verifier + engine ─────────────────────────────────────────────────────
	engine, domain, err := newEngine(cfg, rdb, log)
	if err != nil {
		log.Fatal("engine init failed", zap.Error(err))
	}
	log.Info("voucher domain",
		zap.String("chain_id", domain.ChainID.String()),
		zap.String("contract", domain.VerifyingContract.Hex()),
	)

	// ── Settler ───────────────────────────────────────────────────────────────
	if cfg.Settler.Enabled {
		go settler.Run(ctx, rdb, engine, time.Duration(cfg.Settler.BlockTimeoutSec)*time.Second, log)
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	if cfg.Server.DevFunding {
		log.Warn("dev funding enabled: POST /wallets/:address/deposit is open")
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: newRouter(rdb, engine, domain, cfg.Server.DevFunding, log),
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// newEngine builds the redemption engine from config: domain, signer policy,
// and ECDSA verifier.
func newEngine(cfg *config.Config, rdb *redis.Client, log *zap.Logger) (*redeem.Engine, voucher.Domain, error) {
	domain := voucher.Domain{
		ChainID:           big.NewInt(cfg.Chain.ChainID),
		VerifyingContract: common.HexToAddress(cfg.Chain.ContractAddress),
	}
	signers, err := cfg.Policy.Signers()
	if err != nil {
		return nil, voucher.Domain{}, err
	}
	policy := verifier.NewPolicy(signers...)
	for _, s := range policy.Members() {
		log.Info("authorized signer", zap.String("address", s.Hex()))
	}
	ver := verifier.New(domain, policy, nil)
	return redeem.NewEngine(rdb, ver, log), domain, nil
}

func newRouter(rdb *redis.Client, engine *redeem.Engine, domain voucher.Domain, devFunding bool, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	api.NewHandler(rdb, engine, domain, devFunding, log).Register(r)
	return r
}
