// Package api exposes redemption, escrow and token lookups over HTTP.
package api

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-lazymint/internal/auth"
	"github.com/0gfoundation/0g-lazymint/internal/metadata"
	"github.com/0gfoundation/0g-lazymint/internal/redeem"
	"github.com/0gfoundation/0g-lazymint/internal/registry"
	"github.com/0gfoundation/0g-lazymint/internal/settler"
	"github.com/0gfoundation/0g-lazymint/internal/voucher"
	"github.com/0gfoundation/0g-lazymint/internal/wallet"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// Handler wires the redemption service onto a Gin engine.
type Handler struct {
	rdb        *redis.Client
	engine     *redeem.Engine
	domain     voucher.Domain
	devFunding bool
	log        *zap.Logger
}

func NewHandler(rdb *redis.Client, engine *redeem.Engine, domain voucher.Domain, devFunding bool, log *zap.Logger) *Handler {
	return &Handler{rdb: rdb, engine: engine, domain: domain, devFunding: devFunding, log: log}
}

// redeemRequest is the body of POST /api/redeem and POST /api/redemptions.
// Payment is a decimal string in wei; empty means zero.
type redeemRequest struct {
	Voucher *voucher.NFTVoucher `json:"voucher"`
	Payment string              `json:"payment"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

// Register mounts all routes. Mutating /api routes each carry their own
// signed action so a signature for one cannot be replayed against another.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/domain", h.handleDomain)
	r.GET("/escrow/:address", h.handleEscrow)
	r.GET("/wallets/:address", h.handleWallet)
	if h.devFunding {
		r.POST("/wallets/:address/deposit", h.handleDeposit)
	}
	r.GET("/tokens/:id", h.handleToken)
	r.GET("/events", h.handleEvents)

	api := r.Group("/api")
	api.POST("/redeem", auth.Middleware(h.rdb, "redeem"), h.handleRedeem)
	api.POST("/redemptions", auth.Middleware(h.rdb, "enqueue"), h.handleEnqueue)
	api.GET("/redemptions/:id", h.handleJob)
	api.POST("/withdraw", auth.Middleware(h.rdb, "withdraw"), h.handleWithdraw)
}

// ── Domain ──────────────────────────────────────────────────────────────────

func (h *Handler) handleDomain(c *gin.Context) {
	sep := h.domain.Separator()
	c.JSON(http.StatusOK, gin.H{
		"name":               voucher.DomainName,
		"version":            voucher.DomainVersion,
		"chain_id":           h.domain.ChainID.String(),
		"verifying_contract": h.domain.VerifyingContract.Hex(),
		"separator":          hexutil.Encode(sep[:]),
	})
}

// ── Redemption ──────────────────────────────────────────────────────────────

func (h *Handler) handleRedeem(c *gin.Context) {
	v, payment, ok := bindRedeem(c)
	if !ok {
		return
	}
	res, err := h.engine.Redeem(c.Request.Context(), auth.Wallet(c), v, payment)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"signer":    res.Signer.Hex(),
		"redeemer":  res.Redeemer.Hex(),
		"token_id":  res.TokenID.String(),
		"payment":   res.Payment.String(),
		"transfers": res.Transfers,
	})
}

func (h *Handler) handleEnqueue(c *gin.Context) {
	v, payment, ok := bindRedeem(c)
	if !ok {
		return
	}
	job, err := settler.Enqueue(c.Request.Context(), h.rdb, auth.Wallet(c), v, payment)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": job.ID, "status": settler.StatusQueued})
}

func (h *Handler) handleJob(c *gin.Context) {
	st, err := settler.GetState(c.Request.Context(), h.rdb, c.Param("id"))
	if errors.Is(err, settler.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "redemption not found"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ── Escrow ──────────────────────────────────────────────────────────────────

func (h *Handler) handleWithdraw(c *gin.Context) {
	amount, err := h.engine.Withdraw(c.Request.Context(), auth.Wallet(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": amount.String()})
}

func (h *Handler) handleEscrow(c *gin.Context) {
	addr, ok := bindAddress(c)
	if !ok {
		return
	}
	n, err := h.engine.AvailableToWithdraw(c.Request.Context(), addr)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr.Hex(), "available": n.String()})
}

// ── Wallets ─────────────────────────────────────────────────────────────────

func (h *Handler) handleWallet(c *gin.Context) {
	addr, ok := bindAddress(c)
	if !ok {
		return
	}
	n, err := wallet.Balance(c.Request.Context(), h.rdb, addr)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr.Hex(), "balance": n.String()})
}

func (h *Handler) handleDeposit(c *gin.Context) {
	addr, ok := bindAddress(c)
	if !ok {
		return
	}
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	n, err := wallet.Deposit(c.Request.Context(), h.rdb, addr, amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("dev deposit", zap.String("address", addr.Hex()), zap.String("amount", amount.String()))
	c.JSON(http.StatusOK, gin.H{"address": addr.Hex(), "balance": n.String()})
}

// ── Tokens ──────────────────────────────────────────────────────────────────

func (h *Handler) handleToken(c *gin.Context) {
	id, ok := new(big.Int).SetString(c.Param("id"), 10)
	if !ok || id.Sign() < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token id"})
		return
	}
	tok, err := registry.Get(c.Request.Context(), h.rdb, id)
	if errors.Is(err, registry.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "token not minted"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := gin.H{
		"token_id":  tok.TokenID.String(),
		"owner":     tok.Owner.Hex(),
		"uri":       tok.URI,
		"minted_by": tok.MintedBy.Hex(),
		"minted_at": tok.MintedAt,
	}
	// URIs are never validated on redemption; a bad one is reported, not rejected.
	if u, err := metadata.Parse(tok.URI); err == nil && u.IsContentAddressed() {
		resp["cid"] = u.CID.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleEvents(c *gin.Context) {
	limit := int64(defaultEventLimit)
	if s := c.Query("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxEventLimit)
	}
	events, err := registry.Events(c.Request.Context(), h.rdb, limit, h.log)
	if err != nil {
		h.fail(c, err)
		return
	}
	if events == nil {
		events = []registry.Transfer{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func bindRedeem(c *gin.Context) (*voucher.NFTVoucher, *big.Int, bool) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Voucher == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return nil, nil, false
	}
	payment := new(big.Int)
	if req.Payment != "" {
		if _, ok := payment.SetString(req.Payment, 10); !ok || payment.Sign() < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment"})
			return nil, nil, false
		}
	}
	return req.Voucher, payment, true
}

func bindAddress(c *gin.Context) (common.Address, bool) {
	s := c.Param("address")
	if !common.IsHexAddress(s) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// fail writes err as {code, error, retryable}. Internal errors are logged and
// replaced with a generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	code, retryable := redeem.Classify(err)
	msg := err.Error()
	if code == redeem.CodeInternal {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "internal error"
	}
	c.JSON(statusFor(code), gin.H{"code": code, "error": msg, "retryable": retryable})
}

func statusFor(code string) int {
	switch code {
	case redeem.CodeUnauthorized:
		return http.StatusForbidden
	case redeem.CodeAlreadyMinted:
		return http.StatusConflict
	case redeem.CodeInsufficientFunds, redeem.CodeInsufficientBalance:
		return http.StatusPaymentRequired
	case redeem.CodeNothingToWithdraw:
		return http.StatusConflict
	case redeem.CodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
