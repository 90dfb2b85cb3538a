// Package redeem turns a signed voucher into a minted, transferred, paid-for
// token. Each redemption is one Redis transaction: either every effect
// (mint, transfer, payment capture, escrow credit) lands or none does.
package redeem

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-lazymint/internal/escrow"
	"github.com/0gfoundation/0g-lazymint/internal/registry"
	"github.com/0gfoundation/0g-lazymint/internal/store"
	"github.com/0gfoundation/0g-lazymint/internal/verifier"
	"github.com/0gfoundation/0g-lazymint/internal/voucher"
	"github.com/0gfoundation/0g-lazymint/internal/wallet"
)

var (
	ErrAlreadyMinted     = errors.New("token already minted")
	ErrInsufficientFunds = errors.New("Insufficient funds to redeem") //nolint:staticcheck
	ErrInvalidRedeemer   = errors.New("redeemer must not be the zero address")
)

// VoucherVerifier is satisfied by *verifier.Verifier. Its Policy also gates
// withdrawals, so redemption and payout always consult the same signer set.
type VoucherVerifier interface {
	Verify(v *voucher.NFTVoucher) (common.Address, error)
	Policy() *verifier.Policy
}

// Result describes a successful redemption.
type Result struct {
	Signer    common.Address      `json:"signer"`
	Redeemer  common.Address      `json:"redeemer"`
	TokenID   *big.Int            `json:"token_id"`
	Payment   *big.Int            `json:"payment"`
	Transfers []registry.Transfer `json:"transfers"`
}

// Engine redeems vouchers and pays out escrow.
type Engine struct {
	rdb      *redis.Client
	verifier VoucherVerifier
	escrow   *escrow.Ledger
	now      func() time.Time
	log      *zap.Logger
}

func NewEngine(rdb *redis.Client, v VoucherVerifier, log *zap.Logger) *Engine {
	return &Engine{
		rdb:      rdb,
		verifier: v,
		escrow:   escrow.NewLedger(rdb, log),
		now:      time.Now,
		log:      log,
	}
}

// Redeem mints v.TokenID to the voucher's signer, transfers it to redeemer,
// moves payment from the redeemer's wallet into the signer's escrow.
//
// Checks run in a fixed order: signature, already minted, payment vs
// minPrice, redeemer balance. A rejected call changes nothing.
func (e *Engine) Redeem(ctx context.Context, redeemer common.Address, v *voucher.NFTVoucher, payment *big.Int) (*Result, error) {
	if redeemer == (common.Address{}) {
		return nil, ErrInvalidRedeemer
	}
	if payment == nil {
		payment = new(big.Int)
	}

	signer, err := e.verifier.Verify(v)
	if err != nil {
		e.log.Warn("redeem rejected", zap.String("reason", "unauthorized"))
		return nil, verifier.ErrUnauthorized
	}

	tokenKey := registry.TokenKey(v.TokenID)
	var transfers []registry.Transfer

	err = store.Atomic(ctx, e.rdb, func(tx *redis.Tx) error {
		transfers = nil

		minted, err := registry.Exists(ctx, tx, v.TokenID)
		if err != nil {
			return err
		}
		if minted {
			return ErrAlreadyMinted
		}
		if payment.Cmp(v.MinPrice) < 0 {
			return ErrInsufficientFunds
		}

		held, err := wallet.Balance(ctx, tx, redeemer)
		if err != nil {
			return err
		}
		if held.Cmp(payment) < 0 {
			return wallet.ErrInsufficientBalance
		}
		escrowed, err := escrow.Available(ctx, tx, signer)
		if err != nil {
			return err
		}

		now := e.now().Unix()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			transfers = append(transfers,
				registry.Mint(ctx, pipe, v.TokenID, v.URI, signer, now),
				registry.TransferFrom(ctx, pipe, v.TokenID, signer, redeemer, now),
			)
			if payment.Sign() > 0 {
				wallet.Set(ctx, pipe, redeemer, new(big.Int).Sub(held, payment))
				escrow.Credit(ctx, pipe, signer, escrowed, payment)
			}
			return nil
		})
		return err
	}, tokenKey, wallet.Key(redeemer), escrow.Key(signer))

	if err != nil {
		if code, _ := Classify(err); code != CodeInternal {
			e.log.Warn("redeem rejected",
				zap.String("reason", code),
				zap.String("token_id", v.TokenID.String()),
			)
			return nil, err
		}
		return nil, fmt.Errorf("redeem token %s: %w", v.TokenID, err)
	}

	e.log.Info("voucher redeemed",
		zap.String("token_id", v.TokenID.String()),
		zap.String("signer", signer.Hex()),
		zap.String("redeemer", redeemer.Hex()),
		zap.String("payment", payment.String()),
	)
	return &Result{
		Signer:    signer,
		Redeemer:  redeemer,
		TokenID:   new(big.Int).Set(v.TokenID),
		Payment:   new(big.Int).Set(payment),
		Transfers: transfers,
	}, nil
}

// AvailableToWithdraw returns the escrow balance of who.
func (e *Engine) AvailableToWithdraw(ctx context.Context, who common.Address) (*big.Int, error) {
	return e.escrow.Available(ctx, who)
}

// Withdraw pays out who's escrow into their wallet. Only identities in the
// verifier's authorization policy may withdraw.
func (e *Engine) Withdraw(ctx context.Context, who common.Address) (*big.Int, error) {
	if !e.verifier.Policy().Authorize(who) {
		return nil, verifier.ErrUnauthorized
	}
	return e.escrow.Withdraw(ctx, who)
}
