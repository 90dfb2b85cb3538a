// Package escrow holds redemption payments on behalf of the minter that
// signed the redeemed voucher until that minter withdraws them.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-lazymint/internal/store"
	"github.com/0gfoundation/0g-lazymint/internal/wallet"
)

var ErrNothingToWithdraw = errors.New("nothing to withdraw")

func Key(addr common.Address) string { return store.AddrKey("escrow", addr) }

// Available returns the withdrawable balance of addr.
func Available(ctx context.Context, c redis.Cmdable, addr common.Address) (*big.Int, error) {
	return store.GetBig(ctx, c, Key(addr))
}

// Credit queues current+amount as the new balance of addr. current must have
// been read under WATCH on Key(addr) in the same transaction.
func Credit(ctx context.Context, pipe redis.Pipeliner, addr common.Address, current, amount *big.Int) *big.Int {
	next := new(big.Int).Add(current, amount)
	store.SetBig(ctx, pipe, Key(addr), next)
	return next
}

// Ledger performs withdrawals.
type Ledger struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewLedger(rdb *redis.Client, log *zap.Logger) *Ledger {
	return &Ledger{rdb: rdb, log: log}
}

func (l *Ledger) Available(ctx context.Context, addr common.Address) (*big.Int, error) {
	return Available(ctx, l.rdb, addr)
}

// Withdraw zeroes the escrow of addr and moves it to addr's wallet.
// A zero balance is an error, not a no-op.
func (l *Ledger) Withdraw(ctx context.Context, addr common.Address) (*big.Int, error) {
	escrowKey := Key(addr)
	walletKey := wallet.Key(addr)

	var amount *big.Int
	err := store.Atomic(ctx, l.rdb, func(tx *redis.Tx) error {
		bal, err := store.GetBig(ctx, tx, escrowKey)
		if err != nil {
			return err
		}
		if bal.Sign() == 0 {
			return ErrNothingToWithdraw
		}
		held, err := wallet.Balance(ctx, tx, addr)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			store.SetBig(ctx, pipe, escrowKey, new(big.Int))
			wallet.Set(ctx, pipe, addr, new(big.Int).Add(held, bal))
			return nil
		})
		if err != nil {
			return err
		}
		amount = bal
		return nil
	}, escrowKey, walletKey)
	if err != nil {
		if errors.Is(err, ErrNothingToWithdraw) {
			return nil, err
		}
		return nil, fmt.Errorf("withdraw: %w", err)
	}

	l.log.Info("escrow withdrawn",
		zap.String("minter", addr.Hex()),
		zap.String("amount", amount.String()),
	)
	return amount, nil
}
