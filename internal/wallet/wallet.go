// Package wallet tracks the spendable balance of each identity outside the
// escrow: redeemers pay from it and minters withdraw into it.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-lazymint/internal/store"
)

var (
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

func Key(addr common.Address) string { return store.AddrKey("wallet", addr) }

func Balance(ctx context.Context, c redis.Cmdable, addr common.Address) (*big.Int, error) {
	return store.GetBig(ctx, c, Key(addr))
}

// Set queues a balance overwrite; the caller must have read the old value under WATCH.
func Set(ctx context.Context, pipe redis.Pipeliner, addr common.Address, n *big.Int) {
	store.SetBig(ctx, pipe, Key(addr), n)
}

// Deposit adds funds to addr and returns the new balance.
func Deposit(ctx context.Context, rdb *redis.Client, addr common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	key := Key(addr)
	var balance *big.Int
	err := store.Atomic(ctx, rdb, func(tx *redis.Tx) error {
		cur, err := store.GetBig(ctx, tx, key)
		if err != nil {
			return err
		}
		balance = cur.Add(cur, amount)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			store.SetBig(ctx, pipe, key, balance)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}
	return balance, nil
}
