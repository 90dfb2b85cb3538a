// Package store holds the Redis conventions shared by the ledger packages:
// key naming, big-integer values, and optimistic WATCH/MULTI transactions.
package store

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

const Prefix = "lazynft:"

// maxTxRetries bounds optimistic retries when a watched key changes under us.
const maxTxRetries = 100

var ErrContention = errors.New("store: transaction retries exhausted")

// AddrKey builds "<prefix><kind>:<lowercase hex address>".
func AddrKey(kind string, addr common.Address) string {
	return Prefix + kind + ":" + strings.ToLower(addr.Hex())
}

// GetBig reads a decimal big integer. A missing key reads as zero.
func GetBig(ctx context.Context, c redis.Cmdable, key string) (*big.Int, error) {
	s, err := c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("store: %s holds non-integer %q", key, s)
	}
	return n, nil
}

// SetBig queues a write of n. Zero deletes the key so balances never linger.
func SetBig(ctx context.Context, pipe redis.Pipeliner, key string, n *big.Int) {
	if n.Sign() == 0 {
		pipe.Del(ctx, key)
		return
	}
	pipe.Set(ctx, key, n.String(), 0)
}

// Atomic runs fn under WATCH on keys and retries when another client
// modified a watched key before EXEC. Errors returned by fn are final.
func Atomic(ctx context.Context, rdb *redis.Client, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return ErrContention
}
