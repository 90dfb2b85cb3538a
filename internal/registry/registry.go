// Package registry is the token ownership book. A token exists once it has
// been minted and can never be minted again.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-lazymint/internal/store"
)

const (
	tokenKeyPrefix = store.Prefix + "token:"
	EventsKey      = store.Prefix + "events"
)

var ErrNotFound = errors.New("registry: token not minted")

// maxEvents caps the event log; older entries are trimmed on every write.
var maxEvents int64 = 10_000

// Transfer mirrors the ERC-721 Transfer event. From is the zero address on mint.
type Transfer struct {
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	TokenID   *big.Int       `json:"token_id"`
	Timestamp int64          `json:"timestamp"`
}

// IsMint reports whether the event created the token.
func (t Transfer) IsMint() bool { return t.From == (common.Address{}) }

// Token is the stored state of a minted token.
type Token struct {
	TokenID  *big.Int       `json:"token_id"`
	Owner    common.Address `json:"owner"`
	URI      string         `json:"uri"`
	MintedBy common.Address `json:"minted_by"`
	MintedAt int64          `json:"minted_at"`
}

// TokenKey returns the Redis key for a token; callers WATCH it to serialize
// all state changes to that token.
func TokenKey(tokenID *big.Int) string {
	return tokenKeyPrefix + tokenID.String()
}

func Exists(ctx context.Context, c redis.Cmdable, tokenID *big.Int) (bool, error) {
	n, err := c.Exists(ctx, TokenKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func Get(ctx context.Context, c redis.Cmdable, tokenID *big.Int) (*Token, error) {
	vals, err := c.HGetAll(ctx, TokenKey(tokenID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	mintedAt, _ := strconv.ParseInt(vals["minted_at"], 10, 64)
	return &Token{
		TokenID:  new(big.Int).Set(tokenID),
		Owner:    common.HexToAddress(vals["owner"]),
		URI:      vals["uri"],
		MintedBy: common.HexToAddress(vals["minted_by"]),
		MintedAt: mintedAt,
	}, nil
}

func OwnerOf(ctx context.Context, c redis.Cmdable, tokenID *big.Int) (common.Address, error) {
	owner, err := c.HGet(ctx, TokenKey(tokenID), "owner").Result()
	if errors.Is(err, redis.Nil) {
		return common.Address{}, ErrNotFound
	}
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(owner), nil
}

func TokenURI(ctx context.Context, c redis.Cmdable, tokenID *big.Int) (string, error) {
	uri, err := c.HGet(ctx, TokenKey(tokenID), "uri").Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return uri, err
}

// Mint queues creation of tokenID owned by to. The caller must have checked
// Exists under WATCH on TokenKey(tokenID).
func Mint(ctx context.Context, pipe redis.Pipeliner, tokenID *big.Int, uri string, to common.Address, now int64) Transfer {
	pipe.HSet(ctx, TokenKey(tokenID),
		"owner", to.Hex(),
		"uri", uri,
		"minted_by", to.Hex(),
		"minted_at", now,
	)
	return emit(ctx, pipe, Transfer{To: to, TokenID: tokenID, Timestamp: now})
}

// TransferFrom queues an ownership change. The caller must have verified
// from is the current owner under WATCH.
func TransferFrom(ctx context.Context, pipe redis.Pipeliner, tokenID *big.Int, from, to common.Address, now int64) Transfer {
	pipe.HSet(ctx, TokenKey(tokenID), "owner", to.Hex())
	return emit(ctx, pipe, Transfer{From: from, To: to, TokenID: tokenID, Timestamp: now})
}

func emit(ctx context.Context, pipe redis.Pipeliner, ev Transfer) Transfer {
	ev.TokenID = new(big.Int).Set(ev.TokenID)
	raw, _ := json.Marshal(ev)
	pipe.RPush(ctx, EventsKey, string(raw))
	pipe.LTrim(ctx, EventsKey, -maxEvents, -1)
	return ev
}

// Events returns up to limit most recent transfer events, oldest first.
// Entries that fail to decode are logged and skipped.
func Events(ctx context.Context, c redis.Cmdable, limit int64, log *zap.Logger) ([]Transfer, error) {
	if limit <= 0 {
		return nil, nil
	}
	raws, err := c.LRange(ctx, EventsKey, -limit, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	out := make([]Transfer, 0, len(raws))
	for _, raw := range raws {
		var ev Transfer
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			log.Warn("registry: skipping undecodable event", zap.String("raw", raw), zap.Error(err))
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
