package registry

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	testMinter   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	testRedeemer = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func mintAndTransfer(t *testing.T, rdb *redis.Client, id int64) []Transfer {
	t.Helper()
	ctx := context.Background()
	var evs []Transfer
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		evs = append(evs, Mint(ctx, pipe, big.NewInt(id), "ipfs://x", testMinter, 1_700_000_000))
		evs = append(evs, TransferFrom(ctx, pipe, big.NewInt(id), testMinter, testRedeemer, 1_700_000_000))
		return nil
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return evs
}

func TestMint_ThenTransfer(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	evs := mintAndTransfer(t, rdb, 1)
	if !evs[0].IsMint() || evs[0].To != testMinter {
		t.Errorf("first event should be mint to minter: %+v", evs[0])
	}
	if evs[1].From != testMinter || evs[1].To != testRedeemer {
		t.Errorf("second event should be minter->redeemer: %+v", evs[1])
	}

	owner, err := OwnerOf(ctx, rdb, big.NewInt(1))
	if err != nil {
		t.Fatalf("OwnerOf: %v", err)
	}
	if owner != testRedeemer {
		t.Errorf("owner: got %s want %s", owner.Hex(), testRedeemer.Hex())
	}

	tok, err := Get(ctx, rdb, big.NewInt(1))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tok.MintedBy != testMinter || tok.URI != "ipfs://x" || tok.MintedAt != 1_700_000_000 {
		t.Errorf("unexpected token record: %+v", tok)
	}
}

func TestOwnerOf_NotMinted(t *testing.T) {
	rdb := newTestRedis(t)
	if _, err := OwnerOf(context.Background(), rdb, big.NewInt(9)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := Get(context.Background(), rdb, big.NewInt(9)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTokenURI(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	mintAndTransfer(t, rdb, 4)

	uri, err := TokenURI(ctx, rdb, big.NewInt(4))
	if err != nil || uri != "ipfs://x" {
		t.Fatalf("TokenURI = %q, %v", uri, err)
	}
	if _, err := TokenURI(ctx, rdb, big.NewInt(5)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExists(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	ok, _ := Exists(ctx, rdb, big.NewInt(1))
	if ok {
		t.Fatal("token should not exist before mint")
	}
	mintAndTransfer(t, rdb, 1)
	ok, _ = Exists(ctx, rdb, big.NewInt(1))
	if !ok {
		t.Fatal("token should exist after mint")
	}
}

func TestEvents_OrderAndLimit(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	mintAndTransfer(t, rdb, 1)
	mintAndTransfer(t, rdb, 2)

	all, err := Events(ctx, rdb, 10, zap.NewNop())
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}
	if all[0].TokenID.Int64() != 1 || !all[0].IsMint() {
		t.Errorf("oldest event should be mint of token 1: %+v", all[0])
	}

	last, _ := Events(ctx, rdb, 2, zap.NewNop())
	if len(last) != 2 || last[0].TokenID.Int64() != 2 || !last[0].IsMint() || last[1].To != testRedeemer {
		t.Errorf("unexpected tail: %+v", last)
	}
}

func TestEvents_TrimmedToCap(t *testing.T) {
	old := maxEvents
	maxEvents = 3
	t.Cleanup(func() { maxEvents = old })

	rdb := newTestRedis(t)
	ctx := context.Background()
	mintAndTransfer(t, rdb, 1)
	mintAndTransfer(t, rdb, 2)

	if n, _ := rdb.LLen(ctx, EventsKey).Result(); n != 3 {
		t.Fatalf("event log length = %d, want 3", n)
	}
	evs, _ := Events(ctx, rdb, 10, zap.NewNop())
	if len(evs) != 3 || evs[0].TokenID.Int64() != 1 || evs[0].IsMint() {
		t.Errorf("expected the newest 3 events starting with transfer of token 1: %+v", evs)
	}
}

func TestEvents_SkipsUndecodableEntries(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	mintAndTransfer(t, rdb, 1)
	rdb.RPush(ctx, EventsKey, "not json")

	core, logs := observer.New(zap.WarnLevel)
	evs, err := Events(ctx, rdb, 10, zap.New(core))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 decoded events, got %d", len(evs))
	}
	skipped := logs.FilterMessage("registry: skipping undecodable event").All()
	if len(skipped) != 1 || skipped[0].ContextMap()["raw"] != "not json" {
		t.Errorf("expected one warning carrying the raw entry, got %+v", logs.All())
	}
}
