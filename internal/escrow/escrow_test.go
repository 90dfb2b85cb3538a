package escrow

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-lazymint/internal/store"
	"github.com/0gfoundation/0g-lazymint/internal/wallet"
)

var (
	testMinter = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	testOther  = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func newTestLedger(t *testing.T) (*Ledger, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLedger(rdb, zap.NewNop()), rdb
}

// credit runs a standalone credit transaction the way the redemption engine does.
func credit(t *testing.T, rdb *redis.Client, addr common.Address, amount int64) {
	t.Helper()
	if err := tryCredit(rdb, addr, amount); err != nil {
		t.Fatalf("credit: %v", err)
	}
}

func tryCredit(rdb *redis.Client, addr common.Address, amount int64) error {
	ctx := context.Background()
	return store.Atomic(ctx, rdb, func(tx *redis.Tx) error {
		cur, err := Available(ctx, tx, addr)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			Credit(ctx, pipe, addr, cur, big.NewInt(amount))
			return nil
		})
		return err
	}, Key(addr))
}

func TestWithdraw_MovesBalanceToWallet(t *testing.T) {
	l, rdb := newTestLedger(t)
	ctx := context.Background()
	credit(t, rdb, testMinter, 300)
	credit(t, rdb, testMinter, 200)

	avail, _ := l.Available(ctx, testMinter)
	if avail.Int64() != 500 {
		t.Fatalf("available before withdraw: got %s want 500", avail)
	}

	got, err := l.Withdraw(ctx, testMinter)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got.Int64() != 500 {
		t.Errorf("withdrawn: got %s want 500", got)
	}

	avail, _ = l.Available(ctx, testMinter)
	if avail.Sign() != 0 {
		t.Errorf("available after withdraw: got %s want 0", avail)
	}
	bal, _ := wallet.Balance(ctx, rdb, testMinter)
	if bal.Int64() != 500 {
		t.Errorf("wallet after withdraw: got %s want 500", bal)
	}
}

func TestWithdraw_ZeroBalanceFails(t *testing.T) {
	l, _ := newTestLedger(t)
	if _, err := l.Withdraw(context.Background(), testMinter); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("expected ErrNothingToWithdraw, got %v", err)
	}
}

func TestWithdraw_SecondCallFails(t *testing.T) {
	l, rdb := newTestLedger(t)
	ctx := context.Background()
	credit(t, rdb, testMinter, 1)

	if _, err := l.Withdraw(ctx, testMinter); err != nil {
		t.Fatalf("first Withdraw: %v", err)
	}
	if _, err := l.Withdraw(ctx, testMinter); !errors.Is(err, ErrNothingToWithdraw) {
		t.Fatalf("second Withdraw: expected ErrNothingToWithdraw, got %v", err)
	}
}

func TestWithdraw_IsolatedPerIdentity(t *testing.T) {
	l, rdb := newTestLedger(t)
	ctx := context.Background()
	credit(t, rdb, testMinter, 10)
	credit(t, rdb, testOther, 20)

	if _, err := l.Withdraw(ctx, testMinter); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	other, _ := l.Available(ctx, testOther)
	if other.Int64() != 20 {
		t.Errorf("other identity's escrow changed: got %s want 20", other)
	}
}

func TestCredit_ConcurrentAccumulates(t *testing.T) {
	l, rdb := newTestLedger(t)
	const n = 10

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(amount int64) {
			defer wg.Done()
			errs <- tryCredit(rdb, testMinter, amount)
		}(int64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("credit: %v", err)
		}
	}

	avail, _ := l.Available(context.Background(), testMinter)
	if avail.Int64() != n*(n+1)/2 {
		t.Errorf("got %s want %d", avail, n*(n+1)/2)
	}
}
