package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-lazymint/internal/auth"
	"github.com/0gfoundation/0g-lazymint/internal/config"
	"github.com/0gfoundation/0g-lazymint/internal/minter"
	"github.com/0gfoundation/0g-lazymint/internal/settler"
)

func init() { gin.SetMode(gin.TestMode) }

// ── helpers ───────────────────────────────────────────────────────────────────

const minterKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testConfig() *config.Config {
	return &config.Config{
		Chain: config.ChainConfig{
			ChainID:         31337,
			ContractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		},
		Policy: config.PolicyConfig{
			AuthorizedSigners: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		},
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func getJSON(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var m map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	return w.Code, m
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestHealthz(t *testing.T) {
	rdb := newTestRedis(t)
	engine, domain, err := newEngine(testConfig(), rdb, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	code, m := getJSON(t, newRouter(rdb, engine, domain, false, zap.NewNop()), "/healthz")
	if code != http.StatusOK || m["ok"] != true {
		t.Fatalf("healthz: %d %v", code, m)
	}
}

func TestNewEngine_InvalidSigner(t *testing.T) {
	cfg := testConfig()
	cfg.Policy.AuthorizedSigners = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266,nope"
	if _, _, err := newEngine(cfg, newTestRedis(t), zap.NewNop()); err == nil {
		t.Fatal("expected error for invalid signer address")
	}
}

// TestE2E_QueuedRedemption drives the full pipeline: signed HTTP enqueue,
// settler loop, job status polling, and the resulting token ownership.
func TestE2E_QueuedRedemption(t *testing.T) {
	rdb := newTestRedis(t)
	log := zap.NewNop()
	engine, domain, err := newEngine(testConfig(), rdb, log)
	if err != nil {
		t.Fatal(err)
	}
	router := newRouter(rdb, engine, domain, true, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go settler.Run(ctx, rdb, engine, 100*time.Millisecond, log)

	// Minter signs off-line
	k, _ := minter.KeyFromHex(minterKeyHex)
	m, err := minter.New(k, domain)
	if err != nil {
		t.Fatal(err)
	}
	v, err := m.CreateVoucher(big.NewInt(42), "ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi", big.NewInt(1000))
	if err != nil {
		t.Fatal(err)
	}

	// Buyer funds a wallet and submits the voucher
	buyer, _ := crypto.GenerateKey()
	buyerAddr := crypto.PubkeyToAddress(buyer.PublicKey)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/wallets/"+buyerAddr.Hex()+"/deposit",
		bytes.NewReader([]byte(`{"amount":"5000"}`))))
	if w.Code != http.StatusOK {
		t.Fatalf("deposit: %d %s", w.Code, w.Body.String())
	}

	body, _ := json.Marshal(map[string]any{"voucher": v, "payment": "1000"})
	h, err := auth.SignHeaders(buyer, "enqueue", body, "e2e-1", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/redemptions", bytes.NewReader(body))
	for k := range h {
		req.Header.Set(k, h.Get(k))
	}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("enqueue: %d %s", w.Code, w.Body.String())
	}
	var queued map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &queued)
	id, _ := queued["id"].(string)

	deadline := time.Now().Add(3 * time.Second)
	for {
		_, st := getJSON(t, router, "/api/redemptions/"+id)
		if st["status"] == settler.StatusRedeemed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job not redeemed in time, last state: %v", st)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if _, tok := getJSON(t, router, "/tokens/42"); tok["owner"] != buyerAddr.Hex() {
		t.Errorf("owner = %v, want %s", tok["owner"], buyerAddr.Hex())
	}
	if _, bal := getJSON(t, router, "/wallets/"+buyerAddr.Hex()); bal["balance"] != "4000" {
		t.Errorf("buyer balance = %v, want 4000", bal["balance"])
	}
	if _, esc := getJSON(t, router, "/escrow/"+m.Address().Hex()); esc["available"] != "1000" {
		t.Errorf("escrow = %v, want 1000", esc["available"])
	}
}
