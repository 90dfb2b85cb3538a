// cmd/mkvoucher signs a lazy-mint voucher with the minter key and prints it
// as JSON. Nothing is written to Redis; the voucher is handed to buyers
// off-line and redeemed later via POST /api/redeem.
//
// The key is taken from MINTER_PRIVATE_KEY, MINTER_KEYSTORE (+ password) or
// MINTER_MNEMONIC (+ MINTER_ACCOUNT_INDEX), in that order.
//
// Usage:
//
//	CHAIN_ID=31337 \
//	LAZYNFT_CONTRACT=0x5FbDB2315678afecb367f032d93F642f64180aa3 \
//	MINTER_PRIVATE_KEY=0x<key> \
//	go run ./cmd/mkvoucher/ \
//	  --token-id  1 \
//	  --uri       ipfs://bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi \
//	  --min-price 1000000000000000000
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-lazymint/internal/config"
	"github.com/0gfoundation/0g-lazymint/internal/minter"
	"github.com/0gfoundation/0g-lazymint/internal/voucher"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fatalf("%v", err)
	}
}

// run signs one voucher and writes it to stdout; the signer goes to stderr.
func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("mkvoucher", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tokenIDStr := fs.String("token-id", "", "token id to lazily mint (required)")
	uri := fs.String("uri", "", "metadata URI (required)")
	minPriceStr := fs.String("min-price", "0", "minimum price in wei")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *tokenIDStr == "" || *uri == "" {
		return errors.New("--token-id and --uri are required")
	}
	tokenID, ok := new(big.Int).SetString(*tokenIDStr, 10)
	if !ok || tokenID.Sign() < 0 {
		return fmt.Errorf("invalid --token-id %q", *tokenIDStr)
	}
	minPrice, ok := new(big.Int).SetString(*minPriceStr, 10)
	if !ok {
		return fmt.Errorf("invalid --min-price %q", *minPriceStr)
	}

	cfg, err := config.LoadMinter()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	key, err := minter.LoadKey(cfg.Minter)
	if err != nil {
		return fmt.Errorf("load minter key: %w", err)
	}
	m, err := minter.New(key, voucher.Domain{
		ChainID:           big.NewInt(cfg.Chain.ChainID),
		VerifyingContract: common.HexToAddress(cfg.Chain.ContractAddress),
	})
	if err != nil {
		return fmt.Errorf("minter: %w", err)
	}

	v, err := m.CreateVoucher(tokenID, *uri, minPrice)
	if err != nil {
		return fmt.Errorf("create voucher: %w", err)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode voucher: %w", err)
	}
	fmt.Fprintf(stderr, "signer: %s\n", m.Address().Hex())
	_, err = fmt.Fprintln(stdout, string(out))
	return err
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
