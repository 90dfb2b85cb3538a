// Package minter is the off-chain half of lazy minting: it holds the minter's
// key and produces signed vouchers that any redeemer can later submit.
package minter

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0gfoundation/0g-lazymint/internal/metadata"
	"github.com/0gfoundation/0g-lazymint/internal/voucher"
)

// ErrSigning is returned when the key is missing or invalid, or signing fails.
var ErrSigning = errors.New("signing error")

// Minter signs NFT vouchers for one contract deployment.
type Minter struct {
	privKey *ecdsa.PrivateKey
	domain  voucher.Domain
}

func New(privKey *ecdsa.PrivateKey, domain voucher.Domain) (*Minter, error) {
	if privKey == nil {
		return nil, fmt.Errorf("%w: no private key", ErrSigning)
	}
	if domain.ChainID == nil {
		return nil, fmt.Errorf("%w: domain has no chain id", ErrSigning)
	}
	return &Minter{privKey: privKey, domain: domain}, nil
}

// Address returns the identity vouchers are signed as.
func (m *Minter) Address() common.Address {
	return crypto.PubkeyToAddress(m.privKey.PublicKey)
}

// Domain returns the domain vouchers are bound to.
func (m *Minter) Domain() voucher.Domain { return m.domain }

// CreateVoucher builds and signs a voucher. A nil minPrice means free.
// Metadata URIs using the ipfs:// scheme must carry a valid CID.
func (m *Minter) CreateVoucher(tokenID *big.Int, uri string, minPrice *big.Int) (*voucher.NFTVoucher, error) {
	if minPrice == nil {
		minPrice = new(big.Int)
	}
	if tokenID == nil {
		return nil, fmt.Errorf("%w: missing token id", voucher.ErrMalformed)
	}
	if _, err := metadata.Parse(uri); errors.Is(err, metadata.ErrInvalidCID) {
		return nil, err
	}
	v := &voucher.NFTVoucher{
		TokenID:  new(big.Int).Set(tokenID),
		MinPrice: new(big.Int).Set(minPrice),
		URI:      uri,
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if err := voucher.Sign(v, m.privKey, m.domain); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return v, nil
}
