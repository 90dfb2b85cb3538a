package voucher

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NFTVoucher is a signed claim that lets anyone redeem one not-yet-minted token.
// Only TokenID, MinPrice and URI are covered by the signature.
type NFTVoucher struct {
	TokenID   *big.Int      `json:"token_id"`
	MinPrice  *big.Int      `json:"min_price"`
	URI       string        `json:"uri"`
	Signature hexutil.Bytes `json:"signature"`
}

// Domain binds a signature to one contract instance on one chain.
type Domain struct {
	ChainID           *big.Int       `json:"chain_id"`
	VerifyingContract common.Address `json:"verifying_contract"`
}

const (
	// DomainName and DomainVersion match the LazyNFT contract's EIP712 constructor.
	DomainName    = "LazyNFT-Voucher"
	DomainVersion = "1"

	SignatureLen = 65
)

var ErrMalformed = errors.New("voucher: malformed")

// Validate rejects vouchers that cannot be encoded as uint256 fields.
func (v *NFTVoucher) Validate() error {
	if v == nil || v.TokenID == nil || v.MinPrice == nil {
		return ErrMalformed
	}
	if !fitsUint256(v.TokenID) || !fitsUint256(v.MinPrice) {
		return ErrMalformed
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (v *NFTVoucher) Clone() *NFTVoucher {
	c := &NFTVoucher{URI: v.URI}
	if v.TokenID != nil {
		c.TokenID = new(big.Int).Set(v.TokenID)
	}
	if v.MinPrice != nil {
		c.MinPrice = new(big.Int).Set(v.MinPrice)
	}
	if v.Signature != nil {
		c.Signature = append(hexutil.Bytes(nil), v.Signature...)
	}
	return c
}

func fitsUint256(x *big.Int) bool {
	return x.Sign() >= 0 && x.BitLen() <= 256
}
