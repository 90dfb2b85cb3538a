package voucher

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	domainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	voucherTypeHash = crypto.Keccak256Hash([]byte(
		"NFTVoucher(uint256 tokenId,uint256 minPrice,string uri)",
	))
	nameHash    = crypto.Keccak256Hash([]byte(DomainName))
	versionHash = crypto.Keccak256Hash([]byte(DomainVersion))
)

var ErrBadSignature = errors.New("voucher: bad signature")

// Separator computes the EIP-712 domain separator.
func (d Domain) Separator() [32]byte {
	// ABI-encode: (bytes32, bytes32, bytes32, uint256, address)
	encoded := make([]byte, 5*32)
	copy(encoded[0:32], domainTypeHash[:])
	copy(encoded[32:64], nameHash[:])
	copy(encoded[64:96], versionHash[:])
	if d.ChainID != nil {
		d.ChainID.FillBytes(encoded[96:128])
	}
	copy(encoded[140:160], d.VerifyingContract.Bytes()) // addr is right-aligned in 32-byte slot

	return crypto.Keccak256Hash(encoded)
}

// StructHash is keccak256(typeHash || tokenId || minPrice || keccak256(uri)).
// v must have passed Validate.
func StructHash(v *NFTVoucher) [32]byte {
	uriHash := crypto.Keccak256Hash([]byte(v.URI))

	encoded := make([]byte, 4*32)
	copy(encoded[0:32], voucherTypeHash[:])
	v.TokenID.FillBytes(encoded[32:64])
	v.MinPrice.FillBytes(encoded[64:96])
	copy(encoded[96:128], uriHash[:])

	return crypto.Keccak256Hash(encoded)
}

// Digest returns keccak256(0x1901 || domainSeparator || structHash).
// v must have passed Validate.
func Digest(v *NFTVoucher, d Domain) [32]byte {
	sep := d.Separator()
	structHash := StructHash(v)

	msg := make([]byte, 2+32+32)
	msg[0] = 0x19
	msg[1] = 0x01
	copy(msg[2:34], sep[:])
	copy(msg[34:66], structHash[:])
	return crypto.Keccak256Hash(msg)
}

// Sign signs the voucher in-place using EIP-712.
func Sign(v *NFTVoucher, privKey *ecdsa.PrivateKey, d Domain) error {
	if privKey == nil {
		return errors.New("voucher: nil private key")
	}
	if err := v.Validate(); err != nil {
		return err
	}
	digest := Digest(v, d)
	sig, err := crypto.Sign(digest[:], privKey)
	if err != nil {
		return err
	}
	// Convert V from 0/1 to 27/28 for Solidity ecrecover
	sig[64] += 27
	v.Signature = sig
	return nil
}

// Recover returns the address that signed the voucher under domain d.
func Recover(v *NFTVoucher, d Domain) (common.Address, error) {
	if err := v.Validate(); err != nil {
		return common.Address{}, err
	}
	digest := Digest(v, d)
	return RecoverDigest(digest, v.Signature)
}

// RecoverDigest runs ecrecover over a 65-byte R || S || V signature.
// V may be 0/1 or 27/28. High-S signatures are rejected.
func RecoverDigest(digest [32]byte, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLen {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrBadSignature, len(sig))
	}
	normalized := make([]byte, SignatureLen)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	r := new(big.Int).SetBytes(normalized[0:32])
	s := new(big.Int).SetBytes(normalized[32:64])
	if !crypto.ValidateSignatureValues(normalized[64], r, s, true) {
		return common.Address{}, fmt.Errorf("%w: invalid r, s or v", ErrBadSignature)
	}

	pub, err := crypto.SigToPub(digest[:], normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
