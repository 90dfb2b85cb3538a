package auth

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-lazymint/internal/voucher"
)

// HashMessage constructs the EIP-191 prefixed hash:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg)
func HashMessage(msg []byte) [32]byte {
	return [32]byte(accounts.TextHash(msg))
}

// Recover extracts the signer address from an EIP-191 personal_sign signature.
// sig must be 65 bytes (R || S || V), with V in {0,1} or {27,28}.
func Recover(msg []byte, sig []byte) (common.Address, error) {
	return voucher.RecoverDigest(HashMessage(msg), sig)
}
