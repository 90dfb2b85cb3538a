package minter

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/0gfoundation/0g-lazymint/internal/config"
)

// LoadKey resolves the minter key from configuration.
// Precedence: private_key, then keystore_path, then mnemonic.
func LoadKey(cfg config.MinterConfig) (*ecdsa.PrivateKey, error) {
	switch {
	case cfg.PrivateKey != "":
		return KeyFromHex(cfg.PrivateKey)
	case cfg.KeystorePath != "":
		return KeyFromKeystore(cfg.KeystorePath, cfg.KeystorePassword)
	case cfg.Mnemonic != "":
		return KeyFromMnemonic(cfg.Mnemonic, cfg.AccountIndex)
	default:
		return nil, fmt.Errorf("%w: no minter key configured", ErrSigning)
	}
}

// KeyFromHex parses a 32-byte hex key with or without the 0x prefix.
func KeyFromHex(s string) (*ecdsa.PrivateKey, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(keyHex) != 64 {
		return nil, fmt.Errorf("%w: private key must be a 32-byte hex string (got %d chars)", ErrSigning, len(keyHex))
	}
	k, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return k, nil
}

// KeyFromKeystore decrypts a V3 keystore file.
func KeyFromKeystore(path, password string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read keystore: %v", ErrSigning, err)
	}
	key, err := keystore.DecryptKey(data, password)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt keystore: %v", ErrSigning, err)
	}
	return key.PrivateKey, nil
}

// KeyFromMnemonic derives m/44'/60'/0'/0/{index} from a BIP39 phrase.
func KeyFromMnemonic(mnemonic string, index uint32) (*ecdsa.PrivateKey, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: invalid mnemonic", ErrSigning)
	}
	seed := bip39.NewSeed(mnemonic, "")

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: master key: %v", ErrSigning, err)
	}
	for _, child := range []uint32{
		bip32.FirstHardenedChild + 44, // purpose
		bip32.FirstHardenedChild + 60, // coin type
		bip32.FirstHardenedChild + 0,  // account
		0,                             // external chain
		index,
	} {
		key, err = key.NewChildKey(child)
		if err != nil {
			return nil, fmt.Errorf("%w: derive child %d: %v", ErrSigning, child, err)
		}
	}

	privKey, err := crypto.ToECDSA(key.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return privKey, nil
}
