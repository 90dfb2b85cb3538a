package auth

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignHeaders builds the headers Middleware expects, signing body for action
// with privKey. Wallet clients and tests use it.
func SignHeaders(privKey *ecdsa.PrivateKey, action string, body []byte, nonce string, expiresAt time.Time) (http.Header, error) {
	payload := json.RawMessage(body)
	if len(body) == 0 {
		payload = json.RawMessage("{}")
	}
	msg, err := json.Marshal(SignedRequest{
		Action:    action,
		ExpiresAt: expiresAt.Unix(),
		Nonce:     nonce,
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}
	hash := HashMessage(msg)
	sig, err := crypto.Sign(hash[:], privKey)
	if err != nil {
		return nil, err
	}
	sig[64] += 27

	h := http.Header{}
	h.Set("X-Wallet-Address", crypto.PubkeyToAddress(privKey.PublicKey).Hex())
	h.Set("X-Signed-Message", base64.StdEncoding.EncodeToString(msg))
	h.Set("X-Wallet-Signature", "0x"+hex.EncodeToString(sig))
	return h, nil
}
