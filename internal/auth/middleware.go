package auth

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-lazymint/internal/store"
)

// SignedRequest is the JSON payload inside X-Signed-Message (fields sorted).
// Payload must equal the request body, so a relay cannot swap the voucher
// or the payment after the wallet signed.
type SignedRequest struct {
	Action    string          `json:"action"`
	ExpiresAt int64           `json:"expires_at"`
	Nonce     string          `json:"nonce"`
	Payload   json.RawMessage `json:"payload"`
}

const (
	maxFutureWindow = 5 * time.Minute
	nonceKeyPrefix  = store.Prefix + "auth:nonce:"

	// ContextWallet holds the authenticated common.Address.
	ContextWallet = "wallet_address"
)

// Wallet returns the identity set by Middleware.
func Wallet(c *gin.Context) common.Address {
	v, _ := c.Get(ContextWallet)
	addr, _ := v.(common.Address)
	return addr
}

// Middleware validates EIP-191 wallet signatures for one action.
func Middleware(rdb *redis.Client, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		walletHex := c.GetHeader("X-Wallet-Address")
		signedMsgB64 := c.GetHeader("X-Signed-Message")
		sigHex := c.GetHeader("X-Wallet-Signature")

		if walletHex == "" || signedMsgB64 == "" || sigHex == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth headers"})
			return
		}
		if !common.IsHexAddress(walletHex) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid X-Wallet-Address"})
			return
		}

		msgBytes, err := base64.StdEncoding.DecodeString(signedMsgB64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid X-Signed-Message encoding"})
			return
		}

		var req SignedRequest
		if err := json.Unmarshal(msgBytes, &req); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signed message JSON"})
			return
		}
		if req.Action != action {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "signed for a different action"})
			return
		}

		now := time.Now().Unix()
		if req.ExpiresAt <= now {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "request expired"})
			return
		}
		if req.ExpiresAt > now+int64(maxFutureWindow.Seconds()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "expires_at too far in future"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "read body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		if !samePayload(req.Payload, body) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "payload does not match body"})
			return
		}

		sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature hex"})
			return
		}
		recovered, err := Recover(msgBytes, sig)
		if err != nil || recovered != common.HexToAddress(walletHex) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		// Nonce dedup via Redis SET NX, scoped to the wallet
		nonceKey := nonceKeyPrefix + strings.ToLower(recovered.Hex()) + ":" + req.Nonce
		ttl := time.Duration(req.ExpiresAt-now) * time.Second
		set, err := rdb.SetNX(c.Request.Context(), nonceKey, 1, ttl).Result()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !set {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "nonce already used"})
			return
		}

		c.Set(ContextWallet, recovered)
		c.Next()
	}
}

// samePayload compares the signed payload and the body as compacted JSON.
// An empty body matches an absent, null or {} payload.
func samePayload(signed json.RawMessage, body []byte) bool {
	if len(bytes.TrimSpace(body)) == 0 {
		p := string(bytes.TrimSpace(signed))
		return p == "" || p == "null" || p == "{}"
	}
	var a, b bytes.Buffer
	if err := json.Compact(&a, signed); err != nil {
		return false
	}
	if err := json.Compact(&b, body); err != nil {
		return false
	}
	return bytes.Equal(a.Bytes(), b.Bytes())
}
