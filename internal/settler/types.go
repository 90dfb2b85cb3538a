package settler

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-lazymint/internal/registry"
	"github.com/0gfoundation/0g-lazymint/internal/store"
	"github.com/0gfoundation/0g-lazymint/internal/voucher"
)

// Redis keys
const (
	QueueKey     = store.Prefix + "redeem:queue"
	DLQKey       = store.Prefix + "redeem:dlq"
	JobKeyPrefix = store.Prefix + "redeem:job:"
)

// Job statuses
const (
	StatusQueued    = "queued"
	StatusRedeemed  = "redeemed"
	StatusRejected  = "rejected"  // sent to DLQ
	StatusDiscarded = "discarded" // replay of a minted token
	StatusFailed    = "failed"    // internal error, re-queued
)

// Job is one queued redemption request.
type Job struct {
	ID          string              `json:"id"`
	Redeemer    common.Address      `json:"redeemer"`
	Voucher     *voucher.NFTVoucher `json:"voucher"`
	Payment     *big.Int            `json:"payment"`
	SubmittedAt int64               `json:"submitted_at"`
	Attempts    int                 `json:"attempts"`
}

// JobState is what GET /api/redemptions/:id reports.
type JobState struct {
	ID        string              `json:"id"`
	Status    string              `json:"status"`
	Code      string              `json:"code,omitempty"`
	Error     string              `json:"error,omitempty"`
	Transfers []registry.Transfer `json:"transfers,omitempty"`
	UpdatedAt int64               `json:"updated_at"`
}
