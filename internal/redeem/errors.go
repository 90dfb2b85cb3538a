package redeem

import (
	"errors"

	"github.com/0gfoundation/0g-lazymint/internal/escrow"
	"github.com/0gfoundation/0g-lazymint/internal/verifier"
	"github.com/0gfoundation/0g-lazymint/internal/wallet"
)

// Stable failure codes exposed to clients and queue consumers.
const (
	CodeUnauthorized        = "unauthorized"
	CodeAlreadyMinted       = "already_minted"
	CodeInsufficientFunds   = "insufficient_funds"
	CodeInsufficientBalance = "insufficient_balance"
	CodeNothingToWithdraw   = "nothing_to_withdraw"
	CodeInvalidRequest      = "invalid_request"
	CodeInternal            = "internal"
)

// Classify maps an error to its code and whether resubmitting with more
// money can succeed.
func Classify(err error) (code string, retryable bool) {
	switch {
	case errors.Is(err, verifier.ErrUnauthorized):
		return CodeUnauthorized, false
	case errors.Is(err, ErrAlreadyMinted):
		return CodeAlreadyMinted, false
	case errors.Is(err, ErrInsufficientFunds):
		return CodeInsufficientFunds, true
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return CodeInsufficientBalance, true
	case errors.Is(err, escrow.ErrNothingToWithdraw):
		return CodeNothingToWithdraw, false
	case errors.Is(err, ErrInvalidRedeemer), errors.Is(err, wallet.ErrInvalidAmount):
		return CodeInvalidRequest, false
	default:
		return CodeInternal, false
	}
}
