package ledger

import "errors"

// Domain errors for the cost ledger.
var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrAlreadySettled      = errors.New("dispatch already settled")
	ErrBalanceUnavailable  = errors.New("balance store unavailable")
	ErrUnknownTier         = errors.New("unknown budget tier")
	ErrInvalidAmount       = errors.New("invalid amount")
)
