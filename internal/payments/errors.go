package payments

import (
	"errors"
	"net/http"

	"github.com/congo-pay/walletledger/internal/conversion"
	"github.com/congo-pay/walletledger/internal/ledger"
)

var (
	// ErrInsufficientFunds: available balance does not cover the amount.
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
	// ErrNotFound: unknown wallet or transaction.
	ErrNotFound = ledger.ErrNotFound
	// ErrPersistence: the atomic scope could not commit.
	ErrPersistence = ledger.ErrPersistence
	// ErrConversionUnavailable: no rate for the currency pair in strict mode.
	ErrConversionUnavailable = conversion.ErrConversionUnavailable

	ErrInvalidAmount = errors.New("amount must be positive with at most two decimals")
	ErrInvalidTarget = errors.New("invalid transfer target")
	ErrInvalidState  = errors.New("transaction is not pending")
	ErrNotOwner      = errors.New("not owner of source wallet")
	ErrForbidden     = errors.New("actor may not approve transactions")
)

// ErrorCode classifies err into an HTTP status and a stable machine code.
func ErrorCode(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, ErrInvalidTarget):
		return http.StatusBadRequest, "invalid_target"
	case errors.Is(err, ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, ErrConversionUnavailable):
		return http.StatusUnprocessableEntity, "conversion_unavailable"
	case errors.Is(err, ErrNotOwner):
		return http.StatusForbidden, "not_owner"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, ErrPersistence):
		return http.StatusServiceUnavailable, "persistence_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
