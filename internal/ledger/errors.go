package ledger

import "errors"

// TradeError is a rejected precondition: user-displayable, and guaranteed
// to have left the store untouched. Anything else coming out of Buy/Sell is
// a transport-level failure and may be retried safely.
type TradeError struct {
	Reason string
}

func (e *TradeError) Error() string {
	return e.Reason
}

// The distinct precondition failures, in the order they are checked.
var (
	ErrInvalidQuantity   = &TradeError{Reason: "Quantity must be greater than zero."}
	ErrInsufficientFunds = &TradeError{Reason: "Insufficient funds."}
	ErrMaxCryptos        = &TradeError{Reason: "Maximum number of cryptos have been added."}
	ErrMaxStocks         = &TradeError{Reason: "Maximum number of tech stocks have been added."}
	ErrOversell          = &TradeError{Reason: "Cannot sell more than owned."}
)

// IsTradeError reports whether err is a rejected precondition rather than a
// transport failure.
func IsTradeError(err error) bool {
	var te *TradeError
	return errors.As(err, &te)
}

// limitError picks the class-appropriate composition-limit error.
func limitError(isCrypto bool) *TradeError {
	if isCrypto {
		return ErrMaxCryptos
	}
	return ErrMaxStocks
}
