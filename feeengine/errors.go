package feeengine

import "fmt"

// Error is feeengine's tagged error variant (§7 "Parameter" kind: surfaced to
// the client, never blockable).
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "feeengine: " + e.Reason }

// ErrInsufficientBalance is returned by Settle under InsufficientFundsNoop
// when the payer's available balance cannot cover the fee being charged or
// the gas hold being placed, per §4.E.
func ErrInsufficientBalance(purse fmt.Stringer, required fmt.Stringer) error {
	return &Error{Reason: fmt.Sprintf("insufficient balance in purse %s: need %s", purse, required)}
}
