// Package pricing implements §4.D: lane classification and gas limit / cost
// derivation under the configured pricing regime.
package pricing

import "fmt"

// Error is pricing's tagged error variant, per §7's "sum-type error returns"
// design note: lane-overflow kind, fatal for the transaction.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "pricing: " + e.Reason }

// ErrNoLaneMatch is returned when no configured lane's bounds admit the
// transaction, per §4.D.
func ErrNoLaneMatch(detail string) error {
	return &Error{Reason: fmt.Sprintf("no lane match: %s", detail)}
}
