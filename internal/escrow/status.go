package escrow

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of an escrow.
type Status string

const (
	Created  Status = "CREATED"
	Filled   Status = "FILLED"
	Settled  Status = "SETTLED"
	Returned Status = "RETURNED"
)

// ErrEscrowState is returned for a transition the lifecycle does not allow.
var ErrEscrowState = errors.New("invalid escrow state")

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == Settled || s == Returned
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case Created, Filled, Settled, Returned:
		return st, nil
	}
	return "", fmt.Errorf("unknown escrow status %q", s)
}

// Transition checks that moving from one status to another is allowed:
//
//	CREATED -> FILLED -> SETTLED
//	CREATED -> RETURNED, FILLED -> RETURNED
func Transition(from, to Status) error {
	switch {
	case from == Created && (to == Filled || to == Returned),
		from == Filled && (to == Settled || to == Returned):
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrEscrowState, from, to)
}

// observable reports whether a status reported by the operator may be
// applied locally. The operator only ever settles a filled escrow or
// returns an open one; everything else is a regression.
func observable(from, to Status) bool {
	switch to {
	case Settled:
		return from == Filled
	case Returned:
		return !from.Terminal()
	}
	return false
}
