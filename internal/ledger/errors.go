package ledger

import (
	"errors"
	"fmt"
)

// CodeChainConflict is the server error code for a block whose previous
// hash is not the account frontier (fork or gap).
const CodeChainConflict = -32010

// ErrChainConflict is returned when the ledger rejects a block because the
// account chain moved underneath it.
var ErrChainConflict = errors.New("chain conflict")

// RPCError is returned when the server responds with a JSON-RPC error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is makes errors.Is(err, ErrChainConflict) match conflict responses.
func (e *RPCError) Is(target error) bool {
	return target == ErrChainConflict && e.Code == CodeChainConflict
}

// TransportError wraps failures to reach the ledger or to read its reply.
type TransportError struct {
	Method     string
	StatusCode int // HTTP status, 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http %d: %v", e.Method, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
