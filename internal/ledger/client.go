// Package ledger talks to the remote account-chain ledger: balance and
// chain-head reads, block publication and custodial escrow calls.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/pkg/amount"
	"github.com/Klingon-tech/klingnet-wallet/pkg/block"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RPC method names.
const (
	MethodAccountsBalances = "accounts_balances"
	MethodAccountHead      = "account_head"
	MethodProcess          = "process"
	MethodEscrowCreate     = "escrow_create"
	MethodEscrowCancel     = "escrow_cancel"
	MethodEscrowStatus     = "escrow_status"
	MethodWorkGenerate     = "work_generate"
)

// BalanceStatus is the remote view of one account.
type BalanceStatus struct {
	Account types.Address        `json:"account"`
	Balance amount.Raw           `json:"balance"`
	Active  bool                 `json:"active"`
	Pending []block.PendingBlock `json:"pending,omitempty"`
}

// EscrowInfo describes a custodial escrow held by the ledger operator.
type EscrowInfo struct {
	ID      string        `json:"id"`
	Address types.Address `json:"address"`
	Status  string        `json:"status"`
}

// Client is the set of remote calls the wallet depends on.
type Client interface {
	FetchBalances(ctx context.Context, accounts []types.Address) ([]BalanceStatus, error)
	FetchAccountHead(ctx context.Context, account types.Address) (*block.ChainHead, error)
	Publish(ctx context.Context, blk *block.SignedBlock) (types.Hash, error)
	CreateEscrow(ctx context.Context, phone string) (*EscrowInfo, error)
	CancelEscrow(ctx context.Context, id string, returnTo types.Address) error
	EscrowStatus(ctx context.Context, id string) (string, error)
}

// WorkSource is implemented by clients that can compute proof of work for
// a block root. Callers type-assert for it; work is optional.
type WorkSource interface {
	GenerateWork(ctx context.Context, root []byte) (string, error)
}

// RPCClient implements Client over JSON-RPC 2.0.
type RPCClient struct {
	rpc *caller
}

// ClientOption configures an RPCClient.
type ClientOption func(*RPCClient)

// WithRateLimit caps outgoing calls at perSecond with the given burst.
// A non-positive rate leaves the client unlimited.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *RPCClient) {
		if perSecond <= 0 {
			c.rpc.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.rpc.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewRPCClient returns a client for endpoint. A zero timeout selects
// DefaultTimeout.
func NewRPCClient(endpoint string, timeout time.Duration, opts ...ClientOption) *RPCClient {
	c := &RPCClient{rpc: newCaller(endpoint, timeout)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchBalances returns balance and pending state for every account in one
// round trip.
func (c *RPCClient) FetchBalances(ctx context.Context, accounts []types.Address) ([]BalanceStatus, error) {
	var result struct {
		Balances []BalanceStatus `json:"balances"`
	}
	params := map[string]any{"accounts": accounts}
	if err := c.rpc.call(ctx, MethodAccountsBalances, params, &result); err != nil {
		return nil, err
	}
	return result.Balances, nil
}

// FetchAccountHead returns the current chain tip of account. Unopened
// accounts come back with a zero frontier.
func (c *RPCClient) FetchAccountHead(ctx context.Context, account types.Address) (*block.ChainHead, error) {
	var head block.ChainHead
	params := map[string]any{"account": account}
	if err := c.rpc.call(ctx, MethodAccountHead, params, &head); err != nil {
		return nil, err
	}
	return &head, nil
}

// Publish submits a signed block and returns the hash the ledger recorded.
func (c *RPCClient) Publish(ctx context.Context, blk *block.SignedBlock) (types.Hash, error) {
	var result struct {
		Hash types.Hash `json:"hash"`
	}
	params := map[string]any{"block": blk}
	if err := c.rpc.call(ctx, MethodProcess, params, &result); err != nil {
		return types.Hash{}, err
	}
	if result.Hash.IsZero() {
		return types.Hash{}, &TransportError{Method: MethodProcess, Err: fmt.Errorf("empty block hash in reply")}
	}
	return result.Hash, nil
}

// CreateEscrow asks the operator to open an escrow for phone. The request
// carries a fresh idempotency key.
func (c *RPCClient) CreateEscrow(ctx context.Context, phone string) (*EscrowInfo, error) {
	var info EscrowInfo
	params := map[string]any{"phone": phone, "request_id": uuid.NewString()}
	if err := c.rpc.call(ctx, MethodEscrowCreate, params, &info); err != nil {
		return nil, err
	}
	if info.ID == "" || info.Address.IsZero() {
		return nil, &TransportError{Method: MethodEscrowCreate, Err: fmt.Errorf("incomplete escrow in reply")}
	}
	return &info, nil
}

// CancelEscrow asks the operator to send the escrowed funds back to
// returnTo, the address that filled the escrow.
func (c *RPCClient) CancelEscrow(ctx context.Context, id string, returnTo types.Address) error {
	params := map[string]any{"id": id, "return_to": returnTo, "request_id": uuid.NewString()}
	return c.rpc.call(ctx, MethodEscrowCancel, params, nil)
}

// EscrowStatus returns the operator's current status string for id.
func (c *RPCClient) EscrowStatus(ctx context.Context, id string) (string, error) {
	var result struct {
		Status string `json:"status"`
	}
	if err := c.rpc.call(ctx, MethodEscrowStatus, map[string]any{"id": id}, &result); err != nil {
		return "", err
	}
	return result.Status, nil
}

// GenerateWork asks the ledger to compute work for a block root.
func (c *RPCClient) GenerateWork(ctx context.Context, root []byte) (string, error) {
	var result struct {
		Work string `json:"work"`
	}
	params := map[string]any{"root": fmt.Sprintf("%X", root)}
	if err := c.rpc.call(ctx, MethodWorkGenerate, params, &result); err != nil {
		return "", err
	}
	return result.Work, nil
}

var (
	_ Client     = (*RPCClient)(nil)
	_ WorkSource = (*RPCClient)(nil)
)
