package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"golang.org/x/time/rate"
)

// DefaultTimeout is the HTTP timeout used when none is configured.
const DefaultTimeout = 10 * time.Second

// maxResponseSize bounds how much of a reply is read.
const maxResponseSize = 8 << 20

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      uint64 `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      uint64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// caller performs JSON-RPC 2.0 calls over HTTP.
type caller struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter // nil means unlimited
	nextID   atomic.Uint64
}

func newCaller(endpoint string, timeout time.Duration) *caller {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &caller{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

// call invokes method and decodes the result into result (when non-nil).
// Network and decoding failures come back as *TransportError, server
// errors as *RPCError.
func (c *caller) call(ctx context.Context, method string, params, result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Method: method, Err: fmt.Errorf("rate limit: %w", err)}
		}
	}

	id := c.nextID.Add(1)
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Method: method, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &TransportError{Method: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	log.RPC.Debug().
		Str("method", method).
		Uint64("id", id).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("RPC call")

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		if resp.StatusCode/100 != 2 {
			return &TransportError{Method: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", http.StatusText(resp.StatusCode))}
		}
		return &TransportError{Method: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	if rpcResp.Error != nil {
		return &RPCError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if rpcResp.ID != id {
		return &TransportError{Method: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("response id %d, want %d", rpcResp.ID, id)}
	}

	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return &TransportError{Method: method, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode result: %w", err)}
		}
	}
	return nil
}
