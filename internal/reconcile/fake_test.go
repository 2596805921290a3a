package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/block"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// staticWallets serves a fixed wallet, or ErrNoWallet when nil.
type staticWallets struct{ w *wallet.Wallet }

func (s staticWallets) Load() (*wallet.Wallet, error) {
	if s.w == nil {
		return nil, wallet.ErrNoWallet
	}
	return s.w.Clone(), nil
}

// fakeLedger keeps account chains in memory and enforces that published
// blocks extend the current frontier.
type fakeLedger struct {
	mu        sync.Mutex
	heads     map[types.Address]block.ChainHead
	pending   map[types.Address][]block.PendingBlock
	published []*block.SignedBlock
	headCalls []types.Address

	publishErr error
	// onPublish runs before a block is accepted, outside the lock.
	onPublish func(*block.SignedBlock)
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		heads:   make(map[types.Address]block.ChainHead),
		pending: make(map[types.Address][]block.PendingBlock),
	}
}

func (f *fakeLedger) FetchBalances(_ context.Context, accounts []types.Address) ([]ledger.BalanceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ledger.BalanceStatus, 0, len(accounts))
	for _, a := range accounts {
		head := f.heads[a]
		out = append(out, ledger.BalanceStatus{
			Account: a,
			Balance: head.Balance,
			Active:  head.Opened(),
			Pending: append([]block.PendingBlock(nil), f.pending[a]...),
		})
	}
	return out, nil
}

func (f *fakeLedger) FetchAccountHead(_ context.Context, account types.Address) (*block.ChainHead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headCalls = append(f.headCalls, account)
	head := f.heads[account]
	return &head, nil
}

func (f *fakeLedger) Publish(_ context.Context, blk *block.SignedBlock) (types.Hash, error) {
	if f.onPublish != nil {
		f.onPublish(blk)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return types.Hash{}, f.publishErr
	}
	if err := block.Verify(blk); err != nil {
		return types.Hash{}, &ledger.RPCError{Code: -32602, Message: err.Error()}
	}
	head := f.heads[blk.Account]
	if blk.Previous != head.Frontier {
		return types.Hash{}, &ledger.RPCError{Code: ledger.CodeChainConflict, Message: "fork"}
	}

	hash := blk.Hash()
	f.heads[blk.Account] = block.ChainHead{
		Frontier:       hash,
		Balance:        blk.Balance,
		Representative: blk.Representative,
	}
	if src, ok := blk.Link.Hash(); ok {
		list := f.pending[blk.Account]
		for i, p := range list {
			if p.Hash == src {
				f.pending[blk.Account] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
	f.published = append(f.published, blk)
	return hash, nil
}

func (f *fakeLedger) CreateEscrow(context.Context, string) (*ledger.EscrowInfo, error) {
	return nil, fmt.Errorf("not supported")
}

func (f *fakeLedger) CancelEscrow(context.Context, string, types.Address) error {
	return fmt.Errorf("not supported")
}

func (f *fakeLedger) EscrowStatus(context.Context, string) (string, error) {
	return "", fmt.Errorf("not supported")
}

func (f *fakeLedger) publishedBlocks() []*block.SignedBlock {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*block.SignedBlock(nil), f.published...)
}

// workLedger adds a WorkSource to fakeLedger.
type workLedger struct{ *fakeLedger }

func (w workLedger) GenerateWork(_ context.Context, root []byte) (string, error) {
	return fmt.Sprintf("work-%x", root[:4]), nil
}
