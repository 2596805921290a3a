// Package reconcile keeps the local account projection in step with the
// ledger and settles pending receives by signing blocks on-device.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/reactive"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/amount"
	"github.com/Klingon-tech/klingnet-wallet/pkg/block"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Engine errors.
var (
	ErrSettling       = errors.New("settlement in progress")
	ErrUnknownAccount = errors.New("unknown account")
)

// WalletSource supplies the current wallet. *wallet.KeyStore implements it.
type WalletSource interface {
	Load() (*wallet.Wallet, error)
}

// Engine reconciles wallet accounts against the ledger. One Engine owns
// the chains of its accounts: at most one settlement sweep or send runs
// at a time, guarded by the settling flag.
type Engine struct {
	wallets  WalletSource
	ledger   ledger.Client
	builder  *block.Builder
	work     ledger.WorkSource
	decimals int

	balances   reactive.Topic[[]AccountProjection]
	processing reactive.Topic[bool]

	settling atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithDisplayDecimals sets the fractional digits of projected balances.
func WithDisplayDecimals(n int) Option {
	return func(e *Engine) { e.decimals = n }
}

// WithWorkSource computes block work with ws instead of the ledger.
func WithWorkSource(ws ledger.WorkSource) Option {
	return func(e *Engine) { e.work = ws }
}

// New creates an engine publishing to store. Work is requested from the
// ledger when it implements ledger.WorkSource, unless WithWorkSource is set.
func New(wallets WalletSource, client ledger.Client, builder *block.Builder, store *reactive.Store, opts ...Option) *Engine {
	e := &Engine{
		wallets:    wallets,
		ledger:     client,
		builder:    builder,
		decimals:   amount.DisplayDecimals,
		balances:   BalancesTopic(store),
		processing: reactive.ProcessingPending(store),
	}
	if ws, ok := client.(ledger.WorkSource); ok {
		e.work = ws
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BalancesTopic is the typed ACCOUNTS_BALANCES topic.
func BalancesTopic(store *reactive.Store) reactive.Topic[[]AccountProjection] {
	return reactive.NewTopic[[]AccountProjection](store, reactive.KeyAccountsBalances)
}

// Settling reports whether a sweep or send currently holds the chains.
func (e *Engine) Settling() bool {
	return e.settling.Load()
}

// ReconcileAll fetches every account's remote state, publishes the
// projection, and then settles pending receives one block at a time,
// republishing after each. When the chains are already busy it returns the
// fresh projection without settling.
func (e *Engine) ReconcileAll(ctx context.Context) ([]AccountProjection, error) {
	w, err := e.wallets.Load()
	if errors.Is(err, wallet.ErrNoWallet) {
		return []AccountProjection{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}

	statuses, err := e.ledger.FetchBalances(ctx, w.Addresses())
	if err != nil {
		return nil, fmt.Errorf("fetch balances: %w", err)
	}
	projections := project(w, statuses, e.decimals)
	e.publish(projections)

	if !e.settling.CompareAndSwap(false, true) {
		log.Engine.Debug().Msg("Settlement already running, skipping sweep")
		return projections, nil
	}
	defer e.release()
	e.setProcessing(true)

	for i := range projections {
		if err := e.settleAccount(ctx, w, projections, i); err != nil {
			return nil, err
		}
	}
	return projections, nil
}

// settleAccount receives every pending block of projections[i] in order.
func (e *Engine) settleAccount(ctx context.Context, w *wallet.Wallet, projections []AccountProjection, i int) error {
	p := &projections[i]
	if len(p.PendingBlocks) == 0 {
		return nil
	}
	acct, ok := w.Account(p.Index)
	if !ok {
		return fmt.Errorf("account %d: %w", p.Index, ErrUnknownAccount)
	}
	signer, err := acct.Signer()
	if err != nil {
		return fmt.Errorf("account %d: %w", p.Index, err)
	}

	for len(p.PendingBlocks) > 0 {
		pending := p.PendingBlocks[0]
		hash, err := e.receive(ctx, acct.Address, pending, signer)
		if err != nil {
			return fmt.Errorf("settle %s for account %d: %w", pending.Hash, p.Index, err)
		}

		bal, err := p.BalanceRaw.Add(pending.Amount)
		if err != nil {
			return fmt.Errorf("account %d balance: %w", p.Index, err)
		}
		p.setBalance(bal, e.decimals)
		p.Active = true
		p.PendingBlocks = p.PendingBlocks[1:]
		if len(p.PendingBlocks) == 0 {
			p.PendingBlocks = nil
		}
		e.publish(projections)

		log.Engine.Info().
			Uint32("account", p.Index).
			Str("source", pending.Hash.String()).
			Str("block", hash.String()).
			Str("amount", amount.FormatDisplay(pending.Amount, e.decimals)).
			Msg("Received pending block")
	}
	return nil
}

// receive builds and publishes one receive block against a freshly
// fetched chain head.
func (e *Engine) receive(ctx context.Context, addr types.Address, pending block.PendingBlock, signer crypto.Signer) (types.Hash, error) {
	head, err := e.ledger.FetchAccountHead(ctx, addr)
	if err != nil {
		return types.Hash{}, fmt.Errorf("fetch head: %w", err)
	}
	blk, err := e.builder.BuildReceive(*head, pending, signer)
	if err != nil {
		return types.Hash{}, err
	}
	return e.submit(ctx, blk)
}

// Send transfers amt from account fromIndex to to, with an optional memo
// sealed to the recipient. It fails with ErrSettling while a sweep runs.
func (e *Engine) Send(ctx context.Context, fromIndex uint32, to types.Address, amt amount.Raw, memo string) (types.Hash, error) {
	if !e.settling.CompareAndSwap(false, true) {
		return types.Hash{}, ErrSettling
	}
	defer e.settling.Store(false)

	w, err := e.wallets.Load()
	if err != nil {
		return types.Hash{}, fmt.Errorf("load wallet: %w", err)
	}
	acct, ok := w.Account(fromIndex)
	if !ok {
		return types.Hash{}, fmt.Errorf("account %d: %w", fromIndex, ErrUnknownAccount)
	}
	signer, err := acct.Signer()
	if err != nil {
		return types.Hash{}, fmt.Errorf("account %d: %w", fromIndex, err)
	}

	head, err := e.ledger.FetchAccountHead(ctx, acct.Address)
	if err != nil {
		return types.Hash{}, fmt.Errorf("fetch head: %w", err)
	}
	var opts []block.SendOption
	if memo != "" {
		opts = append(opts, block.WithMemo(memo))
	}
	blk, err := e.builder.BuildSend(*head, acct.Address, to, amt, signer, opts...)
	if err != nil {
		return types.Hash{}, fmt.Errorf("send from account %d: %w", fromIndex, err)
	}
	hash, err := e.submit(ctx, blk)
	if err != nil {
		return types.Hash{}, fmt.Errorf("send from account %d: %w", fromIndex, err)
	}

	e.applyBalance(fromIndex, blk.Balance)
	log.Engine.Info().
		Uint32("account", fromIndex).
		Str("to", to.String()).
		Str("block", hash.String()).
		Str("amount", amount.FormatDisplay(amt, e.decimals)).
		Msg("Sent")
	return hash, nil
}

// AccountAddress returns the address of the account at index.
func (e *Engine) AccountAddress(index uint32) (types.Address, error) {
	w, err := e.wallets.Load()
	if err != nil {
		return types.Address{}, fmt.Errorf("load wallet: %w", err)
	}
	acct, ok := w.Account(index)
	if !ok {
		return types.Address{}, fmt.Errorf("account %d: %w", index, ErrUnknownAccount)
	}
	return acct.Address, nil
}

// submit attaches work when a work source is available and publishes blk.
func (e *Engine) submit(ctx context.Context, blk *block.SignedBlock) (types.Hash, error) {
	if e.work != nil && blk.Work == "" {
		work, err := e.work.GenerateWork(ctx, blk.Root())
		if err != nil {
			return types.Hash{}, fmt.Errorf("generate work: %w", err)
		}
		blk = blk.WithWork(work)
	}
	hash, err := e.ledger.Publish(ctx, blk)
	if err != nil {
		return types.Hash{}, fmt.Errorf("publish: %w", err)
	}
	return hash, nil
}

// applyBalance updates the published projection after a local send.
func (e *Engine) applyBalance(index uint32, bal amount.Raw) {
	projections := e.balances.Get(nil)
	for i := range projections {
		if projections[i].Index == index {
			projections[i].setBalance(bal, e.decimals)
			e.publish(projections)
			return
		}
	}
}

func (e *Engine) release() {
	e.settling.Store(false)
	e.setProcessing(false)
}

func (e *Engine) publish(projections []AccountProjection) {
	if err := e.balances.Set(projections); err != nil {
		log.Engine.Error().Err(err).Msg("Failed to publish balances")
	}
}

func (e *Engine) setProcessing(v bool) {
	if err := e.processing.Set(v); err != nil {
		log.Engine.Error().Err(err).Msg("Failed to publish processing flag")
	}
}
