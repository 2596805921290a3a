package reconcile

import (
	"encoding/hex"

	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/amount"
	"github.com/Klingon-tech/klingnet-wallet/pkg/block"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// AccountProjection is the public view of an account published to the
// reactive store. It carries no key material.
type AccountProjection struct {
	Index         uint32               `json:"index"`
	PublicKey     string               `json:"publicKey"`
	Address       types.Address        `json:"address"`
	Balance       string               `json:"balance"`
	BalanceRaw    amount.Raw           `json:"balanceRaw"`
	Active        bool                 `json:"active"`
	PendingBlocks []block.PendingBlock `json:"pendingBlocks,omitempty"`
}

// project joins wallet accounts with the remote statuses. Accounts the
// ledger did not report are shown as inactive with a zero balance.
func project(w *wallet.Wallet, statuses []ledger.BalanceStatus, decimals int) []AccountProjection {
	byAddr := make(map[types.Address]ledger.BalanceStatus, len(statuses))
	for _, s := range statuses {
		byAddr[s.Account] = s
	}

	out := make([]AccountProjection, 0, len(w.Accounts))
	for _, a := range w.Accounts {
		st := byAddr[a.Address]
		p := AccountProjection{
			Index:      a.Index,
			PublicKey:  hex.EncodeToString(a.PublicKey),
			Address:    a.Address,
			BalanceRaw: st.Balance,
			Balance:    amount.FormatDisplay(st.Balance, decimals),
			Active:     st.Active,
		}
		if len(st.Pending) > 0 {
			p.PendingBlocks = append([]block.PendingBlock(nil), st.Pending...)
		}
		out = append(out, p)
	}
	return out
}

func (p *AccountProjection) setBalance(raw amount.Raw, decimals int) {
	p.BalanceRaw = raw
	p.Balance = amount.FormatDisplay(raw, decimals)
}
