// Package block defines account-chain state blocks and builds and signs
// them locally. Nothing in this package performs I/O.
package block

import (
	"encoding/hex"
	"encoding/json"

	"github.com/Klingon-tech/klingnet-wallet/pkg/amount"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// TypeState is the only block type produced by the wallet.
const TypeState = "state"

// preamble domain-separates block hashes from every other hash.
var preamble = []byte("klingnet/state-block/v1")

// ChainHead is the ledger's view of an account chain tip. It is a snapshot:
// fetch it right before building a block and never reuse it afterwards.
type ChainHead struct {
	Frontier       types.Hash    `json:"frontier"`
	Balance        amount.Raw    `json:"balance"`
	Representative types.Address `json:"representative"`
	Work           string        `json:"work,omitempty"`
}

// Opened reports whether the account chain has at least one block.
func (h ChainHead) Opened() bool {
	return !h.Frontier.IsZero()
}

// PendingBlock is an inbound transfer not yet received into the account chain.
type PendingBlock struct {
	Hash   types.Hash    `json:"hash"`
	Amount amount.Raw    `json:"amount"`
	Source types.Address `json:"source"`
}

// SignedBlock is a signed state block. Treat values as immutable once built.
type SignedBlock struct {
	Type           string
	Account        types.Address
	Previous       types.Hash
	Representative types.Address
	Balance        amount.Raw
	Link           Link
	Memo           []byte // sealed, never plaintext
	Signature      []byte
	Work           string
}

// blockJSON is the wire representation with hex-encoded byte fields.
type blockJSON struct {
	Type           string        `json:"type"`
	Account        types.Address `json:"account"`
	Previous       types.Hash    `json:"previous"`
	Representative types.Address `json:"representative"`
	Balance        amount.Raw    `json:"balance"`
	Link           Link          `json:"link"`
	Memo           string        `json:"memo,omitempty"`
	Signature      string        `json:"signature"`
	Work           string        `json:"work,omitempty"`
}

// MarshalJSON encodes the block with hex signature and memo.
func (b *SignedBlock) MarshalJSON() ([]byte, error) {
	j := blockJSON{
		Type:           b.Type,
		Account:        b.Account,
		Previous:       b.Previous,
		Representative: b.Representative,
		Balance:        b.Balance,
		Link:           b.Link,
		Signature:      hex.EncodeToString(b.Signature),
		Work:           b.Work,
	}
	if len(b.Memo) > 0 {
		j.Memo = hex.EncodeToString(b.Memo)
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a block produced by MarshalJSON.
func (b *SignedBlock) UnmarshalJSON(data []byte) error {
	var j blockJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	sig, err := hex.DecodeString(j.Signature)
	if err != nil {
		return err
	}
	var memo []byte
	if j.Memo != "" {
		if memo, err = hex.DecodeString(j.Memo); err != nil {
			return err
		}
	}
	*b = SignedBlock{
		Type:           j.Type,
		Account:        j.Account,
		Previous:       j.Previous,
		Representative: j.Representative,
		Balance:        j.Balance,
		Link:           j.Link,
		Memo:           memo,
		Signature:      sig,
		Work:           j.Work,
	}
	return nil
}

// Hash computes the block hash that is signed. Work and signature are
// excluded; the memo is committed to through its own hash.
func (b *SignedBlock) Hash() types.Hash {
	balance := b.Balance.Bytes32()
	var memoHash types.Hash
	if len(b.Memo) > 0 {
		memoHash = crypto.Hash(b.Memo)
	}
	return crypto.Hash(
		preamble,
		b.Account[:],
		b.Previous[:],
		b.Representative[:],
		balance[:],
		b.Link[:],
		memoHash[:],
	)
}

// WithWork returns a copy of the block carrying the given proof of work.
func (b *SignedBlock) WithWork(work string) *SignedBlock {
	out := *b
	out.Signature = append([]byte(nil), b.Signature...)
	out.Memo = append([]byte(nil), b.Memo...)
	out.Work = work
	return &out
}

// Root is the value proof of work is computed over: the previous block, or
// the account itself for the first block of a chain.
func (b *SignedBlock) Root() []byte {
	if b.Previous.IsZero() {
		return b.Account[:]
	}
	return b.Previous[:]
}
