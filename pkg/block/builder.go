package block

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/amount"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// MaxMemoSize is the largest plaintext memo accepted on a send.
const MaxMemoSize = 512

// Build errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrZeroAmount        = errors.New("amount must be positive")
	ErrSignerMismatch    = errors.New("signer does not own account")
	ErrSelfSend          = errors.New("cannot send to own account")
	ErrMemoTooLarge      = errors.New("memo too large")
	ErrNoRepresentative  = errors.New("no representative for unopened account")
	ErrBadSignature      = errors.New("invalid block signature")
)

// Builder constructs and signs state blocks from a chain head snapshot.
type Builder struct {
	representative types.Address
}

// NewBuilder creates a builder. defaultRep is used as representative when
// an account chain is opened by its first receive.
func NewBuilder(defaultRep types.Address) *Builder {
	return &Builder{representative: defaultRep}
}

// SendOption customizes a send block.
type SendOption func(*sendOptions)

type sendOptions struct {
	memo []byte
}

// WithMemo attaches a memo that is sealed to the recipient before signing.
func WithMemo(memo string) SendOption {
	return func(o *sendOptions) {
		o.memo = []byte(memo)
	}
}

// BuildSend creates a send block moving amt from the account to `to`.
// The new balance is head.Balance - amt; Previous is head.Frontier.
func (b *Builder) BuildSend(head ChainHead, from, to types.Address, amt amount.Raw, signer crypto.Signer, opts ...SendOption) (*SignedBlock, error) {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := checkSigner(from, signer); err != nil {
		return nil, err
	}
	if amt.IsZero() {
		return nil, ErrZeroAmount
	}
	if from == to {
		return nil, ErrSelfSend
	}
	if len(o.memo) > MaxMemoSize {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrMemoTooLarge, len(o.memo), MaxMemoSize)
	}

	balance, err := head.Balance.Sub(amt)
	if err != nil {
		return nil, fmt.Errorf("%w: balance %s, send %s", ErrInsufficientFunds, head.Balance, amt)
	}

	blk := &SignedBlock{
		Type:           TypeState,
		Account:        from,
		Previous:       head.Frontier,
		Representative: head.Representative,
		Balance:        balance,
		Link:           LinkToAddress(to),
	}
	if len(o.memo) > 0 {
		sealed, err := crypto.Seal(signer, to.PublicKey(), o.memo)
		clear(o.memo)
		if err != nil {
			return nil, fmt.Errorf("seal memo: %w", err)
		}
		blk.Memo = sealed
	}
	if err := sign(blk, signer); err != nil {
		return nil, err
	}
	return blk, nil
}

// BuildReceive creates a block incorporating pending into the account chain.
// The new balance is head.Balance + pending.Amount; Previous is head.Frontier.
func (b *Builder) BuildReceive(head ChainHead, pending PendingBlock, signer crypto.Signer) (*SignedBlock, error) {
	account, err := types.AddressFromPubKey(signer.PublicKey())
	if err != nil {
		return nil, err
	}
	if pending.Amount.IsZero() {
		return nil, ErrZeroAmount
	}

	balance, err := head.Balance.Add(pending.Amount)
	if err != nil {
		return nil, fmt.Errorf("receive %s: %w", pending.Hash, err)
	}

	rep := head.Representative
	if !head.Opened() || rep.IsZero() {
		rep = b.representative
	}
	if rep.IsZero() {
		return nil, ErrNoRepresentative
	}

	blk := &SignedBlock{
		Type:           TypeState,
		Account:        account,
		Previous:       head.Frontier,
		Representative: rep,
		Balance:        balance,
		Link:           LinkToHash(pending.Hash),
	}
	if err := sign(blk, signer); err != nil {
		return nil, err
	}
	return blk, nil
}

// Verify checks that the block is a well-formed state block signed by its
// account key.
func Verify(blk *SignedBlock) error {
	if blk.Type != TypeState {
		return fmt.Errorf("unsupported block type %q", blk.Type)
	}
	h := blk.Hash()
	if !crypto.VerifySignature(h[:], blk.Signature, blk.Account[:]) {
		return ErrBadSignature
	}
	return nil
}

// OpenMemo decrypts the memo of a send block. Either party may open it:
// the recipient with its own signer, or the sending account.
func OpenMemo(blk *SignedBlock, self crypto.Signer) (string, error) {
	if len(blk.Memo) == 0 {
		return "", nil
	}
	peer := blk.Account[:]
	if bytes.Equal(peer, self.PublicKey()) {
		to, ok := blk.Link.Address()
		if !ok {
			return "", fmt.Errorf("open memo: block is not a send")
		}
		peer = to[:]
	}
	plain, err := crypto.Open(self, peer, blk.Memo)
	if err != nil {
		return "", fmt.Errorf("open memo: %w", err)
	}
	return string(plain), nil
}

func checkSigner(account types.Address, signer crypto.Signer) error {
	if !bytes.Equal(account[:], signer.PublicKey()) {
		return ErrSignerMismatch
	}
	return nil
}

func sign(blk *SignedBlock, signer crypto.Signer) error {
	h := blk.Hash()
	sig, err := signer.Sign(h[:])
	if err != nil {
		return fmt.Errorf("sign block: %w", err)
	}
	blk.Signature = sig
	return nil
}
