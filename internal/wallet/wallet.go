package wallet

import (
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Kind selects the key derivation scheme of a wallet.
type Kind string

const (
	KindHD     Kind = "hd"
	KindLegacy Kind = "legacy"
)

// Account is one derived key pair. The private key is only reachable
// through Signer and is never serialized.
type Account struct {
	Index     uint32
	PublicKey []byte
	Address   types.Address

	privateKey []byte
}

// Signer returns a signer for the account's key.
func (a Account) Signer() (crypto.Signer, error) {
	if len(a.privateKey) == 0 {
		return nil, fmt.Errorf("account %d has no private key", a.Index)
	}
	return crypto.PrivateKeyFromBytes(a.privateKey)
}

func (a Account) clone() Account {
	out := a
	out.PublicKey = append([]byte(nil), a.PublicKey...)
	out.privateKey = append([]byte(nil), a.privateKey...)
	return out
}

// Wallet is the decrypted wallet. It is treated as a value: the KeyStore
// hands out copies, and updates are made on a copy and passed to Save.
type Wallet struct {
	Kind     Kind
	Mnemonic string
	Seed     []byte
	Accounts []Account
}

// NewHDWallet derives an HD wallet from a mnemonic and optional BIP-39
// passphrase, with accounts at the given indices (index 0 when none given).
func NewHDWallet(mnemonic, passphrase string, indices ...uint32) (*Wallet, error) {
	seed, err := SeedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	return newWallet(KindHD, NormalizeMnemonic(mnemonic), seed, indices)
}

// NewWalletFromSeed builds a wallet from a raw seed. A 64-byte seed gives
// an HD wallet, a 32-byte seed a legacy one.
func NewWalletFromSeed(seed []byte, indices ...uint32) (*Wallet, error) {
	kind, err := classify("", seed)
	if err != nil {
		return nil, err
	}
	return newWallet(kind, "", append([]byte(nil), seed...), indices)
}

func newWallet(kind Kind, mnemonic string, seed []byte, indices []uint32) (*Wallet, error) {
	if len(indices) == 0 {
		indices = []uint32{0}
	}
	w := &Wallet{Kind: kind, Mnemonic: mnemonic, Seed: seed}
	for _, idx := range indices {
		next, err := w.WithAccount(idx)
		if err != nil {
			return nil, err
		}
		w = next
	}
	return w, nil
}

// Clone returns a deep copy.
func (w *Wallet) Clone() *Wallet {
	if w == nil {
		return nil
	}
	out := &Wallet{
		Kind:     w.Kind,
		Mnemonic: w.Mnemonic,
		Seed:     append([]byte(nil), w.Seed...),
		Accounts: make([]Account, len(w.Accounts)),
	}
	for i, a := range w.Accounts {
		out.Accounts[i] = a.clone()
	}
	return out
}

// WithAccount returns a copy of w that also holds the account at index.
// Accounts stay sorted by index; an existing index is returned unchanged.
func (w *Wallet) WithAccount(index uint32) (*Wallet, error) {
	out := w.Clone()
	if _, ok := out.Account(index); ok {
		return out, nil
	}
	acct, err := deriveAccount(w.Kind, w.Seed, index)
	if err != nil {
		return nil, err
	}
	out.Accounts = append(out.Accounts, acct)
	sort.Slice(out.Accounts, func(i, j int) bool {
		return out.Accounts[i].Index < out.Accounts[j].Index
	})
	return out, nil
}

// Account returns a copy of the account at index.
func (w *Wallet) Account(index uint32) (Account, bool) {
	for _, a := range w.Accounts {
		if a.Index == index {
			return a.clone(), true
		}
	}
	return Account{}, false
}

// Addresses returns the account addresses in index order.
func (w *Wallet) Addresses() []types.Address {
	out := make([]types.Address, len(w.Accounts))
	for i, a := range w.Accounts {
		out[i] = a.Address
	}
	return out
}

// Indices returns the account indices in order.
func (w *Wallet) Indices() []uint32 {
	out := make([]uint32, len(w.Accounts))
	for i, a := range w.Accounts {
		out[i] = a.Index
	}
	return out
}

// classify infers the wallet kind of a record written without one.
func classify(mnemonic string, seed []byte) (Kind, error) {
	switch {
	case mnemonic != "", len(seed) == SeedSize:
		return KindHD, nil
	case len(seed) == LegacySeedSize:
		return KindLegacy, nil
	default:
		return "", fmt.Errorf("cannot infer wallet kind from %d-byte seed", len(seed))
	}
}
