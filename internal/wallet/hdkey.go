package wallet

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/tyler-smith/go-bip32"
)

// BIP-44 path components. Accounts live at m/44'/8888'/index'/0/0.
const (
	PurposeBIP44     = bip32.FirstHardenedChild + 44
	CoinTypeKlingnet = bip32.FirstHardenedChild + 8888
)

// deriveHDKey returns the 32-byte private key for account index of an HD
// wallet seed.
func deriveHDKey(seed []byte, index uint32) ([]byte, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	if index >= bip32.FirstHardenedChild {
		return nil, fmt.Errorf("account index %d out of range", index)
	}
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	for _, child := range []uint32{
		PurposeBIP44,
		CoinTypeKlingnet,
		bip32.FirstHardenedChild + index,
		0,
		0,
	} {
		key, err = key.NewChildKey(child)
		if err != nil {
			return nil, fmt.Errorf("derive account %d: %w", index, err)
		}
	}
	// bip32 stores private keys as 33 bytes with a leading zero.
	raw := key.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// deriveLegacyKey returns BLAKE3(seed || be32(index)), the key schedule of
// wallets created before HD support.
func deriveLegacyKey(seed []byte, index uint32) ([]byte, error) {
	if len(seed) != LegacySeedSize {
		return nil, fmt.Errorf("legacy seed must be %d bytes, got %d", LegacySeedSize, len(seed))
	}
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)
	h := crypto.Hash(seed, idx[:])
	return h.Bytes(), nil
}

// deriveAccount builds the Account at index for a wallet of the given kind.
func deriveAccount(kind Kind, seed []byte, index uint32) (Account, error) {
	var (
		priv []byte
		err  error
	)
	switch kind {
	case KindHD:
		priv, err = deriveHDKey(seed, index)
	case KindLegacy:
		priv, err = deriveLegacyKey(seed, index)
	default:
		err = fmt.Errorf("unknown wallet kind %q", kind)
	}
	if err != nil {
		return Account{}, err
	}

	key, err := crypto.PrivateKeyFromBytes(priv)
	if err != nil {
		return Account{}, err
	}
	return Account{
		Index:      index,
		PublicKey:  key.PublicKey(),
		Address:    key.Address(),
		privateKey: priv,
	}, nil
}
