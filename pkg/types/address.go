package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AddressSize is the length of an address in bytes. An address is the
// compressed secp256k1 public key of the account, so anyone holding it can
// verify the account's blocks and seal memos to it.
const AddressSize = 33

// Address HRP (human-readable part) constants for bech32 encoding.
const (
	MainnetHRP = "kgx"
	TestnetHRP = "tkgx"
)

// activeHRP is the address HRP used by String() and MarshalJSON().
// Set once at startup via SetAddressHRP(). Default is mainnet.
var activeHRP = MainnetHRP

// SetAddressHRP sets the active address HRP (call once at startup).
func SetAddressHRP(hrp string) {
	activeHRP = hrp
}

// GetAddressHRP returns the currently active address HRP.
func GetAddressHRP() string {
	return activeHRP
}

// Address identifies an account chain.
type Address [AddressSize]byte

// AddressFromPubKey wraps a 33-byte compressed public key.
func AddressFromPubKey(pub []byte) (Address, error) {
	if len(pub) != AddressSize {
		return Address{}, fmt.Errorf("public key must be %d bytes, got %d", AddressSize, len(pub))
	}
	var a Address
	copy(a[:], pub)
	return a, nil
}

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the bech32-encoded address (e.g. "kgx1...").
func (a Address) String() string {
	s, err := Bech32Encode(activeHRP, a[:])
	if err != nil {
		return activeHRP + ":" + hex.EncodeToString(a[:])
	}
	return s
}

// Hex returns the raw hex-encoded public key.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// PublicKey returns a copy of the compressed public key bytes.
func (a Address) PublicKey() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as a bech32 string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a bech32 or raw hex string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a bech32 ("kgx1...", "tkgx1...") or raw 66-char hex
// address string.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}

	if isHexKey(s) {
		decoded, err := hex.DecodeString(s)
		if err != nil {
			return Address{}, fmt.Errorf("invalid address: %w", err)
		}
		return AddressFromPubKey(decoded)
	}

	hrp, data, err := Bech32Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 address: %w", err)
	}
	if hrp != MainnetHRP && hrp != TestnetHRP {
		return Address{}, fmt.Errorf("unknown address prefix %q", hrp)
	}
	return AddressFromPubKey(data)
}

// isHexKey returns true if s is exactly 66 hex characters.
func isHexKey(s string) bool {
	if len(s) != AddressSize*2 {
		return false
	}
	return strings.IndexFunc(s, func(c rune) bool {
		return !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F'))
	}) < 0
}
