package block

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// LinkSize is the length of a block link field.
const LinkSize = types.AddressSize

// Link is the block field naming the counterparty of a transfer: the
// recipient address for a send, the source block hash for a receive.
// A hash link carries a 0x00 tag byte, which can never start a
// compressed public key.
type Link [LinkSize]byte

// LinkToAddress returns the link of a send to addr.
func LinkToAddress(addr types.Address) Link {
	return Link(addr)
}

// LinkToHash returns the link of a receive of the block with hash h.
func LinkToHash(h types.Hash) Link {
	var l Link
	copy(l[1:], h[:])
	return l
}

// IsHash reports whether the link references a source block.
func (l Link) IsHash() bool {
	return l[0] == 0x00
}

// Hash returns the referenced source block hash.
func (l Link) Hash() (types.Hash, bool) {
	if !l.IsHash() {
		return types.Hash{}, false
	}
	var h types.Hash
	copy(h[:], l[1:])
	return h, true
}

// Address returns the referenced recipient address.
func (l Link) Address() (types.Address, bool) {
	if l.IsHash() {
		return types.Address{}, false
	}
	return types.Address(l), true
}

// String returns the hex encoding of the link.
func (l Link) String() string {
	return hex.EncodeToString(l[:])
}

// MarshalJSON encodes the link as hex.
func (l Link) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a hex link.
func (l *Link) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid link hex: %w", err)
	}
	if len(b) != LinkSize {
		return fmt.Errorf("link must be %d bytes, got %d", LinkSize, len(b))
	}
	copy(l[:], b)
	return nil
}
