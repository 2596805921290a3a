// Package crypto provides the hashing, signing and sealing primitives used
// to build account-chain blocks.
package crypto

import (
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the concatenated inputs.
func Hash(parts ...[]byte) types.Hash {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	h.Sum(out[:0])
	return out
}

// DeriveKey derives a 32-byte key from material in the given context.
// Contexts must be hard-coded, globally unique strings.
func DeriveKey(context string, material []byte) []byte {
	out := make([]byte, 32)
	blake3.DeriveKey(context, material, out)
	return out
}
