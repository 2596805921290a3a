// derive_key.go prints the account addresses derived from a mnemonic file,
// for checking a backup without unlocking a keystore.
// Usage: go run scripts/derive_key.go <mnemonic-file> [count] [testnet]
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <mnemonic-file> [count] [testnet]")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	mnemonic := strings.TrimSpace(string(data))

	count := 1
	if len(os.Args) > 2 {
		if count, err = strconv.Atoi(os.Args[2]); err != nil || count < 1 {
			fmt.Fprintln(os.Stderr, "count must be a positive integer")
			os.Exit(1)
		}
	}
	if len(os.Args) > 3 && os.Args[3] == "testnet" {
		types.SetAddressHRP(types.TestnetHRP)
	}

	indices := make([]uint32, count)
	for i := range indices {
		indices[i] = uint32(i)
	}
	w, err := wallet.NewHDWallet(mnemonic, "", indices...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for _, a := range w.Accounts {
		fmt.Printf("index=%d pubkey=%s address=%s\n", a.Index, a.Address.Hex(), a.Address)
	}
}
