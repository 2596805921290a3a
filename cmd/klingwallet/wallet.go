package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/reactive"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
)

// ── wallet ──────────────────────────────────────────────────────────────

func cmdWallet(cfg *config.Config, args []string) {
	if len(args) == 0 {
		fatal("usage: klingwallet wallet <create|import|address|add-account|clear>")
	}
	switch args[0] {
	case "create":
		cmdWalletCreate(cfg, args[1:])
	case "import":
		cmdWalletImport(cfg, args[1:])
	case "address", "addresses":
		cmdWalletAddress(cfg)
	case "add-account":
		cmdWalletAddAccount(cfg, args[1:])
	case "clear":
		cmdWalletClear(cfg, args[1:])
	default:
		fatal("unknown wallet subcommand: %s", args[0])
	}
}

func cmdWalletCreate(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("wallet create", flag.ExitOnError)
	mnemonic := fs.String("mnemonic", "", "Restore from an existing BIP-39 mnemonic")
	passphrase := fs.String("passphrase", "", "Optional BIP-39 passphrase")
	fs.Parse(args)

	if *mnemonic != "" && !wallet.ValidateMnemonic(*mnemonic) {
		fatal("invalid mnemonic")
	}

	ks := openKeystore(cfg, true)
	w, err := ks.Create(*mnemonic, *passphrase)
	if errors.Is(err, wallet.ErrWalletExists) {
		fatal("a wallet already exists at %s", ks.Path())
	}
	if err != nil {
		fatal("create wallet: %v", err)
	}

	if *mnemonic == "" {
		fmt.Println("Write down your recovery phrase and keep it offline:")
		fmt.Println()
		fmt.Printf("  %s\n", w.Mnemonic)
		fmt.Println()
	}
	fmt.Printf("Wallet created (%s)\n", w.Kind)
	fmt.Printf("Keystore: %s\n", ks.Path())
	printAccounts(w)
}

func cmdWalletImport(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("wallet import", flag.ExitOnError)
	seedHex := fs.String("seed", "", "Raw seed as hex (32 or 64 bytes)")
	fs.Parse(args)

	if *seedHex == "" {
		fatal("usage: klingwallet wallet import --seed <hex>")
	}
	seed, err := hex.DecodeString(strings.TrimPrefix(*seedHex, "0x"))
	if err != nil {
		fatal("invalid seed hex: %v", err)
	}

	ks := openKeystore(cfg, true)
	w, err := ks.Import(seed)
	clear(seed)
	if errors.Is(err, wallet.ErrWalletExists) {
		fatal("a wallet already exists at %s", ks.Path())
	}
	if err != nil {
		fatal("import wallet: %v", err)
	}
	fmt.Printf("Wallet imported (%s)\n", w.Kind)
	printAccounts(w)
}

func cmdWalletAddress(cfg *config.Config) {
	w, err := openKeystore(cfg, false).Load()
	if err != nil {
		fatal("load wallet: %v", err)
	}
	printAccounts(w)
}

func cmdWalletAddAccount(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("wallet add-account", flag.ExitOnError)
	index := fs.Uint("index", 0, "Account index to derive")
	fs.Parse(args)

	if !isFlagPassed(fs, "index") {
		fatal("usage: klingwallet wallet add-account --index <n>")
	}
	if *index >= 1<<31 {
		fatal("index must be below 2^31")
	}

	w, err := openKeystore(cfg, false).AddAccount(uint32(*index))
	if err != nil {
		fatal("add account: %v", err)
	}
	printAccounts(w)
}

func cmdWalletClear(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("wallet clear", flag.ExitOnError)
	yes := fs.Bool("yes", false, "Confirm deletion of the keystore")
	fs.Parse(args)

	if !*yes {
		fatal("refusing to delete the keystore without --yes")
	}

	// Local state goes first so a locked store leaves the keystore intact.
	db, err := storage.NewBadger(cfg.StoreDir())
	if err != nil {
		fatal("open store: %v", err)
	}
	err = clearLocalState(db)
	db.Close()
	if err != nil {
		fatal("clear local state: %v", err)
	}

	ks := wallet.NewKeyStore(cfg.KeystorePath(), nil, wallet.DefaultParams())
	if err := ks.Clear(); err != nil {
		fatal("clear wallet: %v", err)
	}
	fmt.Printf("Keystore %s removed\n", ks.Path())
}

// clearLocalState drops the reactive table and the escrow records, which
// refer to the addresses of the wallet being removed.
func clearLocalState(db storage.DB) error {
	if err := reactive.New(storage.NewPrefixDB(db, reactivePrefix)).Clear(); err != nil {
		return err
	}
	if err := storage.NewPrefixDB(db, escrowPrefix).DeleteAll(); err != nil {
		return fmt.Errorf("escrow records: %w", err)
	}
	log.Wallet.Info().Msg("Local wallet state cleared")
	return nil
}

func printAccounts(w *wallet.Wallet) {
	fmt.Printf("%-6s  %s\n", "INDEX", "ADDRESS")
	for _, a := range w.Accounts {
		fmt.Printf("%-6d  %s\n", a.Index, a.Address)
	}
}

// isFlagPassed reports whether name was given explicitly.
func isFlagPassed(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
