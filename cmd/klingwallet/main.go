// klingwallet is a command-line wallet for Klingnet account chains. It keeps
// a sealed keystore, reconciles balances against a ledger node and settles
// incoming transfers by signing receive blocks locally.
package main

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/escrow"
	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/reactive"
	"github.com/Klingon-tech/klingnet-wallet/internal/reconcile"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/internal/work"
	"github.com/Klingon-tech/klingnet-wallet/pkg/block"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

const version = "0.1.0"

// Key prefixes inside the shared badger database.
var (
	reactivePrefix = []byte("reactive/")
	escrowPrefix   = []byte("escrow/")
)

func main() {
	cfg, flags, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			usage()
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		usage()
		os.Exit(1)
	}
	if flags.Version {
		fmt.Println("klingwallet version " + version)
		return
	}
	if flags.Help || len(flags.Args) == 0 {
		usage()
		if !flags.Help {
			os.Exit(1)
		}
		return
	}

	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fatal("init logging: %v", err)
	}
	types.SetAddressHRP(cfg.HRP())

	cmd, cmdArgs := flags.Args[0], flags.Args[1:]
	switch cmd {
	case "wallet":
		cmdWallet(cfg, cmdArgs)
	case "balances", "balance":
		cmdBalances(cfg, cmdArgs)
	case "send":
		cmdSend(cfg, cmdArgs)
	case "escrow":
		cmdEscrow(cfg, cmdArgs)
	case "watch":
		cmdWatch(cfg, cmdArgs)
	case "prefs":
		cmdPrefs(cfg, cmdArgs)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: klingwallet [global flags] <command> [flags]

%s
Commands:
  wallet create [--mnemonic "..."] [--passphrase <p>]
                                  Create a wallet (a new mnemonic if omitted)
  wallet import --seed <hex>      Import a raw 32- or 64-byte seed
  wallet address                  List account addresses
  wallet add-account --index <n>  Derive and store another account
  wallet clear --yes              Delete the keystore

  balances [--quote <price>]      Reconcile balances and settle pending receives
  send --from <n> --to <addr> --amount <amt> [--memo <text>]
                                  Send from an account

  escrow send --from <n> --phone <+num> --amount <amt>
                                  Send to a phone number (escrow if unregistered)
  escrow cancel <id>              Return an open escrow to its sender
  escrow status <id>              Show an escrow record
  escrow list                     List escrow records
  escrow observe                  Refresh open escrows from the operator

  watch [--interval <dur>]        Reconcile and observe escrows until interrupted
  prefs get <name>                Show a preference (selectedAccount, currency, country)
  prefs set <name> <value>        Store a preference
`, config.GlobalUsage)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// ── wiring ──────────────────────────────────────────────────────────────

// app bundles the components a command needs. Close releases the database.
type app struct {
	cfg      *config.Config
	db       storage.DB
	store    *reactive.Store
	keystore *wallet.KeyStore
	client   *ledger.RPCClient
	engine   *reconcile.Engine
	escrows  *escrow.Machine
}

// openKeystore prompts for the password and binds the keystore.
func openKeystore(cfg *config.Config, confirm bool) *wallet.KeyStore {
	pw, err := config.ReadPassword("Wallet password: ", confirm)
	if err != nil {
		fatal("%v", err)
	}
	return wallet.NewKeyStore(cfg.KeystorePath(), pw, wallet.DefaultParams())
}

// openApp wires storage, the ledger client, the engine and the escrow
// machine around an unlocked keystore.
func openApp(cfg *config.Config) *app {
	ks := openKeystore(cfg, false)
	if !ks.Exists() {
		fatal("no wallet at %s (run: klingwallet wallet create)", ks.Path())
	}
	a, err := newApp(cfg, ks)
	if err != nil {
		fatal("%v", err)
	}
	return a
}

// newApp opens the store and builds the components. The store is closed
// again on any error.
func newApp(cfg *config.Config, ks *wallet.KeyStore) (_ *app, err error) {
	db, err := storage.NewBadger(cfg.StoreDir())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	rep, err := cfg.RepresentativeAddress()
	if err != nil {
		return nil, fmt.Errorf("representative: %w", err)
	}

	dir, err := loadDirectory(cfg)
	if err != nil {
		return nil, err
	}

	burst := int(math.Ceil(cfg.RPC.RateLimit))
	a := &app{
		cfg:      cfg,
		db:       db,
		store:    reactive.New(storage.NewPrefixDB(db, reactivePrefix)),
		keystore: ks,
		client:   ledger.NewRPCClient(cfg.RPC.Endpoint, cfg.RPC.Timeout, ledger.WithRateLimit(cfg.RPC.RateLimit, burst)),
	}
	opts := []reconcile.Option{reconcile.WithDisplayDecimals(cfg.Display.Decimals)}
	if cfg.Work.Local {
		gen, err := work.NewGenerator(cfg.Work.Difficulty, cfg.Work.Threads)
		if err != nil {
			return nil, fmt.Errorf("work: %w", err)
		}
		opts = append(opts, reconcile.WithWorkSource(gen))
	}
	a.engine = reconcile.New(ks, a.client, block.NewBuilder(rep), a.store, opts...)
	a.escrows = escrow.New(a.client, a.engine, dir, storage.NewPrefixDB(db, escrowPrefix))
	return a, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		log.Store.Warn().Err(err).Msg("Failed to close store")
	}
}

func loadDirectory(cfg *config.Config) (escrow.Directory, error) {
	if cfg.Wallet.Contacts == "" {
		return escrow.NewContactBook(), nil
	}
	book, err := escrow.LoadContactBook(cfg.Wallet.Contacts)
	if err != nil {
		return nil, fmt.Errorf("contacts: %w", err)
	}
	return book, nil
}
