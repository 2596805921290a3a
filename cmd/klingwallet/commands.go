package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/escrow"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/reactive"
	"github.com/Klingon-tech/klingnet-wallet/internal/reconcile"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/pkg/amount"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ── balances ────────────────────────────────────────────────────────────

func cmdBalances(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("balances", flag.ExitOnError)
	quote := fs.String("quote", "", "Price per unit to show a converted value (e.g. 0.8731)")
	fs.Parse(args)

	a := openApp(cfg)
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	projections, err := a.engine.ReconcileAll(ctx)
	if err != nil {
		// A failed sweep still published the fetched balances.
		log.Engine.Error().Err(err).Msg("Settlement stopped")
		projections = reconcile.BalancesTopic(a.store).Get(nil)
		if projections == nil {
			fatal("reconcile: %v", err)
		}
	}
	printBalances(a, projections, *quote)
	if err != nil {
		os.Exit(1)
	}
}

func printBalances(a *app, projections []reconcile.AccountProjection, quote string) {
	if len(projections) == 0 {
		fmt.Println("No accounts")
		return
	}
	currency := reactive.GetVariable(a.store, reactive.VarCurrency, "USD")

	fmt.Printf("%-6s  %-66s  %20s  %-8s  %s\n", "INDEX", "ADDRESS", "BALANCE", "STATUS", "PENDING")
	for _, p := range projections {
		status := "unopened"
		if p.Active {
			status = "active"
		}
		fmt.Printf("%-6d  %-66s  %20s  %-8s  %d\n", p.Index, p.Address, p.Balance, status, len(p.PendingBlocks))
		if quote != "" {
			v, err := amount.FormatQuoteDecimals(p.BalanceRaw, quote, a.cfg.Display.QuoteDecimals)
			if err != nil {
				fatal("quote: %v", err)
			}
			fmt.Printf("        ≈ %s %s\n", v, currency)
		}
	}
}

// ── send ────────────────────────────────────────────────────────────────

func cmdSend(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	from := fs.Int("from", -1, "Source account index (default: selectedAccount preference)")
	to := fs.String("to", "", "Recipient address")
	amt := fs.String("amount", "", "Amount in display units")
	memo := fs.String("memo", "", "Encrypted memo for the recipient")
	fs.Parse(args)

	if *to == "" || *amt == "" {
		fatal("usage: klingwallet send --from <n> --to <addr> --amount <amt> [--memo <text>]")
	}
	dest, err := types.ParseAddress(*to)
	if err != nil {
		fatal("invalid recipient: %v", err)
	}
	raw, err := amount.ParseDisplay(*amt)
	if err != nil {
		fatal("invalid amount: %v", err)
	}

	a := openApp(cfg)
	defer a.Close()
	index := accountIndex(a.store, *from)

	ctx, cancel := signalContext()
	defer cancel()

	hash, err := a.engine.Send(ctx, index, dest, raw, *memo)
	if errors.Is(err, reconcile.ErrSettling) {
		fatal("another settlement is running, try again shortly")
	}
	if err != nil {
		fatal("send: %v", err)
	}
	fmt.Printf("Sent %s from account %d to %s\n", amount.FormatDisplay(raw, cfg.Display.Decimals), index, dest)
	fmt.Printf("Block: %s\n", hash)
}

// accountIndex resolves a --from flag, falling back to the stored
// selectedAccount preference.
func accountIndex(store *reactive.Store, flagValue int) uint32 {
	if flagValue >= 0 {
		return uint32(flagValue)
	}
	return reactive.GetVariable(store, reactive.VarSelectedAccount, uint32(0))
}

// ── escrow ──────────────────────────────────────────────────────────────

func cmdEscrow(cfg *config.Config, args []string) {
	if len(args) == 0 {
		fatal("usage: klingwallet escrow <send|cancel|status|list|observe>")
	}

	a := openApp(cfg)
	defer a.Close()
	ctx, cancel := signalContext()
	defer cancel()

	switch args[0] {
	case "send":
		cmdEscrowSend(ctx, a, args[1:])
	case "cancel":
		if len(args) < 2 {
			fatal("usage: klingwallet escrow cancel <id>")
		}
		h, err := a.escrows.Cancel(ctx, args[1])
		if errors.Is(err, escrow.ErrEscrowState) {
			fatal("escrow %s can no longer be cancelled", args[1])
		}
		if err != nil {
			fatal("cancel: %v", err)
		}
		printEscrow(h, cfg.Display.Decimals)
	case "status":
		if len(args) < 2 {
			fatal("usage: klingwallet escrow status <id>")
		}
		h, err := a.escrows.Get(args[1])
		if err != nil {
			fatal("%v", err)
		}
		printEscrow(h, cfg.Display.Decimals)
	case "list":
		handles, err := a.escrows.List()
		if err != nil {
			fatal("list escrows: %v", err)
		}
		if len(handles) == 0 {
			fmt.Println("No escrows")
			return
		}
		for _, h := range handles {
			fmt.Printf("%s  %-9s  %-16s  %s\n", h.ID, h.Status, h.Phone, amount.FormatDisplay(h.Amount, cfg.Display.Decimals))
		}
	case "observe":
		changed, err := a.escrows.Observe(ctx)
		for _, h := range changed {
			fmt.Printf("%s  -> %s\n", h.ID, h.Status)
		}
		if err != nil {
			fatal("observe: %v", err)
		}
		if len(changed) == 0 {
			fmt.Println("No changes")
		}
	default:
		fatal("unknown escrow subcommand: %s", args[0])
	}
}

func cmdEscrowSend(ctx context.Context, a *app, args []string) {
	fs := flag.NewFlagSet("escrow send", flag.ExitOnError)
	from := fs.Int("from", -1, "Source account index (default: selectedAccount preference)")
	phone := fs.String("phone", "", "Recipient phone number (E.164, e.g. +15551234567)")
	amt := fs.String("amount", "", "Amount in display units")
	fs.Parse(args)

	if *phone == "" || *amt == "" {
		fatal("usage: klingwallet escrow send --from <n> --phone <+num> --amount <amt>")
	}
	raw, err := amount.ParseDisplay(*amt)
	if err != nil {
		fatal("invalid amount: %v", err)
	}

	res, err := a.escrows.Send(ctx, accountIndex(a.store, *from), *phone, raw)
	if err != nil {
		if res != nil && res.Escrow != nil {
			fmt.Fprintf(os.Stderr, "Escrow %s was created but not filled; cancel or retry later\n", res.Escrow.ID)
		}
		fatal("escrow send: %v", err)
	}
	if res.Escrow == nil {
		fmt.Printf("Recipient is registered, sent directly\nBlock: %s\n", res.Hash)
		return
	}
	fmt.Printf("Block: %s\n", res.Hash)
	printEscrow(res.Escrow, a.cfg.Display.Decimals)
}

func printEscrow(h *escrow.Handle, decimals int) {
	fmt.Printf("ID:       %s\n", h.ID)
	fmt.Printf("Status:   %s\n", h.Status)
	fmt.Printf("Phone:    %s\n", h.Phone)
	fmt.Printf("Address:  %s\n", h.Address)
	fmt.Printf("Amount:   %s\n", amount.FormatDisplay(h.Amount, decimals))
	fmt.Printf("Account:  %d\n", h.FromIndex)
	if !h.SendHash.IsZero() {
		fmt.Printf("Send:     %s\n", h.SendHash)
	}
	fmt.Printf("Updated:  %s\n", h.UpdatedAt.Format(time.RFC3339))
}

// ── watch ───────────────────────────────────────────────────────────────

func cmdWatch(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	interval := fs.Duration("interval", 30*time.Second, "Time between reconciliations")
	fs.Parse(args)

	if *interval < time.Second {
		fatal("interval must be at least 1s")
	}

	a := openApp(cfg)
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	balances := reconcile.BalancesTopic(a.store)
	sub := balances.Watch(func(p []reconcile.AccountProjection) {
		fmt.Printf("── %s ──\n", time.Now().Format("15:04:05"))
		printBalances(a, p, "")
	})
	defer a.store.Unwatch(sub)

	processing := reactive.ProcessingPending(a.store)
	psub := processing.Watch(func(busy bool) {
		log.Engine.Debug().Bool("processing", busy).Msg("Settlement state")
	})
	defer a.store.Unwatch(psub)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		if _, err := a.engine.ReconcileAll(ctx); err != nil && ctx.Err() == nil {
			log.Engine.Warn().Err(err).Msg("Reconcile failed")
		}
		changed, err := a.escrows.Observe(ctx)
		if err != nil && ctx.Err() == nil {
			log.Escrow.Warn().Err(err).Msg("Escrow refresh incomplete")
		}
		for _, h := range changed {
			fmt.Printf("Escrow %s -> %s\n", h.ID, h.Status)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ── prefs ───────────────────────────────────────────────────────────────

func cmdPrefs(cfg *config.Config, args []string) {
	if len(args) < 2 || (args[0] == "set" && len(args) < 3) {
		fatal("usage: klingwallet prefs <get <name>|set <name> <value>>")
	}

	db, err := storage.NewBadger(cfg.StoreDir())
	if err != nil {
		fatal("open store: %v", err)
	}
	defer db.Close()
	store := reactive.New(storage.NewPrefixDB(db, reactivePrefix))

	name := args[1]
	switch args[0] {
	case "get":
		switch name {
		case reactive.VarSelectedAccount:
			fmt.Println(reactive.GetVariable(store, name, uint32(0)))
		case reactive.VarCurrency, reactive.VarCountry:
			fmt.Println(reactive.GetVariable(store, name, ""))
		default:
			fatal("unknown preference %q", name)
		}
	case "set":
		value := args[2]
		switch name {
		case reactive.VarSelectedAccount:
			n, err := strconv.ParseUint(value, 10, 31)
			if err != nil {
				fatal("selectedAccount must be an account index: %v", err)
			}
			err = reactive.SetVariable(store, name, uint32(n))
			if err != nil {
				fatal("set %s: %v", name, err)
			}
		case reactive.VarCurrency, reactive.VarCountry:
			if err := reactive.SetVariable(store, name, value); err != nil {
				fatal("set %s: %v", name, err)
			}
		default:
			fatal("unknown preference %q", name)
		}
		fmt.Printf("%s = %s\n", name, value)
	default:
		fatal("unknown prefs subcommand: %s", args[0])
	}
}
