package config

import (
	"fmt"
	"net/url"

	"github.com/Klingon-tech/klingnet-wallet/pkg/amount"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Validate checks the config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir must not be empty")
	}

	u, err := url.Parse(cfg.RPC.Endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("rpc.endpoint must be an http(s) URL, got %q", cfg.RPC.Endpoint)
	}
	if cfg.RPC.Timeout <= 0 {
		return fmt.Errorf("rpc.timeout must be positive")
	}
	if cfg.RPC.RateLimit < 0 {
		return fmt.Errorf("rpc.rate_limit must not be negative")
	}

	if cfg.Wallet.Representative != "" {
		if _, err := types.ParseAddress(cfg.Wallet.Representative); err != nil {
			return fmt.Errorf("wallet.representative: %w", err)
		}
	}

	if cfg.Work.Local && cfg.Work.Difficulty == 0 {
		return fmt.Errorf("work.difficulty must be positive when work.local is set")
	}
	if cfg.Work.Threads < 0 {
		return fmt.Errorf("work.threads must not be negative")
	}

	if cfg.Display.Decimals < 0 || cfg.Display.Decimals > amount.UnitDecimals {
		return fmt.Errorf("display.decimals must be in range [0, %d]", amount.UnitDecimals)
	}
	if cfg.Display.QuoteDecimals < 0 || cfg.Display.QuoteDecimals > amount.UnitDecimals {
		return fmt.Errorf("display.quote_decimals must be in range [0, %d]", amount.UnitDecimals)
	}
	return nil
}

// HRP returns the address prefix for the configured network.
func (c *Config) HRP() string {
	if c.Network == Testnet {
		return types.TestnetHRP
	}
	return types.MainnetHRP
}

// RepresentativeAddress parses wallet.representative. The zero address is
// returned when none is configured.
func (c *Config) RepresentativeAddress() (types.Address, error) {
	if c.Wallet.Representative == "" {
		return types.Address{}, nil
	}
	return types.ParseAddress(c.Wallet.Representative)
}
