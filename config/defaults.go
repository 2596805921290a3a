package config

import (
	"time"

	"github.com/Klingon-tech/klingnet-wallet/internal/ledger"
	"github.com/Klingon-tech/klingnet-wallet/internal/work"
	"github.com/Klingon-tech/klingnet-wallet/pkg/amount"
)

// DefaultMainnet returns the default wallet configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		RPC: RPCConfig{
			Endpoint:  "http://127.0.0.1:8545",
			Timeout:   ledger.DefaultTimeout,
			RateLimit: 20,
		},
		Work: WorkConfig{
			Local:      false,
			Difficulty: work.DefaultDifficulty,
			Threads:    0,
		},
		Display: DisplayConfig{
			Decimals:      amount.DisplayDecimals,
			QuoteDecimals: amount.QuoteDecimals,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default wallet configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.RPC.Endpoint = "http://127.0.0.1:8645"
	cfg.RPC.Timeout = 15 * time.Second
	return cfg
}

// Default returns the default wallet configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
