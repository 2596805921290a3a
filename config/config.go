// Package config handles klingwallet configuration.
//
// Settings are layered: network defaults, then the .conf file in the data
// directory, then KLINGWALLET_* environment variables, then command-line
// flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds the wallet's runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Ledger RPC endpoint
	RPC RPCConfig

	// Keystore and block defaults
	Wallet WalletConfig

	// Block proof of work
	Work WorkConfig

	// Balance formatting
	Display DisplayConfig

	// Logging
	Log LogConfig
}

// RPCConfig holds the ledger endpoint settings. RateLimit caps calls per
// second to the node; 0 disables the cap.
type RPCConfig struct {
	Endpoint  string        `conf:"rpc.endpoint"`
	Timeout   time.Duration `conf:"rpc.timeout"`
	RateLimit float64       `conf:"rpc.rate_limit"`
}

// WalletConfig holds keystore settings.
type WalletConfig struct {
	KeystoreFile   string `conf:"wallet.keystore"`       // Overrides <datadir>/<network>/keystore/wallet.seal
	Representative string `conf:"wallet.representative"` // Assigned to accounts this wallet opens
	Contacts       string `conf:"wallet.contacts"`       // JSON phone book for escrow sends
}

// WorkConfig selects where block work comes from. By default the ledger
// node computes it.
type WorkConfig struct {
	Local      bool   `conf:"work.local"`
	Difficulty uint64 `conf:"work.difficulty"`
	Threads    int    `conf:"work.threads"`
}

// DisplayConfig controls how raw amounts are rendered.
type DisplayConfig struct {
	Decimals      int `conf:"display.decimals"`
	QuoteDecimals int `conf:"display.quote_decimals"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingwallet
//	macOS:   ~/Library/Application Support/Klingwallet
//	Windows: %APPDATA%\Klingwallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingwallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Klingwallet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Klingwallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "Klingwallet")
	default:
		return filepath.Join(home, ".klingwallet")
	}
}

// NetworkDir returns the network-specific data directory.
func (c *Config) NetworkDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDir(), "keystore")
}

// KeystorePath returns the sealed wallet file.
func (c *Config) KeystorePath() string {
	if c.Wallet.KeystoreFile != "" {
		return c.Wallet.KeystoreFile
	}
	return filepath.Join(c.KeystoreDir(), "wallet.seal")
}

// StoreDir returns the badger directory backing the reactive store and
// escrow records.
func (c *Config) StoreDir() string {
	return filepath.Join(c.NetworkDir(), "store")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingwallet.conf")
}
