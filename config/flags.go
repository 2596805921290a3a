package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Flags holds parsed global command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	Testnet bool
	DataDir string
	Config  string

	// RPC
	RPCEndpoint string
	RPCTimeout  time.Duration

	// Wallet
	Keystore       string
	Representative string
	Contacts       string

	// Work
	LocalWork bool

	// Display
	Decimals int

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Subcommand and its arguments
	Args []string

	// Explicitly-set flags (for zero-value overrides).
	SetLocalWork bool
	SetDecimals  bool
	SetLogJSON   bool
}

// ParseFlags parses the global flags that precede the subcommand. Parsing
// stops at the first positional argument, which is left in Args together
// with everything after it.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("klingwallet", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet or testnet)")
	fs.BoolVar(&f.Testnet, "testnet", false, "Shorthand for --network=testnet")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// RPC
	fs.StringVar(&f.RPCEndpoint, "rpc", "", "Ledger RPC endpoint")
	fs.DurationVar(&f.RPCTimeout, "rpc-timeout", 0, "Ledger RPC timeout")

	// Wallet
	fs.StringVar(&f.Keystore, "keystore", "", "Sealed keystore file")
	fs.StringVar(&f.Representative, "representative", "", "Representative for newly opened accounts")
	fs.StringVar(&f.Contacts, "contacts", "", "Phone book JSON file for escrow sends")

	// Work
	fs.BoolVar(&f.LocalWork, "local-work", false, "Compute block work locally")

	// Display
	fs.IntVar(&f.Decimals, "decimals", 0, "Fractional digits shown for balances")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if f.Testnet {
		f.Network = string(Testnet)
	}
	f.SetLocalWork = isFlagSet(fs, "local-work")
	f.SetDecimals = isFlagSet(fs, "decimals")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()
	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(strings.ToLower(f.Network))
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// RPC
	if f.RPCEndpoint != "" {
		cfg.RPC.Endpoint = f.RPCEndpoint
	}
	if f.RPCTimeout > 0 {
		cfg.RPC.Timeout = f.RPCTimeout
	}

	// Wallet
	if f.Keystore != "" {
		cfg.Wallet.KeystoreFile = f.Keystore
	}
	if f.Representative != "" {
		cfg.Wallet.Representative = f.Representative
	}
	if f.Contacts != "" {
		cfg.Wallet.Contacts = f.Contacts
	}

	// Work
	if f.SetLocalWork {
		cfg.Work.Local = f.LocalWork
	}

	// Display
	if f.SetDecimals {
		cfg.Display.Decimals = f.Decimals
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// GlobalUsage describes the global flags for the CLI help text.
const GlobalUsage = `Global flags:
  --network <net>         mainnet (default) or testnet
  --testnet               Shorthand for --network=testnet
  --datadir <path>        Data directory (default: ~/.klingwallet)
  --config, -c <path>     Config file (default: <datadir>/klingwallet.conf)
  --rpc <url>             Ledger RPC endpoint (mainnet: 8545, testnet: 8645)
  --rpc-timeout <dur>     Ledger RPC timeout (default: 10s)
  --keystore <path>       Sealed keystore file
  --representative <addr> Representative for newly opened accounts
  --contacts <path>       Phone book JSON for escrow sends
  --local-work            Compute block work locally instead of on the node
  --decimals <n>          Fractional digits shown for balances (default: 6)
  --log-level <lvl>       debug, info, warn, error (default: info)
  --log-file <path>       Also write logs to a file
  --log-json              Output logs as JSON

Every setting can also be supplied as KLINGWALLET_<NAME>, e.g.
KLINGWALLET_RPC_ENDPOINT or KLINGWALLET_PASSWORD.
`

// Load loads configuration with the following precedence:
// 1. Default values for the selected network
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. KLINGWALLET_* environment
// 5. Command-line flags
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Determine network first (needed for defaults)
	network := Mainnet
	if strings.EqualFold(envNetwork(), string(Testnet)) {
		network = Testnet
	}
	if flags.Network != "" {
		network = NetworkType(strings.ToLower(flags.Network))
	}

	cfg := Default(network)
	if dir := os.Getenv(EnvPrefix + "_DATADIR"); dir != "" {
		cfg.DataDir = dir
	}
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, nil, err
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDir(),
		cfg.StoreDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	// Key material stays private to the user.
	if err := os.MkdirAll(cfg.KeystoreDir(), 0700); err != nil {
		return fmt.Errorf("creating directory %s: %w", cfg.KeystoreDir(), err)
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
