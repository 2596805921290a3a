package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads wallet configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))
		values[key] = value
	}

	return values, scanner.Err()
}

func unquote(value string) string {
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key. Unknown keys are ignored.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(strings.ToLower(value))
	case "datadir":
		cfg.DataDir = value

	// RPC
	case "rpc.endpoint", "rpc":
		cfg.RPC.Endpoint = value
	case "rpc.timeout":
		d, err := parseDuration(value)
		if err != nil {
			return err
		}
		cfg.RPC.Timeout = d
	case "rpc.rate_limit":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		cfg.RPC.RateLimit = f

	// Wallet
	case "wallet.keystore":
		cfg.Wallet.KeystoreFile = value
	case "wallet.representative":
		cfg.Wallet.Representative = value
	case "wallet.contacts":
		cfg.Wallet.Contacts = value

	// Work
	case "work.local":
		cfg.Work.Local = parseBool(value)
	case "work.difficulty":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Work.Difficulty = n
	case "work.threads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Work.Threads = n

	// Display
	case "display.decimals":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Display.Decimals = n
	case "display.quote_decimals":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Display.QuoteDecimals = n

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)
	}
	return nil
}

// parseDuration accepts Go durations ("15s") or bare seconds ("15").
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// WriteDefaultConfig writes a default wallet configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	def := Default(network)
	content := `# Klingnet Wallet Configuration
#
# Values here are overridden by KLINGWALLET_* environment variables and
# command-line flags.

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.klingwallet)
# datadir = ~/.klingwallet

# ============================================================================
# Ledger RPC
# ============================================================================

rpc.endpoint = ` + def.RPC.Endpoint + `
rpc.timeout = ` + def.RPC.Timeout.String() + `
# Maximum calls per second to the node (0 = unlimited)
rpc.rate_limit = ` + strconv.FormatFloat(def.RPC.RateLimit, 'f', -1, 64) + `

# ============================================================================
# Wallet
# ============================================================================

# Sealed keystore (default: <datadir>/<network>/keystore/wallet.seal)
# wallet.keystore =

# Representative assigned when an account chain is opened
# wallet.representative = kgx1...

# Phone book for escrow sends (JSON object: {"+15551234567": "kgx1..."})
# wallet.contacts =

# ============================================================================
# Proof of work
# ============================================================================

# Compute block work locally instead of asking the ledger node
work.local = false
work.difficulty = ` + strconv.FormatUint(def.Work.Difficulty, 10) + `
# Search goroutines (0 = one per CPU)
work.threads = 0

# ============================================================================
# Display
# ============================================================================

display.decimals = ` + strconv.Itoa(def.Display.Decimals) + `
display.quote_decimals = ` + strconv.Itoa(def.Display.QuoteDecimals) + `

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
