package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "KLINGWALLET"

// envOverlay mirrors the overridable settings. Fields are preloaded from
// the current config so unset variables leave them untouched.
type envOverlay struct {
	Network        string        `envconfig:"NETWORK"`
	DataDir        string        `envconfig:"DATADIR"`
	RPCEndpoint    string        `envconfig:"RPC_ENDPOINT"`
	RPCTimeout     time.Duration `envconfig:"RPC_TIMEOUT"`
	RPCRateLimit   float64       `envconfig:"RPC_RATE_LIMIT"`
	Keystore       string        `envconfig:"KEYSTORE"`
	Representative string        `envconfig:"REPRESENTATIVE"`
	Contacts       string        `envconfig:"CONTACTS"`
	WorkLocal      bool          `envconfig:"WORK_LOCAL"`
	WorkDifficulty uint64        `envconfig:"WORK_DIFFICULTY"`
	WorkThreads    int           `envconfig:"WORK_THREADS"`
	Decimals       int           `envconfig:"DISPLAY_DECIMALS"`
	QuoteDecimals  int           `envconfig:"QUOTE_DECIMALS"`
	LogLevel       string        `envconfig:"LOG_LEVEL"`
	LogFile        string        `envconfig:"LOG_FILE"`
	LogJSON        bool          `envconfig:"LOG_JSON"`
}

// ApplyEnv overlays KLINGWALLET_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	env := envOverlay{
		Network:        string(cfg.Network),
		DataDir:        cfg.DataDir,
		RPCEndpoint:    cfg.RPC.Endpoint,
		RPCTimeout:     cfg.RPC.Timeout,
		RPCRateLimit:   cfg.RPC.RateLimit,
		Keystore:       cfg.Wallet.KeystoreFile,
		Representative: cfg.Wallet.Representative,
		Contacts:       cfg.Wallet.Contacts,
		WorkLocal:      cfg.Work.Local,
		WorkDifficulty: cfg.Work.Difficulty,
		WorkThreads:    cfg.Work.Threads,
		Decimals:       cfg.Display.Decimals,
		QuoteDecimals:  cfg.Display.QuoteDecimals,
		LogLevel:       cfg.Log.Level,
		LogFile:        cfg.Log.File,
		LogJSON:        cfg.Log.JSON,
	}
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to process environment: %w", err)
	}

	cfg.Network = NetworkType(env.Network)
	cfg.DataDir = env.DataDir
	cfg.RPC.Endpoint = env.RPCEndpoint
	cfg.RPC.Timeout = env.RPCTimeout
	cfg.RPC.RateLimit = env.RPCRateLimit
	cfg.Wallet.KeystoreFile = env.Keystore
	cfg.Wallet.Representative = env.Representative
	cfg.Wallet.Contacts = env.Contacts
	cfg.Work.Local = env.WorkLocal
	cfg.Work.Difficulty = env.WorkDifficulty
	cfg.Work.Threads = env.WorkThreads
	cfg.Display.Decimals = env.Decimals
	cfg.Display.QuoteDecimals = env.QuoteDecimals
	cfg.Log.Level = env.LogLevel
	cfg.Log.File = env.LogFile
	cfg.Log.JSON = env.LogJSON
	return nil
}

// envNetwork reports the network requested through the environment, which
// selects the defaults before anything else is applied.
func envNetwork() string {
	return os.Getenv(EnvPrefix + "_NETWORK")
}

// PasswordEnv names the variable read instead of prompting, for scripted use.
const PasswordEnv = EnvPrefix + "_PASSWORD"

// ReadPassword returns the keystore password. KLINGWALLET_PASSWORD wins when
// set; otherwise the user is prompted on the terminal without echo. With
// confirm the password is asked twice and must match.
func ReadPassword(prompt string, confirm bool) ([]byte, error) {
	if pw, ok := os.LookupEnv(PasswordEnv); ok {
		if pw == "" {
			return nil, errors.New("password cannot be empty")
		}
		return []byte(pw), nil
	}

	pw, err := promptHidden(prompt)
	if err != nil {
		return nil, err
	}
	if !confirm {
		return pw, nil
	}
	again, err := promptHidden("Confirm password: ")
	if err != nil {
		clear(pw)
		return nil, err
	}
	defer clear(again)
	if !bytes.Equal(pw, again) {
		clear(pw)
		return nil, errors.New("passwords do not match")
	}
	return pw, nil
}

func promptHidden(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal: set %s or run interactively", PasswordEnv)
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("password cannot be empty")
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	clear(raw)
	return out, nil
}
