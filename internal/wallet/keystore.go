package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
)

// Keystore errors.
var (
	ErrNoWallet     = errors.New("no wallet stored")
	ErrWalletExists = errors.New("wallet already exists")
)

const recordVersion = 1

// walletRecord is the JSON document sealed on disk. Records written before
// kinds existed have no "kind" field and are migrated on load.
type walletRecord struct {
	Version   int       `json:"version"`
	Kind      Kind      `json:"kind,omitempty"`
	Mnemonic  string    `json:"mnemonic,omitempty"`
	Seed      []byte    `json:"seed,omitempty"`
	Accounts  []uint32  `json:"accounts"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KeyStore persists one encrypted wallet and caches it after the first
// successful load. Safe for concurrent use.
type KeyStore struct {
	path     string
	password []byte
	params   EncryptionParams

	mu     sync.Mutex
	cached *Wallet
}

// NewKeyStore returns a keystore backed by the sealed file at path.
func NewKeyStore(path string, password []byte, params EncryptionParams) *KeyStore {
	return &KeyStore{
		path:     path,
		password: append([]byte(nil), password...),
		params:   params,
	}
}

// Path returns the keystore file location.
func (ks *KeyStore) Path() string { return ks.path }

// Exists reports whether a wallet file is present.
func (ks *KeyStore) Exists() bool {
	_, err := os.Stat(ks.path)
	return err == nil
}

// Load returns a copy of the stored wallet, or ErrNoWallet.
func (ks *KeyStore) Load() (*Wallet, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	w, err := ks.loadLocked()
	if err != nil {
		return nil, err
	}
	return w.Clone(), nil
}

func (ks *KeyStore) loadLocked() (*Wallet, error) {
	if ks.cached != nil {
		return ks.cached, nil
	}

	rec, err := ks.readRecord()
	if err != nil {
		return nil, err
	}

	if rec.Kind == "" {
		kind, err := classify(rec.Mnemonic, rec.Seed)
		if err != nil {
			return nil, fmt.Errorf("migrate wallet record: %w", err)
		}
		rec.Kind = kind
		if err := ks.writeRecord(rec); err != nil {
			return nil, fmt.Errorf("migrate wallet record: %w", err)
		}
		log.Wallet.Info().Str("kind", string(kind)).Msg("Tagged legacy wallet record")
	}

	seed := rec.Seed
	if rec.Kind == KindHD && len(seed) == 0 {
		if seed, err = SeedFromMnemonic(rec.Mnemonic, ""); err != nil {
			return nil, fmt.Errorf("wallet record: %w", err)
		}
	}

	w, err := newWallet(rec.Kind, rec.Mnemonic, seed, rec.Accounts)
	if err != nil {
		return nil, fmt.Errorf("derive accounts: %w", err)
	}
	ks.cached = w
	return w, nil
}

// Save replaces the stored wallet with w.
func (ks *KeyStore) Save(w *Wallet) error {
	if w == nil {
		return fmt.Errorf("save: nil wallet")
	}
	if w.Kind != KindHD && w.Kind != KindLegacy {
		return fmt.Errorf("save: unknown wallet kind %q", w.Kind)
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.saveLocked(w)
}

func (ks *KeyStore) saveLocked(w *Wallet) error {
	rec := &walletRecord{
		Kind:     w.Kind,
		Mnemonic: w.Mnemonic,
		Seed:     w.Seed,
		Accounts: w.Indices(),
	}
	if err := ks.writeRecord(rec); err != nil {
		return err
	}
	ks.cached = w.Clone()
	return nil
}

// Clear deletes the stored wallet and drops the cache.
func (ks *KeyStore) Clear() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.cached = nil
	if err := os.Remove(ks.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove wallet: %w", err)
	}
	return nil
}

// Create stores a new HD wallet with account 0. An empty mnemonic
// generates a fresh one.
func (ks *KeyStore) Create(mnemonic, passphrase string) (*Wallet, error) {
	if mnemonic == "" {
		var err error
		if mnemonic, err = GenerateMnemonic(); err != nil {
			return nil, err
		}
	}
	w, err := NewHDWallet(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	return ks.create(w)
}

// Import stores a wallet from a raw 64-byte (HD) or 32-byte (legacy) seed.
func (ks *KeyStore) Import(seed []byte) (*Wallet, error) {
	w, err := NewWalletFromSeed(seed)
	if err != nil {
		return nil, err
	}
	return ks.create(w)
}

func (ks *KeyStore) create(w *Wallet) (*Wallet, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.cached != nil || ks.Exists() {
		return nil, ErrWalletExists
	}
	if err := ks.saveLocked(w); err != nil {
		return nil, err
	}
	log.Wallet.Info().Str("kind", string(w.Kind)).Msg("Wallet created")
	return w.Clone(), nil
}

// AddAccount derives the account at index and persists it.
func (ks *KeyStore) AddAccount(index uint32) (*Wallet, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	cur, err := ks.loadLocked()
	if err != nil {
		return nil, err
	}
	next, err := cur.WithAccount(index)
	if err != nil {
		return nil, err
	}
	if err := ks.saveLocked(next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

func (ks *KeyStore) readRecord() (*walletRecord, error) {
	sealed, err := os.ReadFile(ks.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoWallet
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	plain, err := Decrypt(sealed, ks.password)
	if err != nil {
		return nil, fmt.Errorf("open wallet: %w", err)
	}
	defer zero(plain)

	var rec walletRecord
	if err := json.Unmarshal(plain, &rec); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if rec.Version > recordVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", rec.Version)
	}
	return &rec, nil
}

// writeRecord seals rec and atomically replaces the keystore file.
func (ks *KeyStore) writeRecord(rec *walletRecord) error {
	rec.Version = recordVersion
	rec.UpdatedAt = time.Now().UTC()
	plain, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	defer zero(plain)

	sealed, err := Encrypt(plain, ks.password, ks.params)
	if err != nil {
		return fmt.Errorf("seal wallet: %w", err)
	}

	dir := filepath.Dir(ks.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create keystore dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".wallet-*.tmp")
	if err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write wallet: %w", err)
	}
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := os.Rename(tmp.Name(), ks.path); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}
