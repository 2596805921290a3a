package wallet

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func testKeyStore(t *testing.T) *KeyStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "testnet", "keystore", "wallet.seal")
	return NewKeyStore(path, []byte("test-password"), fastParams())
}

// writeRawRecord seals an arbitrary JSON document as the keystore file.
func writeRawRecord(t *testing.T, ks *KeyStore, doc map[string]any) {
	t.Helper()
	plain, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := Encrypt(plain, ks.password, fastParams())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(ks.Path()), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ks.Path(), sealed, 0o600); err != nil {
		t.Fatal(err)
	}
}

// readRawRecord decrypts the keystore file into a generic map.
func readRawRecord(t *testing.T, ks *KeyStore) map[string]any {
	t.Helper()
	sealed, err := os.ReadFile(ks.Path())
	if err != nil {
		t.Fatal(err)
	}
	plain, err := Decrypt(sealed, ks.password)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(plain, &doc); err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestKeyStore_LoadEmpty(t *testing.T) {
	ks := testKeyStore(t)
	w, err := ks.Load()
	if !errors.Is(err, ErrNoWallet) {
		t.Fatalf("Load() error = %v, want ErrNoWallet", err)
	}
	if w != nil {
		t.Error("Load() returned a wallet for an empty keystore")
	}
}

func TestKeyStore_CreateAndReload(t *testing.T) {
	ks := testKeyStore(t)
	created, err := ks.Create(testMnemonic, "")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	fresh := NewKeyStore(ks.Path(), []byte("test-password"), fastParams())
	loaded, err := fresh.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Kind != KindHD || loaded.Mnemonic != testMnemonic {
		t.Errorf("loaded kind=%q mnemonic=%q", loaded.Kind, loaded.Mnemonic)
	}
	if loaded.Accounts[0].Address != created.Accounts[0].Address {
		t.Error("reloaded account address differs")
	}

	if _, err := ks.Create("", ""); !errors.Is(err, ErrWalletExists) {
		t.Errorf("second Create() error = %v, want ErrWalletExists", err)
	}
}

func TestKeyStore_FileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	ks := testKeyStore(t)
	if _, err := ks.Create("", ""); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(ks.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("keystore mode = %o, want 600", perm)
	}
}

func TestKeyStore_WrongPassword(t *testing.T) {
	ks := testKeyStore(t)
	if _, err := ks.Create(testMnemonic, ""); err != nil {
		t.Fatal(err)
	}
	other := NewKeyStore(ks.Path(), []byte("wrong"), fastParams())
	if _, err := other.Load(); err == nil {
		t.Error("Load() with wrong password should fail")
	}
}

func TestKeyStore_LoadReturnsCopies(t *testing.T) {
	ks := testKeyStore(t)
	if _, err := ks.Create(testMnemonic, ""); err != nil {
		t.Fatal(err)
	}

	a, _ := ks.Load()
	orig := a.Accounts[0].Address
	a.Accounts[0].Address[0] ^= 0xFF
	a.Seed[0] ^= 0xFF
	a.Accounts = nil

	b, _ := ks.Load()
	if len(b.Accounts) != 1 {
		t.Fatal("mutating a loaded wallet changed the cache")
	}
	if b.Accounts[0].Address != orig {
		t.Error("address mutation leaked into the cache")
	}
}

func TestKeyStore_SaveAndAddAccount(t *testing.T) {
	ks := testKeyStore(t)
	w, err := ks.Create(testMnemonic, "")
	if err != nil {
		t.Fatal(err)
	}
	next, err := w.WithAccount(2)
	if err != nil {
		t.Fatal(err)
	}
	if err := ks.Save(next); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := ks.AddAccount(5)
	if err != nil {
		t.Fatalf("AddAccount() error: %v", err)
	}
	if idx := got.Indices(); len(idx) != 3 || idx[2] != 5 {
		t.Fatalf("Indices() = %v", idx)
	}

	doc := readRawRecord(t, ks)
	accts, _ := doc["accounts"].([]any)
	if len(accts) != 3 {
		t.Errorf("persisted accounts = %v", doc["accounts"])
	}
	if _, ok := doc["private_key"]; ok {
		t.Error("record contains a private key field")
	}
}

func TestKeyStore_Clear(t *testing.T) {
	ks := testKeyStore(t)
	if _, err := ks.Create("", ""); err != nil {
		t.Fatal(err)
	}
	if err := ks.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if ks.Exists() {
		t.Error("file still present after Clear")
	}
	if _, err := ks.Load(); !errors.Is(err, ErrNoWallet) {
		t.Errorf("Load() after Clear error = %v", err)
	}
	if err := ks.Clear(); err != nil {
		t.Errorf("Clear() on empty keystore: %v", err)
	}
}

func TestKeyStore_MigratesUntaggedRecords(t *testing.T) {
	hdSeed, _ := SeedFromMnemonic(testMnemonic, "")
	tests := []struct {
		name string
		doc  map[string]any
		want Kind
	}{
		{"mnemonic", map[string]any{"mnemonic": testMnemonic, "accounts": []uint32{0}}, KindHD},
		{"64-byte seed", map[string]any{"seed": hdSeed, "accounts": []uint32{0, 1}}, KindHD},
		{"32-byte seed", map[string]any{"seed": bytes.Repeat([]byte{9}, 32)}, KindLegacy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ks := testKeyStore(t)
			writeRawRecord(t, ks, tt.doc)

			w, err := ks.Load()
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if w.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", w.Kind, tt.want)
			}
			if doc := readRawRecord(t, ks); doc["kind"] != string(tt.want) {
				t.Errorf("rewritten kind = %v, want %q", doc["kind"], tt.want)
			}
		})
	}
}

func TestKeyStore_MigrationKeepsKeys(t *testing.T) {
	ks := testKeyStore(t)
	hdSeed, _ := SeedFromMnemonic(testMnemonic, "")
	writeRawRecord(t, ks, map[string]any{"seed": hdSeed, "accounts": []uint32{0}})

	w, err := ks.Load()
	if err != nil {
		t.Fatal(err)
	}
	want, _ := NewHDWallet(testMnemonic, "")
	if w.Accounts[0].Address != want.Accounts[0].Address {
		t.Error("migration changed the derived address")
	}
}

func TestKeyStore_UnclassifiableRecord(t *testing.T) {
	ks := testKeyStore(t)
	writeRawRecord(t, ks, map[string]any{"seed": make([]byte, 10)})
	if _, err := ks.Load(); err == nil {
		t.Error("Load() accepted a 10-byte seed")
	}
}
