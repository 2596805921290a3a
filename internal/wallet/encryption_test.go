package wallet

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// fastParams returns low-cost Argon2 params for fast tests.
func fastParams() EncryptionParams {
	return EncryptionParams{
		Memory:      64, // KiB
		Iterations:  1,
		Parallelism: 1,
	}
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("wallet record")},
		{"seed", bytes.Repeat([]byte{0xAB}, SeedSize)},
		{"large", bytes.Repeat([]byte("x"), 1<<16)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := Encrypt(tt.data, []byte("pw"), fastParams())
			if err != nil {
				t.Fatalf("Encrypt() error: %v", err)
			}
			got, err := Decrypt(sealed, []byte("pw"))
			if err != nil {
				t.Fatalf("Decrypt() error: %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Error("roundtrip mismatch")
			}
		})
	}
}

func TestDecrypt_Failures(t *testing.T) {
	sealed, err := Encrypt([]byte("data"), []byte("pass"), fastParams())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Decrypt(sealed, []byte("wrong")); err == nil {
		t.Error("wrong password accepted")
	}
	if _, err := Decrypt([]byte("too short"), []byte("pass")); err == nil {
		t.Error("truncated data accepted")
	}

	corrupt := append([]byte(nil), sealed...)
	corrupt[len(corrupt)-1] ^= 0xFF
	if _, err := Decrypt(corrupt, []byte("pass")); err == nil {
		t.Error("corrupted tag accepted")
	}

	badParams := append([]byte(nil), sealed...)
	badParams[SaltSize+8] = 0
	if _, err := Decrypt(badParams, []byte("pass")); err == nil {
		t.Error("zero parallelism accepted")
	}
}

func TestEncrypt_RandomizedAndHeader(t *testing.T) {
	params := fastParams()
	a, _ := Encrypt([]byte("same"), []byte("pw"), params)
	b, _ := Encrypt([]byte("same"), []byte("pw"), params)
	if bytes.Equal(a, b) {
		t.Error("two encryptions produced identical output")
	}

	if got := binary.LittleEndian.Uint32(a[SaltSize:]); got != params.Memory {
		t.Errorf("header memory = %d, want %d", got, params.Memory)
	}
	if got := binary.LittleEndian.Uint32(a[SaltSize+4:]); got != params.Iterations {
		t.Errorf("header iterations = %d, want %d", got, params.Iterations)
	}
	if want := sealedMin + len("same"); len(a) != want {
		t.Errorf("sealed length = %d, want %d", len(a), want)
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	if p.Memory != 64*1024 || p.Iterations != 3 || p.Parallelism != 4 {
		t.Errorf("DefaultParams() = %+v", p)
	}
}
