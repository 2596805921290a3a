package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func testAddress() Address {
	var a Address
	a[0] = 0x02
	for i := 1; i < AddressSize; i++ {
		a[i] = byte(i)
	}
	return a
}

func TestAddress_String(t *testing.T) {
	old := activeHRP
	defer func() { activeHRP = old }()

	SetAddressHRP(MainnetHRP)
	if s := testAddress().String(); !strings.HasPrefix(s, "kgx1") {
		t.Errorf("String() = %s, want kgx1 prefix", s)
	}

	SetAddressHRP(TestnetHRP)
	if s := testAddress().String(); !strings.HasPrefix(s, "tkgx1") {
		t.Errorf("String() = %s, want tkgx1 prefix", s)
	}
}

func TestParseAddress_Roundtrip(t *testing.T) {
	a := testAddress()
	for _, s := range []string{a.String(), a.Hex(), strings.ToUpper(a.Hex())} {
		got, err := ParseAddress(s)
		if err != nil {
			t.Fatalf("ParseAddress(%q) error: %v", s, err)
		}
		if got != a {
			t.Errorf("ParseAddress(%q) = %x, want %x", s, got, a)
		}
	}
}

func TestParseAddress_Invalid(t *testing.T) {
	short, _ := Bech32Encode(MainnetHRP, make([]byte, 20))
	foreign, _ := Bech32Encode("btc", make([]byte, AddressSize))

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"garbage", "xyz"},
		{"wrong length", short},
		{"unknown prefix", foreign},
		{"short hex", strings.Repeat("ab", 20)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseAddress(tt.input); err == nil {
				t.Errorf("ParseAddress(%q) expected error", tt.input)
			}
		})
	}
}

func TestAddressFromPubKey(t *testing.T) {
	if _, err := AddressFromPubKey(make([]byte, 32)); err == nil {
		t.Error("expected error for 32-byte key")
	}
	a := testAddress()
	got, err := AddressFromPubKey(a.PublicKey())
	if err != nil {
		t.Fatalf("AddressFromPubKey: %v", err)
	}
	if got != a {
		t.Error("AddressFromPubKey did not preserve bytes")
	}
}

func TestAddress_JSON(t *testing.T) {
	a := testAddress()
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Address
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != a {
		t.Errorf("JSON roundtrip = %x, want %x", got, a)
	}
}
