package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestHash_IsZero(t *testing.T) {
	var zero Hash
	if !zero.IsZero() {
		t.Error("zero-value Hash should be zero")
	}
	if (Hash{0x01}).IsZero() {
		t.Error("non-zero Hash should not be zero")
	}
}

func TestHash_String(t *testing.T) {
	h := Hash{0xab}
	h[31] = 0xcd
	s := h.String()
	if len(s) != 64 {
		t.Fatalf("String() length = %d, want 64", len(s))
	}
	if !strings.HasPrefix(s, "AB") || !strings.HasSuffix(s, "CD") {
		t.Errorf("String() = %s, want upper-case hex", s)
	}
}

func TestHash_Bytes_IsCopy(t *testing.T) {
	h := Hash{0x01, 0x02}
	b := h.Bytes()
	b[0] = 0xFF
	if h[0] == 0xFF {
		t.Error("Bytes() should return a copy")
	}
}

func TestHexToHash(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"lower", "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", false},
		{"upper", "AF1349B9F5F9A1A6A0404DEA36DCC9499BCB25C9ADC112B7CC9A93CAE41F3262", false},
		{"too short", "abcd", true},
		{"too long", strings.Repeat("a", 66), true},
		{"not hex", strings.Repeat("z", 64), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := HexToHash(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("HexToHash(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestHash_JSON(t *testing.T) {
	h := Hash{0x10, 0x20}
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Hash
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != h {
		t.Errorf("got %s, want %s", got, h)
	}

	var empty Hash
	if err := json.Unmarshal([]byte(`""`), &empty); err != nil || !empty.IsZero() {
		t.Errorf("empty string should decode to zero hash, err=%v", err)
	}
}
