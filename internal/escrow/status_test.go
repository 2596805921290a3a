package escrow

import (
	"errors"
	"testing"
)

func TestTransition(t *testing.T) {
	all := []Status{Created, Filled, Settled, Returned}
	allowed := map[[2]Status]bool{
		{Created, Filled}:   true,
		{Created, Returned}: true,
		{Filled, Settled}:   true,
		{Filled, Returned}:  true,
	}
	for _, from := range all {
		for _, to := range all {
			err := Transition(from, to)
			if allowed[[2]Status{from, to}] {
				if err != nil {
					t.Errorf("Transition(%s, %s) = %v, want nil", from, to, err)
				}
				continue
			}
			if !errors.Is(err, ErrEscrowState) {
				t.Errorf("Transition(%s, %s) = %v, want ErrEscrowState", from, to, err)
			}
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	tests := map[Status]bool{Created: false, Filled: false, Settled: true, Returned: true}
	for s, want := range tests {
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus(" filled "); err != nil || s != Filled {
		t.Errorf("ParseStatus(filled) = %q, %v", s, err)
	}
	if _, err := ParseStatus("LOST"); err == nil {
		t.Error("ParseStatus accepted an unknown status")
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+4915112345678", "+4915112345678", false},
		{" +1 (555) 000-1111 ", "+15550001111", false},
		{"+44.20.7946.0000", "+442079460000", false},
		{"015112345678", "", true},
		{"+12", "", true},
		{"+1555abc", "", true},
		{"1+5550001111", "", true},
		{"+1234567890123456", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NormalizePhone(%q) = %q, want error", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
		}
	}
}
