package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Directory resolves phone numbers to registered wallet addresses.
type Directory interface {
	// Lookup returns the address registered for phone, or ok=false when
	// the number has no wallet.
	Lookup(ctx context.Context, phone string) (addr types.Address, ok bool, err error)
}

// NormalizePhone strips formatting from an E.164 number. The result is a
// '+' followed by 6 to 15 digits.
func NormalizePhone(phone string) (string, error) {
	var sb strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r == '+' && i == 0:
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", fmt.Errorf("invalid character %q in phone number", r)
		}
	}
	out := sb.String()
	if !strings.HasPrefix(out, "+") || len(out) < 7 || len(out) > 16 {
		return "", fmt.Errorf("phone number %q is not in international format", phone)
	}
	return out, nil
}

// ContactBook is an in-memory Directory.
type ContactBook struct {
	mu       sync.RWMutex
	contacts map[string]types.Address
}

// NewContactBook returns an empty contact book.
func NewContactBook() *ContactBook {
	return &ContactBook{contacts: make(map[string]types.Address)}
}

// LoadContactBook reads a JSON object mapping phone numbers to addresses.
func LoadContactBook(path string) (*ContactBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contacts: %w", err)
	}
	var raw map[string]types.Address
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse contacts: %w", err)
	}
	book := NewContactBook()
	for phone, addr := range raw {
		if err := book.Add(phone, addr); err != nil {
			return nil, err
		}
	}
	return book, nil
}

// Add registers addr for phone.
func (b *ContactBook) Add(phone string, addr types.Address) error {
	norm, err := NormalizePhone(phone)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.contacts[norm] = addr
	b.mu.Unlock()
	return nil
}

// Lookup implements Directory.
func (b *ContactBook) Lookup(_ context.Context, phone string) (types.Address, bool, error) {
	norm, err := NormalizePhone(phone)
	if err != nil {
		return types.Address{}, false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	addr, ok := b.contacts[norm]
	return addr, ok, nil
}
