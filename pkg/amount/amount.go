// Package amount handles ledger amounts in raw base units and their
// conversion to display units. All arithmetic is integer or exact rational;
// binary floating point is never used.
package amount

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Unit precision.
const (
	// UnitDecimals is the number of raw decimal places in one display unit.
	UnitDecimals = 30
	// DisplayDecimals caps the fractional digits shown for balances.
	DisplayDecimals = 6
	// QuoteDecimals caps the fractional digits shown for converted quotes.
	QuoteDecimals = 2
)

var (
	// ErrOverflow is returned when a result does not fit in 256 bits.
	ErrOverflow = errors.New("amount overflow")
	// ErrUnderflow is returned when a subtraction would go negative.
	ErrUnderflow = errors.New("amount underflow")

	unitScale = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(UnitDecimals))
)

// Raw is an amount in base units. The zero value is zero.
type Raw struct {
	v uint256.Int
}

// NewRaw returns a Raw holding n base units.
func NewRaw(n uint64) Raw {
	var r Raw
	r.v.SetUint64(n)
	return r
}

// ParseRaw parses a base-10 integer string of base units.
func ParseRaw(s string) (Raw, error) {
	var r Raw
	if s == "" {
		return r, fmt.Errorf("empty amount")
	}
	if err := r.v.SetFromDecimal(s); err != nil {
		return Raw{}, fmt.Errorf("invalid raw amount %q: %w", s, err)
	}
	return r, nil
}

// MustParseRaw is ParseRaw for constants; it panics on error.
func MustParseRaw(s string) Raw {
	r, err := ParseRaw(s)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the base-10 representation in base units.
func (r Raw) String() string {
	return r.v.Dec()
}

// IsZero reports whether the amount is zero.
func (r Raw) IsZero() bool {
	return r.v.IsZero()
}

// Cmp compares r and o and returns -1, 0 or +1.
func (r Raw) Cmp(o Raw) int {
	return r.v.Cmp(&o.v)
}

// Add returns r + o.
func (r Raw) Add(o Raw) (Raw, error) {
	var out Raw
	if _, overflow := out.v.AddOverflow(&r.v, &o.v); overflow {
		return Raw{}, ErrOverflow
	}
	return out, nil
}

// Sub returns r - o, or ErrUnderflow if o > r.
func (r Raw) Sub(o Raw) (Raw, error) {
	var out Raw
	if _, underflow := out.v.SubOverflow(&r.v, &o.v); underflow {
		return Raw{}, ErrUnderflow
	}
	return out, nil
}

// Bytes32 returns the big-endian 32-byte encoding used in block hashing.
func (r Raw) Bytes32() [32]byte {
	return r.v.Bytes32()
}

// MarshalJSON encodes the amount as a decimal string.
func (r Raw) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a decimal string; an empty string is zero.
func (r *Raw) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*r = Raw{}
		return nil
	}
	parsed, err := ParseRaw(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// FormatDisplay renders r in display units, truncated to decimals fractional
// digits with trailing zeros removed ("1.5", "0.001", "12").
func FormatDisplay(r Raw, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	if decimals > UnitDecimals {
		decimals = UnitDecimals
	}
	var whole, frac uint256.Int
	whole.Div(&r.v, unitScale)
	frac.Mod(&r.v, unitScale)

	fracStr := frac.Dec()
	fracStr = strings.Repeat("0", UnitDecimals-len(fracStr)) + fracStr
	fracStr = strings.TrimRight(fracStr[:decimals], "0")
	if fracStr == "" {
		return whole.Dec()
	}
	return whole.Dec() + "." + fracStr
}

// ParseDisplay converts a display-unit decimal string to raw base units.
func ParseDisplay(s string) (Raw, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Raw{}, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return Raw{}, fmt.Errorf("negative amount")
	}

	wholeStr, fracStr, _ := strings.Cut(s, ".")
	if wholeStr == "" && fracStr == "" {
		return Raw{}, fmt.Errorf("invalid amount %q", s)
	}
	if wholeStr == "" {
		wholeStr = "0"
	}
	if len(fracStr) > UnitDecimals {
		return Raw{}, fmt.Errorf("too many decimal places (max %d)", UnitDecimals)
	}
	if !isDigits(wholeStr) || (fracStr != "" && !isDigits(fracStr)) {
		return Raw{}, fmt.Errorf("invalid amount %q", s)
	}

	fracStr += strings.Repeat("0", UnitDecimals-len(fracStr))
	whole, overflow := uint256.FromBig(decimalBig(wholeStr))
	if overflow {
		return Raw{}, ErrOverflow
	}
	frac, _ := uint256.FromBig(decimalBig(fracStr))

	var out Raw
	if _, overflow := out.v.MulOverflow(whole, unitScale); overflow {
		return Raw{}, ErrOverflow
	}
	if _, overflow := out.v.AddOverflow(&out.v, frac); overflow {
		return Raw{}, ErrOverflow
	}
	return out, nil
}

// FormatQuote converts r to a quoted currency at price (quote units per
// display unit, as an exact decimal string such as "0.8731") and renders it
// rounded to QuoteDecimals fractional digits.
func FormatQuote(r Raw, price string) (string, error) {
	return FormatQuoteDecimals(r, price, QuoteDecimals)
}

// FormatQuoteDecimals is FormatQuote with an explicit rounding precision.
func FormatQuoteDecimals(r Raw, price string, decimals int) (string, error) {
	if decimals < 0 {
		decimals = 0
	}
	p, ok := new(big.Rat).SetString(strings.TrimSpace(price))
	if !ok {
		return "", fmt.Errorf("invalid price %q", price)
	}
	if p.Sign() < 0 {
		return "", fmt.Errorf("negative price %q", price)
	}
	value := new(big.Rat).SetFrac(r.v.ToBig(), unitScale.ToBig())
	value.Mul(value, p)
	return value.FloatString(decimals), nil
}

// decimalBig parses a string already checked by isDigits.
func decimalBig(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

func isDigits(s string) bool {
	return s != "" && strings.IndexFunc(s, func(c rune) bool { return c < '0' || c > '9' }) < 0
}
