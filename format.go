package x402

import (
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// AmountFormat controls presentation of atomic amounts. Formatting is purely
// presentational and never part of the signed protocol; the locale is passed
// explicitly rather than read from ambient state.
type AmountFormat struct {
	// Locale selects digit grouping for the integer part.
	Locale language.Tag

	// MaxDigits caps the number of fractional digits. Excess digits are
	// truncated, never rounded.
	MaxDigits int
}

// DefaultAmountFormat truncates to 6 fractional digits with English
// grouping.
var DefaultAmountFormat = AmountFormat{Locale: language.English, MaxDigits: 6}

// FormatAmount renders an atomic amount using DefaultAmountFormat.
// FormatAmount(big.NewInt(123456789), 8) == "1.234567".
func FormatAmount(amount *big.Int, decimals int) string {
	return DefaultAmountFormat.Format(amount, decimals)
}

// Format renders an atomic amount scaled by decimals as a decimal string.
// The fractional part is truncated to MaxDigits and trailing zeros are
// trimmed; the integer part is grouped per the configured locale.
func (f AmountFormat) Format(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}

	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	intPart, fracPart := new(big.Int).QuoRem(abs, scale, new(big.Int))

	out := f.groupInt(intPart)

	if decimals > 0 && f.MaxDigits > 0 {
		frac := fracPart.String()
		if pad := decimals - len(frac); pad > 0 {
			frac = strings.Repeat("0", pad) + frac
		}
		if len(frac) > f.MaxDigits {
			frac = frac[:f.MaxDigits]
		}
		frac = strings.TrimRight(frac, "0")
		if frac != "" {
			out += "." + frac
		}
	}

	if neg && out != "0" {
		out = "-" + out
	}
	return out
}

// groupInt renders the integer part with locale digit grouping. Values that
// do not fit an int64 are rendered ungrouped rather than losing precision.
func (f AmountFormat) groupInt(n *big.Int) string {
	if n.IsInt64() {
		return message.NewPrinter(f.Locale).Sprintf("%d", n.Int64())
	}
	return n.String()
}

// ParseAtomic parses a base-10 atomic integer amount string, the form used
// throughout the protocol for monetary values.
func ParseAtomic(amount string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return v, nil
}

// DecimalToAtomic converts a human decimal amount string to atomic units.
// "1.5" with 8 decimals becomes 150000000. Fails if the value carries more
// precision than decimals allows. The conversion is exact decimal string
// arithmetic; it never goes through binary floating point.
func DecimalToAtomic(amount string, decimals int) (*big.Int, error) {
	intPart, fracPart, _ := strings.Cut(amount, ".")
	if intPart == "" && fracPart == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > decimals {
		if strings.TrimRight(fracPart[decimals:], "0") != "" {
			return nil, fmt.Errorf("%w: %q exceeds %d decimals", ErrInvalidAmount, amount, decimals)
		}
		fracPart = fracPart[:decimals]
	}
	fracPart += strings.Repeat("0", decimals-len(fracPart))

	v, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return v, nil
}
