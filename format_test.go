package x402

import (
	"errors"
	"math/big"
	"testing"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   *big.Int
		decimals int
		want     string
	}{
		{"whole token", big.NewInt(100000000), 8, "1"},
		{"truncates to six digits", big.NewInt(123456789), 8, "1.234567"},
		{"trims trailing zeros", big.NewInt(150000000), 8, "1.5"},
		{"sub-unit amount", big.NewInt(10000), 8, "0.0001"},
		{"zero", big.NewInt(0), 8, "0"},
		{"nil treated as zero", nil, 8, "0"},
		{"no decimals", big.NewInt(42), 0, "42"},
		{"grouping", big.NewInt(1234500000000), 8, "12,345"},
		{"negative", big.NewInt(-150000000), 8, "-1.5"},
		{"truncated below visibility", big.NewInt(10), 8, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatAmount(tt.amount, tt.decimals); got != tt.want {
				t.Errorf("FormatAmount(%v, %d) = %q, want %q", tt.amount, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestAmountFormatMaxDigits(t *testing.T) {
	f := AmountFormat{Locale: DefaultAmountFormat.Locale, MaxDigits: 2}
	if got := f.Format(big.NewInt(123456789), 8); got != "1.23" {
		t.Errorf("Format() = %q, want %q", got, "1.23")
	}
}

func TestParseAtomic(t *testing.T) {
	v, err := ParseAtomic("100000000")
	if err != nil {
		t.Fatalf("ParseAtomic() error = %v", err)
	}
	if v.Cmp(big.NewInt(100000000)) != 0 {
		t.Errorf("ParseAtomic() = %v", v)
	}

	for _, s := range []string{"", "1.5", "-1", "abc", "0x10"} {
		if _, err := ParseAtomic(s); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ParseAtomic(%q) error = %v, want ErrInvalidAmount", s, err)
		}
	}
}

func TestDecimalToAtomic(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int
		want     int64
	}{
		{"1.5", 8, 150000000},
		{"1", 8, 100000000},
		{"0.1", 8, 10000000},
		{"0.00000001", 8, 1},
		{".5", 8, 50000000},
		{"0.100000000", 8, 10000000}, // trailing zeros beyond scale are fine
		{"0", 8, 0},
	}
	for _, tt := range tests {
		got, err := DecimalToAtomic(tt.amount, tt.decimals)
		if err != nil {
			t.Errorf("DecimalToAtomic(%q, %d) error = %v", tt.amount, tt.decimals, err)
			continue
		}
		if got.Cmp(big.NewInt(tt.want)) != 0 {
			t.Errorf("DecimalToAtomic(%q, %d) = %v, want %d", tt.amount, tt.decimals, got, tt.want)
		}
	}

	if _, err := DecimalToAtomic("0.000000001", 8); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("excess precision error = %v, want ErrInvalidAmount", err)
	}
	if _, err := DecimalToAtomic("not a number", 8); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("garbage error = %v, want ErrInvalidAmount", err)
	}
}
