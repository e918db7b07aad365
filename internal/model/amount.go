package model

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// NativeDecimals is the number of decimals of the native unit (wei per ether).
const NativeDecimals = 18

// Ether returns n * 10^18 as a native amount.
func Ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

// ParseAmount parses a base-10 native amount.
func ParseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// ToEther renders a native amount in ether units.
func ToEther(v *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.ToBig(), -NativeDecimals)
}

// FormatEther renders a native amount as an ether string with trailing zeros
// removed, e.g. "0.99".
func FormatEther(v *uint256.Int) string {
	return ToEther(v).String()
}
