// Package oracle converts USD amounts into native units.
package oracle

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	appErrors "github.com/unclebandit/fundraise-backend/internal/errors"
	"github.com/unclebandit/fundraise-backend/internal/model"
)

// PriceOracle converts a USD amount into native units.
type PriceOracle interface {
	ConvertUSDToNative(ctx context.Context, usd decimal.Decimal) (*uint256.Int, error)
}

// Convert computes floor(usd * 10^18 / price) where price is USD per native
// coin.
func Convert(usd, price decimal.Decimal) (*uint256.Int, error) {
	if !price.IsPositive() {
		return nil, appErrors.NewOracle("price must be positive", nil)
	}
	if usd.IsNegative() {
		return nil, appErrors.NewValidation("usd amount must not be negative")
	}
	q, _ := usd.Shift(model.NativeDecimals).QuoRem(price, 0)
	v, overflow := uint256.FromBig(q.BigInt())
	if overflow {
		return nil, appErrors.NewOracle("converted amount overflows 256 bits", nil)
	}
	return v, nil
}

// FixedPriceOracle converts at a constant price.
type FixedPriceOracle struct {
	Price decimal.Decimal
}

func NewFixedPriceOracle(price decimal.Decimal) *FixedPriceOracle {
	return &FixedPriceOracle{Price: price}
}

func (o *FixedPriceOracle) ConvertUSDToNative(ctx context.Context, usd decimal.Decimal) (*uint256.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, appErrors.NewOracle("conversion cancelled", err)
	}
	return Convert(usd, o.Price)
}

// Func adapts a plain function to PriceOracle.
type Func func(ctx context.Context, usd decimal.Decimal) (*uint256.Int, error)

func (f Func) ConvertUSDToNative(ctx context.Context, usd decimal.Decimal) (*uint256.Int, error) {
	return f(ctx, usd)
}
