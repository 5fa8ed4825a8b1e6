// Package precision normalizes prices and quantities to a venue's declared
// tick and lot steps. All math is decimal; float64 never appears in the
// rounding path.
package precision

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Market describes the precision rules a venue declares for a symbol.
type Market struct {
	Symbol      string
	PriceStep   decimal.Decimal // tick size
	SizeStep    decimal.Decimal // lot size
	MinNotional decimal.Decimal
}

// RoundToStep rounds v to the nearest multiple of step. A zero step returns
// v unchanged.
func RoundToStep(v, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	return v.Div(step).Round(0).Mul(step)
}

// FloorToStep rounds v down to a multiple of step. Used for quantities so a
// rounded order never exceeds the requested size.
func FloorToStep(v, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// Deviation returns the relative drift |normalized−requested| / requested.
// A zero requested value yields zero drift only if normalized is also zero.
func Deviation(requested, normalized decimal.Decimal) decimal.Decimal {
	if requested.IsZero() {
		if normalized.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(1)
	}
	return normalized.Sub(requested).Abs().Div(requested)
}

// Normalize rounds price to the tick and floors quantity to the lot for the
// given market, rejecting results that drift beyond tolerance or fall under
// the minimum notional. Market orders pass a zero price through untouched.
func Normalize(m Market, price, qty, tolerance decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	normPrice := price
	if !price.IsZero() {
		normPrice = RoundToStep(price, m.PriceStep)
		if drift := Deviation(price, normPrice); drift.GreaterThan(tolerance) {
			return decimal.Zero, decimal.Zero, fmt.Errorf("price %s rounds to %s, drift %s exceeds tolerance %s",
				price, normPrice, drift, tolerance)
		}
	}

	normQty := FloorToStep(qty, m.SizeStep)
	if normQty.IsZero() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("quantity %s is below lot size %s", qty, m.SizeStep)
	}
	if drift := Deviation(qty, normQty); drift.GreaterThan(tolerance) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("quantity %s floors to %s, drift %s exceeds tolerance %s",
			qty, normQty, drift, tolerance)
	}

	if !m.MinNotional.IsZero() && !normPrice.IsZero() {
		if notional := normPrice.Mul(normQty); notional.LessThan(m.MinNotional) {
			return decimal.Zero, decimal.Zero, fmt.Errorf("notional %s below venue minimum %s", notional, m.MinNotional)
		}
	}

	return normPrice, normQty, nil
}
