package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionSide is the exposure direction.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// PositionStatus marks a position as live or archived.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Position tracks open exposure in a single symbol. At most one open
// position may exist per (symbol, venue); the ledger enforces this.
// EntryPrice is the quantity-weighted average across all opening fills.
type Position struct {
	ID     string
	Symbol string
	Venue  string
	Side   PositionSide

	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	MarkPrice  decimal.Decimal

	RealizedPnL decimal.Decimal
	StopLoss    decimal.Decimal
	TakeProfit  decimal.Decimal

	Status    PositionStatus
	OpenedAt  time.Time
	ClosedAt  time.Time
	UpdatedAt time.Time
}

// NewPosition opens a position with entry price equal to the first fill.
func NewPosition(symbol, venue string, side PositionSide, qty, entryPrice decimal.Decimal) *Position {
	now := time.Now().UTC()
	return &Position{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Venue:       venue,
		Side:        side,
		Quantity:    qty,
		EntryPrice:  entryPrice,
		MarkPrice:   entryPrice,
		RealizedPnL: decimal.Zero,
		Status:      PositionOpen,
		OpenedAt:    now,
		UpdatedAt:   now,
	}
}

// IsOpen reports whether the position still carries exposure.
func (p *Position) IsOpen() bool { return p.Status == PositionOpen }

// Notional returns mark price × quantity.
func (p *Position) Notional() decimal.Decimal {
	return p.MarkPrice.Mul(p.Quantity)
}

// UnrealizedPnL is derived from mark vs entry; it is never stored.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	return p.PnLAt(p.MarkPrice)
}

// PnLAt computes the P&L of the open quantity at the given price.
func (p *Position) PnLAt(price decimal.Decimal) decimal.Decimal {
	if p.Side == PositionLong {
		return price.Sub(p.EntryPrice).Mul(p.Quantity)
	}
	return p.EntryPrice.Sub(price).Mul(p.Quantity)
}

// PnLPercent returns unrealized P&L as a percentage of the entered notional.
func (p *Position) PnLPercent() decimal.Decimal {
	invested := p.EntryPrice.Mul(p.Quantity)
	if invested.IsZero() {
		return decimal.Zero
	}
	return p.UnrealizedPnL().Div(invested).Mul(decimal.NewFromInt(100))
}

// UpdateMark refreshes the mark price.
func (p *Position) UpdateMark(price decimal.Decimal) {
	p.MarkPrice = price
	p.UpdatedAt = time.Now().UTC()
}

// IsStopLossHit reports whether the price has crossed the stop-loss level.
func (p *Position) IsStopLossHit(price decimal.Decimal) bool {
	if p.StopLoss.IsZero() {
		return false
	}
	if p.Side == PositionLong {
		return price.LessThanOrEqual(p.StopLoss)
	}
	return price.GreaterThanOrEqual(p.StopLoss)
}

// IsTakeProfitHit reports whether the price has crossed the take-profit level.
func (p *Position) IsTakeProfitHit(price decimal.Decimal) bool {
	if p.TakeProfit.IsZero() {
		return false
	}
	if p.Side == PositionLong {
		return price.GreaterThanOrEqual(p.TakeProfit)
	}
	return price.LessThanOrEqual(p.TakeProfit)
}

// Close marks the position closed at the given price. Closed positions are
// immutable; callers must realize P&L before closing.
func (p *Position) Close(closePrice decimal.Decimal) {
	now := time.Now().UTC()
	p.Status = PositionClosed
	p.MarkPrice = closePrice
	p.Quantity = decimal.Zero
	p.ClosedAt = now
	p.UpdatedAt = now
}
