// Package ledger owns open and closed positions and keeps them consistent
// with the venue. All mutations run under a single writer lock; reads serve
// copies.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
)

// PositionEventKind describes what a fill did to the book.
type PositionEventKind string

const (
	PositionEventOpened   PositionEventKind = "OPENED"
	PositionEventAdded    PositionEventKind = "ADDED"
	PositionEventReduced  PositionEventKind = "REDUCED"
	PositionEventClosed   PositionEventKind = "CLOSED"
	PositionEventReversed PositionEventKind = "REVERSED"
)

// PositionEvent reports the ledger's reaction to one fill.
type PositionEvent struct {
	Kind        PositionEventKind
	Position    domain.Position // snapshot after the fill
	RealizedPnL decimal.Decimal // realized by this fill, zero unless reducing
}

// PositionSink persists position rows. Implemented by storage.Store.
type PositionSink interface {
	SavePosition(ctx context.Context, p *domain.Position) error
}

// Ledger tracks exposure per symbol for one venue. Invariant: at most one
// open position per symbol.
type Ledger struct {
	mu     sync.RWMutex
	venue  string
	open   map[string]*domain.Position
	halted map[string]bool

	dailyRealized decimal.Decimal
	wins, losses  int

	sink PositionSink
	log  *zap.Logger
}

// New creates an empty ledger for the venue.
func New(venueName string, sink PositionSink, log *zap.Logger) *Ledger {
	return &Ledger{
		venue:         venueName,
		open:          make(map[string]*domain.Position),
		halted:        make(map[string]bool),
		dailyRealized: decimal.Zero,
		sink:          sink,
		log:           log,
	}
}

// Restore re-indexes a position loaded from the store at startup.
func (l *Ledger) Restore(p *domain.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p.IsOpen() {
		l.open[p.Symbol] = p
	}
}

// ApplyFill applies one confirmed fill. Opening and adding average the
// entry price by volume; reducing realizes P&L on the reduced quantity; a
// fill larger than the open quantity closes it and reverses into a new
// position at the fill price.
func (l *Ledger) ApplyFill(ctx context.Context, symbol string, side domain.Side, price, qty decimal.Decimal) (PositionEvent, error) {
	if !qty.IsPositive() || !price.IsPositive() {
		return PositionEvent{}, fmt.Errorf("invalid fill for %s: price=%s qty=%s", symbol, price, qty)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.open[symbol]
	if !ok {
		return l.openLocked(ctx, symbol, fillDirection(side), qty, price)
	}

	if fillDirection(side) == pos.Side {
		return l.addLocked(ctx, pos, qty, price)
	}
	return l.reduceLocked(ctx, pos, qty, price)
}

func fillDirection(side domain.Side) domain.PositionSide {
	if side == domain.SideBuy {
		return domain.PositionLong
	}
	return domain.PositionShort
}

func (l *Ledger) openLocked(ctx context.Context, symbol string, side domain.PositionSide, qty, price decimal.Decimal) (PositionEvent, error) {
	pos := domain.NewPosition(symbol, l.venue, side, qty, price)
	if err := l.sink.SavePosition(ctx, pos); err != nil {
		return PositionEvent{}, fmt.Errorf("failed to persist opened position: %w", err)
	}
	l.open[symbol] = pos
	l.log.Info("position opened",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("qty", qty.String()),
		zap.String("entry", price.String()))
	return PositionEvent{Kind: PositionEventOpened, Position: *pos, RealizedPnL: decimal.Zero}, nil
}

func (l *Ledger) addLocked(ctx context.Context, pos *domain.Position, qty, price decimal.Decimal) (PositionEvent, error) {
	prev := *pos

	// Volume-weighted average entry across the old and new quantity.
	oldNotional := pos.EntryPrice.Mul(pos.Quantity)
	newNotional := price.Mul(qty)
	total := pos.Quantity.Add(qty)
	pos.EntryPrice = oldNotional.Add(newNotional).Div(total)
	pos.Quantity = total
	pos.MarkPrice = price
	pos.UpdatedAt = time.Now().UTC()

	if err := l.sink.SavePosition(ctx, pos); err != nil {
		*pos = prev
		return PositionEvent{}, fmt.Errorf("failed to persist added position: %w", err)
	}
	return PositionEvent{Kind: PositionEventAdded, Position: *pos, RealizedPnL: decimal.Zero}, nil
}

func (l *Ledger) reduceLocked(ctx context.Context, pos *domain.Position, qty, price decimal.Decimal) (PositionEvent, error) {
	prev := *pos

	reduced := decimal.Min(qty, pos.Quantity)
	realized := price.Sub(pos.EntryPrice).Mul(reduced)
	if pos.Side == domain.PositionShort {
		realized = realized.Neg()
	}

	excess := qty.Sub(pos.Quantity)

	pos.Quantity = pos.Quantity.Sub(reduced)
	pos.RealizedPnL = pos.RealizedPnL.Add(realized)
	pos.MarkPrice = price
	pos.UpdatedAt = time.Now().UTC()

	kind := PositionEventReduced
	if pos.Quantity.IsZero() {
		pos.Close(price)
		kind = PositionEventClosed
	}

	if err := l.sink.SavePosition(ctx, pos); err != nil {
		*pos = prev
		return PositionEvent{}, fmt.Errorf("failed to persist reduced position: %w", err)
	}

	l.dailyRealized = l.dailyRealized.Add(realized)
	if realized.IsPositive() {
		l.wins++
	} else if realized.IsNegative() {
		l.losses++
	}

	if kind == PositionEventClosed {
		delete(l.open, pos.Symbol)
		l.log.Info("position closed",
			zap.String("symbol", pos.Symbol),
			zap.String("realized_pnl", realized.String()))

		if excess.IsPositive() {
			// The fill overshot the open quantity: reverse into a new
			// position on the opposite side at the fill price.
			ev, err := l.openLocked(ctx, pos.Symbol, opposite(prev.Side), excess, price)
			if err != nil {
				return PositionEvent{}, err
			}
			ev.Kind = PositionEventReversed
			ev.RealizedPnL = realized
			return ev, nil
		}
		return PositionEvent{Kind: kind, Position: *pos, RealizedPnL: realized}, nil
	}

	return PositionEvent{Kind: kind, Position: *pos, RealizedPnL: realized}, nil
}

func opposite(side domain.PositionSide) domain.PositionSide {
	if side == domain.PositionLong {
		return domain.PositionShort
	}
	return domain.PositionLong
}

// SetProtectiveLevels attaches stop-loss/take-profit to the open position.
func (l *Ledger) SetProtectiveLevels(ctx context.Context, symbol string, stopLoss, takeProfit decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.open[symbol]
	if !ok {
		return fmt.Errorf("no open position for %s", symbol)
	}
	pos.StopLoss = stopLoss
	pos.TakeProfit = takeProfit
	pos.UpdatedAt = time.Now().UTC()
	return l.sink.SavePosition(ctx, pos)
}

// UpdateMark refreshes the mark price of an open position, if any.
func (l *Ledger) UpdateMark(symbol string, price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pos, ok := l.open[symbol]; ok {
		pos.UpdateMark(price)
	}
}

// Position returns a copy of the open position for the symbol.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.open[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// OpenPositions returns copies of every open position.
func (l *Ledger) OpenPositions() []*domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.Position, 0, len(l.open))
	for _, pos := range l.open {
		cp := *pos
		out = append(out, &cp)
	}
	return out
}

// TotalExposure returns the summed notional of open positions.
func (l *Ledger) TotalExposure() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := decimal.Zero
	for _, pos := range l.open {
		total = total.Add(pos.Notional())
	}
	return total
}

// DailyRealizedPnL returns P&L realized since the session started.
func (l *Ledger) DailyRealizedPnL() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dailyRealized
}

// Stats returns the session's win/loss counts.
func (l *Ledger) Stats() (wins, losses int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.wins, l.losses
}

// HaltSymbol pauses trading for a symbol after a consistency failure.
func (l *Ledger) HaltSymbol(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.halted[symbol] = true
}

// ResumeSymbol lifts a halt. Operator action only.
func (l *Ledger) ResumeSymbol(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.halted, symbol)
}

// IsHalted reports whether trading for the symbol is paused.
func (l *Ledger) IsHalted(symbol string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.halted[symbol]
}
