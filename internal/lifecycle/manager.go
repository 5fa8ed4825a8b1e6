// Package lifecycle owns the canonical in-memory state of every order and
// applies venue notifications as forward-only state transitions. Every
// transition is persisted before any downstream consumer hears about it.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/venue"
)

// Fill is the incremental fill delta handed to the position ledger.
type Fill struct {
	OrderID   string
	Symbol    string
	Side      domain.Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal // incremental, not cumulative
	Timestamp time.Time
}

// EventSink persists order transitions. Implemented by storage.Store.
type EventSink interface {
	AppendOrderEvent(ctx context.Context, o *domain.Order) error
}

// Manager tracks orders keyed by internal id with a venue-id index. Venue
// updates may arrive before the submission ack returns; updates for a venue
// id we have not indexed yet are buffered and replayed on acknowledgment.
type Manager struct {
	mu        sync.RWMutex
	byID      map[string]*domain.Order
	byVenueID map[string]string // venue order id -> internal id
	early     map[string][]venue.OrderUpdate

	sink   EventSink
	log    *zap.Logger
	onFill func(ctx context.Context, f Fill)
}

// NewManager creates an empty manager.
func NewManager(sink EventSink, log *zap.Logger) *Manager {
	return &Manager{
		byID:      make(map[string]*domain.Order),
		byVenueID: make(map[string]string),
		early:     make(map[string][]venue.OrderUpdate),
		sink:      sink,
		log:       log,
	}
}

// OnFill registers the fill consumer (the position ledger). Must be set
// before updates flow.
func (m *Manager) OnFill(fn func(ctx context.Context, f Fill)) { m.onFill = fn }

// Register persists and indexes a freshly created PENDING order.
func (m *Manager) Register(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[o.ID]; ok {
		return fmt.Errorf("order %s already registered", o.ID)
	}
	if err := m.sink.AppendOrderEvent(ctx, o); err != nil {
		return fmt.Errorf("failed to persist order %s: %w", o.ID, err)
	}
	m.byID[o.ID] = o
	return nil
}

// Restore re-indexes an order loaded from the store at startup. No event is
// appended.
func (m *Manager) Restore(o *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byID[o.ID] = o
	if o.VenueOrderID != "" {
		m.byVenueID[o.VenueOrderID] = o.ID
	}
}

// Acknowledge records the venue-assigned id after a successful submission
// and moves PENDING→OPEN, then replays any updates that raced ahead of the
// ack.
func (m *Manager) Acknowledge(ctx context.Context, orderID, venueOrderID string) error {
	m.mu.Lock()
	o, ok := m.byID[orderID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("order %s not registered", orderID)
	}
	o.VenueOrderID = venueOrderID
	m.byVenueID[venueOrderID] = orderID

	var err error
	if o.Status == domain.StatusPending {
		err = m.transitionLocked(ctx, o, domain.StatusOpen, o.FilledQty, o.AvgFillPrice, time.Now().UTC())
	}
	buffered := m.early[venueOrderID]
	delete(m.early, venueOrderID)
	m.mu.Unlock()

	if err != nil {
		return err
	}
	for _, u := range buffered {
		m.ApplyUpdate(ctx, u)
	}
	return nil
}

// ApplyUpdate applies a venue order notification. Unknown venue ids are
// buffered; stale, duplicate and illegal updates are logged and dropped to
// guard against the venue's at-least-once delivery.
func (m *Manager) ApplyUpdate(ctx context.Context, u venue.OrderUpdate) {
	m.mu.Lock()

	id, ok := m.byVenueID[u.VenueOrderID]
	if !ok {
		// The ack for this order has not landed yet.
		m.early[u.VenueOrderID] = append(m.early[u.VenueOrderID], u)
		m.mu.Unlock()
		m.log.Debug("buffered update for unacknowledged order",
			zap.String("venue_order_id", u.VenueOrderID))
		return
	}
	o := m.byID[id]

	if o.Status.IsTerminal() {
		m.mu.Unlock()
		m.log.Warn("dropping update for terminal order",
			zap.String("order_id", o.ID),
			zap.String("status", string(o.Status)),
			zap.String("update_status", string(u.Status)))
		return
	}
	if u.CumFilledQty.LessThan(o.FilledQty) {
		m.mu.Unlock()
		m.log.Warn("dropping stale fill update",
			zap.String("order_id", o.ID),
			zap.String("have", o.FilledQty.String()),
			zap.String("got", u.CumFilledQty.String()))
		return
	}
	if u.CumFilledQty.GreaterThan(o.Quantity) {
		m.mu.Unlock()
		m.log.Error("dropping overfill update",
			zap.String("order_id", o.ID),
			zap.String("requested", o.Quantity.String()),
			zap.String("cum_filled", u.CumFilledQty.String()))
		return
	}
	if !domain.CanTransition(o.Status, u.Status) {
		m.mu.Unlock()
		m.log.Warn("dropping illegal transition",
			zap.String("order_id", o.ID),
			zap.String("from", string(o.Status)),
			zap.String("to", string(u.Status)))
		return
	}

	prevFilled := o.FilledQty
	prevAvg := o.AvgFillPrice

	if err := m.transitionLocked(ctx, o, u.Status, u.CumFilledQty, u.AvgFillPrice, u.Timestamp); err != nil {
		m.mu.Unlock()
		m.log.Error("failed to persist transition; update not applied",
			zap.String("order_id", o.ID), zap.Error(err))
		return
	}

	fill, hasFill := fillDelta(o, prevFilled, prevAvg, u)
	onFill := m.onFill
	m.mu.Unlock()

	if hasFill && onFill != nil {
		onFill(ctx, fill)
	}
}

// transitionLocked mutates and persists atomically under the manager lock.
// The in-memory mutation is rolled back if persistence fails, so the store
// never lags the canonical state.
func (m *Manager) transitionLocked(ctx context.Context, o *domain.Order, to domain.OrderStatus, cumFilled, avgPrice decimal.Decimal, ts time.Time) error {
	prev := *o

	o.Status = to
	o.FilledQty = cumFilled
	if !avgPrice.IsZero() {
		o.AvgFillPrice = avgPrice
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	o.UpdatedAt = ts
	if to.IsTerminal() {
		o.FinishedAt = ts
	}

	if err := m.sink.AppendOrderEvent(ctx, o); err != nil {
		*o = prev
		return err
	}
	return nil
}

// fillDelta converts a cumulative update into the incremental fill the
// ledger consumes, deriving the delta's price from the average-price change.
func fillDelta(o *domain.Order, prevFilled, prevAvg decimal.Decimal, u venue.OrderUpdate) (Fill, bool) {
	delta := u.CumFilledQty.Sub(prevFilled)
	if !delta.IsPositive() {
		return Fill{}, false
	}

	price := u.AvgFillPrice
	if !prevFilled.IsZero() && !u.AvgFillPrice.IsZero() {
		// cumAvg*cum − prevAvg*prev gives the delta's notional.
		deltaNotional := u.AvgFillPrice.Mul(u.CumFilledQty).Sub(prevAvg.Mul(prevFilled))
		price = deltaNotional.Div(delta)
	}

	ts := u.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Fill{
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Price:     price,
		Quantity:  delta,
		Timestamp: ts,
	}, true
}

// MarkRejected moves a not-yet-acknowledged order to REJECTED after a
// failed or refused submission.
func (m *Manager) MarkRejected(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byID[orderID]
	if !ok {
		return fmt.Errorf("order %s not registered", orderID)
	}
	if !domain.CanTransition(o.Status, domain.StatusRejected) {
		return fmt.Errorf("cannot reject order %s in status %s", orderID, o.Status)
	}
	return m.transitionLocked(ctx, o, domain.StatusRejected, o.FilledQty, o.AvgFillPrice, time.Now().UTC())
}

// Order returns a copy of the order by internal id.
func (m *Manager) Order(id string) (domain.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.byID[id]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// OpenOrders returns copies of live orders, optionally filtered by symbol.
func (m *Manager) OpenOrders(symbol string) []*domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Order
	for _, o := range m.byID {
		if !o.IsOpen() {
			continue
		}
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out
}
