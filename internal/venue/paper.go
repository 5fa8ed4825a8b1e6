package venue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
	"github.com/MiguelPaez2108/Trading-Bot-Project/pkg/precision"
)

// PaperVenue simulates a venue with virtual balances, configurable fee and
// slippage. Market orders fill immediately at the current price; limit
// orders rest until Fill is called. Used for paper-trading mode and tests.
type PaperVenue struct {
	mu  sync.Mutex
	log *zap.Logger

	balances map[string]Balance
	markets  map[string]precision.Market
	prices   map[string]decimal.Decimal

	orders     map[string]*paperOrder // keyed by venue order id
	byClientID map[string]string

	positions map[string]*PositionSnapshot

	subs []func(OrderUpdate)

	fee      decimal.Decimal // taker fee fraction
	slippage decimal.Decimal // market-order slippage fraction
	seq      int64
}

type paperOrder struct {
	venueID  string
	clientID string
	symbol   string
	side     domain.Side
	typ      domain.OrderType
	price    decimal.Decimal
	qty      decimal.Decimal
	filled   decimal.Decimal
	avg      decimal.Decimal
	status   domain.OrderStatus
}

// NewPaperVenue creates an empty simulated venue.
func NewPaperVenue(fee, slippage decimal.Decimal, log *zap.Logger) *PaperVenue {
	return &PaperVenue{
		log:        log,
		balances:   make(map[string]Balance),
		markets:    make(map[string]precision.Market),
		prices:     make(map[string]decimal.Decimal),
		orders:     make(map[string]*paperOrder),
		byClientID: make(map[string]string),
		positions:  make(map[string]*PositionSnapshot),
		fee:        fee,
		slippage:   slippage,
	}
}

// Deposit credits the virtual account.
func (v *PaperVenue) Deposit(asset string, amount decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b := v.balances[asset]
	b.Asset = asset
	b.Total = b.Total.Add(amount)
	b.Available = b.Available.Add(amount)
	v.balances[asset] = b
}

// SetMarket declares precision rules for a symbol.
func (v *PaperVenue) SetMarket(m precision.Market) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.markets[m.Symbol] = m
}

// SetPrice updates the simulated market price.
func (v *PaperVenue) SetPrice(symbol string, price decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.prices[symbol] = price
}

func (v *PaperVenue) GetBalances(ctx context.Context) (map[string]Balance, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]Balance, len(v.balances))
	for k, b := range v.balances {
		out[k] = b
	}
	return out, nil
}

func (v *PaperVenue) GetOpenPositions(ctx context.Context) ([]PositionSnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []PositionSnapshot
	for _, p := range v.positions {
		if !p.Quantity.IsZero() {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (v *PaperVenue) GetOpenOrders(ctx context.Context, symbol string) ([]*domain.Order, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []*domain.Order
	for _, po := range v.orders {
		if symbol != "" && po.symbol != symbol {
			continue
		}
		if po.status != domain.StatusOpen && po.status != domain.StatusPartiallyFilled {
			continue
		}
		out = append(out, &domain.Order{
			ID:           po.clientID,
			VenueOrderID: po.venueID,
			Symbol:       po.symbol,
			Side:         po.side,
			Type:         po.typ,
			Price:        po.price,
			Quantity:     po.qty,
			Status:       po.status,
			FilledQty:    po.filled,
			AvgFillPrice: po.avg,
		})
	}
	return out, nil
}

func (v *PaperVenue) GetMarketPrecision(ctx context.Context, symbol string) (precision.Market, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.markets[symbol]
	if !ok {
		return precision.Market{}, domain.PermanentVenueError("get_market_precision",
			fmt.Errorf("unknown symbol %s", symbol))
	}
	return m, nil
}

// PlaceOrder acknowledges the order and, for market orders, fills it
// immediately at the current price adjusted by slippage. Update callbacks
// fire synchronously, which also exercises update-before-ack delivery.
func (v *PaperVenue) PlaceOrder(ctx context.Context, order *domain.Order) (string, error) {
	v.mu.Lock()

	price, ok := v.prices[order.Symbol]
	if !ok && order.Type == domain.OrderTypeMarket {
		v.mu.Unlock()
		return "", domain.PermanentVenueError("place_order",
			fmt.Errorf("no market price for %s", order.Symbol))
	}

	v.seq++
	po := &paperOrder{
		venueID:  "paper-" + strconv.FormatInt(v.seq, 10),
		clientID: order.ID,
		symbol:   order.Symbol,
		side:     order.Side,
		typ:      order.Type,
		price:    order.Price,
		qty:      order.Quantity,
		status:   domain.StatusOpen,
	}
	v.orders[po.venueID] = po
	v.byClientID[po.clientID] = po.venueID

	var updates []OrderUpdate
	if order.Type == domain.OrderTypeMarket {
		fillPrice := v.slip(price, order.Side)
		updates = v.fillLocked(po, po.qty, fillPrice)
	}
	v.mu.Unlock()

	for _, u := range updates {
		v.publish(u)
	}
	return po.venueID, nil
}

// slip moves the execution price against the taker.
func (v *PaperVenue) slip(price decimal.Decimal, side domain.Side) decimal.Decimal {
	if v.slippage.IsZero() {
		return price
	}
	adj := price.Mul(v.slippage)
	if side == domain.SideBuy {
		return price.Add(adj)
	}
	return price.Sub(adj)
}

// Fill executes quantity against a resting order, partially or fully.
func (v *PaperVenue) Fill(venueOrderID string, qty, price decimal.Decimal) error {
	v.mu.Lock()
	po, ok := v.orders[venueOrderID]
	if !ok {
		v.mu.Unlock()
		return fmt.Errorf("unknown order %s", venueOrderID)
	}
	if po.status.IsTerminal() {
		v.mu.Unlock()
		return fmt.Errorf("order %s is %s", venueOrderID, po.status)
	}
	updates := v.fillLocked(po, qty, price)
	v.mu.Unlock()

	for _, u := range updates {
		v.publish(u)
	}
	return nil
}

func (v *PaperVenue) fillLocked(po *paperOrder, qty, price decimal.Decimal) []OrderUpdate {
	remaining := po.qty.Sub(po.filled)
	if qty.GreaterThan(remaining) {
		qty = remaining
	}

	notional := po.avg.Mul(po.filled).Add(price.Mul(qty))
	po.filled = po.filled.Add(qty)
	po.avg = notional.Div(po.filled)

	if po.filled.Equal(po.qty) {
		po.status = domain.StatusFilled
	} else {
		po.status = domain.StatusPartiallyFilled
	}

	v.chargeFeeLocked(po.symbol, price.Mul(qty))
	v.applyPositionLocked(po.symbol, po.side, price, qty)

	return []OrderUpdate{{
		VenueOrderID: po.venueID,
		Symbol:       po.symbol,
		Status:       po.status,
		CumFilledQty: po.filled,
		AvgFillPrice: po.avg,
		Timestamp:    time.Now().UTC(),
	}}
}

// chargeFeeLocked debits the taker fee from the quote-asset balance.
func (v *PaperVenue) chargeFeeLocked(symbol string, notional decimal.Decimal) {
	if v.fee.IsZero() {
		return
	}
	quote := symbol
	if i := strings.IndexByte(symbol, '/'); i >= 0 {
		quote = symbol[i+1:]
	}
	b, ok := v.balances[quote]
	if !ok {
		return
	}
	fee := notional.Mul(v.fee)
	b.Total = b.Total.Sub(fee)
	b.Available = b.Available.Sub(fee)
	v.balances[quote] = b
}

func (v *PaperVenue) applyPositionLocked(symbol string, side domain.Side, price, qty decimal.Decimal) {
	p, ok := v.positions[symbol]
	if !ok {
		p = &PositionSnapshot{Symbol: symbol}
		v.positions[symbol] = p
	}
	delta := qty
	if side == domain.SideSell {
		delta = qty.Neg()
	}
	p.Quantity = p.Quantity.Add(delta)
	p.MarkPrice = price
	if p.EntryPrice.IsZero() {
		p.EntryPrice = price
	}
}

func (v *PaperVenue) CancelOrder(ctx context.Context, venueOrderID string) error {
	v.mu.Lock()
	po, ok := v.orders[venueOrderID]
	if !ok {
		v.mu.Unlock()
		return domain.PermanentVenueError("cancel_order",
			fmt.Errorf("unknown order %s", venueOrderID))
	}
	if po.status.IsTerminal() {
		v.mu.Unlock()
		return domain.PermanentVenueError("cancel_order",
			fmt.Errorf("order %s already %s", venueOrderID, po.status))
	}
	po.status = domain.StatusCancelled
	u := OrderUpdate{
		VenueOrderID: po.venueID,
		Symbol:       po.symbol,
		Status:       domain.StatusCancelled,
		CumFilledQty: po.filled,
		AvgFillPrice: po.avg,
		Timestamp:    time.Now().UTC(),
	}
	v.mu.Unlock()

	v.publish(u)
	return nil
}

func (v *PaperVenue) GetOrderStatus(ctx context.Context, clientOrderID string) (OrderStatusReport, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	venueID, ok := v.byClientID[clientOrderID]
	if !ok {
		return OrderStatusReport{Exists: false}, nil
	}
	po := v.orders[venueID]
	return OrderStatusReport{
		VenueOrderID: po.venueID,
		Exists:       true,
		Status:       po.status,
		CumFilledQty: po.filled,
		AvgFillPrice: po.avg,
	}, nil
}

func (v *PaperVenue) SubscribeOrderUpdates(cb func(OrderUpdate)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.subs = append(v.subs, cb)
}

func (v *PaperVenue) publish(u OrderUpdate) {
	v.mu.Lock()
	subs := make([]func(OrderUpdate), len(v.subs))
	copy(subs, v.subs)
	v.mu.Unlock()

	for _, cb := range subs {
		cb(u)
	}
}
