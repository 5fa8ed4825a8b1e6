package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType determines how the venue executes the order.
type OrderType string

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopLoss   OrderType = "STOP_LOSS"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT"
	OrderTypeOCO        OrderType = "OCO"
)

// TimeInForce controls how long an order stays live on the venue.
type TimeInForce string

const (
	TIFGoodTilCancel   TimeInForce = "GTC"
	TIFImmediateOrKill TimeInForce = "IOC"
	TIFFillOrKill      TimeInForce = "FOK"
)

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusOpen            OrderStatus = "OPEN"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// transitions is the single source of truth for legal status moves.
// The PARTIALLY_FILLED self-edge covers additional partial fills.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:         {StatusOpen, StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusRejected, StatusExpired},
	StatusOpen:            {StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusExpired},
	StatusPartiallyFilled: {StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusExpired},
}

// CanTransition reports whether from→to is a legal status transition.
// Terminal states have no outgoing edges.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Order is the canonical representation of a trading order. ID is
// venue-agnostic; VenueOrderID stays empty until the venue acknowledges.
// Orders are created by the executor and mutated only by the lifecycle
// manager.
type Order struct {
	ID           string
	VenueOrderID string

	Symbol string
	Side   Side
	Type   OrderType

	Price      decimal.Decimal // zero for market orders
	Quantity   decimal.Decimal
	StopLoss   decimal.Decimal // zero means unset
	TakeProfit decimal.Decimal // zero means unset
	TIF        TimeInForce

	Status       OrderStatus
	FilledQty    decimal.Decimal
	AvgFillPrice decimal.Decimal

	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt time.Time // set on the terminal transition
}

// NewMarketOrder builds a validated market order in PENDING state.
func NewMarketOrder(symbol string, side Side, qty, stopLoss, takeProfit decimal.Decimal) (*Order, error) {
	return newOrder(symbol, side, OrderTypeMarket, decimal.Zero, qty, stopLoss, takeProfit)
}

// NewLimitOrder builds a validated limit order in PENDING state.
func NewLimitOrder(symbol string, side Side, price, qty, stopLoss, takeProfit decimal.Decimal) (*Order, error) {
	if !price.IsPositive() {
		return nil, fmt.Errorf("limit price must be positive, got %s", price)
	}
	return newOrder(symbol, side, OrderTypeLimit, price, qty, stopLoss, takeProfit)
}

func newOrder(symbol string, side Side, typ OrderType, price, qty, stopLoss, takeProfit decimal.Decimal) (*Order, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if side != SideBuy && side != SideSell {
		return nil, fmt.Errorf("invalid side %q", side)
	}
	if !qty.IsPositive() {
		return nil, fmt.Errorf("quantity must be positive, got %s", qty)
	}
	now := time.Now().UTC()
	return &Order{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		Type:       typ,
		Price:      price,
		Quantity:   qty,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		TIF:        TIFGoodTilCancel,
		Status:     StatusPending,
		FilledQty:  decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsOpen reports whether the order is still live (or in flight) on the venue.
func (o *Order) IsOpen() bool {
	return o.Status == StatusPending || o.Status == StatusOpen || o.Status == StatusPartiallyFilled
}

// RemainingQty returns the unfilled quantity.
func (o *Order) RemainingQty() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQty)
}

// Notional returns price × quantity, using refPrice for market orders.
func (o *Order) Notional(refPrice decimal.Decimal) decimal.Decimal {
	price := o.Price
	if price.IsZero() {
		price = refPrice
	}
	return price.Mul(o.Quantity)
}

// HasProtectiveLevels reports whether both stop-loss and take-profit are set.
func (o *Order) HasProtectiveLevels() bool {
	return !o.StopLoss.IsZero() && !o.TakeProfit.IsZero()
}
