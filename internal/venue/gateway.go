// Package venue abstracts the external trading venue behind a gateway
// interface. Concrete adapters classify their transport errors at this
// boundary so the retry controller only sees domain.VenueError kinds.
package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
	"github.com/MiguelPaez2108/Trading-Bot-Project/pkg/precision"
)

// Balance is one asset's account balance.
type Balance struct {
	Asset     string
	Total     decimal.Decimal
	Available decimal.Decimal // unlocked
}

// PositionSnapshot is the venue's authoritative view of exposure in one
// symbol. Quantity is signed: positive long, negative short.
type PositionSnapshot struct {
	Symbol     string
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	MarkPrice  decimal.Decimal
}

// OrderUpdate is an asynchronous order-state notification pushed by the
// venue. CumFilledQty is cumulative, not incremental.
type OrderUpdate struct {
	VenueOrderID string
	Symbol       string
	Status       domain.OrderStatus
	CumFilledQty decimal.Decimal
	AvgFillPrice decimal.Decimal
	Timestamp    time.Time
}

// OrderStatusReport answers an explicit status query, used to resolve
// ambiguous submission outcomes.
type OrderStatusReport struct {
	VenueOrderID string
	Exists       bool
	Status       domain.OrderStatus
	CumFilledQty decimal.Decimal
	AvgFillPrice decimal.Decimal
}

// Gateway is the trading venue boundary. All calls may block on the
// network; callers go through the retry controller.
type Gateway interface {
	GetBalances(ctx context.Context) (map[string]Balance, error)
	GetOpenPositions(ctx context.Context) ([]PositionSnapshot, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]*domain.Order, error)
	GetMarketPrecision(ctx context.Context, symbol string) (precision.Market, error)

	// PlaceOrder returns the venue-assigned order id on acknowledgment.
	PlaceOrder(ctx context.Context, order *domain.Order) (string, error)
	CancelOrder(ctx context.Context, venueOrderID string) error

	// GetOrderStatus resolves the authoritative state of a possibly
	// in-flight order, keyed by the internal client order id.
	GetOrderStatus(ctx context.Context, clientOrderID string) (OrderStatusReport, error)

	// SubscribeOrderUpdates registers a callback for pushed order updates.
	// Delivery order and deduplication are not guaranteed by the venue.
	SubscribeOrderUpdates(cb func(OrderUpdate))
}
