package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType tags notification events handed to the alerting collaborator.
type EventType string

const (
	EvOrderSubmitted         EventType = "ORDER_SUBMITTED"
	EvOrderRejected          EventType = "ORDER_REJECTED"
	EvOrderFilled            EventType = "ORDER_FILLED"
	EvPositionOpened         EventType = "POSITION_OPENED"
	EvPositionClosed         EventType = "POSITION_CLOSED"
	EvCircuitBreakerOpened   EventType = "CIRCUIT_BREAKER_OPENED"
	EvReconciliationMismatch EventType = "RECONCILIATION_MISMATCH"
)

// Event is a plain data record describing something the alerting
// collaborator may care about. Delivery is owned by the collaborator.
type Event struct {
	Type      EventType
	Symbol    string
	OrderID   string
	Side      Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	PnL       decimal.Decimal
	Reasons   []string
	Detail    string
	Timestamp time.Time
}

// Notifier is the alerting collaborator boundary. Implementations must not
// block the caller.
type Notifier interface {
	Notify(ev Event)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Notify(Event) {}
