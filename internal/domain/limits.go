package domain

import "github.com/shopspring/decimal"

// RiskLimits holds the per-session risk configuration. Values are immutable
// once loaded; the core only reads them.
type RiskLimits struct {
	MaxPositionNotional decimal.Decimal // max notional per trade
	MaxTotalExposure    decimal.Decimal // max aggregate notional across open positions
	MaxOpenPositions    int
	MaxLeverage         decimal.Decimal
	MaxCorrelated       int             // max positions sharing a correlation group
	DailyLossLimit      decimal.Decimal // realized loss threshold per day
	RequireProtective   bool            // stop-loss and take-profit mandatory
	DuplicateTolerance  decimal.Decimal // relative price band for duplicate detection
	PrecisionTolerance  decimal.Decimal // max relative drift allowed by rounding
}

// AccountSnapshot is the point-in-time account state consumed by the risk
// validator. It is fetched before validation; checks never hit the network.
type AccountSnapshot struct {
	TotalBalance     decimal.Decimal
	AvailableBalance decimal.Decimal // unlocked, spendable
	DailyRealizedPnL decimal.Decimal
}
