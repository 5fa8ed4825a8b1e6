package risk

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
	"github.com/MiguelPaez2108/Trading-Bot-Project/pkg/precision"
)

var one = decimal.NewFromInt(1)

// duplicateOrderCheck rejects a new order when an open order for the same
// symbol and side already sits within the configured price tolerance band.
// This is the guard against resubmission storms.
type duplicateOrderCheck struct{}

func (duplicateOrderCheck) Name() string { return "duplicate_order" }

func (duplicateOrderCheck) Run(req Request) domain.CheckResult {
	price := req.effectivePrice()
	for _, open := range req.OpenOrders {
		if !open.IsOpen() || open.Symbol != req.Order.Symbol || open.Side != req.Order.Side {
			continue
		}
		openPrice := open.Price
		if openPrice.IsZero() {
			openPrice = req.RefPrice
		}
		if price.IsZero() || openPrice.IsZero() {
			// Two market orders for the same symbol/side are always
			// duplicates within any band.
			return domain.Fail("duplicate_order",
				fmt.Sprintf("duplicate %s order already open for %s", req.Order.Side, req.Order.Symbol))
		}
		drift := price.Sub(openPrice).Abs().Div(openPrice)
		if drift.LessThanOrEqual(req.Limits.DuplicateTolerance) {
			return domain.Fail("duplicate_order",
				fmt.Sprintf("duplicate %s order for %s within %s price tolerance (open at %s, requested %s)",
					req.Order.Side, req.Order.Symbol, req.Limits.DuplicateTolerance, openPrice, price))
		}
	}
	return domain.Pass("duplicate_order")
}

// existingPositionCheck enforces the one-open-position-per-symbol invariant
// for opening orders. Reducing orders (opposite side) pass.
type existingPositionCheck struct{}

func (existingPositionCheck) Name() string { return "existing_position" }

func (existingPositionCheck) Run(req Request) domain.CheckResult {
	for _, pos := range req.OpenPositions {
		if !pos.IsOpen() || pos.Symbol != req.Order.Symbol {
			continue
		}
		opening := (pos.Side == domain.PositionLong && req.Order.Side == domain.SideBuy) ||
			(pos.Side == domain.PositionShort && req.Order.Side == domain.SideSell)
		if opening {
			return domain.Fail("existing_position",
				fmt.Sprintf("position already open for %s (%s %s)", pos.Symbol, pos.Side, pos.Quantity))
		}
	}
	return domain.Pass("existing_position")
}

// positionSizeCheck bounds the per-trade notional.
type positionSizeCheck struct{}

func (positionSizeCheck) Name() string { return "position_size" }

func (positionSizeCheck) Run(req Request) domain.CheckResult {
	notional := req.notional()
	if notional.GreaterThan(req.Limits.MaxPositionNotional) {
		return domain.Fail("position_size",
			fmt.Sprintf("notional %s exceeds max position size %s", notional, req.Limits.MaxPositionNotional))
	}
	return domain.Pass("position_size")
}

// aggregateExposureCheck bounds total open notional including this order.
type aggregateExposureCheck struct{}

func (aggregateExposureCheck) Name() string { return "aggregate_exposure" }

func (aggregateExposureCheck) Run(req Request) domain.CheckResult {
	total := req.notional()
	for _, pos := range req.OpenPositions {
		if pos.IsOpen() {
			total = total.Add(pos.Notional())
		}
	}
	if total.GreaterThan(req.Limits.MaxTotalExposure) {
		return domain.Fail("aggregate_exposure",
			fmt.Sprintf("aggregate exposure %s exceeds limit %s", total, req.Limits.MaxTotalExposure))
	}
	if req.Limits.MaxOpenPositions > 0 {
		open := 0
		for _, pos := range req.OpenPositions {
			if pos.IsOpen() {
				open++
			}
		}
		if open >= req.Limits.MaxOpenPositions {
			return domain.Fail("aggregate_exposure",
				fmt.Sprintf("already %d open positions, limit %d", open, req.Limits.MaxOpenPositions))
		}
	}
	return domain.Pass("aggregate_exposure")
}

// correlatedPositionsCheck bounds open positions sharing the order's base
// asset. BTC/USDT and BTC/USDC move together; stacking them multiplies
// exposure to one underlying.
type correlatedPositionsCheck struct{}

func (correlatedPositionsCheck) Name() string { return "correlated_positions" }

func (correlatedPositionsCheck) Run(req Request) domain.CheckResult {
	if req.Limits.MaxCorrelated <= 0 {
		return domain.Pass("correlated_positions")
	}
	base := baseAsset(req.Order.Symbol)
	count := 0
	for _, pos := range req.OpenPositions {
		if pos.IsOpen() && baseAsset(pos.Symbol) == base {
			count++
		}
	}
	if count >= req.Limits.MaxCorrelated {
		return domain.Fail("correlated_positions",
			fmt.Sprintf("already %d open positions in %s, correlated limit %d", count, base, req.Limits.MaxCorrelated))
	}
	return domain.Pass("correlated_positions")
}

func baseAsset(symbol string) string {
	if i := strings.IndexByte(symbol, '/'); i > 0 {
		return symbol[:i]
	}
	return symbol
}

// leverageCheck bounds implied leverage: exposure over account equity.
type leverageCheck struct{}

func (leverageCheck) Name() string { return "leverage" }

func (leverageCheck) Run(req Request) domain.CheckResult {
	if req.Account.TotalBalance.IsZero() {
		return domain.Fail("leverage", "account balance is zero")
	}
	total := req.notional()
	for _, pos := range req.OpenPositions {
		if pos.IsOpen() {
			total = total.Add(pos.Notional())
		}
	}
	implied := total.Div(req.Account.TotalBalance)
	if implied.GreaterThan(req.Limits.MaxLeverage) {
		return domain.Fail("leverage",
			fmt.Sprintf("implied leverage %s exceeds max %s", implied.Round(4), req.Limits.MaxLeverage))
	}
	return domain.Pass("leverage")
}

// capitalCheck requires enough unlocked balance for the order's margin.
type capitalCheck struct{}

func (capitalCheck) Name() string { return "capital" }

func (capitalCheck) Run(req Request) domain.CheckResult {
	required := req.notional()
	if req.Limits.MaxLeverage.GreaterThan(one) {
		required = required.Div(req.Limits.MaxLeverage)
	}
	if req.Account.AvailableBalance.LessThan(required) {
		return domain.Fail("capital",
			fmt.Sprintf("available balance %s below required margin %s", req.Account.AvailableBalance, required))
	}
	return domain.Pass("capital")
}

// protectiveLevelsCheck is the single most safety-critical check: when the
// policy is on, missing or inverted stop-loss/take-profit is a hard reject.
type protectiveLevelsCheck struct{}

func (protectiveLevelsCheck) Name() string { return "protective_levels" }

func (protectiveLevelsCheck) Run(req Request) domain.CheckResult {
	if !req.Limits.RequireProtective {
		return domain.Pass("protective_levels")
	}
	if req.Order.StopLoss.IsZero() {
		return domain.Fail("protective_levels", "missing stop loss")
	}
	if req.Order.TakeProfit.IsZero() {
		return domain.Fail("protective_levels", "missing take profit")
	}

	price := req.effectivePrice()
	if price.IsZero() {
		return domain.Fail("protective_levels", "no reference price to validate protective levels")
	}
	switch req.Order.Side {
	case domain.SideBuy:
		if !req.Order.StopLoss.LessThan(price) || !req.Order.TakeProfit.GreaterThan(price) {
			return domain.Fail("protective_levels",
				fmt.Sprintf("inverted protective levels for buy: stop %s, price %s, target %s",
					req.Order.StopLoss, price, req.Order.TakeProfit))
		}
	case domain.SideSell:
		if !req.Order.StopLoss.GreaterThan(price) || !req.Order.TakeProfit.LessThan(price) {
			return domain.Fail("protective_levels",
				fmt.Sprintf("inverted protective levels for sell: stop %s, price %s, target %s",
					req.Order.StopLoss, price, req.Order.TakeProfit))
		}
	}
	return domain.Pass("protective_levels")
}

// precisionCheck verifies that venue rounding does not silently distort the
// order beyond tolerance.
type precisionCheck struct{}

func (precisionCheck) Name() string { return "precision" }

func (precisionCheck) Run(req Request) domain.CheckResult {
	_, _, err := precision.Normalize(req.Market, req.Order.Price, req.Order.Quantity, req.Limits.PrecisionTolerance)
	if err != nil {
		return domain.Fail("precision", err.Error())
	}
	return domain.Pass("precision")
}

// dailyLossCheck halts new risk once the session's realized loss crosses
// the configured threshold.
type dailyLossCheck struct{}

func (dailyLossCheck) Name() string { return "daily_loss" }

func (dailyLossCheck) Run(req Request) domain.CheckResult {
	if req.Limits.DailyLossLimit.IsZero() {
		return domain.Pass("daily_loss")
	}
	if req.Account.DailyRealizedPnL.IsNegative() &&
		req.Account.DailyRealizedPnL.Abs().GreaterThanOrEqual(req.Limits.DailyLossLimit) {
		return domain.Fail("daily_loss",
			fmt.Sprintf("daily realized loss %s at or beyond limit %s",
				req.Account.DailyRealizedPnL.Abs(), req.Limits.DailyLossLimit))
	}
	return domain.Pass("daily_loss")
}
