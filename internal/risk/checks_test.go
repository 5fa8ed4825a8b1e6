package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
	"github.com/MiguelPaez2108/Trading-Bot-Project/pkg/precision"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func baseLimits() domain.RiskLimits {
	return domain.RiskLimits{
		MaxPositionNotional: d("1000"),
		MaxTotalExposure:    d("5000"),
		MaxOpenPositions:    5,
		MaxLeverage:         d("3"),
		DailyLossLimit:      d("200"),
		RequireProtective:   true,
		DuplicateTolerance:  d("0.01"),
		PrecisionTolerance:  d("0.01"),
	}
}

func baseRequest(t *testing.T) Request {
	t.Helper()
	order, err := domain.NewMarketOrder("BTC/USDT", domain.SideBuy, d("0.01"), d("48000"), d("55000"))
	require.NoError(t, err)

	return Request{
		Order:    order,
		RefPrice: d("50000"),
		Account: domain.AccountSnapshot{
			TotalBalance:     d("2000"),
			AvailableBalance: d("2000"),
		},
		Market: precision.Market{
			Symbol:    "BTC/USDT",
			PriceStep: d("0.1"),
			SizeStep:  d("0.0001"),
		},
		Limits: baseLimits(),
	}
}

func TestDuplicateOrderCheck(t *testing.T) {
	req := baseRequest(t)
	req.Order, _ = domain.NewLimitOrder("BTC/USDT", domain.SideBuy, d("50000"), d("0.01"), d("48000"), d("55000"))

	openOrder, _ := domain.NewLimitOrder("BTC/USDT", domain.SideBuy, d("50005"), d("0.01"), d("48000"), d("55000"))
	openOrder.Status = domain.StatusOpen
	req.OpenOrders = []*domain.Order{openOrder}

	// 50005 vs 50000 sits inside the 1% band.
	res := duplicateOrderCheck{}.Run(req)
	assert.False(t, res.Passed)

	// Far price passes.
	farOrder, _ := domain.NewLimitOrder("BTC/USDT", domain.SideBuy, d("60000"), d("0.01"), d("48000"), d("70000"))
	farOrder.Status = domain.StatusOpen
	req.OpenOrders = []*domain.Order{farOrder}
	assert.True(t, duplicateOrderCheck{}.Run(req).Passed)

	// Opposite side never conflicts.
	sellOrder, _ := domain.NewLimitOrder("BTC/USDT", domain.SideSell, d("50005"), d("0.01"), d("55000"), d("48000"))
	sellOrder.Status = domain.StatusOpen
	req.OpenOrders = []*domain.Order{sellOrder}
	assert.True(t, duplicateOrderCheck{}.Run(req).Passed)
}

func TestDuplicateOrderCheck_TwoMarketOrders(t *testing.T) {
	req := baseRequest(t)
	open, _ := domain.NewMarketOrder("BTC/USDT", domain.SideBuy, d("0.01"), d("48000"), d("55000"))
	open.Status = domain.StatusOpen
	open.Price = decimal.Zero
	req.RefPrice = decimal.Zero
	req.OpenOrders = []*domain.Order{open}

	assert.False(t, duplicateOrderCheck{}.Run(req).Passed)
}

func TestExistingPositionCheck(t *testing.T) {
	req := baseRequest(t)
	req.OpenPositions = []*domain.Position{
		domain.NewPosition("BTC/USDT", "paper", domain.PositionLong, d("0.5"), d("49000")),
	}

	// Same-direction opening order is rejected.
	assert.False(t, existingPositionCheck{}.Run(req).Passed)

	// A reducing (opposite side) order passes.
	req.Order, _ = domain.NewMarketOrder("BTC/USDT", domain.SideSell, d("0.5"), d("55000"), d("45000"))
	assert.True(t, existingPositionCheck{}.Run(req).Passed)

	// Other symbols are unaffected.
	req.Order, _ = domain.NewMarketOrder("ETH/USDT", domain.SideBuy, d("1"), d("1800"), d("2200"))
	assert.True(t, existingPositionCheck{}.Run(req).Passed)
}

func TestPositionSizeCheck(t *testing.T) {
	req := baseRequest(t)
	// 0.01 × 50000 = 500 ≤ 1000
	assert.True(t, positionSizeCheck{}.Run(req).Passed)

	req.Order.Quantity = d("0.03") // 1500 > 1000
	res := positionSizeCheck{}.Run(req)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Reason, "max position size")
}

func TestAggregateExposureCheck(t *testing.T) {
	req := baseRequest(t)
	pos := domain.NewPosition("ETH/USDT", "paper", domain.PositionLong, d("2"), d("2400"))
	req.OpenPositions = []*domain.Position{pos} // 4800 notional

	// 4800 + 500 > 5000
	res := aggregateExposureCheck{}.Run(req)
	assert.False(t, res.Passed)

	req.Limits.MaxTotalExposure = d("10000")
	assert.True(t, aggregateExposureCheck{}.Run(req).Passed)
}

func TestAggregateExposureCheck_PositionCount(t *testing.T) {
	req := baseRequest(t)
	req.Limits.MaxTotalExposure = d("1000000")
	req.Limits.MaxOpenPositions = 1
	req.OpenPositions = []*domain.Position{
		domain.NewPosition("ETH/USDT", "paper", domain.PositionLong, d("0.1"), d("2000")),
	}

	assert.False(t, aggregateExposureCheck{}.Run(req).Passed)
}

func TestCorrelatedPositionsCheck(t *testing.T) {
	req := baseRequest(t)
	req.Limits.MaxCorrelated = 1
	req.OpenPositions = []*domain.Position{
		domain.NewPosition("BTC/USDC", "paper", domain.PositionLong, d("0.5"), d("49000")),
	}

	// A second BTC position is one too many.
	res := correlatedPositionsCheck{}.Run(req)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Reason, "correlated")

	// A different underlying is unaffected.
	req.OpenPositions = []*domain.Position{
		domain.NewPosition("ETH/USDT", "paper", domain.PositionLong, d("1"), d("1800")),
	}
	assert.True(t, correlatedPositionsCheck{}.Run(req).Passed)

	// Zero limit disables the check.
	req.Limits.MaxCorrelated = 0
	req.OpenPositions = []*domain.Position{
		domain.NewPosition("BTC/USDC", "paper", domain.PositionLong, d("0.5"), d("49000")),
	}
	assert.True(t, correlatedPositionsCheck{}.Run(req).Passed)
}

func TestBaseAsset(t *testing.T) {
	assert.Equal(t, "BTC", baseAsset("BTC/USDT"))
	assert.Equal(t, "ETH", baseAsset("ETH/USDC"))
	assert.Equal(t, "BTCUSDT", baseAsset("BTCUSDT"))
}

func TestLeverageCheck(t *testing.T) {
	req := baseRequest(t)
	// 500 / 2000 = 0.25x ≤ 3
	assert.True(t, leverageCheck{}.Run(req).Passed)

	req.Account.TotalBalance = d("100") // 5x
	assert.False(t, leverageCheck{}.Run(req).Passed)

	req.Account.TotalBalance = decimal.Zero
	assert.False(t, leverageCheck{}.Run(req).Passed)
}

func TestCapitalCheck(t *testing.T) {
	req := baseRequest(t)
	// margin = 500 / 3 ≈ 166.67 ≤ 2000
	assert.True(t, capitalCheck{}.Run(req).Passed)

	req.Account.AvailableBalance = d("100")
	res := capitalCheck{}.Run(req)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Reason, "required margin")
}

func TestProtectiveLevelsCheck_MissingStopLoss(t *testing.T) {
	req := baseRequest(t)
	req.Order.StopLoss = decimal.Zero

	res := protectiveLevelsCheck{}.Run(req)
	assert.False(t, res.Passed)
	assert.Equal(t, "missing stop loss", res.Reason)
}

func TestProtectiveLevelsCheck_MissingTakeProfit(t *testing.T) {
	req := baseRequest(t)
	req.Order.TakeProfit = decimal.Zero

	res := protectiveLevelsCheck{}.Run(req)
	assert.False(t, res.Passed)
	assert.Equal(t, "missing take profit", res.Reason)
}

func TestProtectiveLevelsCheck_InvertedLevels(t *testing.T) {
	req := baseRequest(t)

	// Buy with stop above price.
	req.Order.StopLoss = d("51000")
	assert.False(t, protectiveLevelsCheck{}.Run(req).Passed)

	// Sell requires stop above and target below.
	sell, _ := domain.NewMarketOrder("BTC/USDT", domain.SideSell, d("0.01"), d("52000"), d("45000"))
	req.Order = sell
	assert.True(t, protectiveLevelsCheck{}.Run(req).Passed)

	sellBad, _ := domain.NewMarketOrder("BTC/USDT", domain.SideSell, d("0.01"), d("45000"), d("52000"))
	req.Order = sellBad
	assert.False(t, protectiveLevelsCheck{}.Run(req).Passed)
}

func TestProtectiveLevelsCheck_PolicyOff(t *testing.T) {
	req := baseRequest(t)
	req.Limits.RequireProtective = false
	req.Order.StopLoss = decimal.Zero
	req.Order.TakeProfit = decimal.Zero

	assert.True(t, protectiveLevelsCheck{}.Run(req).Passed)
}

func TestPrecisionCheck(t *testing.T) {
	req := baseRequest(t)
	assert.True(t, precisionCheck{}.Run(req).Passed)

	// A lot size coarser than the quantity truncates it to zero.
	req.Market.SizeStep = d("1")
	assert.False(t, precisionCheck{}.Run(req).Passed)
}

func TestDailyLossCheck(t *testing.T) {
	req := baseRequest(t)
	assert.True(t, dailyLossCheck{}.Run(req).Passed)

	req.Account.DailyRealizedPnL = d("-250")
	res := dailyLossCheck{}.Run(req)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Reason, "daily realized loss")

	// Profit never trips it.
	req.Account.DailyRealizedPnL = d("250")
	assert.True(t, dailyLossCheck{}.Run(req).Passed)
}
