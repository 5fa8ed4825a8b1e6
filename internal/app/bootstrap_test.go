package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/executor"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/venue"
	"github.com/MiguelPaez2108/Trading-Bot-Project/pkg/precision"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := fmt.Sprintf(`
app:
  name: test-bot
  version: "0.0.0"

trading:
  mode: paper
  venue: paper

risk:
  max_position_notional: "10000"
  max_total_exposure: "50000"
  max_open_positions: 5
  max_leverage: "3"
  daily_loss_limit: "1000"
  require_protective: true
  duplicate_tolerance: "0.01"
  precision_tolerance: "0.01"

execution:
  max_retries: 2
  breaker_threshold: 5
  breaker_cooldown_sec: 30
  submit_timeout_ms: 1000
  reconcile_interval_ms: 30000

storage:
  path: %q

logging:
  level: error
`, filepath.Join(dir, "data", "trading.db"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestBootstrap_PaperModeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	a, err := Bootstrap(context.Background(), cfgPath, domain.NopNotifier{})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	paper, ok := a.Gateway.(*venue.PaperVenue)
	require.True(t, ok)
	paper.SetMarket(precision.Market{
		Symbol:      "BTC/USDT",
		PriceStep:   d("0.1"),
		SizeStep:    d("0.0001"),
		MinNotional: d("10"),
	})
	paper.SetPrice("BTC/USDT", d("50000"))

	res := a.Executor.SubmitTradeRequest(context.Background(), executor.TradeRequest{
		Symbol:     "BTC/USDT",
		Side:       domain.SideBuy,
		Quantity:   d("0.1"),
		StopLoss:   d("48000"),
		TakeProfit: d("55000"),
		MarkPrice:  d("50000"),
	})
	require.True(t, res.Success, "unexpected err: %v, reasons: %v", res.Err, res.RejectionReasons)

	pos, ok := a.Book.Position("BTC/USDT")
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(d("0.1")))
}

func TestBootstrap_RestoresPersistedState(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	ctx := context.Background()

	a, err := Bootstrap(ctx, cfgPath, domain.NopNotifier{})
	require.NoError(t, err)

	pos := domain.NewPosition("BTC/USDT", "paper", domain.PositionLong, d("0.5"), d("50000"))
	require.NoError(t, a.Store.SavePosition(ctx, pos))

	o, err := domain.NewLimitOrder("ETH/USDT", domain.SideBuy, d("2000"), d("1"), d("1900"), d("2200"))
	require.NoError(t, err)
	o.Status = domain.StatusOpen
	o.VenueOrderID = "v-7"
	require.NoError(t, a.Store.AppendOrderEvent(ctx, o))
	require.NoError(t, a.Close())

	b, err := Bootstrap(ctx, cfgPath, domain.NopNotifier{})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	restored, ok := b.Book.Position("BTC/USDT")
	require.True(t, ok)
	assert.True(t, restored.Quantity.Equal(d("0.5")))

	order, ok := b.Manager.Order(o.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusOpen, order.Status)
	assert.Equal(t, "v-7", order.VenueOrderID)
}

func TestBootstrap_LiveModeWithoutAdapterFails(t *testing.T) {
	dir := t.TempDir()
	cfg := `
app:
  name: test-bot
trading:
  mode: live
  venue: binance
api:
  rest_url: https://api.example.com
  access_key: k
  secret_key: s
risk:
  max_position_notional: "10000"
  max_total_exposure: "50000"
  max_leverage: "3"
execution:
  max_retries: 2
  breaker_threshold: 5
  reconcile_interval_ms: 30000
storage:
  path: ` + filepath.Join(dir, "trading.db") + `
logging:
  level: error
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	_, err := Bootstrap(context.Background(), path, domain.NopNotifier{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no live adapter")
}
