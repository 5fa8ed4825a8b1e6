// Package app wires configuration, storage, the venue and the execution
// core together and recovers persisted state on startup.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/executor"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/infra"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/ledger"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/lifecycle"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/risk"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/storage"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/venue"
)

// App holds the wired execution core.
type App struct {
	Config     *infra.Config
	Log        *zap.Logger
	Store      *storage.Store
	Gateway    venue.Gateway
	Manager    *lifecycle.Manager
	Book       *ledger.Ledger
	Executor   *executor.Executor
	Reconciler *ledger.Reconciler
}

// NewLogger builds the zap logger for the configured level.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}

// Bootstrap loads config, opens storage, builds the component graph and
// restores open orders and positions from the previous run.
func Bootstrap(ctx context.Context, configPath string, notifier domain.Notifier) (*App, error) {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	log, err := NewLogger(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	log.Info("bootstrapping",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("mode", cfg.Trading.Mode))

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	limits := domain.RiskLimits{
		MaxPositionNotional: infra.RiskDecimal(cfg.Risk.MaxPositionNotional),
		MaxTotalExposure:    infra.RiskDecimal(cfg.Risk.MaxTotalExposure),
		MaxOpenPositions:    cfg.Risk.MaxOpenPositions,
		MaxLeverage:         infra.RiskDecimal(cfg.Risk.MaxLeverage),
		MaxCorrelated:       cfg.Risk.MaxCorrelated,
		DailyLossLimit:      infra.RiskDecimal(cfg.Risk.DailyLossLimit),
		RequireProtective:   cfg.Risk.RequireProtective,
		DuplicateTolerance:  infra.RiskDecimal(cfg.Risk.DuplicateTolerance),
		PrecisionTolerance:  infra.RiskDecimal(cfg.Risk.PrecisionTolerance),
	}

	cooldown := time.Duration(cfg.Execution.BreakerCooldownSec) * time.Second
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	gov := infra.NewGovernor(infra.DefaultGovernorConfig())
	retryer := infra.NewRetryer(gov,
		infra.RetryConfig{MaxAttempts: cfg.Execution.MaxRetries, Backoff: infra.DefaultBackoffPolicy()},
		infra.CircuitBreakerConfig{
			FailureThreshold: cfg.Execution.BreakerThreshold,
			SuccessThreshold: 2,
			Cooldown:         cooldown,
		}, log)
	for _, class := range []infra.EndpointClass{infra.ClassPlacement, infra.ClassCancel, infra.ClassAccount} {
		retryer.Breaker(class).OnOpen(func(name string) {
			notifier.Notify(domain.Event{Type: domain.EvCircuitBreakerOpened, Detail: name})
		})
	}

	gw, err := buildGateway(cfg, log)
	if err != nil {
		return nil, err
	}

	manager := lifecycle.NewManager(store, log)
	book := ledger.New(cfg.Trading.Venue, store, log)

	// Ledger consumes confirmed fills after the lifecycle manager has
	// persisted the transition.
	manager.OnFill(func(ctx context.Context, f lifecycle.Fill) {
		ev, err := book.ApplyFill(ctx, f.Symbol, f.Side, f.Price, f.Quantity)
		if err != nil {
			log.Error("failed to apply fill to ledger",
				zap.String("order_id", f.OrderID), zap.Error(err))
			return
		}
		notifyPositionEvent(notifier, f, ev)
	})

	gw.SubscribeOrderUpdates(func(u venue.OrderUpdate) {
		manager.ApplyUpdate(ctx, u)
	})

	validator := risk.NewValidator(log)
	exec := executor.New(gw, retryer, validator, manager, book, notifier, limits, cfg.SubmitTimeout(), log)

	reconciler := ledger.NewReconciler(book, gw, retryer, notifier,
		cfg.ReconcileInterval(), decimal.RequireFromString("0.0000001"), log)

	a := &App{
		Config:     cfg,
		Log:        log,
		Store:      store,
		Gateway:    gw,
		Manager:    manager,
		Book:       book,
		Executor:   exec,
		Reconciler: reconciler,
	}
	if err := a.restore(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func buildGateway(cfg *infra.Config, log *zap.Logger) (venue.Gateway, error) {
	switch cfg.Trading.Mode {
	case "paper":
		paper := venue.NewPaperVenue(
			decimal.RequireFromString("0.0006"),
			decimal.RequireFromString("0.0002"), log)
		paper.Deposit("USDT", decimal.NewFromInt(10000))
		return paper, nil
	default:
		// Live adapters plug in here; each venue classifies its transport
		// errors behind the same Gateway interface.
		return nil, fmt.Errorf("no live adapter configured for venue %q", cfg.Trading.Venue)
	}
}

// restore reloads open orders and positions persisted by a previous run so
// a crash never orphans live venue state.
func (a *App) restore(ctx context.Context) error {
	orders, err := a.Store.LoadOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore orders: %w", err)
	}
	for _, o := range orders {
		a.Manager.Restore(o)
	}

	positions, err := a.Store.LoadOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore positions: %w", err)
	}
	for _, p := range positions {
		a.Book.Restore(p)
	}

	if len(orders) > 0 || len(positions) > 0 {
		a.Log.Info("restored persisted state",
			zap.Int("open_orders", len(orders)),
			zap.Int("open_positions", len(positions)))
	}
	return nil
}

// Run starts background loops and blocks until the context ends.
func (a *App) Run(ctx context.Context) {
	go a.Reconciler.Run(ctx)
	<-ctx.Done()
}

// Close releases resources.
func (a *App) Close() error {
	_ = a.Log.Sync()
	return a.Store.Close()
}

func notifyPositionEvent(n domain.Notifier, f lifecycle.Fill, ev ledger.PositionEvent) {
	n.Notify(domain.Event{
		Type:      domain.EvOrderFilled,
		Symbol:    f.Symbol,
		OrderID:   f.OrderID,
		Side:      f.Side,
		Quantity:  f.Quantity,
		Price:     f.Price,
		Timestamp: f.Timestamp,
	})

	switch ev.Kind {
	case ledger.PositionEventOpened, ledger.PositionEventReversed:
		n.Notify(domain.Event{
			Type:      domain.EvPositionOpened,
			Symbol:    ev.Position.Symbol,
			Quantity:  ev.Position.Quantity,
			Price:     ev.Position.EntryPrice,
			Timestamp: f.Timestamp,
		})
	case ledger.PositionEventClosed:
		n.Notify(domain.Event{
			Type:      domain.EvPositionClosed,
			Symbol:    ev.Position.Symbol,
			PnL:       ev.RealizedPnL,
			Timestamp: f.Timestamp,
		})
	}
}
