// Package executor orchestrates trade requests: validate, cancel
// conflicting orders, normalize precision, submit under retry, track the
// result. Requests for the same symbol are serialized; different symbols
// run in parallel.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/infra"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/ledger"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/lifecycle"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/risk"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/venue"
	"github.com/MiguelPaez2108/Trading-Bot-Project/pkg/precision"
)

// TradeRequest is the upstream signal producer's ask. MarkPrice is the
// producer's view of the current market, used to price market-order
// notionals in validation; LimitPrice zero means a market order.
type TradeRequest struct {
	Symbol     string
	Side       domain.Side
	Quantity   decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	LimitPrice decimal.Decimal
	MarkPrice  decimal.Decimal
}

// ExecutionResult reports the outcome of a trade request. Every rejection
// carries the full reason list, never a single opaque code.
type ExecutionResult struct {
	Success          bool
	OrderID          string
	RejectionReasons []string
	Err              error
}

// Executor coordinates the validator, retry controller, venue gateway,
// lifecycle manager and ledger.
type Executor struct {
	gateway   venue.Gateway
	retryer   *infra.Retryer
	validator *risk.Validator
	manager   *lifecycle.Manager
	book      *ledger.Ledger
	notifier  domain.Notifier
	limits    domain.RiskLimits

	submitTimeout time.Duration
	log           *zap.Logger

	mu      sync.Mutex
	symbols map[string]*sync.Mutex
}

// New builds an executor.
func New(gw venue.Gateway, r *infra.Retryer, v *risk.Validator, m *lifecycle.Manager,
	book *ledger.Ledger, n domain.Notifier, limits domain.RiskLimits,
	submitTimeout time.Duration, log *zap.Logger) *Executor {
	return &Executor{
		gateway:       gw,
		retryer:       r,
		validator:     v,
		manager:       m,
		book:          book,
		notifier:      n,
		limits:        limits,
		submitTimeout: submitTimeout,
		log:           log,
		symbols:       make(map[string]*sync.Mutex),
	}
}

// symbolLock serializes request processing per symbol so cancel-then-submit
// ordering and the one-position-per-symbol invariant hold.
func (e *Executor) symbolLock(symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.symbols[symbol]
	if !ok {
		l = &sync.Mutex{}
		e.symbols[symbol] = l
	}
	return l
}

// SubmitTradeRequest runs the full execution sequence for one request.
func (e *Executor) SubmitTradeRequest(ctx context.Context, req TradeRequest) ExecutionResult {
	if e.book.IsHalted(req.Symbol) {
		return ExecutionResult{Success: false, Err: fmt.Errorf("%s: %w", req.Symbol, domain.ErrSymbolHalted)}
	}

	lock := e.symbolLock(req.Symbol)
	lock.Lock()
	defer lock.Unlock()

	order, err := buildOrder(req)
	if err != nil {
		return ExecutionResult{Success: false, Err: err}
	}

	// Snapshot collection. The validator itself never touches the network.
	snap, vErr := e.collectSnapshots(ctx, req)
	if vErr != nil {
		return ExecutionResult{Success: false, Err: vErr}
	}
	snap.Order = order
	snap.RefPrice = req.MarkPrice
	snap.Limits = e.limits

	if verdict := e.validator.Validate(snap); verdict.Reject() {
		e.notifier.Notify(domain.Event{
			Type:      domain.EvOrderRejected,
			Symbol:    req.Symbol,
			Side:      req.Side,
			Quantity:  req.Quantity,
			Reasons:   verdict.Reasons,
			Timestamp: time.Now().UTC(),
		})
		return ExecutionResult{
			Success:          false,
			RejectionReasons: verdict.Reasons,
			Err:              &domain.ValidationError{Reasons: verdict.Reasons},
		}
	}

	// Best effort: clear pre-existing open orders for the symbol. The
	// duplicate-order check already guards real conflicts, so individual
	// cancel failures are logged, not fatal.
	e.cancelOpenOrders(ctx, snap.OpenOrders)

	// Defense in depth against a race between validation and submission.
	if pos, ok := e.book.Position(req.Symbol); ok && sameDirection(pos.Side, req.Side) {
		reason := fmt.Sprintf("position already open for %s", req.Symbol)
		return ExecutionResult{
			Success:          false,
			RejectionReasons: []string{reason},
			Err:              &domain.ValidationError{Reasons: []string{reason}},
		}
	}

	// Normalize to venue precision before anything hits the wire.
	normPrice, normQty, err := precision.Normalize(snap.Market, order.Price, order.Quantity, e.limits.PrecisionTolerance)
	if err != nil {
		return ExecutionResult{Success: false, Err: err}
	}
	order.Price = normPrice
	order.Quantity = normQty

	if err := e.manager.Register(ctx, order); err != nil {
		return ExecutionResult{Success: false, Err: err}
	}

	venueID, err := e.submit(ctx, order)
	if err != nil {
		return e.handleSubmitFailure(ctx, order, err)
	}

	if err := e.manager.Acknowledge(ctx, order.ID, venueID); err != nil {
		e.log.Error("failed to acknowledge order", zap.String("order_id", order.ID), zap.Error(err))
	}
	e.notifier.Notify(domain.Event{
		Type:      domain.EvOrderSubmitted,
		Symbol:    order.Symbol,
		OrderID:   order.ID,
		Side:      order.Side,
		Quantity:  order.Quantity,
		Price:     order.Price,
		Timestamp: time.Now().UTC(),
	})
	return ExecutionResult{Success: true, OrderID: order.ID}
}

func buildOrder(req TradeRequest) (*domain.Order, error) {
	if req.LimitPrice.IsZero() {
		return domain.NewMarketOrder(req.Symbol, req.Side, req.Quantity, req.StopLoss, req.TakeProfit)
	}
	return domain.NewLimitOrder(req.Symbol, req.Side, req.LimitPrice, req.Quantity, req.StopLoss, req.TakeProfit)
}

func sameDirection(pos domain.PositionSide, side domain.Side) bool {
	return (pos == domain.PositionLong && side == domain.SideBuy) ||
		(pos == domain.PositionShort && side == domain.SideSell)
}

// collectSnapshots fetches account state, venue open orders and market
// precision through the retry controller; positions come from the ledger.
func (e *Executor) collectSnapshots(ctx context.Context, req TradeRequest) (risk.Request, error) {
	var snap risk.Request

	balances, err := infra.DoValue(ctx, e.retryer, infra.ClassAccount, "get_balances",
		func(ctx context.Context) (map[string]venue.Balance, error) {
			return e.gateway.GetBalances(ctx)
		})
	if err != nil {
		return snap, fmt.Errorf("failed to fetch balances: %w", err)
	}
	total, available := decimal.Zero, decimal.Zero
	for _, b := range balances {
		total = total.Add(b.Total)
		available = available.Add(b.Available)
	}
	snap.Account = domain.AccountSnapshot{
		TotalBalance:     total,
		AvailableBalance: available,
		DailyRealizedPnL: e.book.DailyRealizedPnL(),
	}

	snap.OpenOrders, err = infra.DoValue(ctx, e.retryer, infra.ClassAccount, "get_open_orders",
		func(ctx context.Context) ([]*domain.Order, error) {
			return e.gateway.GetOpenOrders(ctx, req.Symbol)
		})
	if err != nil {
		return snap, fmt.Errorf("failed to fetch open orders: %w", err)
	}

	snap.Market, err = infra.DoValue(ctx, e.retryer, infra.ClassAccount, "get_market_precision",
		func(ctx context.Context) (precision.Market, error) {
			return e.gateway.GetMarketPrecision(ctx, req.Symbol)
		})
	if err != nil {
		return snap, fmt.Errorf("failed to fetch market precision: %w", err)
	}

	snap.OpenPositions = e.book.OpenPositions()
	return snap, nil
}

// cancelOpenOrders cancels each order and waits for the venue ack before
// returning, so the new submission is never live alongside a stale order.
func (e *Executor) cancelOpenOrders(ctx context.Context, open []*domain.Order) {
	for _, o := range open {
		if !o.IsOpen() || o.VenueOrderID == "" {
			continue
		}
		venueID := o.VenueOrderID
		err := e.retryer.Do(ctx, infra.ClassCancel, "cancel_order", func(ctx context.Context) error {
			return e.gateway.CancelOrder(ctx, venueID)
		})
		if err != nil {
			e.log.Warn("failed to cancel pre-existing order",
				zap.String("venue_order_id", venueID), zap.Error(err))
		}
	}
}

func (e *Executor) submit(ctx context.Context, order *domain.Order) (string, error) {
	submitCtx := ctx
	if e.submitTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, e.submitTimeout)
		defer cancel()
	}
	return infra.DoValue(submitCtx, e.retryer, infra.ClassPlacement, "place_order",
		func(ctx context.Context) (string, error) {
			return e.gateway.PlaceOrder(ctx, order)
		})
}

// handleSubmitFailure distinguishes ambiguous outcomes (order may be live)
// from clean failures. Ambiguity triggers an explicit status query before
// any corrective action; a blind retry could double-fill.
func (e *Executor) handleSubmitFailure(ctx context.Context, order *domain.Order, submitErr error) ExecutionResult {
	ambiguous := domain.IsAmbiguous(submitErr) || errors.Is(submitErr, context.DeadlineExceeded)

	if ambiguous {
		report, err := infra.DoValue(ctx, e.retryer, infra.ClassAccount, "get_order_status",
			func(ctx context.Context) (venue.OrderStatusReport, error) {
				return e.gateway.GetOrderStatus(ctx, order.ID)
			})
		if err == nil && report.Exists {
			// The order made it to the venue after all. Track it.
			if ackErr := e.manager.Acknowledge(ctx, order.ID, report.VenueOrderID); ackErr != nil {
				e.log.Error("failed to adopt ambiguous order", zap.String("order_id", order.ID), zap.Error(ackErr))
			}
			e.log.Warn("ambiguous submission resolved: order is live",
				zap.String("order_id", order.ID),
				zap.String("venue_order_id", report.VenueOrderID))
			return ExecutionResult{Success: true, OrderID: order.ID}
		}
		if err != nil {
			// Still unknown. Leave the order PENDING for reconciliation
			// rather than guessing.
			e.log.Error("ambiguous submission unresolved; order left pending",
				zap.String("order_id", order.ID), zap.Error(err))
			e.notifier.Notify(domain.Event{
				Type:      domain.EvOrderRejected,
				Symbol:    order.Symbol,
				OrderID:   order.ID,
				Detail:    "ambiguous submission outcome: " + submitErr.Error(),
				Timestamp: time.Now().UTC(),
			})
			return ExecutionResult{Success: false, Err: domain.AmbiguousOutcomeError("place_order", submitErr)}
		}
	}

	// Clean failure: the order never reached the venue.
	if err := e.manager.MarkRejected(ctx, order.ID); err != nil {
		e.log.Error("failed to mark order rejected", zap.String("order_id", order.ID), zap.Error(err))
	}
	e.notifier.Notify(domain.Event{
		Type:      domain.EvOrderRejected,
		Symbol:    order.Symbol,
		OrderID:   order.ID,
		Side:      order.Side,
		Quantity:  order.Quantity,
		Detail:    submitErr.Error(),
		Timestamp: time.Now().UTC(),
	})
	return ExecutionResult{Success: false, Err: submitErr}
}
