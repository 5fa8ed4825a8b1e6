package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/infra"
	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/venue"
)

// Reconciler periodically diffs the local ledger against the venue's
// authoritative position snapshot. Divergence beyond tolerance is never
// auto-resolved: it halts the symbol and pages via the notifier.
type Reconciler struct {
	ledger    *Ledger
	gateway   venue.Gateway
	retryer   *infra.Retryer
	notifier  domain.Notifier
	interval  time.Duration
	tolerance decimal.Decimal
	log       *zap.Logger
}

// NewReconciler builds a reconciler. The interval runs independently of any
// trading activity.
func NewReconciler(l *Ledger, gw venue.Gateway, r *infra.Retryer, n domain.Notifier,
	interval time.Duration, tolerance decimal.Decimal, log *zap.Logger) *Reconciler {
	return &Reconciler{
		ledger:    l,
		gateway:   gw,
		retryer:   r,
		notifier:  n,
		interval:  interval,
		tolerance: tolerance,
		log:       log,
	}
}

// Run loops until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.ReconcileOnce(ctx); err != nil {
				var ce *domain.ConsistencyError
				if !errors.As(err, &ce) {
					r.log.Warn("reconciliation pass failed", zap.Error(err))
				}
			}
		}
	}
}

// ReconcileOnce fetches the venue snapshot and compares signed quantities
// per symbol. On mismatch it halts the symbol and returns a
// ConsistencyError; local state is never overwritten.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	snapshots, err := infra.DoValue(ctx, r.retryer, infra.ClassAccount, "get_open_positions",
		func(ctx context.Context) ([]venue.PositionSnapshot, error) {
			return r.gateway.GetOpenPositions(ctx)
		})
	if err != nil {
		return err
	}

	venueQty := make(map[string]decimal.Decimal, len(snapshots))
	for _, s := range snapshots {
		venueQty[s.Symbol] = s.Quantity
	}

	var firstErr error
	seen := make(map[string]bool)

	for _, pos := range r.ledger.OpenPositions() {
		seen[pos.Symbol] = true
		local := signedQty(pos)
		remote := venueQty[pos.Symbol]
		if err := r.check(pos.Symbol, local, remote); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// Symbols the venue holds but the ledger does not.
	for symbol, remote := range venueQty {
		if seen[symbol] || remote.IsZero() {
			continue
		}
		if err := r.check(symbol, decimal.Zero, remote); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (r *Reconciler) check(symbol string, local, remote decimal.Decimal) error {
	if local.Sub(remote).Abs().LessThanOrEqual(r.tolerance) {
		return nil
	}

	r.ledger.HaltSymbol(symbol)
	r.log.Error("ledger/venue position mismatch, trading halted",
		zap.String("symbol", symbol),
		zap.String("local", local.String()),
		zap.String("venue", remote.String()))
	r.notifier.Notify(domain.Event{
		Type:      domain.EvReconciliationMismatch,
		Symbol:    symbol,
		Quantity:  local.Sub(remote).Abs(),
		Detail:    "local " + local.String() + " vs venue " + remote.String(),
		Timestamp: time.Now().UTC(),
	})
	return &domain.ConsistencyError{Symbol: symbol, LocalQty: local, VenueQty: remote}
}

func signedQty(pos *domain.Position) decimal.Decimal {
	if pos.Side == domain.PositionShort {
		return pos.Quantity.Neg()
	}
	return pos.Quantity
}
