// Package risk implements the pre-submission validation pipeline. Checks
// are pure functions over already-fetched snapshots: no check may block, hit
// the network, or depend on another check's outcome.
package risk

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MiguelPaez2108/Trading-Bot-Project/internal/domain"
	"github.com/MiguelPaez2108/Trading-Bot-Project/pkg/precision"
)

// Request bundles the proposed order with every snapshot the checks need.
type Request struct {
	Order    *domain.Order
	RefPrice decimal.Decimal // current market price, used for market orders

	Account       domain.AccountSnapshot
	OpenOrders    []*domain.Order
	OpenPositions []*domain.Position
	Market        precision.Market
	Limits        domain.RiskLimits
}

// notional returns the proposed order's notional at its effective price.
func (r Request) notional() decimal.Decimal {
	return r.Order.Notional(r.RefPrice)
}

// effectivePrice is the order price, falling back to the market reference.
func (r Request) effectivePrice() decimal.Decimal {
	if r.Order.Price.IsZero() {
		return r.RefPrice
	}
	return r.Order.Price
}

// Check is a single independent risk check.
type Check interface {
	Name() string
	Run(req Request) domain.CheckResult
}

// Validator runs a fixed, ordered set of checks concurrently and aggregates
// every failure, so the caller sees all violations at once.
type Validator struct {
	checks []Check
	log    *zap.Logger
}

// NewValidator builds the standard pipeline. Order matters only for the
// ordering of reported reasons; execution is concurrent.
func NewValidator(log *zap.Logger) *Validator {
	return &Validator{
		log: log,
		checks: []Check{
			duplicateOrderCheck{},
			existingPositionCheck{},
			positionSizeCheck{},
			aggregateExposureCheck{},
			correlatedPositionsCheck{},
			leverageCheck{},
			capitalCheck{},
			protectiveLevelsCheck{},
			precisionCheck{},
			dailyLossCheck{},
		},
	}
}

// Validate runs every check and aggregates failures in pipeline order.
func (v *Validator) Validate(req Request) domain.ValidationResult {
	results := make([]domain.CheckResult, len(v.checks))

	var wg sync.WaitGroup
	for i, c := range v.checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			results[i] = c.Run(req)
		}(i, c)
	}
	wg.Wait()

	var reasons []string
	for _, res := range results {
		if !res.Passed {
			reasons = append(reasons, res.Reason)
		}
	}

	if len(reasons) > 0 {
		v.log.Info("order rejected by risk validator",
			zap.String("symbol", req.Order.Symbol),
			zap.String("side", string(req.Order.Side)),
			zap.Strings("reasons", reasons))
		return domain.ValidationResult{Passed: false, Reasons: reasons}
	}
	return domain.ValidationResult{Passed: true}
}
