package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// VenueErrorKind classifies a failed venue call for the retry controller.
type VenueErrorKind int

const (
	// KindTransient covers timeouts, rate limits and 5xx-equivalents.
	// Safe to retry under backoff.
	KindTransient VenueErrorKind = iota
	// KindPermanent covers insufficient funds, invalid precision,
	// suspended symbols. Retrying can only make things worse.
	KindPermanent
	// KindAmbiguous means the call may or may not have reached the venue
	// (e.g. timeout after submission). Requires a status query, never a
	// blind retry.
	KindAmbiguous
)

func (k VenueErrorKind) String() string {
	switch k {
	case KindTransient:
		return "TRANSIENT"
	case KindPermanent:
		return "PERMANENT"
	case KindAmbiguous:
		return "AMBIGUOUS"
	default:
		return "UNKNOWN"
	}
}

// VenueError wraps an error returned by a venue call with its retry
// classification. The venue gateway is responsible for classifying at the
// boundary; everything above only looks at Kind.
type VenueError struct {
	Kind VenueErrorKind
	Op   string // e.g. "place_order", "cancel_order"
	Err  error
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *VenueError) Unwrap() error { return e.Err }

// TransientVenueError builds a retryable venue error.
func TransientVenueError(op string, err error) *VenueError {
	return &VenueError{Kind: KindTransient, Op: op, Err: err}
}

// PermanentVenueError builds a non-retryable venue error.
func PermanentVenueError(op string, err error) *VenueError {
	return &VenueError{Kind: KindPermanent, Op: op, Err: err}
}

// AmbiguousOutcomeError builds an unknown-submission-state error.
func AmbiguousOutcomeError(op string, err error) *VenueError {
	return &VenueError{Kind: KindAmbiguous, Op: op, Err: err}
}

// IsTransient reports whether err is classified transient.
func IsTransient(err error) bool { return hasKind(err, KindTransient) }

// IsPermanent reports whether err is classified permanent.
func IsPermanent(err error) bool { return hasKind(err, KindPermanent) }

// IsAmbiguous reports whether err is classified ambiguous.
func IsAmbiguous(err error) bool { return hasKind(err, KindAmbiguous) }

func hasKind(err error, kind VenueErrorKind) bool {
	var ve *VenueError
	return errors.As(err, &ve) && ve.Kind == kind
}

// ValidationError carries the full list of rejection reasons from the risk
// validator. It is never retried and always surfaced to the caller verbatim.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "order rejected: " + strings.Join(e.Reasons, "; ")
}

// ConsistencyError reports a divergence between the local ledger and the
// venue's authoritative position snapshot. It is a fail-safe stop: trading
// for the symbol halts until an operator intervenes.
type ConsistencyError struct {
	Symbol   string
	LocalQty decimal.Decimal
	VenueQty decimal.Decimal
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("ledger/venue divergence for %s: local=%s venue=%s",
		e.Symbol, e.LocalQty, e.VenueQty)
}

// ErrBreakerOpen is returned immediately when the circuit breaker for an
// endpoint class is open.
var ErrBreakerOpen = errors.New("circuit breaker open")

// ErrSymbolHalted is returned when trading for a symbol was paused by a
// reconciliation mismatch.
var ErrSymbolHalted = errors.New("trading halted for symbol pending reconciliation")
