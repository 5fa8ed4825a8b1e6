package domain

// CheckResult is the outcome of a single risk check.
type CheckResult struct {
	Name   string
	Passed bool
	Reason string // set when Passed is false
}

// Pass builds a passing result for the named check.
func Pass(name string) CheckResult {
	return CheckResult{Name: name, Passed: true}
}

// Fail builds a failing result with a human-readable reason.
func Fail(name, reason string) CheckResult {
	return CheckResult{Name: name, Passed: false, Reason: reason}
}

// ValidationResult aggregates every check outcome for a proposed order.
// It is transient: consumed by the caller, never persisted.
type ValidationResult struct {
	Passed  bool
	Reasons []string // one entry per failed check, in check order
}

// Reject reports whether the order must be rejected.
func (r ValidationResult) Reject() bool { return !r.Passed }
