package models

// Outcome tells how a row's result was produced.
type Outcome string

const (
	OutcomeCacheHit        Outcome = "cache_hit"
	OutcomeResolved        Outcome = "resolved"
	OutcomeResolvedTrimmed Outcome = "resolved_trimmed"
	OutcomeEmptyAddress    Outcome = "empty_address"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeFailed          Outcome = "failed"
	OutcomeWorkerLost      Outcome = "worker_lost"
	OutcomeCancelled       Outcome = "cancelled"
)

// Result is the resolution of a single row. Coordinates is nil when the row
// could not be resolved.
type Result struct {
	Key         int
	Coordinates *Coordinates
	Outcome     Outcome
}

// Resolved creates a result carrying coordinates.
func Resolved(key int, coords Coordinates, outcome Outcome) Result {
	return Result{Key: key, Coordinates: &coords, Outcome: outcome}
}

// Unresolved creates a result without coordinates.
func Unresolved(key int, outcome Outcome) Result {
	return Result{Key: key, Outcome: outcome}
}

// IsResolved reports whether the result carries coordinates.
func (r Result) IsResolved() bool {
	return r.Coordinates != nil
}
