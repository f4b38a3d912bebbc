package service

import "github.com/UnknownOlympus/waypoint/internal/models"

// Summary aggregates the results of one run.
type Summary struct {
	Total      int
	Resolved   int
	Unresolved int
	ByOutcome  map[models.Outcome]int
}

// Summarize counts results by outcome.
func Summarize(results []models.Result) Summary {
	summary := Summary{
		Total:     len(results),
		ByOutcome: make(map[models.Outcome]int),
	}
	for _, result := range results {
		if result.IsResolved() {
			summary.Resolved++
		} else {
			summary.Unresolved++
		}
		summary.ByOutcome[result.Outcome]++
	}
	return summary
}

// ResolvedRatio is the share of rows that received coordinates.
func (s Summary) ResolvedRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Resolved) / float64(s.Total)
}
