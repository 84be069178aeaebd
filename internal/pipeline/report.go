package pipeline

import (
	"time"

	"github.com/maxysadm-GH/VHC/pkg/config"
	"github.com/maxysadm-GH/VHC/pkg/models"
)

// Outcome is the per-date, per-kind result of one sync cycle. Counts are
// operator-facing only and are not persisted across runs.
type Outcome struct {
	// Fetched raw records (may be partial after a terminal fetch failure)
	Fetched int
	// Transformed flat rows produced
	Transformed int
	// Receipts returned for accepted chunks
	Receipts int
}

// Entry ties an outcome to its date and record kind.
type Entry struct {
	Date    string
	Kind    models.RecordKind
	Outcome Outcome
}

// RunReport accumulates outcomes over a run in processing order.
type RunReport struct {
	Started  time.Time
	Finished time.Time
	Entries  []Entry
}

// Add records the outcome of one date/kind cycle.
func (r *RunReport) Add(day time.Time, kind models.RecordKind, outcome Outcome) {
	r.Entries = append(r.Entries, Entry{
		Date:    day.Format(config.DateFormat),
		Kind:    kind,
		Outcome: outcome,
	})
}

// TotalFetched sums raw records fetched across all entries.
func (r *RunReport) TotalFetched() int {
	total := 0
	for _, e := range r.Entries {
		total += e.Outcome.Fetched
	}
	return total
}

// TotalTransformed sums flat rows produced across all entries.
func (r *RunReport) TotalTransformed() int {
	total := 0
	for _, e := range r.Entries {
		total += e.Outcome.Transformed
	}
	return total
}
