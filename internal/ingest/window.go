package ingest

import (
	"time"

	"github.com/aidd/paper-tracker/internal/dateparse"
	"github.com/aidd/paper-tracker/internal/domain"
)

// DefaultDaysBack is the poll window length when none is configured.
const DefaultDaysBack = 30

// Window is an inclusive day range.
type Window struct {
	From time.Time
	To   time.Time
}

// ResolveWindow fills the missing bounds of a requested window. A missing
// end is today at midnight UTC; a missing start is daysBack days before the
// end.
func ResolveWindow(from, to *time.Time, daysBack int, now time.Time) (Window, error) {
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}

	end := now.UTC().Truncate(24 * time.Hour)
	if to != nil {
		end = *to
	}
	start := end.AddDate(0, 0, -daysBack)
	if from != nil {
		start = *from
	}

	if end.Before(start) {
		return Window{}, domain.NewValidationError("date_range", "end_date is before start_date")
	}
	return Window{From: start, To: end}, nil
}

// Strings renders the window bounds as YYYY-MM-DD.
func (w Window) Strings() (string, string) {
	return dateparse.FormatDay(w.From), dateparse.FormatDay(w.To)
}
