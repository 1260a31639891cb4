// Package papersources provides the adapters that pull preprint metadata from
// the supported upstream servers.
//
// Each server has its own sub-package implementing the Fetcher interface
// with a source-specific pagination loop:
//
//	fetcher := biorxiv.New(biorxiv.Config{Enabled: true}, logger)
//	result, err := fetcher.Fetch(ctx, papersources.FetchParams{
//		Categories: []string{"bioinformatics"},
//		DateFrom:   from,
//		DateTo:     to,
//	})
//
// Adapters keep no state between calls. A transport failure stops the
// current pagination loop and the papers gathered so far are returned with
// FetchResult.Partial set.
package papersources

import (
	"context"
	"time"

	"github.com/aidd/paper-tracker/internal/domain"
)

// FetchParams defines the window and categories of one poll.
type FetchParams struct {
	// Categories are source category names. Adapters skip names their
	// source does not support. Empty means the source defaults.
	Categories []string

	// DateFrom is the first day of the window (inclusive).
	DateFrom time.Time

	// DateTo is the last day of the window (inclusive).
	DateTo time.Time

	// PageSize overrides the adapter page size. Zero uses the adapter default.
	PageSize int
}

// Validate checks the window bounds.
func (p FetchParams) Validate() error {
	if p.DateFrom.IsZero() || p.DateTo.IsZero() {
		return domain.NewValidationError("date_range", "both bounds are required")
	}
	if p.DateTo.Before(p.DateFrom) {
		return domain.NewValidationError("date_range", "end date is before start date")
	}
	if p.PageSize < 0 {
		return domain.NewValidationError("page_size", "must not be negative")
	}
	return nil
}

// FetchResult is the outcome of one adapter run.
type FetchResult struct {
	// Source identifies which adapter produced the result.
	Source domain.SourceType

	// Papers holds the normalized, de-duplicated records.
	Papers []*domain.Paper

	// Categories lists the categories actually queried.
	Categories []string

	// SkippedCategories lists requested categories the source does not support.
	SkippedCategories []string

	// Requests is the number of upstream calls made.
	Requests int

	// Dropped counts upstream records that were discarded during normalization.
	Dropped int

	// Partial is true when pagination stopped early because of Err.
	Partial bool

	// Err is the failure that cut pagination short. Nil unless Partial.
	Err error

	// Duration is the wall time of the run.
	Duration time.Duration
}

// MarkPartial records the first failure that interrupted pagination.
func (r *FetchResult) MarkPartial(err error) {
	if r.Partial {
		return
	}
	r.Partial = true
	r.Err = err
}

// Fetcher is implemented by every source adapter.
type Fetcher interface {
	// Fetch runs the full pagination loop for params. An error is returned
	// only for invalid parameters; upstream failures are reported through
	// FetchResult.Partial and FetchResult.Err.
	Fetch(ctx context.Context, params FetchParams) (*FetchResult, error)

	// SourceType returns the type identifier for this source.
	SourceType() domain.SourceType

	// Name returns a human-readable name for logs and metrics.
	Name() string

	// IsEnabled reports whether the source may be polled.
	IsEnabled() bool
}
