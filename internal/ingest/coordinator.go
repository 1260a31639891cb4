// Package ingest runs polls: it fetches each selected source, compares the
// batch with the ids already stored for that source and persists the new
// papers in one atomic batch.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aidd/paper-tracker/internal/archive"
	"github.com/aidd/paper-tracker/internal/domain"
	"github.com/aidd/paper-tracker/internal/observability"
	"github.com/aidd/paper-tracker/internal/papersources"
	"github.com/aidd/paper-tracker/internal/repository"
	"github.com/aidd/paper-tracker/internal/taxonomy"
)

// SourceResolver maps source names onto adapters. *papersources.Registry
// implements it.
type SourceResolver interface {
	Resolve(names []string) (resolved []papersources.Fetcher, skipped []string)
	Get(sourceType domain.SourceType) papersources.Fetcher
}

// PaperStore is the part of the repository the coordinator needs.
type PaperStore interface {
	ListIDs(ctx context.Context, source domain.SourceType) ([]string, error)
	BulkUpsert(ctx context.Context, papers []*domain.Paper) (repository.UpsertResult, error)
}

// EventSink receives poll completion notices. *events.Emitter implements it.
type EventSink interface {
	PollCompleted(ctx context.Context, payload domain.PollCompletedPayload)
}

// PollRequest selects what one poll fetches. Empty Sources means every
// enabled source; empty Categories means each source's defaults. Nil dates
// take the default window.
type PollRequest struct {
	Sources    []string
	Categories []string
	DateFrom   *time.Time
	DateTo     *time.Time
}

// SourceStats is the outcome of updating one source.
type SourceStats struct {
	Source      domain.SourceType `json:"source"`
	Categories  []string          `json:"categories"`
	Scraped     int               `json:"scraped_papers"`
	New         int               `json:"new_papers"`
	Total       int               `json:"total_papers"`
	DBSaved     int               `json:"db_saved"`
	DBUpdated   int               `json:"db_updated"`
	Partial     bool              `json:"partial"`
	Warning     string            `json:"warning,omitempty"`
	NewIDs      []string          `json:"-"`
	DurationSec float64           `json:"duration_seconds"`
}

// PollResult aggregates a multi-source poll.
type PollResult struct {
	PollID         string        `json:"poll_id"`
	DateFrom       string        `json:"date_from"`
	DateTo         string        `json:"date_to"`
	NewPapers      int           `json:"new_papers"`
	TotalPapers    int           `json:"total_papers"`
	UpdatedSources []string      `json:"updated_sources"`
	Skipped        []string      `json:"skipped_sources,omitempty"`
	Results        []SourceStats `json:"results"`
}

// Message renders the human readable summary of the poll.
func (r *PollResult) Message() string {
	return "Successfully updated papers from " + strings.Join(r.UpdatedSources, ", ")
}

// SourceRequest describes the update of one source within a poll.
type SourceRequest struct {
	PollID     string
	Source     domain.SourceType
	Categories []string
	Window     Window
}

// Config tunes the coordinator.
type Config struct {
	// DefaultDaysBack is the window used when a request has no start date.
	DefaultDaysBack int

	// PageSize overrides the adapter page size. Zero keeps adapter defaults.
	PageSize int

	// DefaultCategories replaces the taxonomy defaults of a source when a
	// request names no categories.
	DefaultCategories map[domain.SourceType][]string
}

// Coordinator runs polls against the registered sources.
// It is safe for concurrent use.
type Coordinator struct {
	sources  SourceResolver
	store    PaperStore
	tax      *taxonomy.Taxonomy
	archiver archive.Archiver
	events   EventSink
	metrics  *observability.Metrics
	cfg      Config
	now      func() time.Time
	logger   zerolog.Logger
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithArchiver uploads every fetched batch through a.
func WithArchiver(a archive.Archiver) Option {
	return func(c *Coordinator) { c.archiver = a }
}

// WithEvents publishes a completion event per source.
func WithEvents(sink EventSink) Option {
	return func(c *Coordinator) { c.events = sink }
}

// WithMetrics records poll metrics. Nil disables recording.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator. A nil taxonomy uses the embedded one.
func NewCoordinator(sources SourceResolver, store PaperStore, tax *taxonomy.Taxonomy, cfg Config, logger zerolog.Logger, opts ...Option) *Coordinator {
	if tax == nil {
		tax = taxonomy.Default()
	}
	if cfg.DefaultDaysBack <= 0 {
		cfg.DefaultDaysBack = DefaultDaysBack
	}
	c := &Coordinator{
		sources: sources,
		store:   store,
		tax:     tax,
		cfg:     cfg,
		now:     time.Now,
		logger:  observability.WithComponent(logger, "coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Plan resolves a request into per-source work items without fetching.
// Sources that are unknown, disabled or have none of the requested
// categories are returned in skipped.
func (c *Coordinator) Plan(req PollRequest) (pollID string, window Window, work []SourceRequest, skipped []string, err error) {
	window, err = ResolveWindow(req.DateFrom, req.DateTo, c.cfg.DefaultDaysBack, c.now())
	if err != nil {
		return "", Window{}, nil, nil, err
	}

	pollID = uuid.NewString()
	fetchers, skipped := c.sources.Resolve(req.Sources)
	for _, name := range skipped {
		c.logger.Warn().Str("source", name).Msg("skipping unsupported or disabled source")
	}

	for _, f := range fetchers {
		src := f.SourceType()
		cats, ok := c.categoriesFor(src, req.Categories)
		if !ok {
			c.logger.Warn().Str("source", string(src)).Strs("categories", req.Categories).
				Msg("no requested category belongs to source, skipping")
			skipped = append(skipped, string(src))
			continue
		}
		work = append(work, SourceRequest{PollID: pollID, Source: src, Categories: cats, Window: window})
	}
	return pollID, window, work, skipped, nil
}

// categoriesFor keeps the requested categories that may apply to src.
// Categories owned by another source are dropped; unknown names are kept so
// the adapter can search or report them. An empty request takes the configured
// defaults, or the adapter's own when none are configured.
func (c *Coordinator) categoriesFor(src domain.SourceType, requested []string) ([]string, bool) {
	if len(requested) == 0 {
		return c.cfg.DefaultCategories[src], true
	}
	var kept []string
	for _, name := range requested {
		if owner, ok := c.tax.Owner(name); ok && owner != src {
			continue
		}
		kept = append(kept, name)
	}
	return kept, len(kept) > 0
}

// Poll updates every selected source sequentially. A source that fails is
// logged and left out of UpdatedSources; the poll fails only when no source
// was updated.
func (c *Coordinator) Poll(ctx context.Context, req PollRequest) (*PollResult, error) {
	pollID, window, work, skipped, err := c.Plan(req)
	if err != nil {
		return nil, err
	}

	from, to := window.Strings()
	result := &PollResult{PollID: pollID, DateFrom: from, DateTo: to, Skipped: skipped}
	logger := observability.WithPollIDField(c.logger, pollID)
	logger.Info().Str("date_from", from).Str("date_to", to).Int("sources", len(work)).Msg("poll started")

	for _, item := range work {
		stats, err := c.UpdateSource(ctx, item)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("poll cancelled: %w", ctx.Err())
			}
			logger.Warn().Err(err).Str("source", string(item.Source)).Msg("failed to update source")
			result.Skipped = append(result.Skipped, string(item.Source))
			continue
		}
		result.Add(stats)
	}

	if len(result.UpdatedSources) == 0 {
		return nil, domain.NewValidationError("sources", "No valid sources provided")
	}

	logger.Info().
		Int("new_papers", result.NewPapers).
		Int("total_papers", result.TotalPapers).
		Strs("updated_sources", result.UpdatedSources).
		Msg("poll finished")
	return result, nil
}

// Add folds one source outcome into the poll totals.
func (r *PollResult) Add(stats SourceStats) {
	r.Results = append(r.Results, stats)
	r.NewPapers += stats.New
	r.TotalPapers += stats.Total
	r.UpdatedSources = append(r.UpdatedSources, string(stats.Source))
}

// UpdateSource fetches one source and persists the papers missing from its
// stored snapshot. It errors only when the source cannot be fetched or the
// snapshot cannot be read; a failed upsert is reported through zero
// DBSaved and DBUpdated.
func (c *Coordinator) UpdateSource(ctx context.Context, req SourceRequest) (SourceStats, error) {
	start := time.Now()
	src := req.Source
	logger := observability.WithSource(observability.WithPollIDField(c.logger, req.PollID), string(src))

	fetcher := c.sources.Get(src)
	if fetcher == nil {
		return SourceStats{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedSource, src)
	}

	fetched, err := fetcher.Fetch(ctx, papersources.FetchParams{
		Categories: req.Categories,
		DateFrom:   req.Window.From,
		DateTo:     req.Window.To,
		PageSize:   c.cfg.PageSize,
	})
	if err != nil {
		c.recordFailed(src)
		return SourceStats{}, fmt.Errorf("fetch %s: %w", src, err)
	}
	if fetched.Partial {
		logger.Warn().Err(fetched.Err).Int("papers", len(fetched.Papers)).Msg("fetch stopped early, keeping partial result")
	}

	c.archiveBatch(ctx, req, fetched.Papers, logger)

	ids, err := c.store.ListIDs(ctx, src)
	if err != nil {
		c.recordFailed(src)
		return SourceStats{}, fmt.Errorf("load stored ids for %s: %w", src, err)
	}

	fresh := NewPapers(fetched.Papers, ids)
	stats := SourceStats{
		Source:     src,
		Categories: fetched.Categories,
		Scraped:    len(fetched.Papers),
		New:        len(fresh),
		Total:      len(ids),
		Partial:    fetched.Partial,
		NewIDs:     paperIDs(fresh),
	}
	if fetched.Partial && fetched.Err != nil {
		stats.Warning = fetched.Err.Error()
	}

	if len(fresh) > 0 {
		saved, err := c.store.BulkUpsert(ctx, fresh)
		if err != nil {
			logger.Error().Err(err).Int("papers", len(fresh)).Msg("failed to persist new papers")
			if c.metrics != nil {
				c.metrics.RecordPersistenceFailure(string(src))
			}
		} else {
			stats.DBSaved = saved.Saved
			stats.DBUpdated = saved.Updated
			stats.Total += saved.Saved
			if c.metrics != nil {
				c.metrics.RecordSaved(string(src), saved.Saved, saved.Updated)
			}
		}
	}

	elapsed := time.Since(start)
	stats.DurationSec = elapsed.Seconds()
	if c.metrics != nil {
		c.metrics.RecordPoll(string(src), stats.Scraped, stats.New, stats.Partial, elapsed)
	}
	c.emitCompleted(ctx, req, stats, elapsed)

	logger.Info().
		Int("scraped_papers", stats.Scraped).
		Int("new_papers", stats.New).
		Int("total_papers", stats.Total).
		Int("db_saved", stats.DBSaved).
		Int("db_updated", stats.DBUpdated).
		Bool("partial", stats.Partial).
		Msg("source updated")
	return stats, nil
}

// NewPapers returns the papers whose id is absent from stored, keeping the
// first occurrence of ids repeated within papers.
func NewPapers(papers []*domain.Paper, stored []string) []*domain.Paper {
	seen := make(map[string]struct{}, len(stored)+len(papers))
	for _, id := range stored {
		seen[id] = struct{}{}
	}
	var fresh []*domain.Paper
	for _, p := range papers {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		fresh = append(fresh, p)
	}
	return fresh
}

func paperIDs(papers []*domain.Paper) []string {
	ids := make([]string, len(papers))
	for i, p := range papers {
		ids[i] = p.ID
	}
	return ids
}

func (c *Coordinator) recordFailed(src domain.SourceType) {
	if c.metrics != nil {
		c.metrics.RecordPollFailed(string(src))
	}
}

func (c *Coordinator) archiveBatch(ctx context.Context, req SourceRequest, papers []*domain.Paper, logger zerolog.Logger) {
	if c.archiver == nil {
		return
	}
	from, to := req.Window.Strings()
	key, err := c.archiver.Archive(ctx, archive.Batch{
		PollID:    req.PollID,
		Source:    req.Source,
		DateFrom:  from,
		DateTo:    to,
		FetchedAt: c.now(),
		Papers:    papers,
	})
	if c.metrics != nil {
		c.metrics.RecordArchive(err)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("failed to archive batch")
		return
	}
	logger.Debug().Str("key", key).Msg("batch archived")
}

func (c *Coordinator) emitCompleted(ctx context.Context, req SourceRequest, stats SourceStats, elapsed time.Duration) {
	if c.events == nil {
		return
	}
	from, to := req.Window.Strings()
	c.events.PollCompleted(ctx, domain.PollCompletedPayload{
		PollID:     req.PollID,
		Source:     req.Source,
		Categories: stats.Categories,
		DateFrom:   from,
		DateTo:     to,
		Scraped:    stats.Scraped,
		New:        stats.New,
		Total:      stats.Total,
		Partial:    stats.Partial,
		NewIDs:     stats.NewIDs,
		Duration:   elapsed,
	})
}
