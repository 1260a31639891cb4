package query

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aidd/paper-tracker/internal/domain"
	"github.com/aidd/paper-tracker/internal/observability"
)

// Loader loads the snapshot a query runs against.
// repository.PaperRepository implements it.
type Loader interface {
	ListBySource(ctx context.Context, sources []domain.SourceType) ([]*domain.Paper, error)
}

// Service answers list and stats requests from freshly loaded snapshots.
type Service struct {
	loader   Loader
	pipeline *Pipeline
	logger   zerolog.Logger
}

// NewService creates a query service.
func NewService(loader Loader, pipeline *Pipeline, logger zerolog.Logger) *Service {
	if pipeline == nil {
		pipeline = NewPipeline(nil)
	}
	return &Service{
		loader:   loader,
		pipeline: pipeline,
		logger:   observability.WithComponent(logger, "query"),
	}
}

// List filters, sorts and pages the snapshot of f.Sources.
func (s *Service) List(ctx context.Context, f Filter, page, pageSize int) (*Page, error) {
	papers, err := s.filtered(ctx, f)
	if err != nil {
		return nil, err
	}
	result := Paginate(Sort(papers), page, pageSize)
	return &result, nil
}

// Stats aggregates the filtered snapshot of f.Sources.
func (s *Service) Stats(ctx context.Context, f Filter) (*Stats, error) {
	papers, err := s.filtered(ctx, f)
	if err != nil {
		return nil, err
	}
	stats := s.pipeline.Stats(papers)
	return &stats, nil
}

func (s *Service) filtered(ctx context.Context, f Filter) ([]*domain.Paper, error) {
	if f.DateStart != nil && f.DateEnd != nil && f.DateEnd.Before(*f.DateStart) {
		return nil, domain.NewValidationError("date_end", "date_end must not be before date_start")
	}
	if f.NoSources {
		return nil, nil
	}

	snapshot, err := s.loader.ListBySource(ctx, f.Sources)
	if err != nil {
		return nil, fmt.Errorf("load papers: %w", err)
	}

	papers := s.pipeline.Apply(snapshot, f)
	logger := observability.LoggerFromContext(ctx, s.logger)
	logger.Debug().
		Int("snapshot", len(snapshot)).
		Int("matched", len(papers)).
		Msg("query filtered")
	return papers, nil
}
