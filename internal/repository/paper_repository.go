package repository

import (
	"context"
	"time"

	"github.com/aidd/paper-tracker/internal/domain"
)

// PaperRepository persists papers keyed by (source, paper_id).
type PaperRepository interface {
	// BulkUpsert upserts papers atomically: either every paper is written or
	// none is. An existing key has its metadata overwritten and updated_at
	// refreshed; relevance and created_at are kept. Writers for the same
	// source are serialized.
	BulkUpsert(ctx context.Context, papers []*domain.Paper) (UpsertResult, error)

	// Get returns one paper. With a nil source the first match in canonical
	// source order is returned. Returns domain.ErrNotFound if none exists.
	Get(ctx context.Context, id string, source *domain.SourceType) (*domain.Paper, error)

	// ListBySource returns the papers of the given sources, or of every
	// source when sources is empty, in storage order.
	ListBySource(ctx context.Context, sources []domain.SourceType) ([]*domain.Paper, error)

	// ListIDs returns the ids stored for source.
	ListIDs(ctx context.Context, source domain.SourceType) ([]string, error)

	// StatsBySource returns the number of stored papers per source.
	StatsBySource(ctx context.Context) (map[domain.SourceType]int64, error)

	// SetRelevance sets or clears the relevance tag and returns the updated
	// paper. Returns domain.ErrNotFound if the paper does not exist.
	SetRelevance(ctx context.Context, id string, source *domain.SourceType, relevant *bool) (*domain.Paper, error)

	// Delete removes one paper and returns the number of rows removed.
	Delete(ctx context.Context, id string, source *domain.SourceType) (int64, error)

	// DeleteBySource removes every paper of source.
	DeleteBySource(ctx context.Context, source domain.SourceType) (int64, error)

	// DeleteAll removes every paper.
	DeleteAll(ctx context.Context) (int64, error)

	// DeleteByDateRange removes papers whose parsed published date lies in
	// [from, to]. Papers with unparseable dates are kept. An empty sources
	// slice means every source.
	DeleteByDateRange(ctx context.Context, from, to time.Time, sources []domain.SourceType) (int64, error)
}

// UpsertResult reports how a batch upsert landed.
type UpsertResult struct {
	// Saved is the number of rows inserted.
	Saved int
	// Updated is the number of existing rows overwritten.
	Updated int
}
