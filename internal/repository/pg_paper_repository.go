package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/aidd/paper-tracker/internal/dateparse"
	"github.com/aidd/paper-tracker/internal/domain"
)

// Compile-time interface verification.
var _ PaperRepository = (*PgPaperRepository)(nil)

// paperColumns is the column list every read selects, in scan order.
var paperColumns = []string{
	"source", "paper_id", "title", "abstract", "authors", "categories",
	"published_date", "url", "pdf_url", "doi", "is_relevant",
	"fetched_date", "created_at", "updated_at",
}

// sourceOrder ranks sources for ambiguous id lookups.
const sourceOrder = "array_position(ARRAY['arxiv','biorxiv','chemrxiv']::text[], source)"

const upsertPaperQuery = `
	INSERT INTO papers (
		source, paper_id, title, abstract, authors, categories,
		published_date, url, pdf_url, doi, fetched_date,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW()
	)
	ON CONFLICT (source, paper_id) DO UPDATE SET
		title = EXCLUDED.title,
		abstract = EXCLUDED.abstract,
		authors = EXCLUDED.authors,
		categories = EXCLUDED.categories,
		published_date = EXCLUDED.published_date,
		url = EXCLUDED.url,
		pdf_url = EXCLUDED.pdf_url,
		doi = EXCLUDED.doi,
		fetched_date = EXCLUDED.fetched_date,
		updated_at = NOW()
	RETURNING (xmax = 0) AS inserted`

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db DBTX
}

// NewPgPaperRepository creates a new PostgreSQL paper repository.
func NewPgPaperRepository(db DBTX) *PgPaperRepository {
	return &PgPaperRepository{db: db}
}

func validatePaper(paper *domain.Paper) error {
	if paper == nil {
		return domain.NewValidationError("paper", "paper cannot be nil")
	}
	if paper.ID == "" {
		return domain.NewValidationError("id", "paper id is required")
	}
	if !paper.Source.IsValid() {
		return domain.NewValidationError("source", fmt.Sprintf("unsupported source %q", paper.Source))
	}
	return nil
}

func upsertArgs(paper *domain.Paper) []interface{} {
	fetched := paper.FetchedDate
	if fetched.IsZero() {
		fetched = time.Now().UTC()
	}
	return []interface{}{
		string(paper.Source),
		paper.ID,
		paper.Title,
		paper.Abstract,
		nonNil(paper.Authors),
		nonNil(paper.Categories),
		paper.PublishedDate,
		paper.URL,
		paper.PDFURL,
		paper.DOI,
		fetched,
	}
}

// nonNil keeps NOT NULL array columns satisfied.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// BulkUpsert writes papers in one transaction. A transaction-scoped advisory
// lock is taken per distinct source before any row is written, in canonical
// source order so concurrent batches cannot deadlock.
func (r *PgPaperRepository) BulkUpsert(ctx context.Context, papers []*domain.Paper) (UpsertResult, error) {
	if len(papers) == 0 {
		return UpsertResult{}, nil
	}

	present := make(map[domain.SourceType]bool)
	for i, paper := range papers {
		if err := validatePaper(paper); err != nil {
			return UpsertResult{}, fmt.Errorf("paper at index %d: %w", i, err)
		}
		present[paper.Source] = true
	}

	beginner, ok := r.db.(txBeginner)
	if !ok {
		return r.bulkUpsertInTx(ctx, r.db, papers, present)
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to begin transaction for bulk upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := r.bulkUpsertInTx(ctx, tx, papers, present)
	if err != nil {
		return UpsertResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to commit bulk upsert: %w", err)
	}
	return result, nil
}

func (r *PgPaperRepository) bulkUpsertInTx(ctx context.Context, db DBTX, papers []*domain.Paper, present map[domain.SourceType]bool) (UpsertResult, error) {
	for _, src := range domain.AllSourceTypes() {
		if !present[src] {
			continue
		}
		if _, err := db.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "papers:"+string(src)); err != nil {
			return UpsertResult{}, fmt.Errorf("failed to lock source %s: %w", src, err)
		}
	}

	batch := &pgx.Batch{}
	for _, paper := range papers {
		batch.Queue(upsertPaperQuery, upsertArgs(paper)...)
	}

	br := db.SendBatch(ctx, batch)
	defer br.Close()

	var result UpsertResult
	for i := range papers {
		var inserted bool
		if err := br.QueryRow().Scan(&inserted); err != nil {
			return UpsertResult{}, fmt.Errorf("failed to upsert paper at index %d: %w", i, err)
		}
		if inserted {
			result.Saved++
		} else {
			result.Updated++
		}
	}
	return result, nil
}

// Get retrieves a paper by id and optional source.
func (r *PgPaperRepository) Get(ctx context.Context, id string, source *domain.SourceType) (*domain.Paper, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "paper id is required")
	}

	query, args, err := psql.Select(paperColumns...).
		From("papers").
		Where(keyFilter(id, source)).
		OrderBy(sourceOrder).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	paper, err := scanPaper(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", id)
		}
		return nil, fmt.Errorf("failed to get paper: %w", err)
	}
	return paper, nil
}

// ListBySource retrieves the papers of the given sources.
func (r *PgPaperRepository) ListBySource(ctx context.Context, sources []domain.SourceType) ([]*domain.Paper, error) {
	builder := psql.Select(paperColumns...).From("papers")
	if len(sources) > 0 {
		builder = builder.Where(sq.Eq{"source": sourceStrings(sources)})
	}

	query, args, err := builder.OrderBy(sourceOrder, "created_at", "paper_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	var papers []*domain.Paper
	for rows.Next() {
		paper, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan paper: %w", err)
		}
		papers = append(papers, paper)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating papers: %w", err)
	}
	return papers, nil
}

// ListIDs returns the stored ids of one source.
func (r *PgPaperRepository) ListIDs(ctx context.Context, source domain.SourceType) ([]string, error) {
	rows, err := r.db.Query(ctx, "SELECT paper_id FROM papers WHERE source = $1", string(source))
	if err != nil {
		return nil, fmt.Errorf("failed to list paper ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan paper id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating paper ids: %w", err)
	}
	return ids, nil
}

// StatsBySource counts papers per source.
func (r *PgPaperRepository) StatsBySource(ctx context.Context) (map[domain.SourceType]int64, error) {
	rows, err := r.db.Query(ctx, "SELECT source, COUNT(*) FROM papers GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("failed to count papers: %w", err)
	}
	defer rows.Close()

	stats := make(map[domain.SourceType]int64)
	for rows.Next() {
		var (
			source string
			count  int64
		)
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("failed to scan paper count: %w", err)
		}
		stats[domain.SourceType(source)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating paper counts: %w", err)
	}
	return stats, nil
}

// SetRelevance updates the relevance tag of one paper.
func (r *PgPaperRepository) SetRelevance(ctx context.Context, id string, source *domain.SourceType, relevant *bool) (*domain.Paper, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "paper id is required")
	}

	target, targetArgs, err := targetKey(id, source)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	query, args, err := psql.Update("papers").
		Set("is_relevant", relevant).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Expr("(source, paper_id) = ("+target+")", targetArgs...)).
		Suffix("RETURNING " + strings.Join(paperColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	paper, err := scanPaper(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", id)
		}
		return nil, fmt.Errorf("failed to update relevance: %w", err)
	}
	return paper, nil
}

// Delete removes one paper.
func (r *PgPaperRepository) Delete(ctx context.Context, id string, source *domain.SourceType) (int64, error) {
	if id == "" {
		return 0, domain.NewValidationError("id", "paper id is required")
	}

	target, targetArgs, err := targetKey(id, source)
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	query, args, err := psql.Delete("papers").
		Where(sq.Expr("(source, paper_id) = ("+target+")", targetArgs...)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete paper: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, domain.NewNotFoundError("paper", id)
	}
	return tag.RowsAffected(), nil
}

// DeleteBySource removes all papers of one source.
func (r *PgPaperRepository) DeleteBySource(ctx context.Context, source domain.SourceType) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM papers WHERE source = $1", string(source))
	if err != nil {
		return 0, fmt.Errorf("failed to delete papers of %s: %w", source, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAll removes every paper.
func (r *PgPaperRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM papers")
	if err != nil {
		return 0, fmt.Errorf("failed to delete papers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteByDateRange removes papers published within [from, to]. Published
// dates are stored as upstream text in several layouts, so the range test
// runs on parsed dates in Go and the matching keys are deleted in one
// statement.
func (r *PgPaperRepository) DeleteByDateRange(ctx context.Context, from, to time.Time, sources []domain.SourceType) (int64, error) {
	if to.Before(from) {
		return 0, domain.NewValidationError("date_range", "end date is before start date")
	}

	builder := psql.Select("source", "paper_id", "published_date").From("papers")
	if len(sources) > 0 {
		builder = builder.Where(sq.Eq{"source": sourceStrings(sources)})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to scan published dates: %w", err)
	}

	var keySources, keyIDs []string
	for rows.Next() {
		var source, id, published string
		if err := rows.Scan(&source, &id, &published); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan published date: %w", err)
		}
		day, ok := dateparse.ParseDate(published)
		if !ok || day.Before(from) || day.After(to) {
			continue
		}
		keySources = append(keySources, source)
		keyIDs = append(keyIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating published dates: %w", err)
	}

	if len(keyIDs) == 0 {
		return 0, nil
	}

	tag, err := r.db.Exec(ctx, `
		DELETE FROM papers p
		USING unnest($1::text[], $2::text[]) AS k(source, paper_id)
		WHERE p.source = k.source AND p.paper_id = k.paper_id`,
		keySources, keyIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to delete papers by date range: %w", err)
	}
	return tag.RowsAffected(), nil
}

// keyFilter matches a paper id, optionally restricted to one source.
func keyFilter(id string, source *domain.SourceType) sq.Eq {
	filter := sq.Eq{"paper_id": id}
	if source != nil {
		filter["source"] = string(*source)
	}
	return filter
}

func sourceStrings(sources []domain.SourceType) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}

// targetKey selects the key of the paper an id refers to. The subquery keeps
// ? placeholders so the enclosing statement numbers all arguments.
func targetKey(id string, source *domain.SourceType) (string, []interface{}, error) {
	return sq.Select("source", "paper_id").
		From("papers").
		Where(keyFilter(id, source)).
		OrderBy(sourceOrder).
		Limit(1).
		ToSql()
}

// paperScanDest holds the destination values for scanning a paper row.
type paperScanDest struct {
	paper  domain.Paper
	source string
}

// destinations returns the slice of pointers for Scan operations.
func (d *paperScanDest) destinations() []interface{} {
	return []interface{}{
		&d.source, &d.paper.ID, &d.paper.Title, &d.paper.Abstract,
		&d.paper.Authors, &d.paper.Categories, &d.paper.PublishedDate,
		&d.paper.URL, &d.paper.PDFURL, &d.paper.DOI, &d.paper.IsRelevant,
		&d.paper.FetchedDate, &d.paper.CreatedAt, &d.paper.UpdatedAt,
	}
}

func (d *paperScanDest) finalize() *domain.Paper {
	d.paper.Source = domain.SourceType(d.source)
	return &d.paper
}

// scanPaper scans a single row (pgx.Row or the current pgx.Rows row).
func scanPaper(row pgx.Row) (*domain.Paper, error) {
	var dest paperScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize(), nil
}
