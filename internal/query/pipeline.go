// Package query filters, orders and pages the stored paper corpus.
//
// Every request works on a fresh snapshot loaded from the repository; no
// result is cached between requests. The stages run in a fixed order:
// category, relevance, date range, text search, then sort and paginate.
package query

import (
	"slices"
	"strings"
	"time"

	"github.com/aidd/paper-tracker/internal/dateparse"
	"github.com/aidd/paper-tracker/internal/domain"
	"github.com/aidd/paper-tracker/internal/taxonomy"
)

// Default and maximum page sizes accepted by Paginate callers.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Filter narrows a snapshot. Zero values disable the corresponding stage.
type Filter struct {
	// Sources restricts the snapshot load. Empty means every source.
	Sources []domain.SourceType
	// NoSources is set when every requested source was unsupported.
	NoSources bool

	Categories []string
	Relevance  []domain.RelevanceStatus

	// DateStart and DateEnd bound the parsed published date inclusively.
	DateStart *time.Time
	DateEnd   *time.Time

	SearchQuery string
	SearchScope domain.SearchScope
}

// Page is one slice of an ordered result.
type Page struct {
	Papers     []*domain.Paper
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// Pipeline applies filters against a category taxonomy.
type Pipeline struct {
	tax *taxonomy.Taxonomy
}

// NewPipeline creates a pipeline. A nil taxonomy uses the embedded one.
func NewPipeline(tax *taxonomy.Taxonomy) *Pipeline {
	if tax == nil {
		tax = taxonomy.Default()
	}
	return &Pipeline{tax: tax}
}

// Apply returns the papers that pass every stage of f, in input order.
func (p *Pipeline) Apply(papers []*domain.Paper, f Filter) []*domain.Paper {
	query := strings.ToLower(f.SearchQuery)
	scope := f.SearchScope
	if scope == "" {
		scope = domain.SearchScopeTitle
	}

	out := make([]*domain.Paper, 0, len(papers))
	for _, paper := range papers {
		if len(f.Categories) > 0 && !p.tax.Matches(paper.Categories, f.Categories, paper.Source) {
			continue
		}
		if len(f.Relevance) > 0 && !slices.Contains(f.Relevance, paper.Relevance()) {
			continue
		}
		if (f.DateStart != nil || f.DateEnd != nil) && !inRange(paper.PublishedDate, f.DateStart, f.DateEnd) {
			continue
		}
		if query != "" && !matchesSearch(paper, query, scope) {
			continue
		}
		out = append(out, paper)
	}
	return out
}

func inRange(published string, start, end *time.Time) bool {
	day, ok := dateparse.ParseDate(published)
	if !ok {
		return false
	}
	if start != nil && day.Before(*start) {
		return false
	}
	if end != nil && day.After(*end) {
		return false
	}
	return true
}

// matchesSearch expects query to be lower-cased already.
func matchesSearch(paper *domain.Paper, query string, scope domain.SearchScope) bool {
	title := func() bool { return strings.Contains(strings.ToLower(paper.Title), query) }
	abstract := func() bool { return strings.Contains(strings.ToLower(paper.Abstract), query) }
	authors := func() bool {
		for _, a := range paper.Authors {
			if strings.Contains(strings.ToLower(a), query) {
				return true
			}
		}
		return false
	}

	switch scope {
	case domain.SearchScopeAbstract:
		return abstract()
	case domain.SearchScopeAuthors:
		return authors()
	case domain.SearchScopeAll:
		return title() || abstract() || authors()
	default:
		return title()
	}
}

// Sort orders papers for display: ChemRxiv papers first, newest published
// date first, then every other paper by structured id, newest first.
// Unparseable dates and malformed ids sort last within their group. Ties
// keep input order. The input slice is not modified.
func Sort(papers []*domain.Paper) []*domain.Paper {
	var chem, rest []*domain.Paper
	for _, p := range papers {
		if p.Source == domain.SourceTypeChemRxiv {
			chem = append(chem, p)
		} else {
			rest = append(rest, p)
		}
	}

	slices.SortStableFunc(chem, func(a, b *domain.Paper) int {
		return sortableDate(b.PublishedDate).Compare(sortableDate(a.PublishedDate))
	})
	slices.SortStableFunc(rest, func(a, b *domain.Paper) int {
		return dateparse.ParseStructuredID(b.ID).Compare(dateparse.ParseStructuredID(a.ID))
	})

	return append(chem, rest...)
}

func sortableDate(s string) time.Time {
	t, _ := dateparse.ParseDate(s)
	return t
}

// Paginate returns the 1-indexed page of papers. TotalPages is at least 1 so
// an empty result still reports one page.
func Paginate(papers []*domain.Paper, page, pageSize int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	total := len(papers)
	totalPages := max(1, (total+pageSize-1)/pageSize)

	// Pages past the end are empty; checking first keeps (page-1)*pageSize
	// from overflowing.
	start := total
	if page <= totalPages {
		start = min((page-1)*pageSize, total)
	}
	end := start + min(pageSize, total-start)

	return Page{
		Papers:     papers[start:end],
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
