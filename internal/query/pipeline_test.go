package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aidd/paper-tracker/internal/domain"
)

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func ids(papers []*domain.Paper) []string {
	out := make([]string, len(papers))
	for i, p := range papers {
		out[i] = p.ID
	}
	return out
}

func corpus() []*domain.Paper {
	return []*domain.Paper{
		{
			ID: "2405.00010", Source: domain.SourceTypeArXiv, Title: "Protein folding with transformers",
			Abstract: "We study folding.", Authors: []string{"Ada Lovelace"},
			Categories: []string{"q-bio.BM", "cs.LG"}, PublishedDate: "14 May, 2024", IsRelevant: domain.BoolPtr(true),
		},
		{
			ID: "2404.00200", Source: domain.SourceTypeArXiv, Title: "A biology survey",
			Abstract: "Broad overview of DIFFUSION models.", Authors: []string{"Alan Turing"},
			Categories: []string{"q-biology"}, PublishedDate: "2 April, 2024", IsRelevant: domain.BoolPtr(false),
		},
		{
			ID: "2024.05.01.590001", Source: domain.SourceTypeBioRxiv, Title: "Enzyme kinetics",
			Authors: []string{"Grace Hopper"}, Categories: []string{"biochemistry"}, PublishedDate: "2024-05-01",
		},
		{
			ID: "chem-a", Source: domain.SourceTypeChemRxiv, Title: "DFT benchmarks",
			Categories: []string{"Theory - Computational"}, PublishedDate: "2024-03-10T08:00:00Z",
		},
		{
			ID: "chem-b", Source: domain.SourceTypeChemRxiv, Title: "Drug discovery",
			Categories: []string{"Biochemistry"}, PublishedDate: "2024-05-02", IsRelevant: domain.BoolPtr(true),
		},
		{
			ID: "chem-c", Source: domain.SourceTypeChemRxiv, Title: "Undated preprint",
			Categories: []string{"Unmapped"}, PublishedDate: "sometime",
		},
	}
}

func TestPipeline_Apply(t *testing.T) {
	p := NewPipeline(nil)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{
			name: "no filters",
			want: []string{"2405.00010", "2404.00200", "2024.05.01.590001", "chem-a", "chem-b", "chem-c"},
		},
		{
			name:   "hierarchical category",
			filter: Filter{Categories: []string{"q-bio"}},
			want:   []string{"2405.00010"},
		},
		{
			name:   "category is source scoped",
			filter: Filter{Categories: []string{"biochemistry"}},
			want:   []string{"2024.05.01.590001"},
		},
		{
			name:   "aliased bucket",
			filter: Filter{Categories: []string{"biological_medicinal", "theoretical_computational"}},
			want:   []string{"chem-a", "chem-b"},
		},
		{
			name:   "relevance statuses are ORed",
			filter: Filter{Relevance: []domain.RelevanceStatus{domain.RelevanceIrrelevant, domain.RelevanceUntagged}},
			want:   []string{"2404.00200", "2024.05.01.590001", "chem-a", "chem-c"},
		},
		{
			name:   "inclusive date range drops unparseable dates",
			filter: Filter{DateStart: day("2024-05-01"), DateEnd: day("2024-05-14")},
			want:   []string{"2405.00010", "2024.05.01.590001", "chem-b"},
		},
		{
			name:   "open ended date range",
			filter: Filter{DateEnd: day("2024-04-02")},
			want:   []string{"2404.00200", "chem-a"},
		},
		{
			name:   "title search is the default scope",
			filter: Filter{SearchQuery: "PROTEIN"},
			want:   []string{"2405.00010"},
		},
		{
			name:   "abstract search",
			filter: Filter{SearchQuery: "diffusion", SearchScope: domain.SearchScopeAbstract},
			want:   []string{"2404.00200"},
		},
		{
			name:   "author search",
			filter: Filter{SearchQuery: "hopper", SearchScope: domain.SearchScopeAuthors},
			want:   []string{"2024.05.01.590001"},
		},
		{
			name:   "all scopes",
			filter: Filter{SearchQuery: "tur", SearchScope: domain.SearchScopeAll},
			want:   []string{"2404.00200"},
		},
		{
			name: "stages combine",
			filter: Filter{
				Categories: []string{"cs.LG", "biological_medicinal"},
				Relevance:  []domain.RelevanceStatus{domain.RelevanceRelevant},
				DateStart:  day("2024-05-02"),
			},
			want: []string{"2405.00010", "chem-b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(p.Apply(corpus(), tt.filter)))
		})
	}
}

func TestSort(t *testing.T) {
	papers := corpus()
	papers = append(papers, &domain.Paper{ID: "malformed", Source: domain.SourceTypeArXiv})

	sorted := Sort(papers)

	assert.Equal(t, []string{
		"chem-b", "chem-a", "chem-c",
		"2405.00010", "2404.00200", "2024.05.01.590001", "malformed",
	}, ids(sorted))
	assert.Equal(t, "2405.00010", papers[0].ID, "input must not be reordered")
}

func TestSort_TiesKeepInputOrder(t *testing.T) {
	papers := []*domain.Paper{
		{ID: "x", Source: domain.SourceTypeChemRxiv, PublishedDate: "2024-01-01"},
		{ID: "y", Source: domain.SourceTypeChemRxiv, PublishedDate: "2024-01-01"},
	}
	assert.Equal(t, []string{"x", "y"}, ids(Sort(papers)))
}

func TestPaginate(t *testing.T) {
	papers := make([]*domain.Paper, 25)
	for i := range papers {
		papers[i] = &domain.Paper{ID: fmt.Sprintf("p-%02d", i)}
	}

	tests := []struct {
		name      string
		page      int
		size      int
		wantLen   int
		wantPages int
		wantFirst string
	}{
		{name: "first page", page: 1, size: 20, wantLen: 20, wantPages: 2, wantFirst: "p-00"},
		{name: "last partial page", page: 2, size: 20, wantLen: 5, wantPages: 2, wantFirst: "p-20"},
		{name: "past the end", page: 5, size: 20, wantLen: 0, wantPages: 2},
		{name: "exact fit", page: 1, size: 25, wantLen: 25, wantPages: 1, wantFirst: "p-00"},
		{name: "defaults", page: 0, size: 0, wantLen: 20, wantPages: 2, wantFirst: "p-00"},
		{name: "huge page number", page: 1 << 62, size: 20, wantLen: 0, wantPages: 2},
		{name: "huge page size", page: 1, size: math.MaxInt, wantLen: 25, wantPages: 1, wantFirst: "p-00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Paginate(papers, tt.page, tt.size)
			assert.Len(t, got.Papers, tt.wantLen)
			assert.Equal(t, 25, got.Total)
			assert.Equal(t, tt.wantPages, got.TotalPages)
			if tt.wantFirst != "" {
				assert.Equal(t, tt.wantFirst, got.Papers[0].ID)
			}
		})
	}

	t.Run("empty result has one page", func(t *testing.T) {
		got := Paginate(nil, 1, 20)
		assert.Empty(t, got.Papers)
		assert.Equal(t, 1, got.TotalPages)
		assert.Zero(t, got.Total)
	})
}

func TestPipeline_Stats(t *testing.T) {
	stats := NewPipeline(nil).Stats(corpus())

	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 2, stats.Relevant)
	assert.Equal(t, 1, stats.Irrelevant)
	assert.Equal(t, 3, stats.Untagged)
	assert.Equal(t, stats.Total, stats.Relevant+stats.Irrelevant+stats.Untagged)
	assert.Equal(t, map[string]int{"arxiv": 2, "biorxiv": 1, "chemrxiv": 3}, stats.BySource)

	assert.Equal(t, map[string]int{
		"physics.chem-ph":           0,
		"cs.AI":                     0,
		"cs.LG":                     1,
		"q-bio":                     1,
		"biochemistry":              1,
		"bioinformatics":            0,
		"biophysics":                0,
		"synthetic biology":         0,
		"theoretical_computational": 1,
		"biological_medicinal":      1,
	}, stats.ByCategory)
}

func TestPipeline_StatsEmpty(t *testing.T) {
	stats := NewPipeline(nil).Stats(nil)

	assert.Zero(t, stats.Total)
	assert.Empty(t, stats.BySource)
	assert.Len(t, stats.ByCategory, 10)
}

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) ListBySource(ctx context.Context, sources []domain.SourceType) ([]*domain.Paper, error) {
	args := m.Called(ctx, sources)
	papers, _ := args.Get(0).([]*domain.Paper)
	return papers, args.Error(1)
}

func TestService(t *testing.T) {
	ctx := context.Background()

	t.Run("list loads the requested sources then sorts and pages", func(t *testing.T) {
		loader := new(mockLoader)
		sources := []domain.SourceType{domain.SourceTypeChemRxiv}
		loader.On("ListBySource", ctx, sources).Return(corpus()[3:], nil)
		svc := NewService(loader, nil, zerolog.Nop())

		page, err := svc.List(ctx, Filter{Sources: sources}, 1, 2)
		require.NoError(t, err)

		assert.Equal(t, []string{"chem-b", "chem-a"}, ids(page.Papers))
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, 2, page.TotalPages)
		loader.AssertExpectations(t)
	})

	t.Run("stats", func(t *testing.T) {
		loader := new(mockLoader)
		loader.On("ListBySource", ctx, []domain.SourceType(nil)).Return(corpus(), nil)
		svc := NewService(loader, nil, zerolog.Nop())

		stats, err := svc.Stats(ctx, Filter{Relevance: []domain.RelevanceStatus{domain.RelevanceRelevant}})
		require.NoError(t, err)

		assert.Equal(t, 2, stats.Total)
		assert.Equal(t, 2, stats.Relevant)
	})

	t.Run("load failure", func(t *testing.T) {
		loader := new(mockLoader)
		loader.On("ListBySource", ctx, mock.Anything).Return(nil, errors.New("pool closed"))
		svc := NewService(loader, nil, zerolog.Nop())

		_, err := svc.List(ctx, Filter{}, 1, 20)
		assert.ErrorContains(t, err, "pool closed")
	})

	t.Run("inverted date range", func(t *testing.T) {
		svc := NewService(new(mockLoader), nil, zerolog.Nop())

		_, err := svc.Stats(ctx, Filter{DateStart: day("2024-05-02"), DateEnd: day("2024-05-01")})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("no supported source matches nothing without loading", func(t *testing.T) {
		loader := new(mockLoader)
		svc := NewService(loader, nil, zerolog.Nop())

		page, err := svc.List(ctx, Filter{NoSources: true}, 1, 20)
		require.NoError(t, err)
		assert.Zero(t, page.Total)
		assert.Empty(t, page.Papers)

		stats, err := svc.Stats(ctx, Filter{NoSources: true})
		require.NoError(t, err)
		assert.Zero(t, stats.Total)
		loader.AssertNotCalled(t, "ListBySource", mock.Anything, mock.Anything)
	})
}
