package papersources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidd/paper-tracker/internal/domain"
)

// stubFetcher implements Fetcher for registry tests.
type stubFetcher struct {
	sourceType domain.SourceType
	enabled    bool
}

func (s *stubFetcher) Fetch(_ context.Context, _ FetchParams) (*FetchResult, error) {
	return &FetchResult{Source: s.sourceType}, nil
}

func (s *stubFetcher) SourceType() domain.SourceType { return s.sourceType }
func (s *stubFetcher) Name() string                  { return s.sourceType.DisplayName() }
func (s *stubFetcher) IsEnabled() bool               { return s.enabled }

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.Register(&stubFetcher{sourceType: domain.SourceTypeChemRxiv, enabled: true})
	r.Register(&stubFetcher{sourceType: domain.SourceTypeArXiv, enabled: true})
	r.Register(&stubFetcher{sourceType: domain.SourceTypeBioRxiv, enabled: false})
	return r
}

func sourceTypes(fetchers []Fetcher) []domain.SourceType {
	out := make([]domain.SourceType, len(fetchers))
	for i, f := range fetchers {
		out[i] = f.SourceType()
	}
	return out
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get(domain.SourceTypeArXiv))

	r.Register(&stubFetcher{sourceType: domain.SourceTypeArXiv})
	r.Register(&stubFetcher{sourceType: domain.SourceTypeArXiv, enabled: true})

	got := r.Get(domain.SourceTypeArXiv)
	require.NotNil(t, got)
	assert.True(t, got.IsEnabled(), "second registration replaces the first")
	assert.Len(t, r.AllSources(), 1)
}

func TestRegistry_AllSourcesOrdered(t *testing.T) {
	r := newTestRegistry()

	assert.Equal(t,
		[]domain.SourceType{domain.SourceTypeArXiv, domain.SourceTypeBioRxiv, domain.SourceTypeChemRxiv},
		sourceTypes(r.AllSources()))
	assert.Equal(t,
		[]domain.SourceType{domain.SourceTypeArXiv, domain.SourceTypeChemRxiv},
		sourceTypes(r.EnabledSources()))
}

func TestRegistry_Resolve(t *testing.T) {
	r := newTestRegistry()

	t.Run("empty request resolves to enabled sources", func(t *testing.T) {
		resolved, skipped := r.Resolve(nil)
		assert.Equal(t, []domain.SourceType{domain.SourceTypeArXiv, domain.SourceTypeChemRxiv}, sourceTypes(resolved))
		assert.Empty(t, skipped)
	})

	t.Run("unknown and disabled names are skipped", func(t *testing.T) {
		resolved, skipped := r.Resolve([]string{"ChemRxiv", "medrxiv", "biorxiv", "chemrxiv"})
		assert.Equal(t, []domain.SourceType{domain.SourceTypeChemRxiv}, sourceTypes(resolved))
		assert.Equal(t, []string{"medrxiv", "biorxiv"}, skipped)
	})
}
