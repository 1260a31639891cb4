package papersources

import (
	"sort"
	"sync"

	"github.com/aidd/paper-tracker/internal/domain"
)

// Registry holds the configured source adapters.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceType]Fetcher
}

// NewRegistry creates a new, empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[domain.SourceType]Fetcher),
	}
}

// Register adds a source. A source with the same type is replaced.
func (r *Registry) Register(source Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.SourceType()] = source
}

// Get returns a source by type, or nil if not found.
func (r *Registry) Get(sourceType domain.SourceType) Fetcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[sourceType]
}

// AllSources returns all registered sources in canonical source order.
func (r *Registry) AllSources() []Fetcher {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]Fetcher, 0, len(r.sources))
	for _, source := range r.sources {
		sources = append(sources, source)
	}
	sortFetchers(sources)
	return sources
}

// EnabledSources returns the enabled sources in canonical source order.
func (r *Registry) EnabledSources() []Fetcher {
	all := r.AllSources()
	enabled := all[:0]
	for _, source := range all {
		if source.IsEnabled() {
			enabled = append(enabled, source)
		}
	}
	return enabled
}

// Resolve maps requested source names onto enabled adapters. Unknown,
// unregistered and disabled names are returned separately so the caller can
// warn about them. An empty request resolves to every enabled source.
func (r *Registry) Resolve(names []string) (resolved []Fetcher, skipped []string) {
	if len(names) == 0 {
		return r.EnabledSources(), nil
	}

	seen := make(map[domain.SourceType]bool, len(names))
	for _, name := range names {
		st, err := domain.ParseSourceType(name)
		if err != nil {
			skipped = append(skipped, name)
			continue
		}
		if seen[st] {
			continue
		}
		seen[st] = true

		source := r.Get(st)
		if source == nil || !source.IsEnabled() {
			skipped = append(skipped, name)
			continue
		}
		resolved = append(resolved, source)
	}
	return resolved, skipped
}

func sortFetchers(sources []Fetcher) {
	order := make(map[domain.SourceType]int)
	for i, st := range domain.AllSourceTypes() {
		order[st] = i
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return order[sources[i].SourceType()] < order[sources[j].SourceType()]
	})
}
