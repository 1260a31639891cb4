package query

import (
	"github.com/aidd/paper-tracker/internal/domain"
)

// Stats summarizes a filtered snapshot.
type Stats struct {
	Total      int            `json:"total"`
	Relevant   int            `json:"relevant"`
	Irrelevant int            `json:"irrelevant"`
	Untagged   int            `json:"untagged"`
	BySource   map[string]int `json:"by_source"`
	ByCategory map[string]int `json:"by_category"`
}

// Stats counts papers by relevance, source and category. Every category of
// every source is present in ByCategory even when its count is zero, and a
// paper only counts toward categories of its own source.
func (p *Pipeline) Stats(papers []*domain.Paper) Stats {
	stats := Stats{
		Total:      len(papers),
		BySource:   make(map[string]int),
		ByCategory: make(map[string]int),
	}
	for _, table := range p.tax.Sources() {
		for _, c := range table.Categories {
			stats.ByCategory[c.Name] = 0
		}
	}

	for _, paper := range papers {
		switch paper.Relevance() {
		case domain.RelevanceRelevant:
			stats.Relevant++
		case domain.RelevanceIrrelevant:
			stats.Irrelevant++
		default:
			stats.Untagged++
		}

		stats.BySource[string(paper.Source)]++

		for _, c := range p.tax.Categories(paper.Source) {
			if p.tax.MatchesCategory(paper.Categories, c.Name, paper.Source) {
				stats.ByCategory[c.Name]++
			}
		}
	}
	return stats
}
