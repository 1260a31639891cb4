package taxonomy

import (
	"strings"

	"github.com/aidd/paper-tracker/internal/domain"
)

// Matches reports whether any of filters selects a paper from source carrying
// paperCategories.
//
// A filter owned by another source's vocabulary never matches. Aliased
// categories match by exact membership of a raw paper category in the alias
// list. All other filters match case-insensitively, either exactly or as a
// dotted prefix, so "q-bio" selects "q-bio.BM" but not "q-biology". Filters
// that no vocabulary declares are applied to every source.
func (t *Taxonomy) Matches(paperCategories, filters []string, source domain.SourceType) bool {
	for _, filter := range filters {
		owner, known := t.Owner(filter)
		if known && owner != source {
			continue
		}

		if known {
			if c := t.byName[strings.ToLower(filter)]; c.Aliased() {
				if containsExact(paperCategories, c.Aliases) {
					return true
				}
				continue
			}
		}

		if matchesHierarchical(paperCategories, filter) {
			return true
		}
	}
	return false
}

// MatchesCategory is Matches for a single filter value.
func (t *Taxonomy) MatchesCategory(paperCategories []string, category string, source domain.SourceType) bool {
	return t.Matches(paperCategories, []string{category}, source)
}

func matchesHierarchical(paperCategories []string, filter string) bool {
	want := strings.ToLower(filter)
	for _, raw := range paperCategories {
		got := strings.ToLower(raw)
		if got == want || strings.HasPrefix(got, want+".") {
			return true
		}
	}
	return false
}

func containsExact(paperCategories, aliases []string) bool {
	for _, raw := range paperCategories {
		for _, alias := range aliases {
			if raw == alias {
				return true
			}
		}
	}
	return false
}
