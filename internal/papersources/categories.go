package papersources

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/aidd/paper-tracker/internal/domain"
	"github.com/aidd/paper-tracker/internal/taxonomy"
)

// ResolveCategories maps requested category names onto the vocabulary of
// source. An empty request selects the source defaults. Names the source
// does not declare are returned in skipped and logged as warnings.
func ResolveCategories(tax *taxonomy.Taxonomy, source domain.SourceType, requested []string, logger zerolog.Logger) (resolved []taxonomy.Category, skipped []string) {
	return resolveCategories(tax, source, requested, false, logger)
}

// ResolveSearchTerms is ResolveCategories for sources whose search accepts
// free terms: undeclared names are kept as-is and logged instead of skipped.
func ResolveSearchTerms(tax *taxonomy.Taxonomy, source domain.SourceType, requested []string, logger zerolog.Logger) []taxonomy.Category {
	resolved, _ := resolveCategories(tax, source, requested, true, logger)
	return resolved
}

func resolveCategories(tax *taxonomy.Taxonomy, source domain.SourceType, requested []string, keepUnknown bool, logger zerolog.Logger) (resolved []taxonomy.Category, skipped []string) {
	names := requested
	if len(names) == 0 {
		names = tax.Defaults(source)
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		c, ok := tax.Lookup(source, name)
		switch {
		case ok:
		case keepUnknown && strings.TrimSpace(name) != "":
			c = taxonomy.Category{Name: strings.TrimSpace(name)}
			logger.Warn().
				Str("source", string(source)).
				Str("category", c.Name).
				Msg("category not in taxonomy; searching it as a raw term")
		default:
			skipped = append(skipped, name)
			logger.Warn().
				Str("source", string(source)).
				Str("category", name).
				Msg("skipping unsupported category")
			continue
		}
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		resolved = append(resolved, c)
	}
	return resolved, skipped
}

// CategoryNames returns the names of cats.
func CategoryNames(cats []taxonomy.Category) []string {
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	return names
}
