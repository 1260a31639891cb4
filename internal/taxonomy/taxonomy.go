// Package taxonomy holds the per-source category vocabularies and the
// source-scoped category matcher used by filtering and statistics.
package taxonomy

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aidd/paper-tracker/internal/domain"
)

//go:embed taxonomy.yaml
var defaultTable []byte

// Category is one entry of a source vocabulary.
type Category struct {
	Name  string `yaml:"name" json:"id"`
	Label string `yaml:"label" json:"name"`
	// RemoteID is the upstream identifier used in API queries, when it differs from Name.
	RemoteID string `yaml:"remote_id" json:"-"`
	// Aliases are the raw upstream category strings that fold into this bucket.
	// A category with aliases is matched by alias membership instead of by name.
	Aliases []string `yaml:"aliases" json:"-"`
}

// Aliased reports whether the category folds several upstream strings together.
func (c Category) Aliased() bool {
	return len(c.Aliases) > 0
}

// SourceTable is the vocabulary of a single source.
type SourceTable struct {
	Source     domain.SourceType `yaml:"source"`
	Categories []Category        `yaml:"categories"`
	Defaults   []string          `yaml:"defaults"`
}

type file struct {
	Sources []SourceTable `yaml:"sources"`
}

// Taxonomy is an immutable lookup over all source vocabularies.
type Taxonomy struct {
	sources []SourceTable
	bySrc   map[domain.SourceType]*SourceTable
	// owner maps a lower-cased category name to its owning source.
	owner map[string]domain.SourceType
	// byName maps a lower-cased category name to its definition.
	byName map[string]Category
}

// Parse builds a Taxonomy from a YAML document.
func Parse(data []byte) (*Taxonomy, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}

	t := &Taxonomy{
		sources: f.Sources,
		bySrc:   make(map[domain.SourceType]*SourceTable, len(f.Sources)),
		owner:   make(map[string]domain.SourceType),
		byName:  make(map[string]Category),
	}

	for i := range t.sources {
		st := &t.sources[i]
		if !st.Source.IsValid() {
			return nil, fmt.Errorf("taxonomy: %w: %q", domain.ErrUnsupportedSource, st.Source)
		}
		t.bySrc[st.Source] = st
		for _, c := range st.Categories {
			key := strings.ToLower(c.Name)
			if prev, dup := t.owner[key]; dup {
				return nil, fmt.Errorf("taxonomy: category %q declared by both %s and %s", c.Name, prev, st.Source)
			}
			t.owner[key] = st.Source
			t.byName[key] = c
		}
	}

	return t, nil
}

// Default returns the embedded taxonomy. It panics if the embedded table is malformed.
func Default() *Taxonomy {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(err)
	}
	return t
}

// Sources returns the source tables in declaration order.
func (t *Taxonomy) Sources() []SourceTable {
	out := make([]SourceTable, len(t.sources))
	copy(out, t.sources)
	return out
}

// Categories returns the vocabulary of source, or nil when it is unknown.
func (t *Taxonomy) Categories(source domain.SourceType) []Category {
	st, ok := t.bySrc[source]
	if !ok {
		return nil
	}
	return st.Categories
}

// CategoryNames returns the category names of source.
func (t *Taxonomy) CategoryNames(source domain.SourceType) []string {
	cats := t.Categories(source)
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	return names
}

// Defaults returns the categories polled for source when none are requested.
func (t *Taxonomy) Defaults(source domain.SourceType) []string {
	st, ok := t.bySrc[source]
	if !ok {
		return nil
	}
	out := make([]string, len(st.Defaults))
	copy(out, st.Defaults)
	return out
}

// Owner returns the source whose vocabulary declares category.
func (t *Taxonomy) Owner(category string) (domain.SourceType, bool) {
	src, ok := t.owner[strings.ToLower(category)]
	return src, ok
}

// Lookup returns the definition of category within source.
func (t *Taxonomy) Lookup(source domain.SourceType, category string) (Category, bool) {
	key := strings.ToLower(category)
	if t.owner[key] != source {
		return Category{}, false
	}
	c, ok := t.byName[key]
	return c, ok
}

// Supported splits requested into categories source understands and the rest.
func (t *Taxonomy) Supported(source domain.SourceType, requested []string) (supported, unsupported []string) {
	for _, name := range requested {
		if c, ok := t.Lookup(source, name); ok {
			supported = append(supported, c.Name)
			continue
		}
		unsupported = append(unsupported, name)
	}
	return supported, unsupported
}
