// Package domain provides the domain models shared by the paper tracker components.
package domain

import (
	"fmt"
	"strings"
)

// SourceType identifies an upstream preprint server.
// These values are stored in the papers.source column and used in API paths.
type SourceType string

const (
	SourceTypeArXiv    SourceType = "arxiv"
	SourceTypeBioRxiv  SourceType = "biorxiv"
	SourceTypeChemRxiv SourceType = "chemrxiv"
)

// AllSourceTypes lists the supported sources in their canonical order.
func AllSourceTypes() []SourceType {
	return []SourceType{SourceTypeArXiv, SourceTypeBioRxiv, SourceTypeChemRxiv}
}

// DisplayName returns the human readable name of the source.
func (s SourceType) DisplayName() string {
	switch s {
	case SourceTypeArXiv:
		return "arXiv"
	case SourceTypeBioRxiv:
		return "bioRxiv"
	case SourceTypeChemRxiv:
		return "ChemRxiv"
	default:
		return string(s)
	}
}

// IsValid reports whether s is one of the supported sources.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceTypeArXiv, SourceTypeBioRxiv, SourceTypeChemRxiv:
		return true
	default:
		return false
	}
}

// ParseSourceType converts a user supplied source name into a SourceType.
// Matching is case-insensitive so both "arxiv" and "arXiv" are accepted.
func ParseSourceType(raw string) (SourceType, error) {
	st := SourceType(strings.ToLower(strings.TrimSpace(raw)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedSource, raw)
	}
	return st, nil
}

// RelevanceStatus is the filter vocabulary for the tri-state relevance tag.
type RelevanceStatus string

const (
	RelevanceRelevant   RelevanceStatus = "relevant"
	RelevanceIrrelevant RelevanceStatus = "irrelevant"
	RelevanceUntagged   RelevanceStatus = "untagged"
)

// IsValid reports whether r is a known relevance status.
func (r RelevanceStatus) IsValid() bool {
	switch r {
	case RelevanceRelevant, RelevanceIrrelevant, RelevanceUntagged:
		return true
	default:
		return false
	}
}

// SearchScope selects which fields the text search inspects.
type SearchScope string

const (
	SearchScopeTitle    SearchScope = "title"
	SearchScopeAbstract SearchScope = "abstract"
	SearchScopeAuthors  SearchScope = "authors"
	SearchScopeAll      SearchScope = "all"
)

// IsValid reports whether s is a known search scope.
func (s SearchScope) IsValid() bool {
	switch s {
	case SearchScopeTitle, SearchScopeAbstract, SearchScopeAuthors, SearchScopeAll:
		return true
	default:
		return false
	}
}
