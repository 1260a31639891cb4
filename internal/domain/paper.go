package domain

import (
	"time"
)

// Paper is the canonical record every source adapter produces.
//
// ID is only unique within Source. PublishedDate keeps the source-native
// string; use the dateparse package to interpret it.
type Paper struct {
	ID            string
	Title         string
	Abstract      string
	Authors       []string
	Categories    []string
	PublishedDate string
	Source        SourceType
	URL           string
	PDFURL        string
	DOI           string
	IsRelevant    *bool
	FetchedDate   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Key returns the composite identity of the paper.
func (p *Paper) Key() PaperKey {
	return PaperKey{Source: p.Source, ID: p.ID}
}

// Relevance maps the tri-state IsRelevant field onto a RelevanceStatus.
func (p *Paper) Relevance() RelevanceStatus {
	switch {
	case p.IsRelevant == nil:
		return RelevanceUntagged
	case *p.IsRelevant:
		return RelevanceRelevant
	default:
		return RelevanceIrrelevant
	}
}

// PaperKey identifies a paper across sources.
type PaperKey struct {
	Source SourceType
	ID     string
}

// String renders the key as "source:id".
func (k PaperKey) String() string {
	return string(k.Source) + ":" + k.ID
}

// BoolPtr returns a pointer to b. Handy for populating IsRelevant.
func BoolPtr(b bool) *bool {
	return &b
}
