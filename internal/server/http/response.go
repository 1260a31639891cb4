package httpserver

import (
	"time"

	"github.com/aidd/paper-tracker/internal/domain"
	"github.com/aidd/paper-tracker/internal/ingest"
	"github.com/aidd/paper-tracker/internal/query"
	"github.com/aidd/paper-tracker/internal/taxonomy"
)

type paperResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Abstract        string    `json:"abstract"`
	Authors         []string  `json:"authors"`
	Categories      []string  `json:"categories"`
	PublishedDate   string    `json:"published_date"`
	Source          string    `json:"source"`
	URL             string    `json:"url"`
	PDFURL          string    `json:"pdf_url,omitempty"`
	DOI             string    `json:"doi,omitempty"`
	IsRelevant      *int      `json:"is_relevant"`
	RelevanceStatus string    `json:"relevance_status"`
	FetchedDate     time.Time `json:"fetched_date"`
}

type listPapersResponse struct {
	Papers     []paperResponse `json:"papers"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

type updateResponse struct {
	Message        string               `json:"message"`
	PollID         string               `json:"poll_id"`
	DateFrom       string               `json:"date_from"`
	DateTo         string               `json:"date_to"`
	NewPapers      int                  `json:"new_papers"`
	TotalPapers    int                  `json:"total_papers"`
	UpdatedSources []string             `json:"updated_sources"`
	SkippedSources []string             `json:"skipped_sources,omitempty"`
	Results        []ingest.SourceStats `json:"results"`
}

type deleteResponse struct {
	Scope   string `json:"scope"`
	Deleted int64  `json:"deleted"`
}

type sourceResponse struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	Enabled           bool                `json:"enabled"`
	Categories        []taxonomy.Category `json:"categories"`
	DefaultCategories []string            `json:"default_categories"`
	PaperCount        int64               `json:"paper_count"`
}

type listSourcesResponse struct {
	Sources []sourceResponse `json:"sources"`
}

// Converter functions

func domainPaperToResponse(p *domain.Paper) paperResponse {
	resp := paperResponse{
		ID:              p.ID,
		Title:           p.Title,
		Abstract:        p.Abstract,
		Authors:         nonNil(p.Authors),
		Categories:      nonNil(p.Categories),
		PublishedDate:   p.PublishedDate,
		Source:          string(p.Source),
		URL:             p.URL,
		PDFURL:          p.PDFURL,
		DOI:             p.DOI,
		RelevanceStatus: string(p.Relevance()),
		FetchedDate:     p.FetchedDate,
	}
	if p.IsRelevant != nil {
		v := 0
		if *p.IsRelevant {
			v = 1
		}
		resp.IsRelevant = &v
	}
	return resp
}

func pageToResponse(page *query.Page) listPapersResponse {
	papers := make([]paperResponse, len(page.Papers))
	for i, p := range page.Papers {
		papers[i] = domainPaperToResponse(p)
	}
	return listPapersResponse{
		Papers:     papers,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	}
}

func pollResultToResponse(r *ingest.PollResult) updateResponse {
	return updateResponse{
		Message:        r.Message(),
		PollID:         r.PollID,
		DateFrom:       r.DateFrom,
		DateTo:         r.DateTo,
		NewPapers:      r.NewPapers,
		TotalPapers:    r.TotalPapers,
		UpdatedSources: r.UpdatedSources,
		SkippedSources: r.Skipped,
		Results:        r.Results,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
