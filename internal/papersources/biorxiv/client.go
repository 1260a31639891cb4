// Package biorxiv implements the bioRxiv adapter on top of the public
// details API, which pages through a date interval with a numeric cursor.
package biorxiv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aidd/paper-tracker/internal/dateparse"
	"github.com/aidd/paper-tracker/internal/domain"
	"github.com/aidd/paper-tracker/internal/papersources"
	"github.com/aidd/paper-tracker/internal/taxonomy"
)

const (
	// DefaultBaseURL is the default bioRxiv API base URL.
	DefaultBaseURL = "https://api.biorxiv.org"

	// DefaultServer is the preprint server queried through the details endpoint.
	DefaultServer = "biorxiv"

	// DefaultPageSize is the fixed page size of the details endpoint.
	DefaultPageSize = 100

	// DefaultRequestDelay is the courtesy delay between calls.
	DefaultRequestDelay = 500 * time.Millisecond

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// contentURLPrefix builds landing and PDF links from a DOI.
	contentURLPrefix = "https://www.biorxiv.org/content/"

	// keptType is the only item type retained.
	keptType = "new results"
)

// Config holds configuration for the bioRxiv adapter.
type Config struct {
	// BaseURL is the bioRxiv API base URL.
	BaseURL string

	// Server is the server segment of the details path.
	Server string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RequestDelay is the minimum spacing between calls. Zero disables it.
	RequestDelay time.Duration

	// MaxRetries is the number of retries on 429 and 5xx responses.
	MaxRetries int

	// PageSize is the number of items the endpoint returns per full page.
	PageSize int

	// Taxonomy supplies the supported categories. Nil uses taxonomy.Default().
	Taxonomy *taxonomy.Taxonomy

	// Enabled indicates whether this source may be polled.
	Enabled bool

	// Observer receives per-request outcomes, typically the metrics registry.
	Observer papersources.RequestObserver
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Server == "" {
		c.Server = DefaultServer
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Taxonomy == nil {
		c.Taxonomy = taxonomy.Default()
	}
}

// Client implements papersources.Fetcher for bioRxiv.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	logger     zerolog.Logger
}

// Ensure Client implements the Fetcher interface.
var _ papersources.Fetcher = (*Client)(nil)

// New creates a new bioRxiv adapter with the given configuration.
func New(cfg Config, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:      cfg.Timeout,
		RequestDelay: cfg.RequestDelay,
		MaxRetries:   cfg.MaxRetries,
		Observer:     cfg.Observer,
	})

	return NewWithHTTPClient(cfg, httpClient, logger)
}

// NewWithHTTPClient creates a new bioRxiv adapter with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("source", string(domain.SourceTypeBioRxiv)).Logger(),
	}
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeBioRxiv
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return domain.SourceTypeBioRxiv.DisplayName()
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Fetch walks the details endpoint once per category. Papers listed under
// more than one category are kept once, in first-seen order. A failed call
// ends the whole fetch with a partial result.
func (c *Client) Fetch(ctx context.Context, params papersources.FetchParams) (*papersources.FetchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &papersources.FetchResult{Source: domain.SourceTypeBioRxiv}
	defer func() { result.Duration = time.Since(start) }()

	cats, skipped := papersources.ResolveCategories(c.config.Taxonomy, domain.SourceTypeBioRxiv, params.Categories, c.logger)
	result.Categories = papersources.CategoryNames(cats)
	result.SkippedCategories = skipped

	pageSize := params.PageSize
	if pageSize == 0 {
		pageSize = c.config.PageSize
	}

	from := dateparse.FormatDay(params.DateFrom)
	to := dateparse.FormatDay(params.DateTo)

	seen := make(map[string]bool)
	for _, cat := range cats {
		papers, err := c.fetchCategory(ctx, cat.Name, from, to, pageSize, result)
		for _, p := range papers {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			result.Papers = append(result.Papers, p)
		}
		if err != nil {
			c.logger.Warn().Err(err).Str("category", cat.Name).Int("collected", len(result.Papers)).
				Msg("bioRxiv category failed; continuing with the remaining categories")
			result.MarkPartial(err)
			if ctx.Err() != nil {
				break
			}
		}
	}

	c.logger.Info().
		Int("papers", len(result.Papers)).
		Int("requests", result.Requests).
		Bool("partial", result.Partial).
		Msg("bioRxiv fetch completed")

	return result, nil
}

// fetchCategory pages through one category. The papers gathered before a
// failure are returned together with the error.
func (c *Client) fetchCategory(ctx context.Context, category, from, to string, pageSize int, result *papersources.FetchResult) ([]*domain.Paper, error) {
	var (
		papers   []*domain.Paper
		cursor   int
		consumed int
	)

	for {
		resp, err := c.fetchPage(ctx, category, from, to, cursor)
		result.Requests++
		if err != nil {
			return papers, err
		}

		if len(resp.Messages) == 0 || resp.Messages[0].Status != "ok" {
			status := ""
			if len(resp.Messages) > 0 {
				status = resp.Messages[0].Status
			}
			c.logger.Debug().Str("category", category).Int("cursor", cursor).Str("status", status).
				Msg("details endpoint reported no further results")
			return papers, nil
		}

		msg := resp.Messages[0]
		count := int(msg.Count)
		total := int(msg.Total)
		if count == 0 {
			return papers, nil
		}

		pagePapers, dropped := convertItems(resp.Collection)
		result.Dropped += dropped
		papers = append(papers, pagePapers...)
		consumed += count

		c.logger.Debug().
			Str("category", category).
			Int("cursor", cursor).
			Int("count", count).
			Int("total", total).
			Int("kept", len(pagePapers)).
			Msg("fetched details page")

		if count < pageSize || consumed >= total {
			return papers, nil
		}
		cursor += count
	}
}

func (c *Client) fetchPage(ctx context.Context, category, from, to string, cursor int) (*DetailsResponse, error) {
	detailsURL, err := c.buildDetailsURL(category, from, to, cursor)
	if err != nil {
		return nil, fmt.Errorf("building details URL: %w", err)
	}

	body, err := c.httpClient.Get(ctx, domain.SourceTypeBioRxiv, detailsURL, "application/json")
	if err != nil {
		return nil, err
	}

	var resp DetailsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewExternalAPIError(string(domain.SourceTypeBioRxiv), http.StatusOK, "decoding response", err)
	}
	return &resp, nil
}

// buildDetailsURL constructs /details/{server}/{from}/{to}/{cursor}?category=.
func (c *Client) buildDetailsURL(category, from, to string, cursor int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") +
		"/details/" + c.config.Server + "/" + from + "/" + to + "/" + strconv.Itoa(cursor)

	query := url.Values{}
	query.Set("category", strings.ReplaceAll(category, " ", "_"))
	baseURL.RawQuery = query.Encode()

	return baseURL.String(), nil
}

// convertItems keeps the "new results" items that carry a DOI.
func convertItems(items []Item) ([]*domain.Paper, int) {
	papers := make([]*domain.Paper, 0, len(items))
	dropped := 0
	fetched := time.Now().UTC()

	for i := range items {
		item := &items[i]
		if item.Type != keptType {
			continue
		}
		paper := itemToPaper(item)
		if paper == nil {
			dropped++
			continue
		}
		paper.FetchedDate = fetched
		papers = append(papers, paper)
	}
	return papers, dropped
}

func itemToPaper(item *Item) *domain.Paper {
	doi := strings.TrimSpace(item.DOI)
	if doi == "" {
		return nil
	}

	var categories []string
	if item.Category != "" {
		categories = []string{strings.TrimSpace(item.Category)}
	}

	return &domain.Paper{
		ID:            doiSuffix(doi),
		Title:         strings.Join(strings.Fields(item.Title), " "),
		Abstract:      strings.Join(strings.Fields(item.Abstract), " "),
		Authors:       parseAuthors(item.Authors),
		Categories:    categories,
		PublishedDate: strings.TrimSpace(item.Date),
		Source:        domain.SourceTypeBioRxiv,
		URL:           contentURLPrefix + doi,
		PDFURL:        contentURLPrefix + doi + ".full.pdf",
		DOI:           doi,
	}
}

// doiSuffix returns the part of a DOI after its last slash.
func doiSuffix(doi string) string {
	if i := strings.LastIndex(doi, "/"); i >= 0 {
		return doi[i+1:]
	}
	return doi
}

// parseAuthors turns "Last, First; Last, First" into "First Last" names.
func parseAuthors(raw string) []string {
	var authors []string
	for _, part := range strings.Split(raw, ";") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if last, first, ok := strings.Cut(name, ","); ok {
			if n := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last)); n != "" {
				name = n
			}
		}
		authors = append(authors, name)
	}
	return authors
}
