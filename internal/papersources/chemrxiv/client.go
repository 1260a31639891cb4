// Package chemrxiv implements the ChemRxiv adapter on top of the Cambridge
// Open Engage public items API, which pages with skip and limit.
package chemrxiv

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
	// DefaultBaseURL is the default ChemRxiv public API base URL.
	DefaultBaseURL = "https://chemrxiv.org/engage/chemrxiv/public-api/v1"

	// DefaultPageSize is the limit sent with every items call.
	DefaultPageSize = 50

	// DefaultRequestDelay is the courtesy delay between calls.
	DefaultRequestDelay = 500 * time.Millisecond

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultSort orders items newest first.
	DefaultSort = "PUBLISHED_DATE_DESC"

	articleURLPrefix = "https://chemrxiv.org/engage/chemrxiv/article-details/"
)

// Config holds configuration for the ChemRxiv adapter.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	RequestDelay time.Duration
	MaxRetries   int
	PageSize     int

	// Taxonomy maps category names to remote category ids. Nil uses
	// taxonomy.Default().
	Taxonomy *taxonomy.Taxonomy

	Enabled bool

	// Observer receives per-request outcomes, typically the metrics registry.
	Observer papersources.RequestObserver
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
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

// Client implements papersources.Fetcher for ChemRxiv.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	logger     zerolog.Logger
}

// Ensure Client implements the Fetcher interface.
var _ papersources.Fetcher = (*Client)(nil)

// New creates a new ChemRxiv adapter with the given configuration.
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

// NewWithHTTPClient creates a new ChemRxiv adapter with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("source", string(domain.SourceTypeChemRxiv)).Logger(),
	}
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeChemRxiv
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return domain.SourceTypeChemRxiv.DisplayName()
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Fetch pages through each requested category. When the same paper comes
// back under several categories the copy with the later published date is
// kept in the position of its first appearance.
func (c *Client) Fetch(ctx context.Context, params papersources.FetchParams) (*papersources.FetchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &papersources.FetchResult{Source: domain.SourceTypeChemRxiv}
	defer func() { result.Duration = time.Since(start) }()

	cats, skipped := papersources.ResolveCategories(c.config.Taxonomy, domain.SourceTypeChemRxiv, params.Categories, c.logger)
	result.Categories = papersources.CategoryNames(cats)
	result.SkippedCategories = skipped

	pageSize := params.PageSize
	if pageSize == 0 {
		pageSize = c.config.PageSize
	}

	from := dateparse.FormatDay(params.DateFrom)
	to := dateparse.FormatDay(params.DateTo)

	index := make(map[string]int)
	for _, cat := range cats {
		if cat.RemoteID == "" {
			c.logger.Warn().Str("category", cat.Name).Msg("category has no remote id; skipping")
			continue
		}

		papers, err := c.fetchCategory(ctx, cat.RemoteID, from, to, pageSize, result)
		for _, p := range papers {
			i, dup := index[p.ID]
			if !dup {
				index[p.ID] = len(result.Papers)
				result.Papers = append(result.Papers, p)
				continue
			}
			if p.PublishedDate > result.Papers[i].PublishedDate {
				result.Papers[i] = p
			}
		}
		if err != nil {
			c.logger.Warn().Err(err).Str("category", cat.Name).Int("collected", len(result.Papers)).
				Msg("ChemRxiv category failed; continuing with the remaining categories")
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
		Msg("ChemRxiv fetch completed")

	return result, nil
}

// fetchCategory pages through one remote category id until the reported
// total is covered or a page comes back empty.
func (c *Client) fetchCategory(ctx context.Context, categoryID, from, to string, pageSize int, result *papersources.FetchResult) ([]*domain.Paper, error) {
	var papers []*domain.Paper

	for skip := 0; ; skip += pageSize {
		resp, err := c.fetchPage(ctx, categoryID, from, to, skip, pageSize)
		result.Requests++
		if err != nil {
			return papers, err
		}

		returned := len(resp.ItemHits)
		if returned == 0 {
			return papers, nil
		}

		for i := range resp.ItemHits {
			paper := itemToPaper(&resp.ItemHits[i].Item)
			if paper == nil {
				result.Dropped++
				continue
			}
			papers = append(papers, paper)
		}

		c.logger.Debug().
			Str("category_id", categoryID).
			Int("skip", skip).
			Int("returned", returned).
			Int("total", resp.TotalCount).
			Msg("fetched items page")

		if skip+returned >= resp.TotalCount {
			return papers, nil
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, categoryID, from, to string, skip, limit int) (*ItemsResponse, error) {
	itemsURL, err := c.buildItemsURL(categoryID, from, to, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("building items URL: %w", err)
	}

	body, err := c.httpClient.Get(ctx, domain.SourceTypeChemRxiv, itemsURL, "application/json")
	if err != nil {
		return nil, err
	}

	var resp ItemsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewExternalAPIError(string(domain.SourceTypeChemRxiv), http.StatusOK, "decoding response", err)
	}
	return &resp, nil
}

func (c *Client) buildItemsURL(categoryID, from, to string, skip, limit int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/items"

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("skip", strconv.Itoa(skip))
	query.Set("sort", DefaultSort)
	query.Set("searchDateFrom", from)
	query.Set("searchDateTo", to)
	query.Set("categoryIds", categoryID)
	baseURL.RawQuery = query.Encode()

	return baseURL.String(), nil
}

// itemToPaper converts an API item. Items with neither a DOI nor an item id
// cannot be keyed and yield nil.
func itemToPaper(item *Item) *domain.Paper {
	itemID := strings.TrimSpace(item.ID)
	doi := strings.TrimSpace(item.DOI)

	id := itemID
	if i := strings.LastIndex(doi, "/"); i >= 0 && i < len(doi)-1 {
		id = doi[i+1:]
	}
	if id == "" {
		return nil
	}

	authors := make([]string, 0, len(item.Authors))
	for _, a := range item.Authors {
		first := strings.TrimSpace(a.FirstName)
		last := strings.TrimSpace(a.LastName)
		switch {
		case first != "" && last != "":
			authors = append(authors, first+" "+last)
		case last != "":
			authors = append(authors, last)
		}
	}

	var categories []string
	for _, cat := range item.Categories {
		if name := strings.TrimSpace(cat.Name); name != "" {
			categories = append(categories, name)
		}
	}

	var pdfURL string
	if item.Asset != nil && item.Asset.Original != nil {
		pdfURL = item.Asset.Original.URL
	}

	var articleURL string
	if itemID != "" {
		articleURL = articleURLPrefix + itemID
	}

	return &domain.Paper{
		ID:            id,
		Title:         strings.Join(strings.Fields(item.Title), " "),
		Abstract:      strings.Join(strings.Fields(item.Abstract), " "),
		Authors:       authors,
		Categories:    categories,
		PublishedDate: dateparse.NormalizeISODate(item.PublishedDate),
		Source:        domain.SourceTypeChemRxiv,
		URL:           articleURL,
		PDFURL:        pdfURL,
		DOI:           doi,
		FetchedDate:   time.Now().UTC(),
	}
}
