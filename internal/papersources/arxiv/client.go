package arxiv

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/aidd/paper-tracker/internal/dateparse"
	"github.com/aidd/paper-tracker/internal/domain"
	"github.com/aidd/paper-tracker/internal/papersources"
)

// Client implements papersources.Fetcher by paging through the arXiv
// advanced search HTML results.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	logger     zerolog.Logger
}

// Ensure Client implements the Fetcher interface.
var _ papersources.Fetcher = (*Client)(nil)

// New creates a new arXiv adapter with the given configuration.
func New(cfg Config, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:      cfg.Timeout,
		RequestDelay: cfg.RequestDelay,
		MaxRetries:   cfg.MaxRetries,
		Observer:     cfg.Observer,
		UserAgent:    cfg.UserAgent,
	})

	return NewWithHTTPClient(cfg, httpClient, logger)
}

// NewWithHTTPClient creates a new arXiv adapter with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("source", string(domain.SourceTypeArXiv)).Logger(),
	}
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeArXiv
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Fetch runs one advanced search over the window and walks every result page.
//
// The first page yields the total result count, which fixes the number of
// pages. A failed page stops the walk; the papers collected up to that point
// are returned with the result marked partial.
func (c *Client) Fetch(ctx context.Context, params papersources.FetchParams) (*papersources.FetchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &papersources.FetchResult{Source: domain.SourceTypeArXiv}
	defer func() { result.Duration = time.Since(start) }()

	cats := papersources.ResolveSearchTerms(c.config.Taxonomy, domain.SourceTypeArXiv, params.Categories, c.logger)
	result.Categories = papersources.CategoryNames(cats)
	if len(cats) == 0 {
		c.logger.Warn().Strs("requested", params.Categories).Msg("no supported categories to search")
		return result, nil
	}

	pageSize := params.PageSize
	if pageSize == 0 {
		pageSize = c.config.PageSize
	}

	query := searchQuery{
		terms:     result.Categories,
		operator:  c.config.TermOperator,
		dateFrom:  dateparse.FormatDay(roundUpToDay(params.DateFrom)),
		dateTo:    dateparse.FormatDay(params.DateTo),
		pageSize:  pageSize,
		crossList: !c.config.ExcludeCrossList,
	}

	seen := make(map[string]bool)
	collect := func(papers []*domain.Paper) {
		for _, p := range papers {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			result.Papers = append(result.Papers, p)
		}
	}

	doc, err := c.fetchPage(ctx, query, 0)
	result.Requests++
	if err != nil {
		c.logger.Warn().Err(err).Int("page", 1).Msg("arXiv search page failed")
		result.MarkPartial(err)
		return result, nil
	}

	total, ok := parseTotalResults(doc)
	if !ok {
		c.logger.Warn().Msg("could not find the result count on the first page")
	}
	if total == 0 {
		c.logger.Info().Str("from", query.dateFrom).Str("to", query.dateTo).Msg("search returned no results")
		return result, nil
	}

	totalPages := (total + pageSize - 1) / pageSize
	c.logger.Debug().Int("total", total).Int("pages", totalPages).Msg("search result size")

	papers, dropped := parseResults(doc, c.logger)
	result.Dropped += dropped
	collect(papers)

	for page := 2; page <= totalPages; page++ {
		doc, err := c.fetchPage(ctx, query, (page-1)*pageSize)
		result.Requests++
		if err != nil {
			c.logger.Warn().Err(err).Int("page", page).Int("collected", len(result.Papers)).
				Msg("arXiv search page failed; returning partial results")
			result.MarkPartial(err)
			break
		}

		papers, dropped := parseResults(doc, c.logger)
		result.Dropped += dropped
		if len(papers) == 0 {
			c.logger.Warn().Int("page", page).Int("total_pages", totalPages).Msg("page contained no results")
			continue
		}
		collect(papers)
	}

	c.logger.Info().
		Int("papers", len(result.Papers)).
		Int("requests", result.Requests).
		Bool("partial", result.Partial).
		Msg("arXiv fetch completed")

	return result, nil
}

// fetchPage downloads and parses one page of search results.
func (c *Client) fetchPage(ctx context.Context, q searchQuery, offset int) (*goquery.Document, error) {
	searchURL, err := c.buildSearchURL(q, offset)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	body, err := c.httpClient.Get(ctx, domain.SourceTypeArXiv, searchURL, "text/html")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// buildSearchURL constructs the advanced search URL for one page.
func (c *Client) buildSearchURL(q searchQuery, offset int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + searchPath

	crossList := "include"
	if !q.crossList {
		crossList = "exclude"
	}

	values := url.Values{}
	values.Set("advanced", "")
	values.Set("classification-include_cross_list", crossList)
	values.Set("date-year", "")
	values.Set("date-filter_by", "date_range")
	values.Set("date-from_date", q.dateFrom)
	values.Set("date-to_date", q.dateTo)
	values.Set("date-date_type", "submitted_date")
	values.Set("abstracts", "show")
	values.Set("size", strconv.Itoa(q.pageSize))
	values.Set("order", "-announced_date_first")
	if offset > 0 {
		values.Set("start", strconv.Itoa(offset))
	}
	for i, term := range q.terms {
		prefix := "terms-" + strconv.Itoa(i) + "-"
		values.Set(prefix+"operator", q.operator)
		values.Set(prefix+"term", term)
		values.Set(prefix+"field", "all")
	}

	baseURL.RawQuery = values.Encode()
	return baseURL.String(), nil
}

// roundUpToDay moves a start bound that carries a time of day to the start
// of the following day so the search covers whole calendar days only.
func roundUpToDay(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if t.Equal(day) {
		return day
	}
	return day.AddDate(0, 0, 1)
}
