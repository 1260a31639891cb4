package arxiv

import (
	"time"

	"github.com/aidd/paper-tracker/internal/papersources"
	"github.com/aidd/paper-tracker/internal/taxonomy"
)

const (
	// DefaultBaseURL is the arXiv web host serving the advanced search form.
	DefaultBaseURL = "https://arxiv.org"

	// searchPath is the advanced search endpoint below BaseURL.
	searchPath = "/search/advanced"

	// DefaultPageSize is the number of results requested per page.
	DefaultPageSize = 100

	// DefaultRequestDelay is the courtesy delay between page requests.
	DefaultRequestDelay = time.Second

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultTermOperator joins the category search terms.
	DefaultTermOperator = "AND"

	// DefaultUserAgent is a browser user agent; the search portal rejects
	// obvious bots more readily than browsers.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	// sourceName is the human-readable name for this source.
	sourceName = "arXiv"
)

// Config holds configuration for the arXiv adapter.
type Config struct {
	// BaseURL is the arXiv web host.
	BaseURL string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// RequestDelay is the minimum spacing between page requests. Zero
	// disables the delay; the service configuration defaults it to
	// DefaultRequestDelay.
	RequestDelay time.Duration

	// MaxRetries is the number of retries on 429 and 5xx responses.
	MaxRetries int

	// PageSize is the number of results requested per page.
	PageSize int

	// TermOperator is the boolean operator between category terms.
	TermOperator string

	// ExcludeCrossList drops papers only cross-listed into the searched categories.
	ExcludeCrossList bool

	// UserAgent overrides the User-Agent header.
	UserAgent string

	// Taxonomy supplies the supported categories. Nil uses taxonomy.Default().
	Taxonomy *taxonomy.Taxonomy

	// Enabled indicates whether this source may be polled.
	Enabled bool

	// Observer receives per-request outcomes, typically the metrics registry.
	Observer papersources.RequestObserver
}

// applyDefaults sets default values for unset configuration fields.
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
	if c.TermOperator == "" {
		c.TermOperator = DefaultTermOperator
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Taxonomy == nil {
		c.Taxonomy = taxonomy.Default()
	}
}

// searchQuery is the state of one advanced search across its pages.
type searchQuery struct {
	terms     []string
	operator  string
	dateFrom  string
	dateTo    string
	pageSize  int
	crossList bool
}
