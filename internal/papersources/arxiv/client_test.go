package arxiv

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidd/paper-tracker/internal/domain"
	"github.com/aidd/paper-tracker/internal/papersources"
)

type entry struct {
	id         string
	title      string
	authors    []string
	abstract   string
	submitted  string
	categories []string
}

func sampleEntry(id string) entry {
	return entry{
		id:         id,
		title:      "  Graph neural\n   networks for molecules ",
		authors:    []string{"Ada Lovelace", "Alan Turing"},
		abstract:   "We study   message passing.\n △ Less",
		submitted:  "15 March, 2024",
		categories: []string{"cs.LG", "q-bio.BM"},
	}
}

func renderEntry(e entry) string {
	var b strings.Builder
	b.WriteString(`<li class="arxiv-result">`)
	fmt.Fprintf(&b, `<div class="is-marginless"><p class="list-title is-inline-block"><a href="https://arxiv.org/abs/%s">arXiv:%s</a></p>`, e.id, e.id)
	b.WriteString(`<div class="tags is-inline-block">`)
	for _, c := range e.categories {
		fmt.Fprintf(&b, `<span class="tag is-small is-link">%s</span>`, c)
	}
	b.WriteString(`</div></div>`)
	fmt.Fprintf(&b, `<p class="title is-5 mathjax">%s</p>`, e.title)
	b.WriteString(`<p class="authors"><span class="search-hit">Authors:</span>`)
	for _, a := range e.authors {
		fmt.Fprintf(&b, `<a href="/a/%s">%s</a>, `, strings.ReplaceAll(a, " ", "_"), a)
	}
	b.WriteString(`</p>`)
	fmt.Fprintf(&b, `<p class="abstract mathjax"><span class="abstract-full has-text-grey-dark mathjax">%s</span></p>`, e.abstract)
	if e.submitted != "" {
		fmt.Fprintf(&b, `<p class="is-size-7"><span class="has-text-black-bis">Submitted</span> %s; <span>originally announced</span> March 2024.</p>`, e.submitted)
	} else {
		b.WriteString(`<p class="is-size-7">originally announced March 2024.</p>`)
	}
	b.WriteString(`</li>`)
	return b.String()
}

func renderPage(total int, entries ...entry) string {
	var b strings.Builder
	b.WriteString(`<html><body><main>`)
	if total >= 0 {
		fmt.Fprintf(&b, `<div class="level"><div class="level-left"><h1 class="title is-clearfix">Showing 1&ndash;%d of %s results</h1></div></div>`,
			len(entries), formatThousands(total))
	}
	b.WriteString(`<ol class="breathe-horizontal" start="1">`)
	for _, e := range entries {
		b.WriteString(renderEntry(e))
	}
	b.WriteString(`</ol></main></body></html>`)
	return b.String()
}

func formatThousands(n int) string {
	s := strconv.Itoa(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}

func newTestClient(serverURL string, pageSize int) *Client {
	cfg := Config{
		BaseURL:  serverURL,
		Timeout:  5 * time.Second,
		PageSize: pageSize,
		Enabled:  true,
	}
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		UserAgent: "TestClient/1.0",
	})
	return NewWithHTTPClient(cfg, httpClient, zerolog.Nop())
}

func testParams() papersources.FetchParams {
	return papersources.FetchParams{
		Categories: []string{"cs.LG"},
		DateFrom:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DateTo:     time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestClient_Interface(t *testing.T) {
	c := New(Config{Enabled: true}, zerolog.Nop())
	assert.Equal(t, domain.SourceTypeArXiv, c.SourceType())
	assert.Equal(t, "arXiv", c.Name())
	assert.True(t, c.IsEnabled())
	assert.False(t, New(Config{}, zerolog.Nop()).IsEnabled())
}

func TestClient_Fetch_SinglePage(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/advanced", r.URL.Path)
		assert.Equal(t, "TestClient/1.0", r.Header.Get("User-Agent"))
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(renderPage(1, sampleEntry("2403.01234"))))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 50)
	result, err := client.Fetch(context.Background(), testParams())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.Partial)
	assert.Equal(t, 1, result.Requests)
	assert.Equal(t, []string{"cs.LG"}, result.Categories)
	require.Len(t, result.Papers, 1)

	p := result.Papers[0]
	assert.Equal(t, "2403.01234", p.ID)
	assert.Equal(t, "Graph neural networks for molecules", p.Title)
	assert.Equal(t, "We study message passing.", p.Abstract)
	assert.Equal(t, []string{"Ada Lovelace", "Alan Turing"}, p.Authors)
	assert.Equal(t, []string{"cs.LG", "q-bio.BM"}, p.Categories)
	assert.Equal(t, "15 March, 2024", p.PublishedDate)
	assert.Equal(t, domain.SourceTypeArXiv, p.Source)
	assert.Equal(t, "https://arxiv.org/abs/2403.01234", p.URL)
	assert.Equal(t, "https://arxiv.org/pdf/2403.01234.pdf", p.PDFURL)
	assert.False(t, p.FetchedDate.IsZero())

	assert.Equal(t, []string{"2024-03-01"}, gotQuery["date-from_date"])
	assert.Equal(t, []string{"2024-03-31"}, gotQuery["date-to_date"])
	assert.Equal(t, []string{"cs.LG"}, gotQuery["terms-0-term"])
	assert.Equal(t, []string{"AND"}, gotQuery["terms-0-operator"])
	assert.Equal(t, []string{"all"}, gotQuery["terms-0-field"])
	assert.Equal(t, []string{"include"}, gotQuery["classification-include_cross_list"])
	assert.Equal(t, []string{"50"}, gotQuery["size"])
	assert.Equal(t, []string{"-announced_date_first"}, gotQuery["order"])
	assert.NotContains(t, gotQuery, "start")
}

func TestClient_Fetch_Pagination(t *testing.T) {
	var (
		mu      sync.Mutex
		offsets []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("start")
		mu.Lock()
		offsets = append(offsets, start)
		mu.Unlock()

		switch start {
		case "":
			_, _ = w.Write([]byte(renderPage(5, sampleEntry("2403.00001"), sampleEntry("2403.00002"))))
		case "2":
			// The same paper may reappear on a later page when new results shift the listing.
			_, _ = w.Write([]byte(renderPage(5, sampleEntry("2403.00002"), sampleEntry("2403.00003"))))
		case "4":
			_, _ = w.Write([]byte(renderPage(5, sampleEntry("2403.00005"))))
		default:
			t.Errorf("unexpected start offset %q", start)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2)
	result, err := client.Fetch(context.Background(), testParams())
	require.NoError(t, err)

	assert.Equal(t, []string{"", "2", "4"}, offsets)
	assert.Equal(t, 3, result.Requests)
	assert.False(t, result.Partial)

	ids := make([]string, 0, len(result.Papers))
	for _, p := range result.Papers {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"2403.00001", "2403.00002", "2403.00003", "2403.00005"}, ids)
}

func TestClient_Fetch_ZeroResults(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(renderPage(0)))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL, 50).Fetch(context.Background(), testParams())
	require.NoError(t, err)
	assert.Empty(t, result.Papers)
	assert.False(t, result.Partial)
	assert.Equal(t, 1, calls)
}

func TestClient_Fetch_MissingTotalTreatedAsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(renderPage(-1, sampleEntry("2403.00001"))))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL, 50).Fetch(context.Background(), testParams())
	require.NoError(t, err)
	assert.Empty(t, result.Papers)
}

func TestClient_Fetch_FirstPageFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	result, err := newTestClient(server.URL, 50).Fetch(context.Background(), testParams())
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Empty(t, result.Papers)

	var apiErr *domain.ExternalAPIError
	require.ErrorAs(t, result.Err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestClient_Fetch_LaterPageFailureKeepsCollected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("start") {
		case "":
			_, _ = w.Write([]byte(renderPage(6, sampleEntry("2403.00001"), sampleEntry("2403.00002"))))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	result, err := newTestClient(server.URL, 2).Fetch(context.Background(), testParams())
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Error(t, result.Err)
	assert.Len(t, result.Papers, 2)
	assert.Equal(t, 2, result.Requests)
}

func TestClient_Fetch_EmptyPageContinues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("start") {
		case "":
			_, _ = w.Write([]byte(renderPage(5, sampleEntry("2403.00001"), sampleEntry("2403.00002"))))
		case "2":
			_, _ = w.Write([]byte(renderPage(5)))
		case "4":
			_, _ = w.Write([]byte(renderPage(5, sampleEntry("2403.00005"))))
		}
	}))
	defer server.Close()

	result, err := newTestClient(server.URL, 2).Fetch(context.Background(), testParams())
	require.NoError(t, err)
	assert.False(t, result.Partial)
	assert.Len(t, result.Papers, 3)
	assert.Equal(t, 3, result.Requests)
}

func TestClient_Fetch_DropsEntriesWithoutSubmissionDate(t *testing.T) {
	undated := sampleEntry("2403.00002")
	undated.submitted = ""

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(renderPage(2, sampleEntry("2403.00001"), undated)))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL, 50).Fetch(context.Background(), testParams())
	require.NoError(t, err)
	require.Len(t, result.Papers, 1)
	assert.Equal(t, "2403.00001", result.Papers[0].ID)
	assert.Equal(t, 1, result.Dropped)
}

func TestClient_Fetch_UndeclaredCategoriesSearchedAsTerms(t *testing.T) {
	var terms []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		terms = []string{q.Get("terms-0-term"), q.Get("terms-1-term")}
		_, _ = w.Write([]byte(renderPage(0)))
	}))
	defer server.Close()

	params := testParams()
	params.Categories = []string{"cs.LG", " cs.CL ", "cs.CL", "  "}

	result, err := newTestClient(server.URL, 50).Fetch(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, []string{"cs.LG", "cs.CL"}, result.Categories)
	assert.Empty(t, result.SkippedCategories)
	assert.Equal(t, []string{"cs.LG", "cs.CL"}, terms)
	assert.Equal(t, 1, result.Requests)
}

func TestClient_Fetch_RoundsStartWithTimeOfDay(t *testing.T) {
	var from string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		from = r.URL.Query().Get("date-from_date")
		_, _ = w.Write([]byte(renderPage(0)))
	}))
	defer server.Close()

	params := testParams()
	params.DateFrom = time.Date(2024, 3, 1, 13, 30, 0, 0, time.UTC)

	_, err := newTestClient(server.URL, 50).Fetch(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-02", from)
}

func TestClient_Fetch_InvalidParams(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1", 50)

	params := testParams()
	params.DateTo = params.DateFrom.AddDate(0, 0, -1)

	_, err := client.Fetch(context.Background(), params)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestClient_BuildSearchURL(t *testing.T) {
	client := newTestClient("https://example.org/", 50)

	raw, err := client.buildSearchURL(searchQuery{
		terms:    []string{"cs.LG", "q-bio"},
		operator: "OR",
		dateFrom: "2024-01-01",
		dateTo:   "2024-01-31",
		pageSize: 25,
	}, 50)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, "https://example.org/search/advanced?"))
	assert.Contains(t, raw, "start=50")
	assert.Contains(t, raw, "terms-1-term=q-bio")
	assert.Contains(t, raw, "terms-1-operator=OR")
	assert.Contains(t, raw, "classification-include_cross_list=exclude")
}

func TestRoundUpToDay(t *testing.T) {
	midnight := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, midnight, roundUpToDay(midnight))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), roundUpToDay(midnight.Add(time.Minute)))
}

func TestSubmittedDate(t *testing.T) {
	got, ok := submittedDate("Submitted 3 January, 2024; originally announced January 2024.")
	assert.True(t, ok)
	assert.Equal(t, "3 January, 2024", got)

	_, ok = submittedDate("originally announced January 2024.")
	assert.False(t, ok)
}
