package arxiv

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/aidd/paper-tracker/internal/domain"
)

const (
	absURLPrefix = "https://arxiv.org/abs/"
	pdfURLPrefix = "https://arxiv.org/pdf/"
)

var (
	totalResultsRegex = regexp.MustCompile(`of\s+([\d,]+)\s+results`)
	showLessRegex     = regexp.MustCompile(`\s*△\s*Less\s*$`)
)

// parseTotalResults reads "Showing 1–50 of 1,588 results" from the page title.
// The boolean is false when the title element or the count is missing.
func parseTotalResults(doc *goquery.Document) (int, bool) {
	title := doc.Find("div.level div.level-left h1.title.is-clearfix").First()
	if title.Length() == 0 {
		return 0, false
	}

	m := totalResultsRegex.FindStringSubmatch(title.Text())
	if m == nil {
		return 0, false
	}
	total, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0, false
	}
	return total, true
}

// parseResults extracts every result entry on a page. Entries missing an
// identifier or a submission date are dropped and counted.
func parseResults(doc *goquery.Document, logger zerolog.Logger) ([]*domain.Paper, int) {
	var (
		papers  []*domain.Paper
		dropped int
	)

	fetched := time.Now().UTC()
	doc.Find("ol.breathe-horizontal li.arxiv-result").Each(func(_ int, li *goquery.Selection) {
		paper, reason := parseEntry(li)
		if paper == nil {
			dropped++
			logger.Warn().Str("reason", reason).Msg("skipping unparseable arXiv entry")
			return
		}
		paper.FetchedDate = fetched
		papers = append(papers, paper)
	})

	return papers, dropped
}

// parseEntry converts one li.arxiv-result element. On failure it returns nil
// and a short reason.
func parseEntry(li *goquery.Selection) (*domain.Paper, string) {
	href, ok := li.Find("p.list-title a").First().Attr("href")
	if !ok {
		return nil, "missing detail link"
	}
	id := lastPathSegment(href)
	if id == "" {
		return nil, "empty identifier"
	}

	submitted, ok := submittedDate(li.Find("p.is-size-7").First().Text())
	if !ok {
		return nil, "missing submission date"
	}

	var authors []string
	li.Find("p.authors a").Each(func(_ int, a *goquery.Selection) {
		if name := strings.TrimSpace(a.Text()); name != "" {
			authors = append(authors, name)
		}
	})

	abstract := collapseSpace(li.Find("span.abstract-full").First().Text())
	abstract = strings.TrimSpace(showLessRegex.ReplaceAllString(abstract, ""))

	var categories []string
	li.Find("div.tags span.tag").Each(func(_ int, span *goquery.Selection) {
		if tag := strings.TrimSpace(span.Text()); tag != "" {
			categories = append(categories, tag)
		}
	})

	return &domain.Paper{
		ID:            id,
		Title:         collapseSpace(li.Find("p.title").First().Text()),
		Abstract:      abstract,
		Authors:       authors,
		Categories:    categories,
		PublishedDate: submitted,
		Source:        domain.SourceTypeArXiv,
		URL:           absURLPrefix + id,
		PDFURL:        pdfURLPrefix + id + ".pdf",
	}, ""
}

// submittedDate picks the "Submitted ..." segment out of a line such as
// "Submitted 15 March, 2024; originally announced March 2024."
func submittedDate(line string) (string, bool) {
	for _, part := range strings.Split(line, ";") {
		if strings.Contains(part, "Submitted") {
			return strings.TrimSpace(strings.Replace(part, "Submitted", "", 1)), true
		}
	}
	return "", false
}

func lastPathSegment(href string) string {
	href = strings.TrimRight(strings.TrimSpace(href), "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		return href[i+1:]
	}
	return href
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
