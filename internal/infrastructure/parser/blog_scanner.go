package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"CurateAI/internal/domain"
	"CurateAI/internal/scanner"
)

// Selector option keys accepted in site config.
const (
	optItemSelector    = "itemSelector"
	optTitleSelector   = "titleSelector"
	optSummarySelector = "summarySelector"
)

// BlogScanner extracts topic candidates from blog/news index pages.
// Selectors are configurable per site so one strategy covers most
// vendor blogs.
type BlogScanner struct {
	client *http.Client
	logger *slog.Logger
}

// NewBlogScanner wires an HTTP client with a sane timeout.
func NewBlogScanner(client *http.Client, logger *slog.Logger) *BlogScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &BlogScanner{client: client, logger: logger}
}

// Name identifies the strategy inside the registry.
func (b *BlogScanner) Name() string {
	return "blog"
}

// Scan fetches each configured index page and extracts entries newer
// than the window start. Entries without a parsable date are kept; the
// relevance filter downstream handles stale content.
func (b *BlogScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.TopicCandidate, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no index pages provided for site %s", req.SiteName)
	}

	itemSel := optionOr(req.Options, optItemSelector, "article")
	titleSel := optionOr(req.Options, optTitleSelector, "h1, h2, h3")
	summarySel := optionOr(req.Options, optSummarySelector, "p")

	since := req.Since.UTC()
	var results []domain.TopicCandidate
	seen := map[string]struct{}{}

	for _, cat := range req.Categories {
		doc, err := b.fetchDocument(ctx, cat.URL)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", cat.Name, err)
		}

		base, err := url.Parse(cat.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid index url %s: %w", cat.URL, err)
		}

		doc.Find(itemSel).Each(func(_ int, item *goquery.Selection) {
			title := strings.TrimSpace(item.Find(titleSel).First().Text())
			href, _ := item.Find("a[href]").First().Attr("href")
			if title == "" || href == "" {
				return
			}

			link := resolveHref(base, href)
			if _, ok := seen[link]; ok {
				return
			}

			publishedAt, dated := parseItemDate(item)
			if dated && publishedAt.Before(since) {
				return
			}

			seen[link] = struct{}{}
			results = append(results, domain.TopicCandidate{
				ID:          uuid.NewString(),
				Title:       title,
				Summary:     strings.TrimSpace(item.Find(summarySel).First().Text()),
				URL:         link,
				Source:      req.SiteName,
				SourceType:  sourceTypeOr(req.SourceType, "blog"),
				Tags:        []string{cat.Name},
				PublishedAt: publishedAt,
			})
		})

		b.debug("index scanned", "index", cat.Name, "collected", len(results))
	}

	return results, nil
}

func (b *BlogScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "CurateAI/1.0")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("blog index returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func parseItemDate(item *goquery.Selection) (time.Time, bool) {
	if raw, ok := item.Find("time[datetime]").First().Attr("datetime"); ok {
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return parsed.UTC(), true
			}
		}
	}
	return time.Now().UTC(), false
}

func resolveHref(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func optionOr(options map[string]string, key, fallback string) string {
	if v, ok := options[key]; ok && v != "" {
		return v
	}
	return fallback
}

func sourceTypeOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func (b *BlogScanner) debug(msg string, args ...interface{}) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}
