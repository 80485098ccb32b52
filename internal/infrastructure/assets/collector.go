package assets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
)

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".webp": {},
}

const maxFiguresPerPage = 5

// Collector extracts supporting assets (figures, diagrams, outbound
// links) from a topic's source page.
type Collector struct {
	client *http.Client
}

var _ ports.AssetCollector = (*Collector)(nil)

// NewCollector wires an HTTP client with a sane timeout.
func NewCollector(client *http.Client) *Collector {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Collector{client: client}
}

// Collect fetches the page and extracts up to a handful of figures plus
// the canonical source link. Extraction failures are returned to the
// caller; the asset stage treats them as per-item, not fatal.
func (c *Collector) Collect(ctx context.Context, pageURL, sourceTitle string) ([]domain.Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "CurateAI/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}

	collected := []domain.Asset{{
		URL:         pageURL,
		Type:        "link",
		Description: "Original source",
		SourceTitle: sourceTitle,
	}}

	figures := 0
	doc.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, _ := img.Attr("src")
		if !isImageURL(src) {
			return true
		}

		description := strings.TrimSpace(img.AttrOr("alt", ""))
		if description == "" {
			description = "Figure from source"
		}

		collected = append(collected, domain.Asset{
			URL:         resolveRef(base, src),
			Type:        "figure",
			Description: description,
			SourceTitle: sourceTitle,
		})
		figures++
		return figures < maxFiguresPerPage
	})

	return collected, nil
}

func isImageURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	path := strings.ToLower(parsed.Path)
	for ext := range imageExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func resolveRef(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
