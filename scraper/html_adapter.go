package scraper

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/config"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/httputil"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
)

// HTMLAdapter fetches marketplace search result pages and parses them with
// source-specific selectors.
type HTMLAdapter struct {
	cfg    *config.SourceConfig
	client *http.Client
}

func NewHTMLAdapter(cfg *config.SourceConfig, clients *httputil.Clients) *HTMLAdapter {
	client := &http.Client{Timeout: 30 * time.Second}
	if clients != nil {
		client = clients.Scraping
	}
	return &HTMLAdapter{cfg: cfg, client: client}
}

func (a *HTMLAdapter) ID() models.SourceName {
	return models.SourceName(a.cfg.ID)
}

func (a *HTMLAdapter) Fetch(ctx context.Context, term, postalCode string) ([]models.RawCandidate, error) {
	maxPages := a.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	var all []models.RawCandidate
	for page := 1; page <= maxPages; page++ {
		candidates, err := a.fetchPage(ctx, term, postalCode, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			// partial result beats none
			log.Printf("%s: page %d failed, keeping %d candidates: %v", a.cfg.ID, page, len(all), err)
			break
		}
		if len(candidates) == 0 {
			break
		}
		all = append(all, candidates...)

		if a.cfg.RateLimitMS > 0 && page < maxPages {
			select {
			case <-time.After(time.Duration(a.cfg.RateLimitMS) * time.Millisecond):
			case <-ctx.Done():
				return all, nil
			}
		}
	}

	return all, nil
}

func (a *HTMLAdapter) fetchPage(ctx context.Context, term, postalCode string, page int) ([]models.RawCandidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.searchURL(term, postalCode, page), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s search returned %d", a.cfg.ID, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	return a.parseDocument(doc), nil
}

func (a *HTMLAdapter) searchURL(term, postalCode string, page int) string {
	endpoint := a.cfg.Endpoints["search"]
	q := url.Values{}

	switch models.SourceName(a.cfg.ID) {
	case models.SourceQuoka:
		q.Set("q", term)
		q.Set("zip", postalCode)
		if page > 1 {
			q.Set("page", fmt.Sprintf("%d", page))
		}
	default: // kleinanzeigen-style
		q.Set("keywords", term)
		q.Set("locationStr", postalCode)
		if page > 1 {
			q.Set("pageNum", fmt.Sprintf("%d", page))
		}
	}

	return endpoint + "?" + q.Encode()
}

func (a *HTMLAdapter) parseDocument(doc *goquery.Document) []models.RawCandidate {
	switch models.SourceName(a.cfg.ID) {
	case models.SourceQuoka:
		return parseQuokaDoc(doc)
	case models.SourceKleinanzeigen:
		return parseKleinanzeigenDoc(doc)
	default:
		log.Printf("no parser for HTML source %s", a.cfg.ID)
		return nil
	}
}
