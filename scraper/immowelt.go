package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/config"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/httputil"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
)

// APIAdapter talks to JSON search APIs. Currently only immowelt.
type APIAdapter struct {
	cfg    *config.SourceConfig
	client *http.Client
}

func NewAPIAdapter(cfg *config.SourceConfig, clients *httputil.Clients) *APIAdapter {
	client := &http.Client{Timeout: 30 * time.Second}
	if clients != nil {
		client = clients.API
	}
	return &APIAdapter{cfg: cfg, client: client}
}

func (a *APIAdapter) ID() models.SourceName {
	return models.SourceName(a.cfg.ID)
}

func (a *APIAdapter) Fetch(ctx context.Context, term, postalCode string) ([]models.RawCandidate, error) {
	if models.SourceName(a.cfg.ID) != models.SourceImmowelt {
		return nil, fmt.Errorf("unknown API source: %s", a.cfg.ID)
	}

	maxPages := a.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	const pageSize = 50

	var all []models.RawCandidate
	for page := 1; page <= maxPages; page++ {
		items, err := a.fetchImmoweltPage(ctx, term, postalCode, page, pageSize)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			log.Printf("immowelt: page %d failed, keeping %d candidates: %v", page, len(all), err)
			break
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
		if len(items) < pageSize {
			break
		}
	}

	return all, nil
}

func (a *APIAdapter) fetchImmoweltPage(ctx context.Context, term, postalCode string, page, pageSize int) ([]models.RawCandidate, error) {
	endpoint := a.cfg.Endpoints["search"]

	reqBody := map[string]interface{}{
		"estateType":   "apartment",
		"distribution": "rent",
		"searchText":   term,
		"zipCode":      postalCode,
		"page":         page,
		"pageSize":     pageSize,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("immowelt API error %d: %s", resp.StatusCode, string(respBody))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return parseImmoweltResponse(data)
}

func parseImmoweltResponse(data []byte) ([]models.RawCandidate, error) {
	var result immoweltSearchResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	var candidates []models.RawCandidate
	for _, item := range result.Items {
		c := models.RawCandidate{
			Source:   models.SourceImmowelt,
			ID:       item.GlobalObjectKey,
			Title:    item.Title,
			Location: item.Place,
			URL:      item.URL,
		}
		if item.Price.Value > 0 {
			c.PriceText = fmt.Sprintf("%.0f %s", item.Price.Value, item.Price.Currency)
		} else {
			c.PriceText = item.Price.DisplayText
		}
		if len(item.Pictures) > 0 {
			c.Image = item.Pictures[0].URL
		}
		if item.Status != "" && item.Status != "active" {
			c.Condition = models.ConditionUnavailable
		}

		raw, _ := json.Marshal(item)
		c.Data = raw
		candidates = append(candidates, c)
	}

	return candidates, nil
}

type immoweltSearchResponse struct {
	TotalCount int            `json:"totalCount"`
	Items      []immoweltItem `json:"items"`
}

type immoweltItem struct {
	GlobalObjectKey string `json:"globalObjectKey"`
	Title           string `json:"title"`
	Place           string `json:"place"`
	URL             string `json:"url"`
	Status          string `json:"status"`
	Price           struct {
		Value       float64 `json:"value"`
		Currency    string  `json:"currency"`
		DisplayText string  `json:"displayText"`
	} `json:"price"`
	Pictures []struct {
		URL string `json:"url"`
	} `json:"pictures"`
}
