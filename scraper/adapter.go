// Package scraper holds the source adapters. Each adapter turns one sanitized
// search into raw candidate records from one external marketplace. Selector
// breakage degrades to zero candidates; it never takes the job down.
package scraper

import (
	"context"

	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/config"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/httputil"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
)

type Adapter interface {
	ID() models.SourceName
	Fetch(ctx context.Context, term, postalCode string) ([]models.RawCandidate, error)
}

func NewAdapter(cfg *config.SourceConfig, clients *httputil.Clients) Adapter {
	switch cfg.Handler {
	case "api":
		return NewAPIAdapter(cfg, clients)
	case "html":
		return NewHTMLAdapter(cfg, clients)
	default:
		return NewHTMLAdapter(cfg, clients)
	}
}

// NewAdapters builds the adapter set for all configured sources.
func NewAdapters(cfg *config.Config, clients *httputil.Clients) map[models.SourceName]Adapter {
	adapters := make(map[models.SourceName]Adapter, len(cfg.Sources))
	for id, sourceCfg := range cfg.Sources {
		adapters[models.SourceName(id)] = NewAdapter(sourceCfg, clients)
	}
	return adapters
}
