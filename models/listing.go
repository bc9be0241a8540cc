package models

import (
	"encoding/json"
	"time"
)

// RawCandidate is the untyped bag of fields a source adapter hands back.
// Every field except Source is optional; the normalizer fills the gaps.
// Never persisted.
type RawCandidate struct {
	Source    SourceName
	ID        string
	Title     string
	PriceText string
	Location  string
	Condition string
	URL       string
	Image     string
	Data      json.RawMessage // original payload, for debugging only
}

// Placeholders substituted by the normalizer for missing text fields.
const (
	PlaceholderTitle     = "No title"
	PlaceholderLocation  = "Unknown location"
	PlaceholderCondition = "Not specified"
	PlaceholderPrice     = "Price not shown"
)

// ConditionUnavailable marks listings a source reports as no longer obtainable
// (reserved, deleted). The ranker excludes them from price ordering.
const ConditionUnavailable = "unavailable"

// Listing is the canonical normalized record. PriceValue nil means the price
// could not be extracted; it sorts after every priced listing.
type Listing struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	PriceText  string     `json:"priceText"`
	PriceValue *float64   `json:"priceValue"`
	Location   string     `json:"location"`
	Source     SourceName `json:"source"`
	URL        string     `json:"url"`
	Image      string     `json:"image,omitempty"`
	Condition  string     `json:"condition"`
	IsNew      bool       `json:"isNew"`
}

// SearchCriteria echoes the housing search parameters into the published document.
type SearchCriteria struct {
	Term       string `json:"term"`
	PostalCode string `json:"postalCode"`
}

// ResultDocument is the durable, outward-facing output of the most recent
// successful job. Overwritten wholesale on completion, never appended.
type ResultDocument struct {
	LastUpdated    time.Time       `json:"lastUpdated"`
	LastChecked    time.Time       `json:"lastChecked"`
	SearchCriteria *SearchCriteria `json:"searchCriteria,omitempty"`
	LastSearch     string          `json:"lastSearch,omitempty"`
	Listings       []Listing       `json:"listings"`
}

// IDs returns the set of listing IDs in the document.
func (d *ResultDocument) IDs() map[string]bool {
	ids := make(map[string]bool, len(d.Listings))
	for _, l := range d.Listings {
		ids[l.ID] = true
	}
	return ids
}
