// Package normalize converts raw adapter output into canonical listings.
// It never fails: malformed candidates degrade to placeholder fields and an
// untracked price rather than dropping out of the pipeline.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/identity"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
)

// digits with optional thousands separators and an optional decimal part
var priceRegex = regexp.MustCompile(`\d{1,3}(?:[.,]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?`)

// Candidate maps one raw candidate to a Listing. Missing text fields become
// placeholders; a price that yields no numeric match keeps its original text
// and a nil PriceValue (the untracked sentinel, sorting after every priced
// listing).
func Candidate(raw models.RawCandidate) models.Listing {
	l := models.Listing{
		ID:        raw.ID,
		Title:     strings.TrimSpace(raw.Title),
		PriceText: strings.TrimSpace(raw.PriceText),
		Location:  strings.TrimSpace(raw.Location),
		Condition: strings.TrimSpace(raw.Condition),
		Source:    raw.Source,
		URL:       strings.TrimSpace(raw.URL),
		Image:     strings.TrimSpace(raw.Image),
	}

	if l.Title == "" {
		l.Title = models.PlaceholderTitle
	}
	if l.Location == "" {
		l.Location = models.PlaceholderLocation
	}
	if l.Condition == "" {
		l.Condition = models.PlaceholderCondition
	}
	if l.PriceText == "" {
		l.PriceText = models.PlaceholderPrice
	}
	if l.ID == "" {
		l.ID = identity.Fingerprint(raw.Source, l.Title, l.URL)
	}

	if v, ok := ExtractPrice(l.PriceText); ok {
		l.PriceValue = &v
	}

	return l
}

// Candidates normalizes a batch, preserving adapter arrival order.
func Candidates(raw []models.RawCandidate) []models.Listing {
	listings := make([]models.Listing, 0, len(raw))
	for _, r := range raw {
		listings = append(listings, Candidate(r))
	}
	return listings
}

// ExtractPrice takes the first numeric match in text. Both "1.250,50" and
// "1,250.50" styles are understood: when both separators appear, the last one
// is the decimal mark; a lone separator is decimal only when followed by one
// or two digits.
func ExtractPrice(text string) (float64, bool) {
	match := priceRegex.FindString(text)
	if match == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(match, ".")
	lastComma := strings.LastIndex(match, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			match = strings.ReplaceAll(match, ".", "")
			match = strings.Replace(match, ",", ".", 1)
		} else {
			match = strings.ReplaceAll(match, ",", "")
		}
	case lastComma >= 0:
		if len(match)-lastComma-1 == 3 {
			match = strings.ReplaceAll(match, ",", "")
		} else {
			match = strings.Replace(match, ",", ".", 1)
		}
	case lastDot >= 0:
		if len(match)-lastDot-1 == 3 {
			match = strings.ReplaceAll(match, ".", "")
		}
	}

	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
