package scraper

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func docFromFixture(t *testing.T, name string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(loadFixture(t, name)))
	if err != nil {
		t.Fatalf("failed to parse fixture %s: %v", name, err)
	}
	return doc
}

func TestParseKleinanzeigenDoc(t *testing.T) {
	candidates := parseKleinanzeigenDoc(docFromFixture(t, "kleinanzeigen_search.html"))
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	c := candidates[0]
	if c.ID != "2544332211" {
		t.Fatalf("unexpected ID %s", c.ID)
	}
	if c.Title != "Fender Stratocaster Mexico" {
		t.Fatalf("unexpected title %q", c.Title)
	}
	if c.PriceText != "650 € VB" {
		t.Fatalf("unexpected price %q", c.PriceText)
	}
	if c.Location != "10115 Berlin Mitte" {
		t.Fatalf("unexpected location %q", c.Location)
	}
	if c.URL != "https://www.kleinanzeigen.de/s-anzeige/fender-stratocaster-mexico/2544332211" {
		t.Fatalf("unexpected URL %s", c.URL)
	}
	if c.Image != "https://img.kleinanzeigen.de/api/v1/prod-ads/images/aa/aa1.jpg" {
		t.Fatalf("unexpected image %s", c.Image)
	}
	if c.Condition != "gebraucht" {
		t.Fatalf("unexpected condition %q", c.Condition)
	}
	if c.Source != models.SourceKleinanzeigen {
		t.Fatalf("unexpected source %s", c.Source)
	}

	// second item: no image, giveaway price text, no condition tag
	c = candidates[1]
	if c.Title != "E-Gitarre defekt" {
		t.Fatalf("unexpected title %q", c.Title)
	}
	if c.PriceText != "Zu verschenken" {
		t.Fatalf("unexpected price %q", c.PriceText)
	}
	if c.Image != "" {
		t.Fatalf("expected no image, got %s", c.Image)
	}
}

func TestParseQuokaDoc(t *testing.T) {
	candidates := parseQuokaDoc(docFromFixture(t, "quoka_search.html"))
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	c := candidates[0]
	if c.ID != "77881122" {
		t.Fatalf("unexpected ID %s", c.ID)
	}
	if c.Title != "Boss DD-7 Digital Delay" {
		t.Fatalf("unexpected title %q", c.Title)
	}
	if c.PriceText != "95,00 €" {
		t.Fatalf("unexpected price %q", c.PriceText)
	}
	if c.Location != "10435 Berlin" {
		t.Fatalf("unexpected location %q", c.Location)
	}
	if c.URL != "https://www.quoka.de/musikinstrumente/effektgeraete/c7788a77881122.html" {
		t.Fatalf("unexpected URL %s", c.URL)
	}

	// second item has no ID and a price without <strong>
	c = candidates[1]
	if c.ID != "" {
		t.Fatalf("expected empty ID, got %s", c.ID)
	}
	if c.PriceText != "1.250 €" {
		t.Fatalf("unexpected price %q", c.PriceText)
	}
}

func TestParseImmoweltResponse(t *testing.T) {
	candidates, err := parseImmoweltResponse(loadFixture(t, "immowelt_search.json"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	c := candidates[0]
	if c.ID != "IW-4455" {
		t.Fatalf("unexpected ID %s", c.ID)
	}
	if c.PriceText != "1250 EUR" {
		t.Fatalf("unexpected price %q", c.PriceText)
	}
	if c.Image != "https://media.immowelt.de/iw-4455-1.jpg" {
		t.Fatalf("unexpected image %s", c.Image)
	}
	if c.Condition != "" {
		t.Fatalf("active listing should have no condition override, got %q", c.Condition)
	}

	c = candidates[1]
	if c.PriceText != "Preis auf Anfrage" {
		t.Fatalf("unexpected price %q", c.PriceText)
	}
	if c.Condition != models.ConditionUnavailable {
		t.Fatalf("reserved listing should be unavailable, got %q", c.Condition)
	}
}

func TestParseKleinanzeigenDoc_EmptyPage(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte("<html><body><p>nichts gefunden</p></body></html>")))
	if err != nil {
		t.Fatal(err)
	}
	if got := parseKleinanzeigenDoc(doc); len(got) != 0 {
		t.Fatalf("expected no candidates, got %d", len(got))
	}
}
