package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
)

const kleinanzeigenBase = "https://www.kleinanzeigen.de"

func parseKleinanzeigenDoc(doc *goquery.Document) []models.RawCandidate {
	var candidates []models.RawCandidate

	doc.Find("article.aditem").Each(func(_ int, s *goquery.Selection) {
		c := models.RawCandidate{Source: models.SourceKleinanzeigen}

		c.ID, _ = s.Attr("data-adid")

		link := s.Find("a.ellipsis").First()
		c.Title = strings.TrimSpace(link.Text())
		if href, ok := link.Attr("href"); ok {
			c.URL = absoluteURL(kleinanzeigenBase, href)
		}

		c.PriceText = strings.TrimSpace(s.Find(".aditem-main--middle--price-shipping--price").First().Text())
		c.Location = strings.TrimSpace(s.Find(".aditem-main--top--left").First().Text())

		if tags := s.Find(".simpletag").First(); tags.Length() > 0 {
			c.Condition = strings.ToLower(strings.TrimSpace(tags.Text()))
		}
		if badge := s.Find(".aditem-main--top--right").Text(); strings.Contains(strings.ToLower(badge), "reserviert") {
			c.Condition = models.ConditionUnavailable
		}

		if img := s.Find(".aditem-image img").First(); img.Length() > 0 {
			if src, ok := img.Attr("src"); ok {
				c.Image = src
			} else if src, ok := img.Attr("data-src"); ok {
				c.Image = src
			}
		}

		if c.Title == "" && c.URL == "" {
			return // layout noise, not a listing
		}
		candidates = append(candidates, c)
	})

	return candidates
}

func absoluteURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return base + href
}
