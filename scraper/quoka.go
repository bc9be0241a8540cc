package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
)

const quokaBase = "https://www.quoka.de"

func parseQuokaDoc(doc *goquery.Document) []models.RawCandidate {
	var candidates []models.RawCandidate

	doc.Find("div.qs-arti").Each(func(_ int, s *goquery.Selection) {
		c := models.RawCandidate{Source: models.SourceQuoka}

		c.ID, _ = s.Attr("data-qng-adid")

		link := s.Find("a.headline-link").First()
		if link.Length() == 0 {
			link = s.Find("h3 a").First()
		}
		c.Title = strings.TrimSpace(link.Text())
		if href, ok := link.Attr("href"); ok {
			c.URL = absoluteURL(quokaBase, href)
		}

		c.PriceText = strings.TrimSpace(s.Find(".price strong").First().Text())
		if c.PriceText == "" {
			c.PriceText = strings.TrimSpace(s.Find(".price").First().Text())
		}

		c.Location = strings.TrimSpace(s.Find(".cnt-locality").First().Text())

		if img := s.Find("img").First(); img.Length() > 0 {
			c.Image, _ = img.Attr("src")
		}

		if c.Title == "" && c.URL == "" {
			return
		}
		candidates = append(candidates, c)
	})

	return candidates
}
