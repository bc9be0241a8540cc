package httputil

import (
	"net/http"
	"net/url"
	"time"

	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/config"
)

type Clients struct {
	Scraping *http.Client // for marketplace pages, optionally proxied
	API      *http.Client // direct, for JSON search APIs
}

func NewClients(proxyCfg *config.ProxyConfig) *Clients {
	transport := &http.Transport{}
	if proxyCfg != nil && proxyCfg.URL != "" {
		if proxyURL, err := url.Parse(proxyCfg.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	scraping := &http.Client{
		Timeout:   15 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Clients{
		Scraping: scraping,
		API:      &http.Client{Timeout: 30 * time.Second},
	}
}
