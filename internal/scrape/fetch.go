package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const fetchUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120 Safari/537.36"

// Fetcher performs plain HTTP acquisition of product pages.
type Fetcher struct {
	client *resty.Client
}

func NewFetcher() *Fetcher {
	client := resty.New()
	client.SetTimeout(15 * time.Second)
	client.SetHeaders(map[string]string{
		"User-Agent":      fetchUserAgent,
		"Accept-Language": "en-US,en;q=0.9",
	})

	return &Fetcher{client: client}
}

// Fetch retrieves the page body for url, following redirects.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	html, _, err := f.FetchWithRedirectTarget(ctx, url)
	return html, err
}

// FetchWithRedirectTarget retrieves the page body and reports the final URL
// after redirects, which matters for shortened marketplace links.
func (f *Fetcher) FetchWithRedirectTarget(ctx context.Context, url string) (string, string, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return "", "", fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode())
	}

	finalURL := url
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalURL = raw.Request.URL.String()
	}

	return string(resp.Body()), finalURL, nil
}
