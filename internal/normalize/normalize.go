// Package normalize classifies product URLs into a platform and extracts a
// stable product identifier where the URL carries one.
package normalize

import (
	"net/url"
	"regexp"
	"strings"

	"price-tracker/internal/models"
)

// Info is the normalized form of a product URL.
type Info struct {
	OriginalURL  string          `json:"original_url"`
	CanonicalURL string          `json:"canonical_url"`
	Platform     models.Platform `json:"platform"`
	ProductID    *string         `json:"product_id"`
}

var (
	flipkartProductRe = regexp.MustCompile(`/p/(itm[a-zA-Z0-9]+)`)

	amazonASINPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)/dp/([A-Z0-9]{10})(?:[/?]|$)`),
		regexp.MustCompile(`(?i)/gp/product/([A-Z0-9]{10})(?:[/?]|$)`),
		regexp.MustCompile(`(?i)/product/([A-Z0-9]{10})(?:[/?]|$)`),
	}
)

// Normalize detects the platform for rawURL and extracts the product id.
// The canonical URL is the input URL as-is; shortened amazon links resolve to
// their target at fetch time.
func Normalize(rawURL string) Info {
	platform := detectPlatform(rawURL)

	info := Info{
		OriginalURL:  rawURL,
		CanonicalURL: rawURL,
		Platform:     platform,
	}

	switch platform {
	case models.PlatformFlipkart:
		info.ProductID = extractFlipkartProductID(rawURL)
	case models.PlatformAmazon:
		info.ProductID = extractAmazonASIN(rawURL)
	}

	return info
}

func detectPlatform(rawURL string) models.Platform {
	lower := strings.ToLower(rawURL)

	if strings.Contains(lower, "flipkart.com") {
		return models.PlatformFlipkart
	}

	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host := strings.ToLower(u.Hostname())
		if strings.Contains(host, "amazon.") || host == "a.co" || host == "amzn.to" || host == "amzn.in" {
			return models.PlatformAmazon
		}
		return models.PlatformUnknown
	}

	// Unparseable input, fall back to substring checks.
	if strings.Contains(lower, "amazon.") || strings.Contains(lower, "a.co/") ||
		strings.Contains(lower, "amzn.to/") || strings.Contains(lower, "amzn.in/") {
		return models.PlatformAmazon
	}

	return models.PlatformUnknown
}

func extractFlipkartProductID(rawURL string) *string {
	if m := flipkartProductRe.FindStringSubmatch(rawURL); m != nil {
		return &m[1]
	}
	return nil
}

func extractAmazonASIN(rawURL string) *string {
	for _, re := range amazonASINPatterns {
		if m := re.FindStringSubmatch(rawURL); m != nil {
			asin := strings.ToUpper(m[1])
			return &asin
		}
	}
	return nil
}
