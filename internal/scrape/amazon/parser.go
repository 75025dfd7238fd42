// Package amazon extracts product data from Amazon product pages.
package amazon

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"price-tracker/internal/scrape/parse"
)

var priceSelectors = []string{
	"#priceblock_ourprice",
	"#priceblock_dealprice",
	"#priceblock_saleprice",
	"#corePrice_feature_div .a-price .a-offscreen",
	"span.a-price .a-offscreen",
}

var mrpSelectors = []string{
	"#priceblock_listprice",
	"#corePrice_feature_div .a-text-price .a-offscreen",
	"span.a-text-price .a-offscreen",
}

var unavailableRe = regexp.MustCompile(`(?i)currently unavailable|out of stock|unavailable`)

// Parse pulls price, MRP, title and availability out of an Amazon product
// page. JSON-LD is preferred; DOM selectors are the fallback. Parse never
// fails — fields the page does not expose stay unset.
func Parse(html string) parse.Fields {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return parse.Fields{Source: "http:dom"}
	}

	var ldBlocks []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		if text := s.Text(); text != "" {
			ldBlocks = append(ldBlocks, text)
		}
	})
	fromLd := parse.ProductFromJSONLD(ldBlocks)

	titleDom := firstText(doc, []string{"#productTitle", "h1"})
	priceDom := firstText(doc, priceSelectors)
	mrpDom := firstText(doc, mrpSelectors)
	availability := firstText(doc, []string{"#availability span", "#availability"})

	fields := parse.Fields{
		MRP:    parse.Money(mrpDom),
		Source: "http:dom",
	}

	if fromLd != nil {
		fields.Source = "http:jsonld"
		fields.Title = fromLd.Title
		fields.Price = fromLd.Price
		fields.Currency = fromLd.Currency
		fields.InStock = fromLd.InStock
	}

	if fields.Title == nil && titleDom != "" {
		fields.Title = &titleDom
	}
	if fields.Price == nil {
		fields.Price = parse.Money(priceDom)
	}
	if fields.InStock == nil && availability != "" {
		inStock := !unavailableRe.MatchString(availability)
		fields.InStock = &inStock
	}
	if fields.Currency == nil {
		inr := "INR"
		fields.Currency = &inr
	}

	return fields
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}
