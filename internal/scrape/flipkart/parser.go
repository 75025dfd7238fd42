// Package flipkart extracts product data from Flipkart product pages.
package flipkart

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"price-tracker/internal/scrape/parse"
)

// Flipkart rotates obfuscated class names; keep the historically seen ones.
var priceSelectors = []string{
	"div.hZ3P6w",
	"div.Nx9bqj",
	"div._30jeq3",
	"div._16Jk6d",
	"span._30jeq3",
}

var mrpSelectors = []string{
	"div.kRYCnD",
	"div._3I9_wc",
	"span._2p6lqe",
	"div.yRaY8j",
}

// Parse pulls price, MRP, title and availability out of a Flipkart product
// page. JSON-LD is the most stable signal; DOM is fallback. Never fails.
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

	titleDom := firstText(doc, []string{"span.B_NuCI", "h1"})
	priceDom := firstText(doc, priceSelectors)
	mrpDom := firstText(doc, mrpSelectors)

	notify := false
	doc.Find("button").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(strings.ToUpper(s.Text()), "NOTIFY") {
			notify = true
			return false
		}
		return true
	})
	soldOut := strings.Contains(doc.Text(), "Sold Out")
	inStockDom := !(notify || soldOut)

	fields := parse.Fields{
		MRP:     parse.Digits(mrpDom),
		InStock: &inStockDom,
		Source:  "http:dom",
	}

	if fromLd != nil {
		fields.Source = "http:jsonld"
		fields.Title = fromLd.Title
		fields.ProductID = fromLd.SKU
		fields.Price = fromLd.Price
		fields.Currency = fromLd.Currency
		if fromLd.InStock != nil {
			fields.InStock = fromLd.InStock
		}
	}

	if fields.Title == nil && titleDom != "" {
		fields.Title = &titleDom
	}
	if fields.Price == nil {
		fields.Price = parse.Digits(priceDom)
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
