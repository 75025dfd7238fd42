// Package parse holds the field set shared by all acquisition strategies and
// the helpers for turning marketplace page data into typed values.
package parse

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Fields is a partial acquisition outcome. Every field is optional; strategies
// produce what they can and the selector merges them.
type Fields struct {
	Title     *string  `json:"title,omitempty"`
	ProductID *string  `json:"product_id,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	MRP       *float64 `json:"mrp,omitempty"`
	InStock   *bool    `json:"in_stock,omitempty"`
	Currency  *string  `json:"currency,omitempty"`

	Deliverable  *bool   `json:"deliverable,omitempty"`
	DeliveryText *string `json:"delivery_text,omitempty"`
	DeliveryDate *string `json:"delivery_date,omitempty"`

	RequestedPincode               *string `json:"requested_pincode,omitempty"`
	DeliveryPincode                *string `json:"delivery_pincode,omitempty"`
	RequestedPincodeApplied        *bool   `json:"requested_pincode_applied,omitempty"`
	DeliverableForRequestedPincode *bool   `json:"deliverable_for_requested_pincode,omitempty"`

	Source string `json:"source,omitempty"`
	Debug  *Debug `json:"debug,omitempty"`
}

// Debug carries navigation telemetry from browser strategies.
type Debug struct {
	FinalURL string `json:"final_url,omitempty"`
	Status   int    `json:"status,omitempty"`
	Dumped   bool   `json:"dumped,omitempty"`
	DumpPath string `json:"dump_path,omitempty"`
}

// Merge overlays src onto dst. Set fields in src win; unset fields keep the
// dst value. Neither input is mutated.
func Merge(dst, src Fields) Fields {
	out := dst
	if src.Title != nil {
		out.Title = src.Title
	}
	if src.ProductID != nil {
		out.ProductID = src.ProductID
	}
	if src.Price != nil {
		out.Price = src.Price
	}
	if src.MRP != nil {
		out.MRP = src.MRP
	}
	if src.InStock != nil {
		out.InStock = src.InStock
	}
	if src.Currency != nil {
		out.Currency = src.Currency
	}
	if src.Deliverable != nil {
		out.Deliverable = src.Deliverable
	}
	if src.DeliveryText != nil {
		out.DeliveryText = src.DeliveryText
	}
	if src.DeliveryDate != nil {
		out.DeliveryDate = src.DeliveryDate
	}
	if src.RequestedPincode != nil {
		out.RequestedPincode = src.RequestedPincode
	}
	if src.DeliveryPincode != nil {
		out.DeliveryPincode = src.DeliveryPincode
	}
	if src.RequestedPincodeApplied != nil {
		out.RequestedPincodeApplied = src.RequestedPincodeApplied
	}
	if src.DeliverableForRequestedPincode != nil {
		out.DeliverableForRequestedPincode = src.DeliverableForRequestedPincode
	}
	if src.Source != "" {
		out.Source = src.Source
	}
	if src.Debug != nil {
		out.Debug = src.Debug
	}
	return out
}

var digitsRe = regexp.MustCompile(`[^0-9]`)

// Digits extracts an integer value from price text by dropping every
// non-digit rune ("₹1,29,999" -> 129999).
func Digits(text string) *float64 {
	cleaned := digitsRe.ReplaceAllString(text, "")
	if cleaned == "" {
		return nil
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &n
}

// Money parses decimal price text, tolerating currency symbols and thousands
// separators, and rounds to the nearest whole unit.
func Money(text string) *float64 {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		if r == ',' {
			return -1
		}
		return -1
	}, text)
	if cleaned == "" {
		return nil
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	rounded := math.Round(value)
	return &rounded
}

// Product is the subset of a schema.org Product block the parsers use.
type Product struct {
	Title    *string
	SKU      *string
	Price    *float64
	Currency *string
	InStock  *bool
}

// ProductFromJSONLD scans raw JSON-LD blocks for the first Product entry.
// Malformed blocks are skipped, never surfaced as errors.
func ProductFromJSONLD(blocks []string) *Product {
	for _, block := range blocks {
		var parsed any
		if err := json.Unmarshal([]byte(block), &parsed); err != nil {
			continue
		}

		items, ok := parsed.([]any)
		if !ok {
			items = []any{parsed}
		}

		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok || obj["@type"] != "Product" {
				continue
			}
			return productFromObject(obj)
		}
	}
	return nil
}

func productFromObject(obj map[string]any) *Product {
	p := &Product{}

	if name, ok := obj["name"].(string); ok && name != "" {
		p.Title = &name
	}
	if sku, ok := obj["sku"].(string); ok && sku != "" {
		p.SKU = &sku
	}

	offers, ok := obj["offers"].([]any)
	if !ok {
		offers = []any{obj["offers"]}
	}

	for _, rawOffer := range offers {
		offer, ok := rawOffer.(map[string]any)
		if !ok {
			continue
		}

		if p.Price == nil {
			rawPrice := offer["price"]
			if rawPrice == nil {
				if spec, ok := offer["priceSpecification"].(map[string]any); ok {
					rawPrice = spec["price"]
				}
			}
			switch v := rawPrice.(type) {
			case float64:
				rounded := math.Round(v)
				p.Price = &rounded
			case string:
				p.Price = Money(v)
			}
		}

		if p.Currency == nil {
			if currency, ok := offer["priceCurrency"].(string); ok && currency != "" {
				p.Currency = &currency
			}
		}

		if p.InStock == nil {
			if availability, ok := offer["availability"].(string); ok {
				inStock := strings.Contains(availability, "InStock")
				p.InStock = &inStock
			}
		}
	}

	return p
}
