package scrape

import (
	"math"
	"regexp"
	"strings"
	"time"

	"price-tracker/internal/models"
	"price-tracker/internal/scrape/parse"
)

// Price-from classifications reported by validation.
const (
	PriceFromStructuredData = "structured-data"
	PriceFromRawMarkup      = "raw-markup"
)

// DefaultPriceCeiling is the plausibility cap in currency units.
const DefaultPriceCeiling = 5_000_000

// Validation is the plausibility verdict attached to every result. It is
// advisory: implausible data flows through flagged, never as an error.
type Validation struct {
	PriceFrom        string `json:"price_from"`
	IsPricePlausible bool   `json:"is_price_plausible"`
	NeedsReview      bool   `json:"needs_review"`
}

// Result is one acquisition outcome, independent of which strategy produced
// it. Produced by the Scraper, consumed by validation and persistence.
type Result struct {
	Platform  models.Platform `json:"platform"`
	ProductID *string         `json:"product_id"`
	Title     *string         `json:"title"`
	Price     *float64        `json:"price"`
	MRP       *float64        `json:"mrp"`
	InStock   *bool           `json:"in_stock"`

	Deliverable  *bool   `json:"deliverable"`
	DeliveryText *string `json:"delivery_text"`
	DeliveryDate *string `json:"delivery_date"`

	RequestedPincode        *string `json:"requested_pincode"`
	DeliveryPincode         *string `json:"delivery_pincode"`
	RequestedPincodeApplied *bool   `json:"requested_pincode_applied"`
	// DeliverableForRequestedPincode is three-valued: nil means the page
	// never confirmed the requested pincode was applied.
	DeliverableForRequestedPincode *bool `json:"deliverable_for_requested_pincode"`

	Currency   string        `json:"currency"`
	Method     models.Method `json:"method"`
	Source     string        `json:"source"`
	Confidence float64       `json:"confidence"`
	Timestamp  time.Time     `json:"timestamp"`

	Validation Validation `json:"result_validation"`

	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	Debug *parse.Debug `json:"debug,omitempty"`
}

var sixDigitPincodeRe = regexp.MustCompile(`^\d{6}$`)

// Validate classifies a result for plausibility and review. It never fails;
// bad data degrades to NeedsReview.
func Validate(r *Result, requestedPincode string, priceCeiling float64) Validation {
	if priceCeiling <= 0 {
		priceCeiling = DefaultPriceCeiling
	}

	v := Validation{
		PriceFrom: priceFrom(r.Source),
	}

	if r.Price != nil {
		p := *r.Price
		v.IsPricePlausible = !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0 && p <= priceCeiling
	}

	pincodeRequested := sixDigitPincodeRe.MatchString(requestedPincode)
	pincodeUnconfirmed := pincodeRequested &&
		(r.RequestedPincodeApplied == nil || !*r.RequestedPincodeApplied)

	v.NeedsReview = r.Price == nil || !v.IsPricePlausible || pincodeUnconfirmed

	return v
}

func priceFrom(source string) string {
	switch {
	case strings.HasSuffix(source, ":jsonld"):
		return PriceFromStructuredData
	case strings.HasSuffix(source, ":dom"):
		return PriceFromRawMarkup
	default:
		return ""
	}
}

func confidence(r *Result) float64 {
	if r.Price != nil && r.Title != nil && *r.Title != "" {
		return 0.9
	}
	return 0.4
}
