package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"price-tracker/internal/models"
	"price-tracker/internal/normalize"
	"price-tracker/internal/scrape/amazon"
	"price-tracker/internal/scrape/browser"
	"price-tracker/internal/scrape/flipkart"
	"price-tracker/internal/scrape/parse"
)

// BrowserFunc runs one headless-browser acquisition attempt.
type BrowserFunc func(ctx context.Context, url string, opts browser.Options) (parse.Fields, error)

// Capability is what a platform supports. Parse must be set for any platform
// that supports direct fetch; Browser is nil for platforms without an
// automation adapter. Unknown platforms have no capability entry at all.
type Capability struct {
	Parse   func(html string) parse.Fields
	Browser BrowserFunc
}

// Options control one acquisition.
type Options struct {
	Method             models.Method
	Pincode            string
	FreshContext       bool
	DebugDumpOnFailure bool
}

// Config tunes scraper behaviour.
type Config struct {
	PriceCeiling float64
	// ExtendedBrowserPlatforms enables browser automation on platforms that
	// only carry direct fetch in the default profile.
	ExtendedBrowserPlatforms []string
}

// Scraper sequences acquisition strategies per platform and merges their
// partial results until one yields a usable price or all are exhausted.
type Scraper struct {
	fetcher      *Fetcher
	caps         map[models.Platform]Capability
	priceCeiling float64
	log          zerolog.Logger
}

func New(fetcher *Fetcher, automator *browser.Automator, cfg Config, log zerolog.Logger) *Scraper {
	caps := map[models.Platform]Capability{
		models.PlatformFlipkart: {Parse: flipkart.Parse, Browser: automator.ScrapeFlipkart},
		models.PlatformAmazon:   {Parse: amazon.Parse},
	}

	for _, p := range cfg.ExtendedBrowserPlatforms {
		if models.Platform(p) == models.PlatformAmazon {
			entry := caps[models.PlatformAmazon]
			entry.Browser = automator.ScrapeAmazon
			caps[models.PlatformAmazon] = entry
		}
	}

	return &Scraper{
		fetcher:      fetcher,
		caps:         caps,
		priceCeiling: cfg.PriceCeiling,
		log:          log.With().Str("component", "scraper").Logger(),
	}
}

// NewWithCapabilities wires an explicit registry; used by tests.
func NewWithCapabilities(fetcher *Fetcher, caps map[models.Platform]Capability, cfg Config, log zerolog.Logger) *Scraper {
	return &Scraper{
		fetcher:      fetcher,
		caps:         caps,
		priceCeiling: cfg.PriceCeiling,
		log:          log,
	}
}

// Scrape acquires product data for rawURL on the given platform. An empty
// platform is resolved from the URL. Strategy failures are contained: the
// returned result carries an error annotation instead of the call failing.
func (s *Scraper) Scrape(ctx context.Context, rawURL string, platform models.Platform, opts Options) Result {
	info := normalize.Normalize(rawURL)
	if platform == "" {
		platform = info.Platform
	}

	method := opts.Method
	switch method {
	case models.MethodHTTP, models.MethodBrowser, models.MethodAuto:
	default:
		method = models.MethodAuto
	}

	fields, attemptErr := s.runStrategies(ctx, rawURL, platform, method, opts)

	result := Result{
		Platform:  platform,
		ProductID: info.ProductID,
		Currency:  "INR",
		Method:    method,
		Source:    "http",
		Timestamp: time.Now().UTC(),
	}

	result.Title = fields.Title
	if fields.ProductID != nil {
		result.ProductID = fields.ProductID
	}
	result.Price = fields.Price
	result.MRP = fields.MRP
	result.InStock = fields.InStock
	result.Deliverable = fields.Deliverable
	result.DeliveryText = fields.DeliveryText
	result.DeliveryDate = fields.DeliveryDate
	result.RequestedPincode = fields.RequestedPincode
	result.DeliveryPincode = fields.DeliveryPincode
	result.RequestedPincodeApplied = fields.RequestedPincodeApplied
	result.DeliverableForRequestedPincode = fields.DeliverableForRequestedPincode
	result.Debug = fields.Debug
	if fields.Currency != nil {
		result.Currency = *fields.Currency
	}
	if fields.Source != "" {
		result.Source = fields.Source
	}

	if result.Price == nil && attemptErr != nil {
		result.ErrorCode, result.ErrorMessage = classifyError(attemptErr)
	}

	result.Confidence = confidence(&result)
	result.Validation = Validate(&result, opts.Pincode, s.priceCeiling)

	return result
}

// runStrategies executes the strategy sequence for the resolved method and
// merges partial outcomes. It returns the last contained error, if any, for
// annotation purposes.
func (s *Scraper) runStrategies(ctx context.Context, url string, platform models.Platform, method models.Method, opts Options) (parse.Fields, error) {
	capability, ok := s.caps[platform]
	if !ok {
		// Unknown platform short-circuits to an empty result.
		return parse.Fields{}, nil
	}

	var fields parse.Fields
	var lastErr error

	runDirect := func() {
		html, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			lastErr = err
			s.log.Debug().Err(err).Str("url", url).Msg("direct fetch failed")
			return
		}
		fields = parse.Merge(fields, capability.Parse(html))
	}

	runBrowser := func() {
		browserFields, err := capability.Browser(ctx, url, browser.Options{
			Pincode:            opts.Pincode,
			FreshContext:       opts.FreshContext,
			DebugDumpOnFailure: opts.DebugDumpOnFailure,
		})
		if err != nil {
			lastErr = err
			s.log.Debug().Err(err).Str("url", url).Msg("browser automation failed")
			return
		}
		fields = parse.Merge(fields, browserFields)
	}

	switch method {
	case models.MethodBrowser:
		if capability.Browser != nil {
			runBrowser()
		} else {
			// Platforms without an automation adapter serve the request
			// over plain fetch rather than failing it.
			runDirect()
		}
	case models.MethodHTTP:
		runDirect()
	default: // auto: direct first, browser only when no usable price emerged
		runDirect()
		if fields.Price == nil && capability.Browser != nil {
			runBrowser()
		}
	}

	return fields, lastErr
}

func classifyError(err error) (code, message string) {
	var autoErr *browser.AutomationError
	switch {
	case errors.As(err, &autoErr):
		code = "automation_error"
	case errors.Is(err, context.DeadlineExceeded):
		code = "timeout"
	default:
		code = "fetch_failed"
	}
	return code, err.Error()
}
