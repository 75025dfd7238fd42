// Package browser drives a headless Chrome session for pages that withhold
// data from plain HTTP clients. It navigates, optionally applies a delivery
// pincode, and hands the rendered HTML to the platform parsers.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"price-tracker/internal/scrape/amazon"
	"price-tracker/internal/scrape/flipkart"
	"price-tracker/internal/scrape/parse"
)

const (
	navigationTimeout = 30 * time.Second
	settleWait        = 2 * time.Second
	clickTimeout      = 1200 * time.Millisecond
	pincodeRetries    = 3
	userAgent         = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 Chrome/120 Safari/537.36"
)

// AutomationError is a typed navigation/automation failure.
type AutomationError struct {
	Platform string
	Op       string
	Err      error
}

func (e *AutomationError) Error() string {
	return fmt.Sprintf("browser automation failed (%s, %s): %v", e.Platform, e.Op, e.Err)
}

func (e *AutomationError) Unwrap() error { return e.Err }

// Options control a single automation run.
type Options struct {
	Pincode            string
	FreshContext       bool
	DebugDumpOnFailure bool
}

// Automator owns headless-browser acquisition for all platforms.
type Automator struct {
	log     zerolog.Logger
	dumpDir string
}

func New(log zerolog.Logger, dumpDir string) *Automator {
	return &Automator{
		log:     log.With().Str("component", "browser").Logger(),
		dumpDir: dumpDir,
	}
}

var (
	pincodeRe       = regexp.MustCompile(`^\d{6}$`)
	anyPincodeRe    = regexp.MustCompile(`\b\d{6}\b`)
	undeliverableRe = regexp.MustCompile(`(?i)not deliverable|cannot be delivered|unavailable`)

	monthPattern   = `(Jan|January|Feb|February|Mar|March|Apr|April|May|Jun|June|Jul|July|Aug|August|Sep|Sept|September|Oct|October|Nov|November|Dec|December)`
	deliveryDateRe = regexp.MustCompile(`(?i)\b(?:Mon|Monday|Tue|Tuesday|Wed|Wednesday|Thu|Thursday|Fri|Friday|Sat|Saturday|Sun|Sunday),?\s+\d{1,2}\s+` + monthPattern + `\b|\b\d{1,2}\s+` + monthPattern + `\b`)
)

var amazonDeliverySelectors = []string{
	"#mir-layout-DELIVERY_BLOCK-slot-PRIMARY_DELIVERY_MESSAGE_LARGE span",
	"#mir-layout-DELIVERY_BLOCK-slot-DELIVERY_MESSAGE span",
	"#deliveryBlockMessage span",
	"#deliveryBlockMessage",
}

var amazonPincodeSelectors = []string{
	"#contextualIngressPtLabel_deliveryShortLine",
	"#glow-ingress-line2",
	"#glow-ingress-line1",
	"#deliveryBlockMessage",
}

// ScrapeFlipkart renders a Flipkart product page and extracts fields from it.
func (a *Automator) ScrapeFlipkart(ctx context.Context, url string, opts Options) (parse.Fields, error) {
	return a.scrape(ctx, "flipkart", url, opts, flipkart.Parse, nil)
}

// ScrapeAmazon renders an Amazon product page, applying the requested
// delivery pincode when one is supplied, and extracts fields plus delivery
// eligibility.
func (a *Automator) ScrapeAmazon(ctx context.Context, url string, opts Options) (parse.Fields, error) {
	return a.scrape(ctx, "amazon", url, opts, amazon.Parse, a.amazonDelivery)
}

type deliveryFn func(doc *goquery.Document, fields *parse.Fields, opts Options, appliedByFlow bool)

func (a *Automator) scrape(ctx context.Context, platform, url string, opts Options, parsePage func(string) parse.Fields, delivery deliveryFn) (parse.Fields, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(userAgent),
		chromedp.Flag("lang", "en-IN"),
	)
	if opts.FreshContext {
		allocOpts = append(allocOpts, chromedp.Flag("incognito", true))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, navigationTimeout+settleWait+10*time.Second)
	defer cancelTimeout()

	navCtx, cancelNav := context.WithTimeout(taskCtx, navigationTimeout)
	defer cancelNav()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return parse.Fields{}, &AutomationError{Platform: platform, Op: "navigate", Err: err}
	}
	_ = chromedp.Run(taskCtx, chromedp.Sleep(settleWait))

	appliedByFlow := false
	if platform == "amazon" && pincodeRe.MatchString(opts.Pincode) {
		appliedByFlow = a.tryApplyAmazonPincode(taskCtx, opts.Pincode)
	}

	var html, finalURL string
	if err := chromedp.Run(taskCtx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html),
	); err != nil {
		return parse.Fields{}, &AutomationError{Platform: platform, Op: "capture", Err: err}
	}

	fields := parsePage(html)
	fields.Source = strings.Replace(fields.Source, "http:", "browser:", 1)
	fields.Debug = &parse.Debug{FinalURL: finalURL}

	if delivery != nil {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
			delivery(doc, &fields, opts, appliedByFlow)
		}
	}

	if fields.Price == nil && opts.DebugDumpOnFailure {
		a.dump(taskCtx, platform, html, fields.Debug)
	}

	return fields, nil
}

// amazonDelivery populates delivery eligibility for the requested pincode.
// When the page never confirms the pincode took effect, deliverability for
// the requested pincode stays unknown (nil) rather than false.
func (a *Automator) amazonDelivery(doc *goquery.Document, fields *parse.Fields, opts Options, appliedByFlow bool) {
	deliveryText := firstNonEmptyText(doc, amazonDeliverySelectors)
	if deliveryText != "" {
		fields.DeliveryText = &deliveryText

		deliverable := !undeliverableRe.MatchString(deliveryText)
		fields.Deliverable = &deliverable

		if m := deliveryDateRe.FindString(deliveryText); m != "" {
			date := strings.TrimSpace(strings.TrimPrefix(m, ","))
			fields.DeliveryDate = &date
		}
	}

	pincodeText := firstNonEmptyText(doc, amazonPincodeSelectors)
	var deliveryPincode string
	if m := anyPincodeRe.FindString(pincodeText); m != "" {
		deliveryPincode = m
		fields.DeliveryPincode = &deliveryPincode
	}

	if !pincodeRe.MatchString(opts.Pincode) {
		return
	}

	requested := opts.Pincode
	fields.RequestedPincode = &requested

	// The on-page pincode readback is authoritative; the apply-flow outcome
	// only counts when the page never echoes a pincode back.
	var applied bool
	if deliveryPincode != "" {
		applied = deliveryPincode == requested
	} else {
		applied = appliedByFlow
	}
	fields.RequestedPincodeApplied = &applied

	if applied {
		fields.DeliverableForRequestedPincode = fields.Deliverable
	}
}

func (a *Automator) tryApplyAmazonPincode(ctx context.Context, pincode string) bool {
	triggerSelectors := []string{
		"#glow-ingress-block",
		"#nav-global-location-popover-link",
		"#contextualIngressPtLabel",
		"#glow-ingress-line2",
	}
	inputSelectors := []string{
		"input#GLUXZipUpdateInput",
		"input[name='zipCode']",
		"input[placeholder*='PIN']",
		"input[placeholder*='pincode']",
	}
	submitSelectors := []string{
		"#GLUXZipUpdate-announce",
		"#GLUXZipUpdate input.a-button-input",
		"#GLUXZipUpdate .a-button-input",
	}

	for attempt := 0; attempt < pincodeRetries; attempt++ {
		for _, sel := range triggerSelectors {
			a.quickClick(ctx, sel, time.Second)
		}
		_ = chromedp.Run(ctx, chromedp.Sleep(400*time.Millisecond))

		inputFound := false
		for _, sel := range inputSelectors {
			fillCtx, cancel := context.WithTimeout(ctx, clickTimeout)
			err := chromedp.Run(fillCtx,
				chromedp.SetValue(sel, pincode, chromedp.ByQuery),
				chromedp.SendKeys(sel, "\r", chromedp.ByQuery),
			)
			cancel()
			if err == nil {
				inputFound = true
				break
			}
		}

		if !inputFound {
			_ = chromedp.Run(ctx, chromedp.Sleep(500*time.Millisecond))
			continue
		}

		for _, sel := range submitSelectors {
			a.quickClick(ctx, sel, clickTimeout)
		}
		_ = chromedp.Run(ctx, chromedp.Sleep(700*time.Millisecond))

		var text string
		readCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
		err := chromedp.Run(readCtx, chromedp.Text("#glow-ingress-line2, #contextualIngressPtLabel_deliveryShortLine", &text, chromedp.ByQuery, chromedp.AtLeast(0)))
		cancel()
		if err == nil && anyPincodeRe.FindString(text) == pincode {
			return true
		}
	}

	return false
}

func (a *Automator) quickClick(ctx context.Context, sel string, timeout time.Duration) bool {
	clickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return chromedp.Run(clickCtx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible)) == nil
}

// dump writes the rendered page and a screenshot for offline inspection when
// a run failed to find a price.
func (a *Automator) dump(ctx context.Context, platform, html string, debug *parse.Debug) {
	if a.dumpDir == "" {
		return
	}
	if err := os.MkdirAll(a.dumpDir, 0o755); err != nil {
		a.log.Warn().Err(err).Msg("debug dump dir")
		return
	}

	htmlPath := filepath.Join(a.dumpDir, platform+"_page.html")
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		a.log.Warn().Err(err).Msg("debug dump html")
		return
	}

	var shot []byte
	shotCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := chromedp.Run(shotCtx, chromedp.CaptureScreenshot(&shot)); err == nil {
		_ = os.WriteFile(filepath.Join(a.dumpDir, platform+"_page.png"), shot, 0o644)
	}

	if debug != nil {
		debug.Dumped = true
		debug.DumpPath = a.dumpDir
	}

	a.log.Debug().Str("platform", platform).Str("dir", a.dumpDir).Msg("dumped debug artifacts")
}

func firstNonEmptyText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if text := strings.TrimSpace(s.Text()); text != "" {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}
