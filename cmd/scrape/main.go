// One-shot acquisition for a single product URL. Prints the full result as
// JSON; useful for debugging selectors and pincode flows without a database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"price-tracker/internal/config"
	"price-tracker/internal/models"
	"price-tracker/internal/scrape"
	"price-tracker/internal/scrape/browser"
	"price-tracker/pkg/logger"
)

var (
	url     = flag.String("url", "", "product URL (required)")
	method  = flag.String("method", "auto", "acquisition method: auto, http or browser")
	pincode = flag.String("pincode", "", "6-digit delivery pincode")
	fresh   = flag.Bool("fresh", false, "use a fresh browser context")
	debug   = flag.Bool("debug", false, "dump page HTML and screenshot on failure")
	timeout = flag.Duration("timeout", 90*time.Second, "overall deadline")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "usage: scrape -url <product-url> [-method auto|http|browser] [-pincode 560001]")
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})

	automator := browser.New(log, cfg.DebugDumpDir)
	scraper := scrape.New(scrape.NewFetcher(), automator, scrape.Config{
		PriceCeiling:             cfg.PricePlausibleMax,
		ExtendedBrowserPlatforms: cfg.ExtendedBrowserPlatforms,
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result := scraper.Scrape(ctx, *url, "", scrape.Options{
		Method:             models.Method(*method),
		Pincode:            *pincode,
		FreshContext:       *fresh,
		DebugDumpOnFailure: *debug,
	})

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("encode result")
	}
	fmt.Println(string(out))

	if result.ErrorCode != "" {
		os.Exit(1)
	}
}
