// Package export renders a track's snapshot history as CSV or XLSX.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"price-tracker/internal/models"
	"price-tracker/internal/scrape"
)

// Column order matches the long-standing track log format; downstream
// spreadsheets key on these names.
var headers = []string{
	"timestamp",
	"url",
	"id",
	"trackingMethod",
	"platform",
	"productId",
	"title",
	"price",
	"mrp",
	"inStock",
	"deliverable",
	"deliverableForRequestedPincode",
	"requestedPincodeApplied",
	"requestedPincode",
	"deliveryPincode",
	"deliveryText",
	"deliveryDate",
	"currency",
	"source",
	"priceFrom",
	"isPricePlausible",
	"needsReview",
	"errorCode",
	"errorMessage",
}

// row flattens one snapshot. The snapshot's raw result carries the fields
// the row needs beyond what the snapshot columns store.
func row(track *models.Track, snap *models.Snapshot) []string {
	var result scrape.Result
	_ = json.Unmarshal([]byte(snap.Raw), &result)

	return []string{
		snap.ScrapedAt.UTC().Format("2006-01-02T15:04:05Z"),
		track.CanonicalURL,
		strconv.FormatUint(uint64(track.ID), 10),
		string(snap.Method),
		string(track.Platform),
		strOrEmpty(result.ProductID),
		strOrEmpty(snap.Title),
		floatOrEmpty(snap.Price),
		floatOrEmpty(snap.MRP),
		boolOrEmpty(snap.InStock),
		boolOrEmpty(snap.Deliverable),
		boolOrEmpty(result.DeliverableForRequestedPincode),
		boolOrEmpty(result.RequestedPincodeApplied),
		strOrEmpty(result.RequestedPincode),
		strOrEmpty(result.DeliveryPincode),
		strOrEmpty(snap.DeliveryText),
		strOrEmpty(snap.DeliveryDate),
		strOrEmpty(snap.Currency),
		strOrEmpty(snap.Source),
		result.Validation.PriceFrom,
		strconv.FormatBool(result.Validation.IsPricePlausible),
		strconv.FormatBool(result.Validation.NeedsReview),
		result.ErrorCode,
		result.ErrorMessage,
	}
}

// WriteCSV streams the history to w, oldest first, header row included.
func WriteCSV(w io.Writer, track *models.Track, snapshots []models.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	for i := len(snapshots) - 1; i >= 0; i-- {
		if err := cw.Write(row(track, &snapshots[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX renders the history as a single-sheet workbook.
func WriteXLSX(w io.Writer, track *models.Track, snapshots []models.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "History"
	f.SetSheetName("Sheet1", sheet)

	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	line := 2
	for i := len(snapshots) - 1; i >= 0; i-- {
		cells := row(track, &snapshots[i])
		values := make([]interface{}, len(cells))
		for j, v := range cells {
			values[j] = v
		}
		cell := fmt.Sprintf("A%d", line)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
		line++
	}

	return f.Write(w)
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatOrEmpty(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func boolOrEmpty(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}
