package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"price-tracker/internal/models"
)

func f64(v float64) *float64 { return &v }
func boolp(v bool) *bool     { return &v }
func strp(v string) *string  { return &v }

func sampleData() (*models.Track, []models.Snapshot) {
	track := &models.Track{
		ID:           7,
		CanonicalURL: "https://www.flipkart.com/x/p/itmabc123",
		Platform:     models.PlatformFlipkart,
	}
	// Newest first, the way the service hands them over.
	snapshots := []models.Snapshot{
		{
			TrackID:   7,
			Price:     f64(899),
			InStock:   boolp(true),
			Currency:  strp("INR"),
			Title:     strp("Wireless Mouse"),
			Source:    strp("http:jsonld"),
			Method:    models.MethodHTTP,
			Raw:       `{"product_id":"itmabc123","result_validation":{"price_from":"structured-data","is_price_plausible":true,"needs_review":false}}`,
			ScrapedAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		},
		{
			TrackID:   7,
			Method:    models.MethodAuto,
			Raw:       `{"error_code":"fetch_failed","error_message":"503"}`,
			ScrapedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	return track, snapshots
}

func TestWriteCSV(t *testing.T) {
	track, snapshots := sampleData()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, track, snapshots))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus two rows")

	assert.Equal(t, headers, records[0])

	// Oldest row first: the failed run with its error annotation.
	failed := records[1]
	assert.Equal(t, "2026-03-01T12:00:00Z", failed[0])
	assert.Equal(t, "", failed[7], "no price on a failed run")
	assert.Equal(t, "fetch_failed", failed[22])
	assert.Equal(t, "503", failed[23])

	ok := records[2]
	assert.Equal(t, "899", ok[7])
	assert.Equal(t, "true", ok[9])
	assert.Equal(t, "itmabc123", ok[5])
	assert.Equal(t, "structured-data", ok[19])
	assert.Equal(t, "true", ok[20])
	assert.Equal(t, "false", ok[21])
}

func TestWriteXLSX(t *testing.T) {
	track, snapshots := sampleData()

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, track, snapshots))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("History")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "timestamp", rows[0][0])
	assert.Equal(t, "899", rows[2][7])
}
