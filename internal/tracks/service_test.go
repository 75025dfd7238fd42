package tracks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-tracker/internal/models"
	"price-tracker/internal/scrape"
)

func f64(v float64) *float64 { return &v }
func boolp(v bool) *bool     { return &v }
func strp(v string) *string  { return &v }

func TestClampInterval(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 30},
		{4, 30},
		{5, 5},
		{30, 30},
		{1440, 1440},
		{1441, 30},
		{-10, 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampInterval(tt.in), "in=%d", tt.in)
	}
}

func TestNormalizeMethod(t *testing.T) {
	assert.Equal(t, models.MethodAuto, normalizeMethod(""))
	assert.Equal(t, models.MethodAuto, normalizeMethod("playwright"))
	assert.Equal(t, models.MethodHTTP, normalizeMethod(models.MethodHTTP))
	assert.Equal(t, models.MethodBrowser, normalizeMethod(models.MethodBrowser))
	assert.Equal(t, models.MethodAuto, normalizeMethod(models.MethodAuto))
}

func TestChanged(t *testing.T) {
	tests := []struct {
		name string
		prev Previous
		res  scrape.Result
		want bool
	}{
		{
			name: "first observation is not a change",
			prev: Previous{},
			res:  scrape.Result{Price: f64(999), InStock: boolp(true)},
			want: false,
		},
		{
			name: "price moved",
			prev: Previous{Price: f64(999)},
			res:  scrape.Result{Price: f64(899)},
			want: true,
		},
		{
			name: "price unchanged",
			prev: Previous{Price: f64(999)},
			res:  scrape.Result{Price: f64(999)},
			want: false,
		},
		{
			name: "stock flipped",
			prev: Previous{Price: f64(999), InStock: boolp(true)},
			res:  scrape.Result{Price: f64(999), InStock: boolp(false)},
			want: true,
		},
		{
			name: "failed run observes nothing",
			prev: Previous{Price: f64(999), InStock: boolp(true)},
			res:  scrape.Result{},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, changed(tt.prev, &tt.res))
		})
	}
}

func TestSnapshotFromSuccessfulResult(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &scrape.Result{
		Price:     f64(2499),
		MRP:       f64(2999),
		InStock:   boolp(true),
		Title:     strp("Wireless Mouse"),
		Currency:  "INR",
		Method:    models.MethodHTTP,
		Source:    "http:jsonld",
		Timestamp: ts,
	}

	snap := snapshotFrom(r, 7)

	assert.Equal(t, uint(7), snap.TrackID)
	assert.Equal(t, 2499.0, *snap.Price)
	assert.Equal(t, 2999.0, *snap.MRP)
	assert.True(t, *snap.InStock)
	assert.Equal(t, "INR", *snap.Currency)
	assert.Equal(t, "Wireless Mouse", *snap.Title)
	require.NotNil(t, snap.Source)
	assert.Equal(t, "http:jsonld", *snap.Source)
	assert.Equal(t, ts, snap.ScrapedAt)

	// Raw carries the complete result for audit.
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(snap.Raw), &decoded))
	assert.Equal(t, 2499.0, decoded["price"])
}

func TestSnapshotFromFailedResult(t *testing.T) {
	r := &scrape.Result{
		Currency:     "INR",
		Method:       models.MethodAuto,
		ErrorCode:    "fetch_failed",
		ErrorMessage: "503",
		Timestamp:    time.Now().UTC(),
	}

	snap := snapshotFrom(r, 3)

	assert.Nil(t, snap.Price)
	assert.Nil(t, snap.InStock)
	assert.Nil(t, snap.Source)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(snap.Raw), &decoded))
	assert.Equal(t, "fetch_failed", decoded["error_code"])
}

func TestApplyResultKeepsPreviousOnAbsentObservations(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next := now.Add(30 * time.Minute)

	track := &models.Track{
		LastPrice:   f64(999),
		LastInStock: boolp(true),
	}

	applyResult(track, &scrape.Result{}, now, next)

	assert.Equal(t, 999.0, *track.LastPrice, "failed run must not erase last price")
	assert.True(t, *track.LastInStock)
	assert.Equal(t, now, *track.LastCheckedAt)
	assert.Equal(t, next, *track.NextRunAt)
}

func TestApplyResultRecordsErrorAnnotation(t *testing.T) {
	now := time.Now().UTC()
	track := &models.Track{}

	applyResult(track, &scrape.Result{
		ErrorCode:    "automation_error",
		ErrorMessage: "net::ERR_TIMED_OUT",
	}, now, now.Add(time.Hour))

	require.NotNil(t, track.LastError)
	assert.Equal(t, "automation_error: net::ERR_TIMED_OUT", *track.LastError)
	assert.Equal(t, now, *track.LastErrorAt)
}

func TestAwaitResultTimesOut(t *testing.T) {
	never := make(chan scrape.Result)

	start := time.Now()
	_, err := awaitResult(context.Background(), never, 20*time.Millisecond)

	assert.ErrorIs(t, err, ErrManualRunTimeout)
	assert.Less(t, time.Since(start), time.Second, "caller must get the timeout before the acquisition settles")
}

func TestAwaitResultDeliversInTime(t *testing.T) {
	ch := make(chan scrape.Result, 1)
	price := 999.0
	ch <- scrape.Result{Price: &price}

	result, err := awaitResult(context.Background(), ch, time.Second)

	require.NoError(t, err)
	require.NotNil(t, result.Price)
	assert.Equal(t, 999.0, *result.Price)
}

func TestApplyResultUpdatesObservedFields(t *testing.T) {
	now := time.Now().UTC()
	track := &models.Track{LastPrice: f64(999)}

	applyResult(track, &scrape.Result{
		Price:     f64(899),
		InStock:   boolp(false),
		ProductID: strp("B0EXAMPLE1"),
	}, now, now.Add(time.Hour))

	assert.Equal(t, 899.0, *track.LastPrice)
	assert.False(t, *track.LastInStock)
	require.NotNil(t, track.ProductID)
	assert.Equal(t, "B0EXAMPLE1", *track.ProductID)
}
