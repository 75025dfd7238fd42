// Package tracks owns the lifecycle of monitored product URLs: creation with
// a bootstrap acquisition, manual and scheduled runs, history reads and
// change detection.
package tracks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"price-tracker/internal/models"
	"price-tracker/internal/normalize"
	"price-tracker/internal/scrape"
)

var (
	ErrTrackNotFound = errors.New("track not found")
	// ErrManualRunTimeout means the acquisition did not finish within the
	// manual-run deadline. The HTTP layer maps it to 504.
	ErrManualRunTimeout = errors.New("track run timed out")
)

const (
	minIntervalMinutes     = 5
	maxIntervalMinutes     = 1440
	defaultIntervalMinutes = 30

	defaultRunTimeout = 30 * time.Second
)

// Notifier receives change events. Publish must not block the caller.
type Notifier interface {
	PublishChange(ev ChangeEvent)
}

// ChangeEvent is emitted when a run observes a different price or stock
// state than the previous one. Delivery is at-least-once.
type ChangeEvent struct {
	TrackID  uint      `json:"track_id"`
	Price    *float64  `json:"price"`
	InStock  *bool     `json:"in_stock"`
	Previous Previous  `json:"previous"`
	At       time.Time `json:"at"`
}

// Previous is the last-known state a run compared against.
type Previous struct {
	Price   *float64 `json:"price"`
	InStock *bool    `json:"in_stock"`
}

// CreateInput is the caller-facing shape of a new track.
type CreateInput struct {
	URL             string        `json:"url" binding:"required"`
	IntervalMinutes int           `json:"interval_minutes"`
	Method          models.Method `json:"method"`
}

// RunOutcome is everything a single run produced.
type RunOutcome struct {
	Track    *models.Track    `json:"track"`
	Snapshot *models.Snapshot `json:"snapshot"`
	Result   *scrape.Result   `json:"result"`
	Changed  bool             `json:"changed"`
	Previous Previous         `json:"previous"`
}

// UpdatePatch carries the mutable track fields. Nil means leave unchanged.
type UpdatePatch struct {
	Status          *string        `json:"status"`
	IntervalMinutes *int           `json:"interval_minutes"`
	Method          *models.Method `json:"method"`
}

type Service struct {
	db         *gorm.DB
	scraper    *scrape.Scraper
	notifier   Notifier
	runTimeout time.Duration
	log        zerolog.Logger
}

func NewService(db *gorm.DB, scraper *scrape.Scraper, notifier Notifier, runTimeout time.Duration, log zerolog.Logger) *Service {
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	return &Service{
		db:         db,
		scraper:    scraper,
		notifier:   notifier,
		runTimeout: runTimeout,
		log:        log.With().Str("component", "tracks").Logger(),
	}
}

// Create registers a URL for monitoring and performs a bootstrap acquisition
// so the track starts with a snapshot. A failed bootstrap still creates the
// track; the failure is recorded in the snapshot, not surfaced as an error.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Track, error) {
	info := normalize.Normalize(in.URL)

	track := &models.Track{
		OriginalURL:     in.URL,
		CanonicalURL:    info.CanonicalURL,
		Platform:        info.Platform,
		ProductID:       info.ProductID,
		IntervalMinutes: clampInterval(in.IntervalMinutes),
		Method:          normalizeMethod(in.Method),
		Status:          models.StatusActive,
	}

	result := s.scraper.Scrape(ctx, track.CanonicalURL, track.Platform, scrape.Options{Method: track.Method})
	if result.Price == nil && track.Method == models.MethodAuto {
		// One plain-fetch retry covers transient failures on creation.
		retry := s.scraper.Scrape(ctx, track.CanonicalURL, track.Platform, scrape.Options{Method: models.MethodHTTP})
		if retry.Price != nil {
			result = retry
		}
	}

	now := time.Now().UTC()
	next := now.Add(time.Duration(track.IntervalMinutes) * time.Minute)
	snapshot := snapshotFrom(&result, 0)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applyResult(track, &result, now, next)
		if err := tx.Create(track).Error; err != nil {
			return err
		}
		snapshot.TrackID = track.ID
		return tx.Create(snapshot).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create track: %w", err)
	}

	s.log.Info().
		Uint("track_id", track.ID).
		Str("platform", string(track.Platform)).
		Bool("bootstrap_ok", result.Price != nil).
		Msg("track created")

	return track, nil
}

// RunNow executes one acquisition for the track under a hard deadline. On
// timeout the in-flight attempt is cancelled and its side effects are
// discarded; nothing is persisted.
func (s *Service) RunNow(ctx context.Context, id uint) (*RunOutcome, error) {
	track, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan scrape.Result, 1)
	go func() {
		resultCh <- s.scraper.Scrape(runCtx, track.CanonicalURL, track.Platform, scrape.Options{
			Method:             track.Method,
			DebugDumpOnFailure: true,
		})
	}()

	result, err := awaitResult(ctx, resultCh, s.runTimeout)
	if err != nil {
		cancel()
		return nil, err
	}

	prev := Previous{Price: track.LastPrice, InStock: track.LastInStock}

	now := time.Now().UTC()
	next := now.Add(time.Duration(track.IntervalMinutes) * time.Minute)
	snapshot := snapshotFrom(&result, track.ID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(snapshot).Error; err != nil {
			return err
		}
		applyResult(track, &result, now, next)
		return tx.Save(track).Error
	})
	if err != nil {
		return nil, fmt.Errorf("persist run: %w", err)
	}

	outcome := &RunOutcome{
		Track:    track,
		Snapshot: snapshot,
		Result:   &result,
		Changed:  changed(prev, &result),
		Previous: prev,
	}

	if outcome.Changed && s.notifier != nil {
		s.notifier.PublishChange(ChangeEvent{
			TrackID:  track.ID,
			Price:    result.Price,
			InStock:  result.InStock,
			Previous: prev,
			At:       now,
		})
	}

	return outcome, nil
}

// Process is the scheduler entry point: a run whose acquisition yielded no
// data counts as a failure so the track backs off instead of retrying at its
// normal cadence.
func (s *Service) Process(ctx context.Context, id uint) error {
	outcome, err := s.RunNow(ctx, id)
	if err != nil {
		return err
	}
	if outcome.Result.ErrorCode != "" {
		return fmt.Errorf("%s: %s", outcome.Result.ErrorCode, outcome.Result.ErrorMessage)
	}
	return nil
}

// List returns the 100 most recently created tracks.
func (s *Service) List(ctx context.Context) ([]models.Track, error) {
	var tracks []models.Track
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(100).
		Find(&tracks).Error
	return tracks, err
}

// Get returns one track with its 20 newest snapshots.
func (s *Service) Get(ctx context.Context, id uint) (*models.Track, error) {
	track, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).
		Where("track_id = ?", id).
		Order("scraped_at DESC").
		Limit(20).
		Find(&track.Snapshots).Error
	if err != nil {
		return nil, err
	}
	return track, nil
}

// History returns up to limit snapshots for a track, newest first.
func (s *Service) History(ctx context.Context, id uint, limit int) ([]models.Snapshot, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}

	var snapshots []models.Snapshot
	err := s.db.WithContext(ctx).
		Where("track_id = ?", id).
		Order("scraped_at DESC").
		Limit(limit).
		Find(&snapshots).Error
	return snapshots, err
}

// Update patches status, interval or method. Resuming a paused track makes
// it due immediately.
func (s *Service) Update(ctx context.Context, id uint, patch UpdatePatch) (*models.Track, error) {
	track, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Status != nil {
		switch *patch.Status {
		case models.StatusActive, models.StatusPaused:
		default:
			return nil, fmt.Errorf("invalid status %q", *patch.Status)
		}
		if *patch.Status == models.StatusActive && track.Status == models.StatusPaused {
			now := time.Now().UTC()
			track.NextRunAt = &now
		}
		track.Status = *patch.Status
	}
	if patch.IntervalMinutes != nil {
		track.IntervalMinutes = clampInterval(*patch.IntervalMinutes)
	}
	if patch.Method != nil {
		track.Method = normalizeMethod(*patch.Method)
	}

	if err := s.db.WithContext(ctx).Save(track).Error; err != nil {
		return nil, fmt.Errorf("update track: %w", err)
	}
	return track, nil
}

// awaitResult races the in-flight acquisition against the manual-run
// deadline. The caller cancels the losing acquisition.
func awaitResult(ctx context.Context, resultCh <-chan scrape.Result, timeout time.Duration) (scrape.Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-resultCh:
		return result, nil
	case <-timer.C:
		return scrape.Result{}, ErrManualRunTimeout
	case <-ctx.Done():
		return scrape.Result{}, ctx.Err()
	}
}

func (s *Service) load(ctx context.Context, id uint) (*models.Track, error) {
	var track models.Track
	err := s.db.WithContext(ctx).First(&track, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, err
	}
	return &track, nil
}

func clampInterval(minutes int) int {
	if minutes < minIntervalMinutes || minutes > maxIntervalMinutes {
		return defaultIntervalMinutes
	}
	return minutes
}

func normalizeMethod(m models.Method) models.Method {
	switch m {
	case models.MethodHTTP, models.MethodBrowser, models.MethodAuto:
		return m
	default:
		return models.MethodAuto
	}
}

// snapshotFrom converts a result into an append-only snapshot row. Failed
// acquisitions keep their nulled metrics; the full result, error annotation
// included, goes into Raw.
func snapshotFrom(r *scrape.Result, trackID uint) *models.Snapshot {
	raw, err := json.Marshal(r)
	if err != nil {
		raw = []byte("{}")
	}

	currency := r.Currency
	snapshot := &models.Snapshot{
		TrackID:      trackID,
		Price:        r.Price,
		MRP:          r.MRP,
		InStock:      r.InStock,
		Currency:     &currency,
		Title:        r.Title,
		Deliverable:  r.Deliverable,
		DeliveryText: r.DeliveryText,
		DeliveryDate: r.DeliveryDate,
		Method:       r.Method,
		Raw:          string(raw),
		ScrapedAt:    r.Timestamp,
	}
	if r.Source != "" {
		source := r.Source
		snapshot.Source = &source
	}
	return snapshot
}

// applyResult folds a run's observations into the track's last-known state.
// Absent observations keep the previous value rather than erasing it.
func applyResult(track *models.Track, r *scrape.Result, now, next time.Time) {
	if r.Price != nil {
		track.LastPrice = r.Price
	}
	if r.MRP != nil {
		track.LastMRP = r.MRP
	}
	if r.InStock != nil {
		track.LastInStock = r.InStock
	}
	if r.ProductID != nil && track.ProductID == nil {
		track.ProductID = r.ProductID
	}
	if r.ErrorCode != "" {
		msg := r.ErrorCode
		if r.ErrorMessage != "" {
			msg = r.ErrorCode + ": " + r.ErrorMessage
		}
		if len(msg) > 500 {
			msg = msg[:500]
		}
		track.LastError = &msg
		track.LastErrorAt = &now
	}
	track.LastCheckedAt = &now
	track.NextRunAt = &next
}

// changed reports whether this run observed a different price or stock state
// than the previous one. A first observation is not a change.
func changed(prev Previous, r *scrape.Result) bool {
	if prev.Price != nil && r.Price != nil && *prev.Price != *r.Price {
		return true
	}
	if prev.InStock != nil && r.InStock != nil && *prev.InStock != *r.InStock {
		return true
	}
	return false
}
