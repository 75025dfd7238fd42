package scheduler

import (
	"context"
	"time"

	"gorm.io/gorm"

	"price-tracker/internal/models"
)

const maxErrorLen = 500

// Store is the durable side of claiming and rescheduling. Implementations
// must make ClaimDue atomic across concurrent instances: two racing calls
// over the same due set never return overlapping ids.
type Store interface {
	ClaimDue(ctx context.Context, max int) ([]uint, error)
	ReleaseSuccess(ctx context.Context, trackID uint) error
	ReleaseFailure(ctx context.Context, trackID uint, cause error) error
}

// GormStore claims tracks through MySQL row locks.
type GormStore struct {
	db         *gorm.DB
	instanceID string
	lockTTL    time.Duration
}

func NewGormStore(db *gorm.DB, instanceID string, lockTTL time.Duration) *GormStore {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &GormStore{db: db, instanceID: instanceID, lockTTL: lockTTL}
}

// ClaimDue atomically claims up to max due, unlocked tracks for this
// instance. SKIP LOCKED keeps two instances racing on the same tick from
// ever claiming the same row; expired locks are reclaimable, which bounds
// staleness after a crash to the lock TTL.
func (s *GormStore) ClaimDue(ctx context.Context, max int) ([]uint, error) {
	var ids []uint
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(`
			SELECT id FROM tracks
			WHERE status = ?
			  AND next_run_at IS NOT NULL
			  AND next_run_at <= ?
			  AND (lock_expires_at IS NULL OR lock_expires_at < ?)
			ORDER BY next_run_at ASC
			LIMIT ?
			FOR UPDATE SKIP LOCKED`,
			models.StatusActive, now, now, max,
		).Scan(&ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		return tx.Model(&models.Track{}).Where("id IN ?", ids).Updates(map[string]any{
			"locked_at":       now,
			"locked_by":       s.instanceID,
			"lock_expires_at": now.Add(s.lockTTL),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// ReleaseSuccess clears the lock and all failure state. The next run time is
// written by the run itself, together with the snapshot.
func (s *GormStore) ReleaseSuccess(ctx context.Context, trackID uint) error {
	return s.db.WithContext(ctx).Model(&models.Track{}).Where("id = ?", trackID).Updates(map[string]any{
		"locked_at":       nil,
		"locked_by":       nil,
		"lock_expires_at": nil,
		"failure_count":   0,
		"last_error":      nil,
		"last_error_at":   nil,
	}).Error
}

// ReleaseFailure clears the lock, bumps the failure counter and pushes the
// next run out by the failure-aware backoff.
func (s *GormStore) ReleaseFailure(ctx context.Context, trackID uint, cause error) error {
	msg := errorText(cause)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var track models.Track
		if err := tx.Select("id", "failure_count").First(&track, trackID).Error; err != nil {
			return err
		}

		failures := track.FailureCount + 1
		now := time.Now().UTC()

		return tx.Model(&models.Track{}).Where("id = ?", trackID).Updates(map[string]any{
			"locked_at":       nil,
			"locked_by":       nil,
			"lock_expires_at": nil,
			"failure_count":   failures,
			"last_error":      msg,
			"last_error_at":   now,
			"next_run_at":     now.Add(Backoff(failures)),
		}).Error
	})
}

func errorText(err error) string {
	if err == nil {
		return "unknown_error"
	}
	msg := err.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return msg
}
