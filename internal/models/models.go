package models

import (
	"time"
)

// Platform identifies the marketplace a tracked URL belongs to.
type Platform string

const (
	PlatformAmazon   Platform = "amazon"
	PlatformFlipkart Platform = "flipkart"
	PlatformUnknown  Platform = "unknown"
)

// Method selects how product data is acquired.
type Method string

const (
	MethodAuto    Method = "auto"
	MethodHTTP    Method = "http"
	MethodBrowser Method = "browser"
)

// Track status values.
const (
	StatusActive = "ACTIVE"
	StatusPaused = "PAUSED"
)

// Track represents a monitored product URL and its last-known state.
// A row is eligible for claiming iff status is ACTIVE, next_run_at is due and
// the lock is unset or expired.
type Track struct {
	ID           uint     `json:"id" gorm:"primaryKey"`
	OriginalURL  string   `json:"original_url" gorm:"type:text;not null"`
	CanonicalURL string   `json:"canonical_url" gorm:"type:text;not null"`
	Platform     Platform `json:"platform" gorm:"type:varchar(16);index;not null"`
	ProductID    *string  `json:"product_id" gorm:"type:varchar(64)"`

	IntervalMinutes int    `json:"interval_minutes" gorm:"not null;default:30"`
	Method          Method `json:"method" gorm:"type:varchar(16);not null;default:'auto'"`
	Status          string `json:"status" gorm:"type:varchar(16);index;not null;default:'ACTIVE'"`

	LastPrice   *float64   `json:"last_price"`
	LastMRP     *float64   `json:"last_mrp"`
	LastInStock *bool      `json:"last_in_stock"`

	LastCheckedAt *time.Time `json:"last_checked_at"`
	NextRunAt     *time.Time `json:"next_run_at" gorm:"index"`

	LockedAt      *time.Time `json:"locked_at"`
	LockedBy      *string    `json:"locked_by" gorm:"type:varchar(128)"`
	LockExpiresAt *time.Time `json:"lock_expires_at" gorm:"index"`

	FailureCount int        `json:"failure_count" gorm:"not null;default:0"`
	LastError    *string    `json:"last_error" gorm:"type:varchar(512)"`
	LastErrorAt  *time.Time `json:"last_error_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Associations
	Snapshots []Snapshot `json:"snapshots,omitempty" gorm:"foreignKey:TrackID"`
}

// Snapshot is one immutable acquisition outcome for a track. Rows are only
// ever appended; retention is handled outside this service.
type Snapshot struct {
	ID      uint `json:"id" gorm:"primaryKey"`
	TrackID uint `json:"track_id" gorm:"index;not null"`

	Price       *float64 `json:"price"`
	MRP         *float64 `json:"mrp"`
	InStock     *bool    `json:"in_stock"`
	Currency    *string  `json:"currency" gorm:"type:varchar(8)"`
	Title       *string  `json:"title" gorm:"type:text"`
	Deliverable *bool    `json:"deliverable"`
	DeliveryText *string `json:"delivery_text" gorm:"type:text"`
	DeliveryDate *string `json:"delivery_date" gorm:"type:varchar(64)"`

	Source *string `json:"source" gorm:"type:varchar(32)"`
	Method Method  `json:"method" gorm:"type:varchar(16)"`

	// Raw holds the full acquisition result as JSON for audit.
	Raw string `json:"raw" gorm:"type:text"`

	ScrapedAt time.Time `json:"scraped_at" gorm:"index"`
}
