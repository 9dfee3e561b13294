package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PixReceipt stores one version of an extracted PIX receipt exactly as the
// extraction produced it. Corrections are new rows with a higher Version.
type PixReceipt struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	SessionID   string         `gorm:"uniqueIndex:idx_pix_receipt_version,priority:1;not null"`
	RecordID    string         `gorm:"uniqueIndex:idx_pix_receipt_version,priority:2;not null"`
	Version     int            `gorm:"uniqueIndex:idx_pix_receipt_version,priority:3;not null"`
	ContentHash string         `gorm:"size:64"`
	Payload     datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time
}

// ExtractedRecord is one element of an ingested extraction payload.
type ExtractedRecord struct {
	RecordID string
	Payload  []byte
}

// IngestCounts reports what a versioned save did with each record.
type IngestCounts struct {
	Created   int `json:"created"`
	Versioned int `json:"versioned"`
	Unchanged int `json:"unchanged"`
}
