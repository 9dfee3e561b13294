package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BankTransaction stores one version of an extracted bank statement line.
type BankTransaction struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	SessionID   string         `gorm:"uniqueIndex:idx_bank_transaction_version,priority:1;not null"`
	RecordID    string         `gorm:"uniqueIndex:idx_bank_transaction_version,priority:2;not null"`
	Version     int            `gorm:"uniqueIndex:idx_bank_transaction_version,priority:3;not null"`
	ContentHash string         `gorm:"size:64"`
	Payload     datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time
}
