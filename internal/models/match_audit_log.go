package models

import (
	"time"

	"github.com/google/uuid"
)

type MatchAuditLog struct {
	ID                      uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID               string    `gorm:"index"`
	MatchID                 uuid.UUID `gorm:"type:uuid;index"`
	PixReceiptID            string
	Action                  string
	PreviousStatus          string
	PreviousBankTransaction *string
	NewBankTransaction      *string
	PerformedBy             string
	Reason                  string
	CreatedAt               time.Time
}
