package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunStatusProcessing = "processing"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
)

// ReconciliationRun is the log row of one engine execution.
type ReconciliationRun struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID             string    `gorm:"index"`
	Status                string    `gorm:"index"`
	TotalPixReceipts      int
	TotalBankTransactions int
	AutoMatchedCount      int
	ManualReviewCount     int
	UnmatchedCount        int
	WarningCount          int
	Error                 string
	StartedAt             time.Time
	CompletedAt           *time.Time
	CreatedAt             time.Time
}

// ReconciliationResult is the summary row of the result currently stored for
// a session. It is replaced together with its matches.
type ReconciliationResult struct {
	SessionID             string `gorm:"primaryKey"`
	TotalPixReceipts      int
	TotalBankTransactions int
	AutoMatched           int
	ManualReview          int
	Unmatched             int
	Confirmed             int
	Rejected              int
	Warnings              datatypes.JSON
	UpdatedAt             time.Time
}

type ReconciliationMatch struct {
	ID                     uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID              string    `gorm:"index;not null"`
	Position               int
	PixReceiptID           string  `gorm:"index"`
	PixReceiptVersion      int
	BankTransactionID      *string `gorm:"index"`
	BankTransactionVersion int
	MatchConfidence        float64
	Status                 string `gorm:"index"`
	MatchReasons           datatypes.JSON
	ScoreBreakdown         datatypes.JSON
	Alternatives           datatypes.JSON
	MatchedAt              time.Time
	ReviewedBy             string
	ReviewedAt             *time.Time
}
