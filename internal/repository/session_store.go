package repository

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"pix-reconciliation-backend/internal/models"
	"pix-reconciliation-backend/internal/services/matching"
)

// SessionStore bundles every repository the reconciliation service needs.
type SessionStore struct {
	*PixReceiptRepository
	*BankTransactionRepository
	*ResultRepository
	*RunRepository
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{
		PixReceiptRepository:      NewPixReceiptRepository(db),
		BankTransactionRepository: NewBankTransactionRepository(db),
		ResultRepository:          NewResultRepository(db),
		RunRepository:             NewRunRepository(db),
		db:                        db,
	}
}

// AutoMigrate creates or updates every table the store uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.PixReceipt{},
		&models.BankTransaction{},
		&models.ReconciliationResult{},
		&models.ReconciliationMatch{},
		&models.ReconciliationRun{},
		&models.MatchAuditLog{},
	)
}

// ReadSnapshot loads the records and the stored result of a session inside
// one read-only transaction.
func (s *SessionStore) ReadSnapshot(ctx context.Context, sessionID string) (*matching.Snapshot, error) {
	var opts *sql.TxOptions
	if s.db.Dialector.Name() == "postgres" {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}

	snap := &matching.Snapshot{SessionID: sessionID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if snap.PixReceipts, err = NewPixReceiptRepository(tx).ListExtractedPixReceipts(ctx, sessionID); err != nil {
			return err
		}
		if snap.BankTransactions, err = NewBankTransactionRepository(tx).ListExtractedBankTransactions(ctx, sessionID); err != nil {
			return err
		}
		snap.Previous, err = NewResultRepository(tx).LoadResult(ctx, sessionID)
		return err
	}, opts)
	if err != nil {
		return nil, err
	}
	return snap, nil
}
