package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"pix-reconciliation-backend/internal/models"
	"pix-reconciliation-backend/internal/services/matching"
)

type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// StartRun records a run in processing state.
func (r *RunRepository) StartRun(ctx context.Context, sessionID string) (uuid.UUID, error) {
	now := time.Now().UTC()
	run := &models.ReconciliationRun{
		ID:        uuid.New(),
		SessionID: sessionID,
		Status:    models.RunStatusProcessing,
		StartedAt: now,
		CreatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return uuid.Nil, err
	}
	return run.ID, nil
}

// FinishRun marks the run completed with the counts of res, or failed with
// runErr.
func (r *RunRepository) FinishRun(ctx context.Context, runID uuid.UUID, res *matching.Result, runErr error) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"completed_at": now,
	}
	if runErr != nil {
		updates["status"] = models.RunStatusFailed
		updates["error"] = runErr.Error()
	} else {
		updates["status"] = models.RunStatusCompleted
		updates["total_pix_receipts"] = res.TotalPixReceipts
		updates["total_bank_transactions"] = res.TotalBankTransactions
		updates["auto_matched_count"] = res.AutoMatched
		updates["manual_review_count"] = res.ManualReview
		updates["unmatched_count"] = res.Unmatched
		updates["warning_count"] = len(res.Warnings)
	}
	return r.db.WithContext(ctx).
		Model(&models.ReconciliationRun{}).
		Where("id = ?", runID).
		Updates(updates).Error
}

// LatestRun returns the most recent run of the session, or nil.
func (r *RunRepository) LatestRun(ctx context.Context, sessionID string) (*models.ReconciliationRun, error) {
	var run models.ReconciliationRun
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("started_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}
