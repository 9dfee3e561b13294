package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pix-reconciliation-backend/internal/models"
	"pix-reconciliation-backend/internal/services/matching"
)

const matchInsertBatch = 500

type ResultRepository struct {
	db *gorm.DB
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// LoadResult returns the stored result of the session, or nil when the
// session has never been reconciled.
func (r *ResultRepository) LoadResult(ctx context.Context, sessionID string) (*matching.Result, error) {
	db := r.db.WithContext(ctx)

	var summary models.ReconciliationResult
	err := db.First(&summary, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []models.ReconciliationMatch
	if err := db.Where("session_id = ?", sessionID).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	res := &matching.Result{
		SessionID:             sessionID,
		TotalPixReceipts:      summary.TotalPixReceipts,
		TotalBankTransactions: summary.TotalBankTransactions,
		AutoMatched:           summary.AutoMatched,
		ManualReview:          summary.ManualReview,
		Unmatched:             summary.Unmatched,
		Confirmed:             summary.Confirmed,
		Rejected:              summary.Rejected,
		Matches:               make([]matching.Match, 0, len(rows)),
		Warnings:              []matching.Warning{},
	}
	if len(summary.Warnings) > 0 {
		if err := json.Unmarshal(summary.Warnings, &res.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings: %w", err)
		}
	}
	for _, row := range rows {
		m, err := matchFromRow(row)
		if err != nil {
			return nil, err
		}
		res.Matches = append(res.Matches, m)
	}
	return res, nil
}

// ReplaceResult swaps the stored result for res in one transaction.
func (r *ResultRepository) ReplaceResult(ctx context.Context, sessionID string, res *matching.Result) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceResult(tx, sessionID, res)
	})
}

// ApplyReview stores a result changed by a reviewer together with the audit
// row describing the change.
func (r *ResultRepository) ApplyReview(ctx context.Context, sessionID string, res *matching.Result, entry *models.MatchAuditLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := replaceResult(tx, sessionID, res); err != nil {
			return err
		}
		return tx.Create(entry).Error
	})
}

func (r *ResultRepository) ListAuditLog(ctx context.Context, sessionID string) ([]models.MatchAuditLog, error) {
	var logs []models.MatchAuditLog
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

func replaceResult(tx *gorm.DB, sessionID string, res *matching.Result) error {
	if err := tx.Where("session_id = ?", sessionID).Delete(&models.ReconciliationMatch{}).Error; err != nil {
		return fmt.Errorf("delete matches: %w", err)
	}
	if err := tx.Where("session_id = ?", sessionID).Delete(&models.ReconciliationResult{}).Error; err != nil {
		return fmt.Errorf("delete result: %w", err)
	}

	warnings, err := json.Marshal(res.Warnings)
	if err != nil {
		return err
	}
	summary := models.ReconciliationResult{
		SessionID:             sessionID,
		TotalPixReceipts:      res.TotalPixReceipts,
		TotalBankTransactions: res.TotalBankTransactions,
		AutoMatched:           res.AutoMatched,
		ManualReview:          res.ManualReview,
		Unmatched:             res.Unmatched,
		Confirmed:             res.Confirmed,
		Rejected:              res.Rejected,
		Warnings:              datatypes.JSON(warnings),
	}
	if err := tx.Create(&summary).Error; err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	if len(res.Matches) == 0 {
		return nil
	}
	rows := make([]models.ReconciliationMatch, 0, len(res.Matches))
	for i, m := range res.Matches {
		row, err := matchToRow(sessionID, i, m)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := tx.CreateInBatches(rows, matchInsertBatch).Error; err != nil {
		return fmt.Errorf("insert matches: %w", err)
	}
	return nil
}

func matchToRow(sessionID string, position int, m matching.Match) (models.ReconciliationMatch, error) {
	row := models.ReconciliationMatch{
		ID:                     m.ID,
		SessionID:              sessionID,
		Position:               position,
		PixReceiptID:           m.PixReceiptID,
		PixReceiptVersion:      m.PixReceiptVersion,
		BankTransactionID:      m.BankTransactionID,
		BankTransactionVersion: m.BankTransactionVersion,
		MatchConfidence:        m.MatchConfidence,
		Status:                 string(m.Status),
		MatchedAt:              m.MatchedAt,
		ReviewedBy:             m.ReviewedBy,
		ReviewedAt:             m.ReviewedAt,
	}
	reasons, err := json.Marshal(m.MatchReasons)
	if err != nil {
		return row, err
	}
	row.MatchReasons = datatypes.JSON(reasons)
	if m.ScoreBreakdown != nil {
		b, err := json.Marshal(m.ScoreBreakdown)
		if err != nil {
			return row, err
		}
		row.ScoreBreakdown = datatypes.JSON(b)
	}
	if len(m.Alternatives) > 0 {
		b, err := json.Marshal(m.Alternatives)
		if err != nil {
			return row, err
		}
		row.Alternatives = datatypes.JSON(b)
	}
	return row, nil
}

func matchFromRow(row models.ReconciliationMatch) (matching.Match, error) {
	m := matching.Match{
		ID:                     row.ID,
		PixReceiptID:           row.PixReceiptID,
		PixReceiptVersion:      row.PixReceiptVersion,
		BankTransactionID:      row.BankTransactionID,
		BankTransactionVersion: row.BankTransactionVersion,
		MatchConfidence:        row.MatchConfidence,
		Status:                 matching.Status(row.Status),
		MatchReasons:           []string{},
		MatchedAt:              row.MatchedAt.UTC(),
		ReviewedBy:             row.ReviewedBy,
	}
	if row.ReviewedAt != nil {
		at := row.ReviewedAt.UTC()
		m.ReviewedAt = &at
	}
	if len(row.MatchReasons) > 0 {
		if err := json.Unmarshal(row.MatchReasons, &m.MatchReasons); err != nil {
			return m, fmt.Errorf("decode reasons of %s: %w", row.ID, err)
		}
	}
	if len(row.ScoreBreakdown) > 0 {
		var b matching.ScoreBreakdown
		if err := json.Unmarshal(row.ScoreBreakdown, &b); err != nil {
			return m, fmt.Errorf("decode breakdown of %s: %w", row.ID, err)
		}
		m.ScoreBreakdown = &b
	}
	if len(row.Alternatives) > 0 {
		if err := json.Unmarshal(row.Alternatives, &m.Alternatives); err != nil {
			return m, fmt.Errorf("decode alternatives of %s: %w", row.ID, err)
		}
	}
	return m, nil
}
