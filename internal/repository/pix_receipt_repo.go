package repository

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pix-reconciliation-backend/internal/models"
	"pix-reconciliation-backend/internal/services/matching"
)

type PixReceiptRepository struct {
	db *gorm.DB
}

func NewPixReceiptRepository(db *gorm.DB) *PixReceiptRepository {
	return &PixReceiptRepository{db: db}
}

// SavePixReceiptVersions stores the receipts of one extraction payload. A receipt
// whose content changed gets a new version; identical resubmissions are
// skipped.
func (r *PixReceiptRepository) SavePixReceiptVersions(ctx context.Context, sessionID string, records []models.ExtractedRecord) (models.IngestCounts, error) {
	return saveVersions(ctx, r.db, &models.PixReceipt{}, sessionID, records,
		func(rec models.ExtractedRecord, version int, hash string) any {
			return &models.PixReceipt{
				ID:          uuid.New(),
				SessionID:   sessionID,
				RecordID:    rec.RecordID,
				Version:     version,
				ContentHash: hash,
				Payload:     datatypes.JSON(rec.Payload),
			}
		})
}

// ListExtractedPixReceipts returns the latest version of every receipt in
// the session, ordered by record id.
func (r *PixReceiptRepository) ListExtractedPixReceipts(ctx context.Context, sessionID string) ([]matching.PixReceiptInput, error) {
	var rows []models.PixReceipt
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("record_id ASC, version DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]matching.PixReceiptInput, 0, len(rows))
	for i, row := range rows {
		if i > 0 && rows[i-1].RecordID == row.RecordID {
			continue
		}
		out = append(out, decodePixReceipt(row))
	}
	return out, nil
}

type pixReceiptPayload struct {
	Amount               any      `json:"amount"`
	PayerName            string   `json:"payer_name"`
	PayerDocument        any      `json:"payer_document"`
	TransactionID        string   `json:"transaction_id"`
	TransactionDate      any      `json:"transaction_date"`
	BankName             string   `json:"bank_name"`
	ExtractionConfidence *float64 `json:"extraction_confidence"`
}

// decodePixReceipt keeps numbers as json.Number so the normalizer can tell
// them apart from formatted strings. A payload that does not decode leaves
// every field empty and fails normalization as a structural error.
func decodePixReceipt(row models.PixReceipt) matching.PixReceiptInput {
	in := matching.PixReceiptInput{ID: row.RecordID, Version: row.Version}
	var p pixReceiptPayload
	dec := json.NewDecoder(bytes.NewReader(row.Payload))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return in
	}
	in.Amount = p.Amount
	in.PayerName = p.PayerName
	in.PayerDocument = p.PayerDocument
	in.TransactionID = p.TransactionID
	in.TransactionDate = p.TransactionDate
	in.BankName = p.BankName
	in.ExtractionConfidence = p.ExtractionConfidence
	return in
}
