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

type BankTransactionRepository struct {
	db *gorm.DB
}

func NewBankTransactionRepository(db *gorm.DB) *BankTransactionRepository {
	return &BankTransactionRepository{db: db}
}

func (r *BankTransactionRepository) SaveBankTransactionVersions(ctx context.Context, sessionID string, records []models.ExtractedRecord) (models.IngestCounts, error) {
	return saveVersions(ctx, r.db, &models.BankTransaction{}, sessionID, records,
		func(rec models.ExtractedRecord, version int, hash string) any {
			return &models.BankTransaction{
				ID:          uuid.New(),
				SessionID:   sessionID,
				RecordID:    rec.RecordID,
				Version:     version,
				ContentHash: hash,
				Payload:     datatypes.JSON(rec.Payload),
			}
		})
}

// ListExtractedBankTransactions returns the latest version of every
// statement line in the session, ordered by record id.
func (r *BankTransactionRepository) ListExtractedBankTransactions(ctx context.Context, sessionID string) ([]matching.BankTransactionInput, error) {
	var rows []models.BankTransaction
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("record_id ASC, version DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]matching.BankTransactionInput, 0, len(rows))
	for i, row := range rows {
		if i > 0 && rows[i-1].RecordID == row.RecordID {
			continue
		}
		out = append(out, decodeBankTransaction(row))
	}
	return out, nil
}

type bankTransactionPayload struct {
	Amount          any    `json:"amount"`
	Description     string `json:"description"`
	TransactionDate any    `json:"transaction_date"`
	TransactionID   string `json:"transaction_id"`
	BankName        string `json:"bank_name"`
}

func decodeBankTransaction(row models.BankTransaction) matching.BankTransactionInput {
	in := matching.BankTransactionInput{ID: row.RecordID, Version: row.Version}
	var p bankTransactionPayload
	dec := json.NewDecoder(bytes.NewReader(row.Payload))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return in
	}
	in.Amount = p.Amount
	in.Description = p.Description
	in.TransactionDate = p.TransactionDate
	in.TransactionID = p.TransactionID
	in.BankName = p.BankName
	return in
}
