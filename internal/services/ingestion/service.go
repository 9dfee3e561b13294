package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"pix-reconciliation-backend/internal/models"
)

var (
	ErrInvalidPayload = errors.New("invalid extraction payload")
	ErrMissingSession = errors.New("session id is required")
)

// RecordStore persists versions of extracted records.
type RecordStore interface {
	SavePixReceiptVersions(ctx context.Context, sessionID string, records []models.ExtractedRecord) (models.IngestCounts, error)
	SaveBankTransactionVersions(ctx context.Context, sessionID string, records []models.ExtractedRecord) (models.IngestCounts, error)
}

// Trigger schedules a reconciliation run for a session.
type Trigger interface {
	Trigger(sessionID string)
}

// Service accepts the output of the extraction pipeline, validates it and
// stores every record as a new version when its content changed.
type Service struct {
	store      RecordStore
	trigger    Trigger
	logger     *zap.Logger
	pixSchema  *jsonschema.Schema
	bankSchema *jsonschema.Schema
}

func NewService(store RecordStore, trigger Trigger, logger *zap.Logger) (*Service, error) {
	pixSchema, err := compileSchema("pix_receipts.json", pixReceiptSchema)
	if err != nil {
		return nil, err
	}
	bankSchema, err := compileSchema("bank_transactions.json", bankTransactionSchema)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:      store,
		trigger:    trigger,
		logger:     logger.With(zap.String("component", "ingestion")),
		pixSchema:  pixSchema,
		bankSchema: bankSchema,
	}, nil
}

func (s *Service) IngestPixReceipts(ctx context.Context, sessionID string, payload []byte) (models.IngestCounts, error) {
	records, err := s.split(sessionID, payload, s.pixSchema)
	if err != nil {
		return models.IngestCounts{}, err
	}
	counts, err := s.store.SavePixReceiptVersions(ctx, sessionID, records)
	if err != nil {
		return counts, fmt.Errorf("save pix receipts: %w", err)
	}
	s.afterSave(sessionID, "pix_receipts", counts)
	return counts, nil
}

func (s *Service) IngestBankTransactions(ctx context.Context, sessionID string, payload []byte) (models.IngestCounts, error) {
	records, err := s.split(sessionID, payload, s.bankSchema)
	if err != nil {
		return models.IngestCounts{}, err
	}
	counts, err := s.store.SaveBankTransactionVersions(ctx, sessionID, records)
	if err != nil {
		return counts, fmt.Errorf("save bank transactions: %w", err)
	}
	s.afterSave(sessionID, "bank_transactions", counts)
	return counts, nil
}

func (s *Service) afterSave(sessionID, kind string, counts models.IngestCounts) {
	s.logger.Info("records ingested",
		zap.String("session_id", sessionID),
		zap.String("kind", kind),
		zap.Int("created", counts.Created),
		zap.Int("versioned", counts.Versioned),
		zap.Int("unchanged", counts.Unchanged),
	)
	if counts.Created+counts.Versioned > 0 && s.trigger != nil {
		s.trigger.Trigger(sessionID)
	}
}

// split validates the payload and re-encodes each element canonically, so
// key order and whitespace never produce a new version.
func (s *Service) split(sessionID string, payload []byte, schema *jsonschema.Schema) ([]models.ExtractedRecord, error) {
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	items, _ := doc.([]any)
	records := make([]models.ExtractedRecord, 0, len(items))
	for _, item := range items {
		obj, _ := item.(map[string]any)
		id, _ := obj["id"].(string)
		b, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		records = append(records, models.ExtractedRecord{RecordID: id, Payload: b})
	}
	return records, nil
}
