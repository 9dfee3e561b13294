package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pix-reconciliation-backend/internal/models"
	"pix-reconciliation-backend/internal/services/matching"
)

var (
	ErrResultNotFound          = errors.New("session has not been reconciled yet")
	ErrRunNotFound             = errors.New("no reconciliation run for session")
	ErrMatchNotFound           = errors.New("match not found")
	ErrReceiptNotFound         = errors.New("pix receipt not found")
	ErrBankTransactionNotFound = errors.New("bank transaction not found")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrBankTransactionTaken    = errors.New("bank transaction already assigned to another receipt")
)

const (
	ActionConfirm     = "confirm"
	ActionReject      = "reject"
	ActionManualMatch = "manual_match"
)

// ReviewRequest carries who performed a review action and why.
type ReviewRequest struct {
	PerformedBy string `json:"performed_by"`
	Reason      string `json:"reason"`
}

// ConfirmMatch accepts the bank line proposed for a receipt.
func (s *Service) ConfirmMatch(ctx context.Context, sessionID string, matchID uuid.UUID, req ReviewRequest) (*matching.Match, error) {
	return s.review(ctx, sessionID, ActionConfirm, req, func(res *matching.Result) (int, error) {
		i := res.FindMatch(matchID)
		if i < 0 {
			return -1, ErrMatchNotFound
		}
		m := &res.Matches[i]
		switch m.Status {
		case matching.StatusAutoMatched, matching.StatusManualReview, matching.StatusPending:
		default:
			return -1, fmt.Errorf("%w: cannot confirm a %s match", ErrInvalidTransition, m.Status)
		}
		if m.BankTransactionID == nil {
			return -1, fmt.Errorf("%w: match has no bank transaction to confirm", ErrInvalidTransition)
		}
		if holder := res.HolderOf(*m.BankTransactionID); holder >= 0 && holder != i {
			return -1, ErrBankTransactionTaken
		}
		m.Status = matching.StatusConfirmed
		return i, nil
	})
}

// RejectMatch records that the proposed pairing is wrong. The bank line is
// released for other receipts on the next run.
func (s *Service) RejectMatch(ctx context.Context, sessionID string, matchID uuid.UUID, req ReviewRequest) (*matching.Match, error) {
	return s.review(ctx, sessionID, ActionReject, req, func(res *matching.Result) (int, error) {
		i := res.FindMatch(matchID)
		if i < 0 {
			return -1, ErrMatchNotFound
		}
		m := &res.Matches[i]
		switch m.Status {
		case matching.StatusAutoMatched, matching.StatusManualReview, matching.StatusPending:
		default:
			return -1, fmt.Errorf("%w: cannot reject a %s match", ErrInvalidTransition, m.Status)
		}
		m.Status = matching.StatusRejected
		return i, nil
	})
}

// ManualMatch pairs a receipt with a bank line picked by the reviewer and
// confirms it. Both records are read under the session lock so the pin
// carries the versions current at review time.
func (s *Service) ManualMatch(ctx context.Context, sessionID, receiptID, bankTransactionID string, req ReviewRequest) (*matching.Match, error) {
	return s.review(ctx, sessionID, ActionManualMatch, req, func(res *matching.Result) (int, error) {
		receipts, err := s.store.ListExtractedPixReceipts(ctx, sessionID)
		if err != nil {
			return -1, err
		}
		transactions, err := s.store.ListExtractedBankTransactions(ctx, sessionID)
		if err != nil {
			return -1, err
		}
		receipt, ok := findReceipt(receipts, receiptID)
		if !ok {
			return -1, ErrReceiptNotFound
		}
		tx, ok := findTransaction(transactions, bankTransactionID)
		if !ok {
			return -1, ErrBankTransactionNotFound
		}

		i := res.FindReceipt(receiptID)
		if i < 0 {
			return -1, ErrMatchNotFound
		}
		m := &res.Matches[i]
		if m.Status == matching.StatusConfirmed {
			return -1, fmt.Errorf("%w: receipt is already confirmed", ErrInvalidTransition)
		}
		if holder := res.HolderOf(bankTransactionID); holder >= 0 && holder != i {
			return -1, ErrBankTransactionTaken
		}
		scored, err := s.engine.ScorePair(receipt, tx)
		if err != nil {
			return -1, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}

		id := tx.ID
		breakdown := scored.ScoreBreakdown
		m.BankTransactionID = &id
		m.BankTransactionVersion = tx.Version
		m.PixReceiptVersion = receipt.Version
		m.MatchConfidence = scored.TotalScore
		m.ScoreBreakdown = &breakdown
		m.Alternatives = nil
		m.Status = matching.StatusConfirmed
		m.MatchReasons = []string{"matched manually"}
		return i, nil
	})
}

// review applies change to the stored result under the session lock and
// stores it along with an audit row.
func (s *Service) review(ctx context.Context, sessionID, action string, req ReviewRequest, change func(res *matching.Result) (int, error)) (*matching.Match, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	res, err := s.GetResult(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	before := make([]matching.Match, len(res.Matches))
	copy(before, res.Matches)

	i, err := change(res)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	m := &res.Matches[i]
	previous := before[i].Status
	previousBank := before[i].BankTransactionID
	m.ReviewedBy = req.PerformedBy
	m.ReviewedAt = &now
	if req.Reason != "" {
		m.MatchReasons = append(m.MatchReasons, "review note: "+req.Reason)
	}
	res.Recount()

	entry := &models.MatchAuditLog{
		ID:                      uuid.New(),
		SessionID:               sessionID,
		MatchID:                 m.ID,
		PixReceiptID:            m.PixReceiptID,
		Action:                  action,
		PreviousStatus:          string(previous),
		PreviousBankTransaction: previousBank,
		NewBankTransaction:      m.BankTransactionID,
		PerformedBy:             req.PerformedBy,
		Reason:                  req.Reason,
		CreatedAt:               now,
	}
	if err := s.store.ApplyReview(ctx, sessionID, res, entry); err != nil {
		return nil, fmt.Errorf("store review: %w", err)
	}

	s.logger.Info("match reviewed",
		zap.String("session_id", sessionID),
		zap.String("match_id", m.ID.String()),
		zap.String("action", action),
		zap.String("previous_status", string(previous)),
		zap.String("status", string(m.Status)),
		zap.String("performed_by", req.PerformedBy),
	)
	out := *m
	return &out, nil
}

func findReceipt(receipts []matching.PixReceiptInput, id string) (matching.PixReceiptInput, bool) {
	for _, r := range receipts {
		if r.ID == id {
			return r, true
		}
	}
	return matching.PixReceiptInput{}, false
}

func findTransaction(transactions []matching.BankTransactionInput, id string) (matching.BankTransactionInput, bool) {
	for _, t := range transactions {
		if t.ID == id {
			return t, true
		}
	}
	return matching.BankTransactionInput{}, false
}
