package matching

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending      Status = "pending"
	StatusAutoMatched  Status = "auto_matched"
	StatusManualReview Status = "manual_review"
	StatusNoMatch      Status = "no_match"
	StatusConfirmed    Status = "confirmed"
	StatusRejected     Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAutoMatched, StatusManualReview, StatusNoMatch, StatusConfirmed, StatusRejected:
		return true
	}
	return false
}

// PixReceiptInput is an extracted PIX receipt as handed over by the OCR
// collaborator. Amount, PayerDocument and TransactionDate keep whatever raw
// type was received (string, json.Number, float64).
type PixReceiptInput struct {
	ID                   string
	Version              int
	Amount               any
	PayerName            string
	PayerDocument        any
	TransactionID        string
	TransactionDate      any
	BankName             string
	ExtractionConfidence *float64
}

// BankTransactionInput is one extracted bank statement line. Negative
// amounts are debits.
type BankTransactionInput struct {
	ID              string
	Version         int
	Amount          any
	Description     string
	TransactionDate any
	TransactionID   string
	BankName        string
}

type NormalizedReceipt struct {
	ID                   string
	Version              int
	Amount               decimal.Decimal
	Day                  time.Time
	Timestamp            time.Time
	PayerTokens          []string
	PayerDocument        string
	TransactionID        string
	BankName             string
	ExtractionConfidence *float64
}

type NormalizedBankTransaction struct {
	ID                 string
	Version            int
	Amount             decimal.Decimal
	Day                time.Time
	Timestamp          time.Time
	Description        string
	NameFragment       []string
	CompactDescription string
	TransactionID      string
	BankName           string
}

func (b NormalizedBankTransaction) IsCredit() bool { return b.Amount.IsPositive() }

type ScoreBreakdown struct {
	AmountScore float64 `json:"amount_score"`
	DateScore   float64 `json:"date_score"`
	NameScore   float64 `json:"name_score"`
	IDScore     float64 `json:"id_score"`
}

type MatchCandidate struct {
	PixReceiptID      string          `json:"pix_receipt_id"`
	BankTransactionID string          `json:"bank_transaction_id"`
	AmountDelta       decimal.Decimal `json:"amount_delta"`
	DateDeltaDays     int             `json:"date_delta_days"`
	ScoreBreakdown    ScoreBreakdown  `json:"score_breakdown"`
	TotalScore        float64         `json:"total_score"`
}

type Match struct {
	ID                     uuid.UUID        `json:"id"`
	PixReceiptID           string           `json:"pix_receipt_id"`
	PixReceiptVersion      int              `json:"pix_receipt_version"`
	BankTransactionID      *string          `json:"bank_transaction_id"`
	BankTransactionVersion int              `json:"bank_transaction_version,omitempty"`
	MatchConfidence        float64          `json:"match_confidence"`
	Status                 Status           `json:"status"`
	MatchReasons           []string         `json:"match_reasons"`
	ScoreBreakdown         *ScoreBreakdown  `json:"score_breakdown,omitempty"`
	Alternatives           []MatchCandidate `json:"alternatives,omitempty"`
	MatchedAt              time.Time        `json:"matched_at"`
	ReviewedBy             string           `json:"reviewed_by,omitempty"`
	ReviewedAt             *time.Time       `json:"reviewed_at,omitempty"`
}

// Pinned reports whether a human decision fixed this match.
func (m Match) Pinned() bool {
	return m.Status == StatusConfirmed || m.Status == StatusRejected
}

// Holds reports whether the match keeps its bank transaction away from any
// other receipt.
func (m Match) Holds() bool {
	return m.BankTransactionID != nil && (m.Status == StatusAutoMatched || m.Status == StatusConfirmed)
}

type Warning struct {
	RecordKind RecordKind `json:"record_kind"`
	RecordID   string     `json:"record_id"`
	Field      string     `json:"field"`
	Value      string     `json:"value"`
	Message    string     `json:"message"`
}

type Counts struct {
	AutoMatched  int `json:"auto_matched"`
	ManualReview int `json:"manual_review"`
	Unmatched    int `json:"unmatched"`
	Confirmed    int `json:"confirmed"`
	Rejected     int `json:"rejected"`
}

type Result struct {
	SessionID             string    `json:"session_id"`
	TotalPixReceipts      int       `json:"total_pix_receipts"`
	TotalBankTransactions int       `json:"total_bank_transactions"`
	AutoMatched           int       `json:"auto_matched"`
	ManualReview          int       `json:"manual_review"`
	Unmatched             int       `json:"unmatched"`
	Confirmed             int       `json:"confirmed"`
	Rejected              int       `json:"rejected"`
	Matches               []Match   `json:"matches"`
	Warnings              []Warning `json:"warnings"`
}

func (r *Result) Counts() Counts {
	return Counts{
		AutoMatched:  r.AutoMatched,
		ManualReview: r.ManualReview,
		Unmatched:    r.Unmatched,
		Confirmed:    r.Confirmed,
		Rejected:     r.Rejected,
	}
}

// Recount recomputes the per-status counters from Matches.
func (r *Result) Recount() {
	r.AutoMatched, r.ManualReview, r.Unmatched, r.Confirmed, r.Rejected = 0, 0, 0, 0, 0
	for _, m := range r.Matches {
		switch m.Status {
		case StatusAutoMatched:
			r.AutoMatched++
		case StatusManualReview, StatusPending:
			r.ManualReview++
		case StatusNoMatch:
			r.Unmatched++
		case StatusConfirmed:
			r.Confirmed++
		case StatusRejected:
			r.Rejected++
		}
	}
}

// FindMatch returns the index of the match with the given id, or -1.
func (r *Result) FindMatch(id uuid.UUID) int {
	for i := range r.Matches {
		if r.Matches[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Result) FindReceipt(receiptID string) int {
	for i := range r.Matches {
		if r.Matches[i].PixReceiptID == receiptID {
			return i
		}
	}
	return -1
}

// HolderOf returns the index of the match holding bankTransactionID, or -1.
func (r *Result) HolderOf(bankTransactionID string) int {
	for i := range r.Matches {
		m := r.Matches[i]
		if m.Holds() && *m.BankTransactionID == bankTransactionID {
			return i
		}
	}
	return -1
}
