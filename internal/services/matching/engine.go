package matching

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// matchNamespace seeds deterministic match ids.
var matchNamespace = uuid.MustParse("6f1d3c52-8a9e-4b7f-9c1e-2d4a5b6c7e80")

// MatchID is stable for a receipt within a session across every run.
func MatchID(sessionID, pixReceiptID string) uuid.UUID {
	return uuid.NewSHA1(matchNamespace, []byte(sessionID+"/"+pixReceiptID))
}

// Snapshot is the immutable input of one run.
type Snapshot struct {
	SessionID        string
	PixReceipts      []PixReceiptInput
	BankTransactions []BankTransactionInput
	// Previous is the result currently stored for the session, if any.
	Previous *Result
	Now      time.Time
}

// Engine computes a full reconciliation result from a snapshot. It holds no
// per-session state and is safe for concurrent use.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

func NewEngine(cfg Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Run(s Snapshot) (*Result, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	receipts := latestReceipts(s.PixReceipts)
	transactions := latestTransactions(s.BankTransactions)
	if len(transactions) > e.cfg.MaxBankTransactions {
		return nil, &CapacityError{What: "bank transactions", Count: len(transactions), Limit: e.cfg.MaxBankTransactions}
	}
	if len(receipts) > e.cfg.MaxPixReceipts {
		return nil, &CapacityError{What: "pix receipts", Count: len(receipts), Limit: e.cfg.MaxPixReceipts}
	}

	now := s.Now.UTC().Truncate(time.Microsecond)
	result := &Result{
		SessionID:             s.SessionID,
		TotalPixReceipts:      len(receipts),
		TotalBankTransactions: len(transactions),
		Matches:               make([]Match, 0, len(receipts)),
		Warnings:              []Warning{},
	}

	var (
		validReceipts []NormalizedReceipt
		brokenReceipt = map[string]brokenRecord{}
		validTx       []NormalizedBankTransaction
		txByID        = map[string]NormalizedBankTransaction{}
	)
	for _, in := range receipts {
		r, err := NormalizePixReceipt(in)
		var se *StructuralError
		if errors.As(err, &se) {
			brokenReceipt[in.ID] = brokenRecord{err: se, version: in.Version}
			result.Warnings = append(result.Warnings, se.Warning())
			continue
		}
		validReceipts = append(validReceipts, r)
	}
	for _, in := range transactions {
		tx, err := NormalizeBankTransaction(in)
		var se *StructuralError
		if errors.As(err, &se) {
			result.Warnings = append(result.Warnings, se.Warning())
			continue
		}
		validTx = append(validTx, tx)
		txByID[tx.ID] = tx
	}

	previous := map[string]Match{}
	if s.Previous != nil {
		for _, m := range s.Previous.Matches {
			previous[m.PixReceiptID] = m
		}
	}

	// human decisions survive as long as neither side was reprocessed
	pinned := map[string]Match{}
	consumed := map[string]string{}
	for _, r := range validReceipts {
		m, ok := previous[r.ID]
		if !ok || !m.Pinned() || m.PixReceiptVersion != r.Version {
			continue
		}
		if m.BankTransactionID != nil {
			tx, ok := txByID[*m.BankTransactionID]
			if !ok || tx.Version != m.BankTransactionVersion {
				continue
			}
			if m.Status == StatusConfirmed {
				consumed[tx.ID] = r.ID
			}
		}
		pinned[r.ID] = m
	}

	strict := len(validTx) > e.cfg.StrictPrefilterAbove
	if strict {
		e.logger.Info("strict prefilter enabled",
			zap.String("session_id", s.SessionID),
			zap.Int("bank_transactions", len(validTx)),
			zap.Int("threshold", e.cfg.StrictPrefilterAbove),
		)
	}
	generator := NewCandidateGenerator(e.cfg, validTx, strict)
	scorer := NewScorer(e.cfg, strict)

	var open []string
	receiptByID := map[string]NormalizedReceipt{}
	candidates := map[string][]MatchCandidate{}
	for _, r := range validReceipts {
		if _, ok := pinned[r.ID]; ok {
			continue
		}
		receiptByID[r.ID] = r
		open = append(open, r.ID)
		var scored []MatchCandidate
		for _, c := range generator.Generate(r) {
			scored = append(scored, scorer.Score(r, txByID[c.BankTransactionID], c))
		}
		candidates[r.ID] = Shortlist(scored, e.cfg.MaxCandidatesPerReceipt)
	}

	for _, a := range NewAssigner(e.cfg).Assign(open, candidates, consumed) {
		r := receiptByID[a.PixReceiptID]
		m := Match{
			ID:                MatchID(s.SessionID, r.ID),
			PixReceiptID:      r.ID,
			PixReceiptVersion: r.Version,
			MatchConfidence:   a.Confidence,
			Status:            a.Status,
			MatchReasons:      a.Reasons,
			Alternatives:      a.Alternatives,
		}
		if a.BankTransactionID != "" {
			id := a.BankTransactionID
			m.BankTransactionID = &id
			m.BankTransactionVersion = txByID[id].Version
		}
		if a.Chosen != nil {
			b := a.Chosen.ScoreBreakdown
			m.ScoreBreakdown = &b
		}
		if m.Status == StatusAutoMatched && r.ExtractionConfidence != nil && *r.ExtractionConfidence < e.cfg.MinAutoMatchExtractionConfidence {
			m.Status = StatusManualReview
			m.MatchReasons = append([]string{fmt.Sprintf("low extraction confidence (%.0f)", *r.ExtractionConfidence)}, m.MatchReasons...)
		}
		result.Matches = append(result.Matches, m)
	}

	for id, m := range pinned {
		m.ID = MatchID(s.SessionID, id)
		result.Matches = append(result.Matches, m)
	}
	for id, b := range brokenReceipt {
		result.Matches = append(result.Matches, Match{
			ID:                MatchID(s.SessionID, id),
			PixReceiptID:      id,
			PixReceiptVersion: b.version,
			Status:            StatusManualReview,
			MatchReasons:      []string{"extraction issue: " + b.err.Error()},
		})
	}

	sort.Slice(result.Matches, func(i, j int) bool {
		return result.Matches[i].PixReceiptID < result.Matches[j].PixReceiptID
	})
	sort.Slice(result.Warnings, func(i, j int) bool {
		a, b := result.Warnings[i], result.Warnings[j]
		if a.RecordKind != b.RecordKind {
			return a.RecordKind < b.RecordKind
		}
		if a.RecordID != b.RecordID {
			return a.RecordID < b.RecordID
		}
		return a.Field < b.Field
	})

	for i := range result.Matches {
		m := &result.Matches[i]
		if m.MatchReasons == nil {
			m.MatchReasons = []string{}
		}
		if prev, ok := previous[m.PixReceiptID]; ok && (m.Pinned() || sameOutcome(prev, *m)) {
			m.MatchedAt = prev.MatchedAt
			continue
		}
		m.MatchedAt = now
	}
	result.Recount()

	e.logger.Info("reconciliation computed",
		zap.String("session_id", s.SessionID),
		zap.Int("pix_receipts", result.TotalPixReceipts),
		zap.Int("bank_transactions", result.TotalBankTransactions),
		zap.Int("auto_matched", result.AutoMatched),
		zap.Int("manual_review", result.ManualReview),
		zap.Int("unmatched", result.Unmatched),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

// ScorePair scores a single receipt against a single bank line, for pairs
// chosen by a reviewer rather than by a run.
func (e *Engine) ScorePair(r PixReceiptInput, b BankTransactionInput) (MatchCandidate, error) {
	nr, err := NormalizePixReceipt(r)
	if err != nil {
		return MatchCandidate{}, err
	}
	nb, err := NormalizeBankTransaction(b)
	if err != nil {
		return MatchCandidate{}, err
	}
	return NewScorer(e.cfg, false).Score(nr, nb, MatchCandidate{}), nil
}

type brokenRecord struct {
	err     *StructuralError
	version int
}

// sameOutcome compares the serialized form of two matches, ignoring when
// they were produced. Decimals read back from storage differ in scale from
// computed ones, so structural equality is not enough.
func sameOutcome(a, b Match) bool {
	a.MatchedAt, b.MatchedAt = time.Time{}, time.Time{}
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// latestReceipts keeps the highest version of each id, ordered by id.
func latestReceipts(in []PixReceiptInput) []PixReceiptInput {
	byID := make(map[string]PixReceiptInput, len(in))
	for _, r := range in {
		if cur, ok := byID[r.ID]; !ok || r.Version > cur.Version {
			byID[r.ID] = r
		}
	}
	out := make([]PixReceiptInput, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func latestTransactions(in []BankTransactionInput) []BankTransactionInput {
	byID := make(map[string]BankTransactionInput, len(in))
	for _, t := range in {
		if cur, ok := byID[t.ID]; !ok || t.Version > cur.Version {
			byID[t.ID] = t
		}
	}
	out := make([]BankTransactionInput, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
