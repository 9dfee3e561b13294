package matching

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func receipt(id, amount string, day int, txID string) NormalizedReceipt {
	d := time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC)
	return NormalizedReceipt{
		ID:            id,
		Version:       1,
		Amount:        decimal.RequireFromString(amount),
		Day:           d,
		Timestamp:     d,
		PayerTokens:   payerTokens("Maria da Silva"),
		TransactionID: compactID(txID),
	}
}

func bankLine(id, amount string, day int, description string) NormalizedBankTransaction {
	d := time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC)
	return NormalizedBankTransaction{
		ID:                 id,
		Version:            1,
		Amount:             decimal.RequireFromString(amount),
		Day:                d,
		Timestamp:          d,
		Description:        description,
		NameFragment:       nameFragment(description),
		CompactDescription: compactID(description),
	}
}

const e2eID = "E18236120202501101432s0a1b2c3d4e"

func TestCandidateGeneratorWindows(t *testing.T) {
	cfg := DefaultConfig()
	txs := []NormalizedBankTransaction{
		bankLine("bt-exact", "150.00", 10, "PIX RECEBIDO"),
		bankLine("bt-late", "150.00", 13, "PIX RECEBIDO"),
		bankLine("bt-too-late", "150.00", 14, "PIX RECEBIDO"),
		bankLine("bt-before", "150.00", 9, "PIX RECEBIDO"),
		bankLine("bt-cent", "150.01", 10, "PIX RECEBIDO"),
		bankLine("bt-other", "999.00", 10, "PIX RECEBIDO"),
		bankLine("bt-debit", "-150.00", 10, "PIX ENVIADO"),
	}
	got := GenerateCandidates(cfg, receipt("r-1", "150.00", 10, ""), txs)

	want := []string{"bt-exact", "bt-late", "bt-cent"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d: %+v", len(want), len(got), got)
	}
	for i, id := range want {
		if got[i].BankTransactionID != id {
			t.Errorf("candidate %d: expected %s, got %s", i, id, got[i].BankTransactionID)
		}
	}
}

func TestShortlistCapsAfterScoring(t *testing.T) {
	cfg := DefaultConfig()
	var txs []NormalizedBankTransaction
	for i := 1; i <= 10; i++ {
		txs = append(txs, bankLine(fmt.Sprintf("bt-%02d", i), "150.00", 10, "PIX RECEBIDO"))
	}
	txs = append(txs, bankLine("bt-99", "150.00", 10, "PIX RECEBIDO "+e2eID))

	r := receipt("r-1", "150.00", 10, e2eID)
	found := GenerateCandidates(cfg, r, txs)
	if len(found) != 11 {
		t.Fatalf("expected every in-band line as a candidate, got %d", len(found))
	}

	byID := map[string]NormalizedBankTransaction{}
	for _, tx := range txs {
		byID[tx.ID] = tx
	}
	s := NewScorer(cfg, false)
	var scored []MatchCandidate
	for _, c := range found {
		scored = append(scored, s.Score(r, byID[c.BankTransactionID], c))
	}
	got := Shortlist(scored, cfg.MaxCandidatesPerReceipt)
	if len(got) != cfg.MaxCandidatesPerReceipt {
		t.Fatalf("expected %d candidates, got %d", cfg.MaxCandidatesPerReceipt, len(got))
	}
	if got[0].BankTransactionID != "bt-99" {
		t.Errorf("expected bt-99 first, got %s", got[0].BankTransactionID)
	}
	if got[1].BankTransactionID != "bt-01" || got[9].BankTransactionID != "bt-09" {
		t.Errorf("expected ties ordered by bank id, got %s..%s", got[1].BankTransactionID, got[9].BankTransactionID)
	}
}

func TestCandidateGeneratorStrictMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AmountTolerance = decimal.RequireFromString("5")
	txs := []NormalizedBankTransaction{
		bankLine("bt-near", "152.00", 10, ""),
		bankLine("bt-next-day", "150.00", 11, ""),
		bankLine("bt-two-days", "150.00", 12, ""),
	}
	relaxed := NewCandidateGenerator(cfg, txs, false).Generate(receipt("r-1", "150.00", 10, ""))
	if len(relaxed) != 3 {
		t.Errorf("expected 3 relaxed candidates, got %d", len(relaxed))
	}
	strict := NewCandidateGenerator(cfg, txs, true).Generate(receipt("r-1", "150.00", 10, ""))
	if len(strict) != 1 || strict[0].BankTransactionID != "bt-next-day" {
		t.Errorf("expected only bt-next-day in strict mode, got %+v", strict)
	}
}

func TestScoreExactMatch(t *testing.T) {
	s := NewScorer(DefaultConfig(), false)
	r := receipt("r-1", "150.00", 10, e2eID)
	tx := bankLine("bt-1", "150.00", 10, "PIX RECEBIDO MARIA SILVA "+e2eID)

	c := s.Score(r, tx, MatchCandidate{})
	b := c.ScoreBreakdown
	if b.IDScore != 100 || b.AmountScore != 100 || b.DateScore != 100 || b.NameScore != 100 {
		t.Errorf("expected perfect breakdown, got %+v", b)
	}
	if c.TotalScore != 100 {
		t.Errorf("expected total 100, got %v", c.TotalScore)
	}
}

func TestScoreWithoutIDNeedsReview(t *testing.T) {
	cfg := DefaultConfig()
	s := NewScorer(cfg, false)
	c := s.Score(receipt("r-1", "150.00", 10, e2eID), bankLine("bt-1", "150.00", 10, "PIX RECEBIDO MARIA SILVA"), MatchCandidate{})
	if c.ScoreBreakdown.IDScore != 0 {
		t.Errorf("expected id score 0, got %v", c.ScoreBreakdown.IDScore)
	}
	if c.TotalScore != 55 {
		t.Errorf("expected total 55, got %v", c.TotalScore)
	}
	if cfg.Classify(c.TotalScore) != StatusManualReview {
		t.Errorf("expected manual_review band, got %s", cfg.Classify(c.TotalScore))
	}
}

func TestScoreDecay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AmountTolerance = decimal.RequireFromString("1.00")
	s := NewScorer(cfg, false)
	c := s.Score(receipt("r-1", "150.00", 10, ""), bankLine("bt-1", "150.50", 13, "PIX RECEBIDO"), MatchCandidate{})
	if c.ScoreBreakdown.AmountScore != 50 {
		t.Errorf("expected amount score 50, got %v", c.ScoreBreakdown.AmountScore)
	}
	if c.ScoreBreakdown.DateScore != 40 {
		t.Errorf("expected date score at floor 40, got %v", c.ScoreBreakdown.DateScore)
	}
	if c.ScoreBreakdown.NameScore != 0 {
		t.Errorf("expected name score 0 for generic description, got %v", c.ScoreBreakdown.NameScore)
	}
}

func TestIDScoreSuffixAndPrefix(t *testing.T) {
	s := NewScorer(DefaultConfig(), false)
	id := compactID(e2eID)
	tests := []struct {
		name string
		tx   NormalizedBankTransaction
		want float64
	}{
		{"suffix in description", bankLine("bt", "1", 1, "PIX "+id[len(id)-10:]), 100},
		{"prefix in description", bankLine("bt", "1", 1, "PIX "+id[:24]+"..."), 100},
		{"short tail", bankLine("bt", "1", 1, "PIX "+id[len(id)-6:]), 0},
		{"bank id holds tail", NormalizedBankTransaction{ID: "bt", TransactionID: id[len(id)-12:]}, 100},
		{"unrelated", bankLine("bt", "1", 1, "PIX RECEBIDO JOAO"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.idScore(id, tt.tx); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNameScoreTruncatedAndMisspelled(t *testing.T) {
	payer := payerTokens("Fernanda Oliveira")
	if got := nameScore(payer, nameFragment("PIX RECEBIDO FERNAND OLIVEIRA")); math.Abs(got-95) > 0.001 {
		t.Errorf("expected 95 for truncated first name, got %v", got)
	}
	if got := nameScore(payer, nameFragment("PIX RECEBIDO FERNANDA OLIVERA")); got < 90 {
		t.Errorf("expected high score for misspelled surname, got %v", got)
	}
	if got := nameScore(payer, nil); got != 0 {
		t.Errorf("expected 0 without fragment, got %v", got)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	cases := map[string]func(*Config){
		"manual above auto":   func(c *Config) { c.Thresholds.ManualReview = 90 },
		"negative weight":     func(c *Config) { c.Weights.Name = -0.1 },
		"zero weights":        func(c *Config) { c.Weights = Weights{} },
		"negative tolerance":  func(c *Config) { c.AmountTolerance = decimal.RequireFromString("-1") },
		"no candidates":       func(c *Config) { c.MaxCandidatesPerReceipt = 0 },
		"floor out of range":  func(c *Config) { c.DateScoreFloor = 120 },
		"negative window":     func(c *Config) { c.DateWindowDays = -1 },
		"auto above hundred":  func(c *Config) { c.Thresholds.AutoMatch = 101 },
		"no bank capacity":    func(c *Config) { c.MaxBankTransactions = 0 },
		"no receipt capacity": func(c *Config) { c.MaxPixReceipts = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			if _, ok := cfg.Validate().(*ConfigurationError); !ok {
				t.Errorf("expected ConfigurationError")
			}
		})
	}
}
