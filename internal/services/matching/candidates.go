package matching

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CandidateGenerator looks up plausible bank lines for a receipt through an
// amount-sorted index of the credit lines of one snapshot.
type CandidateGenerator struct {
	index     []NormalizedBankTransaction
	tolerance decimal.Decimal
	window    int
}

func NewCandidateGenerator(cfg Config, transactions []NormalizedBankTransaction, strict bool) *CandidateGenerator {
	index := make([]NormalizedBankTransaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx.IsCredit() {
			index = append(index, tx)
		}
	}
	sort.Slice(index, func(i, j int) bool {
		if c := index[i].Amount.Cmp(index[j].Amount); c != 0 {
			return c < 0
		}
		return index[i].ID < index[j].ID
	})

	tolerance, window := cfg.band(strict)
	return &CandidateGenerator{
		index:     index,
		tolerance: tolerance,
		window:    window,
	}
}

// Generate returns every unscored candidate inside the amount band and date
// window, ordered by closest amount, then smallest date distance, then bank
// id. The per-receipt cap is applied after scoring, see Shortlist.
func (g *CandidateGenerator) Generate(r NormalizedReceipt) []MatchCandidate {
	low := r.Amount.Sub(g.tolerance)
	high := r.Amount.Add(g.tolerance)

	start := sort.Search(len(g.index), func(i int) bool {
		return g.index[i].Amount.GreaterThanOrEqual(low)
	})

	var out []MatchCandidate
	for i := start; i < len(g.index) && g.index[i].Amount.LessThanOrEqual(high); i++ {
		tx := g.index[i]
		days := dayDelta(r, tx)
		if days < 0 || days > g.window {
			continue
		}
		out = append(out, MatchCandidate{
			PixReceiptID:      r.ID,
			BankTransactionID: tx.ID,
			AmountDelta:       tx.Amount.Sub(r.Amount),
			DateDeltaDays:     days,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].AmountDelta.Abs(), out[j].AmountDelta.Abs()
		if c := ai.Cmp(aj); c != 0 {
			return c < 0
		}
		if out[i].DateDeltaDays != out[j].DateDeltaDays {
			return out[i].DateDeltaDays < out[j].DateDeltaDays
		}
		return out[i].BankTransactionID < out[j].BankTransactionID
	})
	return out
}

// Shortlist orders scored candidates best first and keeps at most limit of
// them.
func Shortlist(scored []MatchCandidate, limit int) []MatchCandidate {
	sort.Slice(scored, func(i, j int) bool { return candidateLess(scored[i], scored[j]) })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// GenerateCandidates is the one-shot form of CandidateGenerator.Generate.
func GenerateCandidates(cfg Config, r NormalizedReceipt, transactions []NormalizedBankTransaction) []MatchCandidate {
	return NewCandidateGenerator(cfg, transactions, false).Generate(r)
}

// dayDelta is the number of calendar days the bank line posted after the
// receipt. Settlement never precedes the payment, so negative values are
// outside every window.
func dayDelta(r NormalizedReceipt, tx NormalizedBankTransaction) int {
	return int(tx.Day.Sub(r.Day).Hours() / 24)
}
