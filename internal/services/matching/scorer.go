package matching

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Shorter ids only count on an exact match with the bank's own id.
const minContainedIDLength = 6

type Scorer struct {
	cfg       Config
	tolerance decimal.Decimal
	window    int
}

func NewScorer(cfg Config, strict bool) *Scorer {
	tolerance, window := cfg.band(strict)
	return &Scorer{cfg: cfg, tolerance: tolerance, window: window}
}

// Score fills the breakdown and total of c for the receipt and bank line it
// names.
func (s *Scorer) Score(r NormalizedReceipt, tx NormalizedBankTransaction, c MatchCandidate) MatchCandidate {
	c.PixReceiptID = r.ID
	c.BankTransactionID = tx.ID
	c.AmountDelta = tx.Amount.Sub(r.Amount)
	c.DateDeltaDays = dayDelta(r, tx)
	c.ScoreBreakdown = ScoreBreakdown{
		AmountScore: round2(s.amountScore(c.AmountDelta)),
		DateScore:   round2(s.dateScore(c.DateDeltaDays)),
		NameScore:   round2(nameScore(r.PayerTokens, tx.NameFragment)),
		IDScore:     s.idScore(r.TransactionID, tx),
	}
	c.TotalScore = s.total(c.ScoreBreakdown)
	return c
}

func (s *Scorer) total(b ScoreBreakdown) float64 {
	w := s.cfg.Weights
	total := w.ID*b.IDScore + w.Amount*b.AmountScore + w.Date*b.DateScore + w.Name*b.NameScore
	return round2(clamp(total, 0, 100))
}

func (s *Scorer) amountScore(delta decimal.Decimal) float64 {
	ratio := delta.Abs().Div(s.tolerance).InexactFloat64()
	return clamp(100*(1-ratio), 0, 100)
}

func (s *Scorer) dateScore(days int) float64 {
	if days < 0 || days > s.window {
		return 0
	}
	if s.window == 0 {
		return 100
	}
	floor := s.cfg.DateScoreFloor
	return 100 - (100-floor)*float64(days)/float64(s.window)
}

// idScore is all-or-nothing: the end-to-end id, a long enough suffix or a
// long enough prefix of it must show up verbatim on the bank side.
func (s *Scorer) idScore(id string, tx NormalizedBankTransaction) float64 {
	if id == "" {
		return 0
	}
	if tx.TransactionID == id {
		return 100
	}
	if len(id) < minContainedIDLength {
		return 0
	}
	suffixLen, prefixLen := s.cfg.IDSuffixMinLength, s.cfg.IDPrefixMinLength

	haystacks := []string{tx.CompactDescription, tx.TransactionID}
	needles := []string{id}
	if len(id) > suffixLen {
		needles = append(needles, id[len(id)-suffixLen:])
	}
	if len(id) > prefixLen {
		needles = append(needles, id[:prefixLen])
	}
	for _, h := range haystacks {
		if h == "" {
			continue
		}
		for _, n := range needles {
			if strings.Contains(h, n) {
				return 100
			}
		}
		// statements sometimes keep only the tail of the id
		if len(h) >= suffixLen && strings.HasSuffix(id, h) {
			return 100
		}
	}
	return 0
}

// nameScore averages, over the payer's name tokens, the best similarity
// against any token left in the bank description.
func nameScore(payer, fragment []string) float64 {
	if len(payer) == 0 || len(fragment) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range payer {
		best := 0.0
		for _, f := range fragment {
			if sim := tokenSimilarity(p, f); sim > best {
				best = sim
			}
		}
		total += best
	}
	return 100 * total / float64(len(payer))
}

var levenshteinOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

func tokenSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	shorter, longer := ra, rb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	// truncated names: "fernand" for "fernanda"
	if len(shorter) >= 3 && strings.HasPrefix(string(longer), string(shorter)) {
		return 0.9
	}
	dist := levenshtein.DistanceForStrings(ra, rb, levenshteinOptions)
	return 1 - float64(dist)/float64(len(longer))
}

func clamp(v, low, high float64) float64 {
	return math.Max(low, math.Min(high, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
