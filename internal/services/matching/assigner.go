package matching

import (
	"fmt"
	"sort"
)

// Assignment is the outcome for a single receipt before it is given an id
// and a timestamp.
type Assignment struct {
	PixReceiptID      string
	BankTransactionID string
	Status            Status
	Confidence        float64
	Chosen            *MatchCandidate
	Alternatives      []MatchCandidate
	Reasons           []string
}

type Assigner struct {
	cfg Config
}

func NewAssigner(cfg Config) *Assigner {
	return &Assigner{cfg: cfg}
}

type triple struct {
	receipt   string
	candidate MatchCandidate
}

// Assign resolves scored candidates into a one-to-one assignment. Triples
// under the manual review threshold never take part. consumed lists bank
// lines already held by human-confirmed matches; it is not modified.
// The result holds one Assignment per receipt id, sorted by receipt id.
func (a *Assigner) Assign(receiptIDs []string, candidatesByReceipt map[string][]MatchCandidate, consumed map[string]string) []Assignment {
	var triples []triple
	for _, id := range receiptIDs {
		for _, c := range candidatesByReceipt[id] {
			if c.TotalScore >= a.cfg.Thresholds.ManualReview {
				triples = append(triples, triple{receipt: id, candidate: c})
			}
		}
	}
	sort.Slice(triples, func(i, j int) bool {
		return candidateLess(triples[i].candidate, triples[j].candidate)
	})

	holder := make(map[string]string, len(consumed)+len(receiptIDs))
	for bankID, receiptID := range consumed {
		holder[bankID] = receiptID
	}
	chosen := make(map[string]MatchCandidate, len(receiptIDs))
	for _, t := range triples {
		if _, done := chosen[t.receipt]; done {
			continue
		}
		if _, taken := holder[t.candidate.BankTransactionID]; taken {
			continue
		}
		chosen[t.receipt] = t.candidate
		holder[t.candidate.BankTransactionID] = t.receipt
	}

	ids := append([]string(nil), receiptIDs...)
	sort.Strings(ids)
	out := make([]Assignment, 0, len(ids))
	for _, id := range ids {
		out = append(out, a.resolve(id, candidatesByReceipt[id], chosen, holder))
	}
	return out
}

func (a *Assigner) resolve(receiptID string, candidates []MatchCandidate, chosen map[string]MatchCandidate, holder map[string]string) Assignment {
	ranked := append([]MatchCandidate(nil), candidates...)
	sort.Slice(ranked, func(i, j int) bool { return candidateLess(ranked[i], ranked[j]) })

	out := Assignment{PixReceiptID: receiptID, Status: StatusNoMatch}
	if len(ranked) == 0 {
		out.Reasons = []string{"no bank transaction within amount tolerance and date window"}
		return out
	}

	if c, ok := chosen[receiptID]; ok {
		out.BankTransactionID = c.BankTransactionID
		out.Confidence = c.TotalScore
		out.Status = a.cfg.Classify(c.TotalScore)
		out.Chosen = &c
		out.Alternatives = without(ranked, c.BankTransactionID)
		out.Reasons = describe(c)
		return out
	}

	best := ranked[0]
	out.Confidence = best.TotalScore
	out.Alternatives = ranked
	band := a.cfg.Classify(best.TotalScore)
	if band == StatusNoMatch {
		out.Reasons = []string{fmt.Sprintf("best candidate %s scored %.2f, below the review threshold", best.BankTransactionID, best.TotalScore)}
		return out
	}

	// every eligible line went to another receipt: drop one band
	contested := fmt.Sprintf("bank transaction %s was assigned to receipt %s", best.BankTransactionID, holder[best.BankTransactionID])
	if band == StatusAutoMatched {
		out.Status = StatusManualReview
		out.BankTransactionID = best.BankTransactionID
		out.Chosen = &best
		out.Alternatives = ranked[1:]
		out.Reasons = append([]string{"contested: " + contested}, describe(best)...)
		return out
	}
	out.Reasons = []string{"contested: " + contested}
	return out
}

// candidateLess orders by score, then date distance, then bank id, then
// receipt id.
func candidateLess(a, b MatchCandidate) bool {
	if a.TotalScore != b.TotalScore {
		return a.TotalScore > b.TotalScore
	}
	if a.DateDeltaDays != b.DateDeltaDays {
		return a.DateDeltaDays < b.DateDeltaDays
	}
	if a.BankTransactionID != b.BankTransactionID {
		return a.BankTransactionID < b.BankTransactionID
	}
	return a.PixReceiptID < b.PixReceiptID
}

func without(candidates []MatchCandidate, bankID string) []MatchCandidate {
	var out []MatchCandidate
	for _, c := range candidates {
		if c.BankTransactionID != bankID {
			out = append(out, c)
		}
	}
	return out
}

func describe(c MatchCandidate) []string {
	b := c.ScoreBreakdown
	var reasons []string
	if b.IDScore == 100 {
		reasons = append(reasons, "end-to-end id found on the bank line")
	}
	if c.AmountDelta.IsZero() {
		reasons = append(reasons, "amount matches exactly")
	} else {
		reasons = append(reasons, fmt.Sprintf("amount differs by %s", c.AmountDelta.StringFixed(2)))
	}
	switch c.DateDeltaDays {
	case 0:
		reasons = append(reasons, "same day")
	case 1:
		reasons = append(reasons, "posted 1 day after the receipt")
	default:
		reasons = append(reasons, fmt.Sprintf("posted %d days after the receipt", c.DateDeltaDays))
	}
	switch {
	case b.NameScore >= 80:
		reasons = append(reasons, fmt.Sprintf("payer name matches the description (%.0f)", b.NameScore))
	case b.NameScore > 0:
		reasons = append(reasons, fmt.Sprintf("payer name partially matches the description (%.0f)", b.NameScore))
	}
	return reasons
}
