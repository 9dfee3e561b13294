package matching

import (
	"math"

	"github.com/shopspring/decimal"
)

type Weights struct {
	ID     float64 `json:"id"`
	Amount float64 `json:"amount"`
	Date   float64 `json:"date"`
	Name   float64 `json:"name"`
}

type Thresholds struct {
	AutoMatch    float64 `json:"auto_match"`
	ManualReview float64 `json:"manual_review"`
}

// Config holds every tunable of the engine. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// AmountTolerance widens the amount band; the band never drops below
	// RoundingTolerance.
	AmountTolerance   decimal.Decimal
	RoundingTolerance decimal.Decimal
	DateWindowDays    int
	DateScoreFloor    float64
	Weights           Weights
	Thresholds        Thresholds

	MaxCandidatesPerReceipt int
	IDSuffixMinLength       int
	IDPrefixMinLength       int

	// Receipts whose extraction confidence is known and below this value
	// are never auto matched.
	MinAutoMatchExtractionConfidence float64

	StrictPrefilterAbove int
	StrictDateWindowDays int
	MaxBankTransactions  int
	MaxPixReceipts       int
}

func DefaultConfig() Config {
	return Config{
		AmountTolerance:   decimal.Zero,
		RoundingTolerance: decimal.New(1, -2),
		DateWindowDays:    3,
		DateScoreFloor:    40,
		Weights: Weights{
			ID:     0.45,
			Amount: 0.30,
			Date:   0.15,
			Name:   0.10,
		},
		Thresholds: Thresholds{
			AutoMatch:    85,
			ManualReview: 50,
		},
		MaxCandidatesPerReceipt:          10,
		IDSuffixMinLength:                10,
		IDPrefixMinLength:                24,
		MinAutoMatchExtractionConfidence: 60,
		StrictPrefilterAbove:             20000,
		StrictDateWindowDays:             1,
		MaxBankTransactions:              200000,
		MaxPixReceipts:                   50000,
	}
}

func (c Config) Validate() error {
	weights := []struct {
		name  string
		value float64
	}{
		{"weights.id", c.Weights.ID},
		{"weights.amount", c.Weights.Amount},
		{"weights.date", c.Weights.Date},
		{"weights.name", c.Weights.Name},
	}
	sum := 0.0
	for _, w := range weights {
		if math.IsNaN(w.value) || w.value < 0 || w.value > 1 {
			return &ConfigurationError{Field: w.name, Reason: "must be between 0 and 1"}
		}
		sum += w.value
	}
	if sum <= 0 {
		return &ConfigurationError{Field: "weights", Reason: "at least one weight must be positive"}
	}

	auto, manual := c.Thresholds.AutoMatch, c.Thresholds.ManualReview
	if manual < 0 || manual > 100 {
		return &ConfigurationError{Field: "thresholds.manual_review", Reason: "must be between 0 and 100"}
	}
	if auto < 0 || auto > 100 {
		return &ConfigurationError{Field: "thresholds.auto_match", Reason: "must be between 0 and 100"}
	}
	if manual > auto {
		return &ConfigurationError{Field: "thresholds.manual_review", Reason: "must not exceed the auto match threshold"}
	}

	switch {
	case c.AmountTolerance.IsNegative():
		return &ConfigurationError{Field: "amount_tolerance", Reason: "must not be negative"}
	case !c.RoundingTolerance.IsPositive():
		return &ConfigurationError{Field: "rounding_tolerance", Reason: "must be positive"}
	case c.DateWindowDays < 0:
		return &ConfigurationError{Field: "date_window_days", Reason: "must not be negative"}
	case c.StrictDateWindowDays < 0:
		return &ConfigurationError{Field: "strict_date_window_days", Reason: "must not be negative"}
	case c.DateScoreFloor < 0 || c.DateScoreFloor > 100:
		return &ConfigurationError{Field: "date_score_floor", Reason: "must be between 0 and 100"}
	case c.MaxCandidatesPerReceipt < 1:
		return &ConfigurationError{Field: "max_candidates_per_receipt", Reason: "must be at least 1"}
	case c.IDSuffixMinLength < 1:
		return &ConfigurationError{Field: "id_suffix_min_length", Reason: "must be at least 1"}
	case c.IDPrefixMinLength < 1:
		return &ConfigurationError{Field: "id_prefix_min_length", Reason: "must be at least 1"}
	case c.MinAutoMatchExtractionConfidence < 0 || c.MinAutoMatchExtractionConfidence > 100:
		return &ConfigurationError{Field: "min_auto_match_extraction_confidence", Reason: "must be between 0 and 100"}
	case c.StrictPrefilterAbove < 1:
		return &ConfigurationError{Field: "strict_prefilter_above", Reason: "must be at least 1"}
	case c.MaxBankTransactions < 1:
		return &ConfigurationError{Field: "max_bank_transactions", Reason: "must be at least 1"}
	case c.MaxPixReceipts < 1:
		return &ConfigurationError{Field: "max_pix_receipts", Reason: "must be at least 1"}
	}
	return nil
}

// Classify maps a total score onto a status band.
func (c Config) Classify(score float64) Status {
	switch {
	case score >= c.Thresholds.AutoMatch:
		return StatusAutoMatched
	case score >= c.Thresholds.ManualReview:
		return StatusManualReview
	default:
		return StatusNoMatch
	}
}

// band returns the amount tolerance and date window in effect for a run.
func (c Config) band(strict bool) (decimal.Decimal, int) {
	if strict {
		return c.RoundingTolerance, c.StrictDateWindowDays
	}
	if c.AmountTolerance.GreaterThan(c.RoundingTolerance) {
		return c.AmountTolerance, c.DateWindowDays
	}
	return c.RoundingTolerance, c.DateWindowDays
}
