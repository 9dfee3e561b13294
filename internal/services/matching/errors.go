package matching

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidDocument = errors.New("invalid document")
	ErrMissingID       = errors.New("missing record id")
)

type RecordKind string

const (
	KindPixReceipt      RecordKind = "pix_receipt"
	KindBankTransaction RecordKind = "bank_transaction"
)

// StructuralError marks a single extracted record that cannot take part in
// matching. It is recovered from and surfaced as a warning.
type StructuralError struct {
	Kind     RecordKind
	RecordID string
	Field    string
	Value    string
	Err      error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s %s: field %s (%q): %v", e.Kind, e.RecordID, e.Field, e.Value, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// Warning converts the error into the form stored with a result.
func (e *StructuralError) Warning() Warning {
	return Warning{
		RecordKind: e.Kind,
		RecordID:   e.RecordID,
		Field:      e.Field,
		Value:      e.Value,
		Message:    e.Err.Error(),
	}
}

// ConfigurationError is returned before any record is read when the matching
// configuration is inconsistent.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid matching configuration: %s: %s", e.Field, e.Reason)
}

// CapacityError aborts a run whose input exceeds the configured bounds.
type CapacityError struct {
	What  string
	Count int
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("too many %s: %d exceeds limit %d", e.What, e.Count, e.Limit)
}
