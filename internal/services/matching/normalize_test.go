package matching

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want string
	}{
		{"brazilian with symbol", "R$ 1.234,56", "1234.56"},
		{"dot decimal", "1234.56", "1234.56"},
		{"comma decimal", "1234,56", "1234.56"},
		{"thousands dot only", "1.500", "1500"},
		{"us thousands", "1,234.50", "1234.5"},
		{"many thousands", "1.234.567,89", "1234567.89"},
		{"negative prefix", "-150,00", "-150"},
		{"negative suffix", "150,00-", "-150"},
		{"parentheses", "(10,00)", "-10"},
		{"non breaking space", "R$ 150,00", "150"},
		{"round half up", "10,005", "10.01"},
		{"round half up negative", "-10,005", "-10.01"},
		{"json number", json.Number("150.000"), "150"},
		{"float", 99.99, "99.99"},
		{"int", 42, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAmount(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.String())
			}
		})
	}
}

func TestNormalizeAmountRejectsGarbage(t *testing.T) {
	for _, raw := range []any{nil, "", "R$", "abc", "12a,00", "1,2,3.4.5", true} {
		if _, err := NormalizeAmount(raw); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("expected ErrInvalidAmount for %v, got %v", raw, err)
		}
	}
}

func TestNormalizeDate(t *testing.T) {
	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  any
		want time.Time
	}{
		{"iso date", "2025-01-10", day},
		{"iso datetime with offset", "2025-01-10T23:30:00-03:00", day},
		{"utc instant takes the brazilian day", "2025-01-11T01:30:00Z", day},
		{"utc midday", "2025-01-10T15:00:00Z", day},
		{"brazilian", "10/01/2025", day},
		{"brazilian with time", "10/01/2025 14:32:10", day},
		{"receipt phrasing", "10/01/2025 às 14:32", day},
		{"dashes", "10-01-2025", day},
		{"unix seconds", json.Number("1736521200"), day},
		{"unix millis string", "1736521200000", day},
		{"time value", time.Date(2025, 1, 10, 9, 0, 0, 0, brt), day},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDate(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Day.Equal(tt.want) {
				t.Errorf("expected day %s, got %s", tt.want, got.Day)
			}
			if got.Timestamp.IsZero() {
				t.Error("expected original timestamp to be kept")
			}
		})
	}
}

func TestNormalizeDateRejectsGarbage(t *testing.T) {
	for _, raw := range []any{nil, "", "ontem", "32/01/2025", "1899-12-31", "2025-13-01", json.Number("0")} {
		if _, err := NormalizeDate(raw); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("expected ErrInvalidDate for %v, got %v", raw, err)
		}
	}
}

func TestNormalizeDocument(t *testing.T) {
	tests := []struct {
		raw     any
		want    string
		wantErr bool
	}{
		{"123.456.789-09", "12345678909", false},
		{"12345678909", "12345678909", false},
		{json.Number("1234567890"), "01234567890", false},
		{"***.456.789-**", "", false},
		{"", "", false},
		{nil, "", false},
		{"123.456", "", true},
		{"123.456.789-0A", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeDocument(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("expected ErrInvalidDocument for %v, got %v", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("unexpected error for %v: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("expected %q for %v, got %q", tt.want, tt.raw, got)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	got := NormalizeName("  JOSÉ   da Conceição-Araújo ")
	want := []string{"jose", "da", "conceicao", "araujo"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNameFragmentDropsBoilerplate(t *testing.T) {
	got := nameFragment("PIX RECEBIDO - MARIA S SOUZA 123.456.789-09 E2E4567")
	want := []string{"maria", "souza"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if frag := nameFragment("PIX RECEBIDO"); len(frag) != 0 {
		t.Errorf("expected no fragment for generic description, got %v", frag)
	}
}

func TestNormalizeBankTransactionStructuralError(t *testing.T) {
	_, err := NormalizeBankTransaction(BankTransactionInput{ID: "bt-1", Amount: "150,00", TransactionDate: "not a date"})
	var se *StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("expected StructuralError, got %v", err)
	}
	if se.Field != "transaction_date" || se.Kind != KindBankTransaction {
		t.Errorf("unexpected error details: %+v", se)
	}
	if !errors.Is(err, ErrInvalidDate) {
		t.Errorf("expected wrapped ErrInvalidDate, got %v", err)
	}
}
