package matching

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// brt is the offset assumed for timestamps that carry none. Brazil has not
// observed daylight saving since 2019.
var brt = time.FixedZone("BRT", -3*60*60)

const (
	minYear = 2000
	maxYear = 2100
)

// DateValue keeps both the calendar day used for windows and the original
// instant used for tie-breaking.
type DateValue struct {
	Day       time.Time
	Timestamp time.Time
}

// NormalizeAmount parses amounts as they come out of Brazilian receipts and
// statements ("R$ 1.234,56", "1234.56", "1234,56", numbers) and rounds them to
// cents, half away from zero.
func NormalizeAmount(raw any) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch v := raw.(type) {
	case nil:
		return decimal.Zero, ErrInvalidAmount
	case decimal.Decimal:
		d = v
	case json.Number:
		d, err = decimal.NewFromString(v.String())
	case float64:
		d = decimal.NewFromFloat(v)
	case float32:
		d = decimal.NewFromFloat32(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case string:
		d, err = parseAmountString(v)
	default:
		return decimal.Zero, ErrInvalidAmount
	}
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

func parseAmountString(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.NewReplacer("R$", "", "r$", "", "BRL", "", " ", "", "\u00a0", "", "\t", "").Replace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	negative := false
	switch {
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		negative, s = true, s[1:len(s)-1]
	case strings.HasPrefix(s, "-"):
		negative, s = true, s[1:]
	case strings.HasSuffix(s, "-"):
		negative, s = true, s[:len(s)-1]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ',' || r == '.':
		default:
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if digits == 0 {
		return decimal.Zero, ErrInvalidAmount
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		sep, thousands := ",", "."
		if lastDot > lastComma {
			sep, thousands = ".", ","
		}
		if strings.Count(s, sep) > 1 {
			return decimal.Zero, ErrInvalidAmount
		}
		s = strings.ReplaceAll(s, thousands, "")
		s = strings.Replace(s, sep, ".", 1)
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		// "1.234" is one thousand two hundred and thirty four on a Brazilian
		// receipt; "1234.5" and "12.34" keep the dot as decimal separator.
		if strings.Count(s, ".") > 1 || len(s)-lastDot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05-07:00",
}

var localLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"02/01/2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02-01-2006",
	"02-01-2006 15:04:05",
	"02.01.2006",
}

// NormalizeDate accepts ISO-8601, dd/MM/yyyy, dd-MM-yyyy and their date-time
// variants as well as unix seconds or milliseconds. Values without an offset
// are read in Brazil time.
func NormalizeDate(raw any) (DateValue, error) {
	var (
		ts  time.Time
		err error
	)
	switch v := raw.(type) {
	case time.Time:
		ts = v
	case json.Number:
		ts, err = parseUnix(v.String())
	case float64:
		ts, err = unixTime(int64(v))
	case int64:
		ts, err = unixTime(v)
	case int:
		ts, err = unixTime(int64(v))
	case string:
		ts, err = parseDateString(v)
	default:
		return DateValue{}, ErrInvalidDate
	}
	if err != nil {
		return DateValue{}, ErrInvalidDate
	}
	// receipts and statements may carry different offsets; the calendar
	// day is always the Brazilian one
	y, m, d := ts.In(brt).Date()
	if y < minYear || y > maxYear {
		return DateValue{}, ErrInvalidDate
	}
	return DateValue{
		Day:       time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Timestamp: ts,
	}, nil
}

func parseDateString(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	s = strings.Join(strings.Fields(strings.ReplaceAll(s, " às ", " ")), " ")

	if isDigits(s) && (len(s) == 10 || len(s) == 13) {
		return parseUnix(s)
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, brt); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

func parseUnix(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return time.Time{}, ErrInvalidDate
		}
		n = int64(f)
	}
	return unixTime(n)
}

// unixTime treats values past 1e11 as milliseconds.
func unixTime(n int64) (time.Time, error) {
	if n <= 0 {
		return time.Time{}, ErrInvalidDate
	}
	if n > 1e11 {
		return time.UnixMilli(n).In(brt), nil
	}
	return time.Unix(n, 0).In(brt), nil
}

// NormalizeDocument returns the 11 CPF digits. Empty and masked documents
// ("***.456.789-**") are treated as absent and yield "".
func NormalizeDocument(raw any) (string, error) {
	var s string
	numeric := false
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		s = strings.TrimSpace(v)
	case json.Number:
		s, numeric = v.String(), true
	case float64:
		s, numeric = strconv.FormatFloat(v, 'f', 0, 64), true
	case int64:
		s, numeric = strconv.FormatInt(v, 10), true
	case int:
		s, numeric = strconv.Itoa(v), true
	default:
		return "", ErrInvalidDocument
	}
	if s == "" || strings.Contains(s, "*") {
		return "", nil
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '/' || r == ' ':
		default:
			return "", ErrInvalidDocument
		}
	}
	digits := b.String()
	// numbers lose leading zeros on the way through JSON
	if numeric && len(digits) < 11 && len(digits) > 0 {
		digits = strings.Repeat("0", 11-len(digits)) + digits
	}
	if len(digits) != 11 {
		return "", ErrInvalidDocument
	}
	return digits, nil
}

// NormalizeName lowercases, strips accents and splits on anything that is
// not a letter or digit.
func NormalizeName(raw string) []string {
	// transformers carry state, so every call gets its own chain
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, raw)
	if err != nil {
		stripped = raw
	}
	return strings.FieldsFunc(strings.ToLower(stripped), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// compactID keeps upper-cased letters and digits only, so "e2e-123 abc"
// and "E2E123ABC" compare equal.
func compactID(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

var nameConnectors = map[string]bool{
	"da": true, "de": true, "do": true, "das": true, "dos": true, "e": true,
}

// Words that banks put around the payer name in a statement description.
var descriptionBoilerplate = map[string]bool{
	"pix": true, "recebido": true, "recebida": true, "receb": true, "rec": true,
	"transf": true, "transferencia": true, "transferido": true, "ted": true, "doc": true,
	"tev": true, "credito": true, "cred": true, "deposito": true, "dep": true,
	"enviado": true, "enviada": true, "entrada": true, "qr": true, "qrcode": true,
	"code": true, "chave": true, "conta": true, "cc": true, "ag": true, "agencia": true,
	"banco": true, "bco": true, "pagamento": true, "pgto": true, "pag": true,
	"ref": true, "id": true, "cpf": true, "cnpj": true, "via": true, "para": true,
	"por": true, "em": true, "instantaneo": true, "remetente": true, "origem": true,
	"ltda": true, "me": true, "eireli": true, "sa": true,
	"nubank": true, "nu": true, "itau": true, "bradesco": true, "santander": true,
	"caixa": true, "inter": true, "sicoob": true, "sicredi": true, "bb": true,
	"mercado": true, "pago": true, "picpay": true, "c6": true, "btg": true,
}

func payerTokens(raw string) []string {
	var out []string
	for _, t := range NormalizeName(raw) {
		if !nameConnectors[t] {
			out = append(out, t)
		}
	}
	return out
}

// nameFragment is what is left of a bank description once boilerplate,
// connectors and anything carrying digits are dropped.
func nameFragment(description string) []string {
	var out []string
	for _, t := range NormalizeName(description) {
		if len(t) < 2 || nameConnectors[t] || descriptionBoilerplate[t] || strings.ContainsAny(t, "0123456789") {
			continue
		}
		out = append(out, t)
	}
	return out
}

// NormalizePixReceipt returns the receipt ready for matching or the
// StructuralError that excludes it.
func NormalizePixReceipt(in PixReceiptInput) (NormalizedReceipt, error) {
	fail := func(field string, value any, err error) (NormalizedReceipt, error) {
		return NormalizedReceipt{}, &StructuralError{Kind: KindPixReceipt, RecordID: in.ID, Field: field, Value: rawString(value), Err: err}
	}
	if strings.TrimSpace(in.ID) == "" {
		return fail("id", in.ID, ErrMissingID)
	}
	amount, err := NormalizeAmount(in.Amount)
	if err != nil {
		return fail("amount", in.Amount, err)
	}
	date, err := NormalizeDate(in.TransactionDate)
	if err != nil {
		return fail("transaction_date", in.TransactionDate, err)
	}
	doc, err := NormalizeDocument(in.PayerDocument)
	if err != nil {
		return fail("payer_document", in.PayerDocument, err)
	}
	return NormalizedReceipt{
		ID:                   in.ID,
		Version:              in.Version,
		Amount:               amount,
		Day:                  date.Day,
		Timestamp:            date.Timestamp,
		PayerTokens:          payerTokens(in.PayerName),
		PayerDocument:        doc,
		TransactionID:        compactID(in.TransactionID),
		BankName:             strings.TrimSpace(in.BankName),
		ExtractionConfidence: in.ExtractionConfidence,
	}, nil
}

func NormalizeBankTransaction(in BankTransactionInput) (NormalizedBankTransaction, error) {
	fail := func(field string, value any, err error) (NormalizedBankTransaction, error) {
		return NormalizedBankTransaction{}, &StructuralError{Kind: KindBankTransaction, RecordID: in.ID, Field: field, Value: rawString(value), Err: err}
	}
	if strings.TrimSpace(in.ID) == "" {
		return fail("id", in.ID, ErrMissingID)
	}
	amount, err := NormalizeAmount(in.Amount)
	if err != nil {
		return fail("amount", in.Amount, err)
	}
	date, err := NormalizeDate(in.TransactionDate)
	if err != nil {
		return fail("transaction_date", in.TransactionDate, err)
	}
	return NormalizedBankTransaction{
		ID:                 in.ID,
		Version:            in.Version,
		Amount:             amount,
		Day:                date.Day,
		Timestamp:          date.Timestamp,
		Description:        in.Description,
		NameFragment:       nameFragment(in.Description),
		CompactDescription: compactID(in.Description),
		TransactionID:      compactID(in.TransactionID),
		BankName:           strings.TrimSpace(in.BankName),
	}, nil
}

func rawString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
