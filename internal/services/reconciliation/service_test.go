package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pix-reconciliation-backend/internal/models"
	"pix-reconciliation-backend/internal/services/matching"
)

// memStore keeps a session in memory. Results are stored encoded so callers
// never share slices with the store.
type memStore struct {
	mu           sync.Mutex
	receipts     []matching.PixReceiptInput
	transactions []matching.BankTransactionInput
	result       []byte
	runs         []models.ReconciliationRun
	audit        []models.MatchAuditLog
	// listed, when set, is signalled on every receipt listing
	listed chan struct{}
}

func (m *memStore) ListExtractedPixReceipts(context.Context, string) ([]matching.PixReceiptInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listed != nil {
		select {
		case m.listed <- struct{}{}:
		default:
		}
	}
	return append([]matching.PixReceiptInput(nil), m.receipts...), nil
}

func (m *memStore) ListExtractedBankTransactions(context.Context, string) ([]matching.BankTransactionInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]matching.BankTransactionInput(nil), m.transactions...), nil
}

func (m *memStore) LoadResult(context.Context, string) (*matching.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.result == nil {
		return nil, nil
	}
	var res matching.Result
	if err := json.Unmarshal(m.result, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (m *memStore) ReplaceResult(_ context.Context, _ string, res *matching.Result) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = b
	return nil
}

func (m *memStore) StartRun(_ context.Context, sessionID string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := models.ReconciliationRun{ID: uuid.New(), SessionID: sessionID, Status: models.RunStatusProcessing}
	m.runs = append(m.runs, run)
	return run.ID, nil
}

func (m *memStore) FinishRun(_ context.Context, runID uuid.UUID, res *matching.Result, runErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID != runID {
			continue
		}
		if runErr != nil {
			m.runs[i].Status = models.RunStatusFailed
			m.runs[i].Error = runErr.Error()
		} else {
			m.runs[i].Status = models.RunStatusCompleted
			m.runs[i].AutoMatchedCount = res.AutoMatched
		}
	}
	return nil
}

func (m *memStore) LatestRun(context.Context, string) (*models.ReconciliationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) == 0 {
		return nil, nil
	}
	run := m.runs[len(m.runs)-1]
	return &run, nil
}

func (m *memStore) ApplyReview(ctx context.Context, sessionID string, res *matching.Result, entry *models.MatchAuditLog) error {
	if err := m.ReplaceResult(ctx, sessionID, res); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, *entry)
	return nil
}

func (m *memStore) ListAuditLog(context.Context, string) ([]models.MatchAuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.MatchAuditLog(nil), m.audit...), nil
}

func pix(id, amount, txID string) matching.PixReceiptInput {
	return matching.PixReceiptInput{
		ID:              id,
		Version:         1,
		Amount:          amount,
		PayerName:       "Maria da Silva",
		TransactionID:   txID,
		TransactionDate: "2025-01-10",
	}
}

func bank(id, amount, description string) matching.BankTransactionInput {
	return matching.BankTransactionInput{
		ID:              id,
		Version:         1,
		Amount:          amount,
		Description:     description,
		TransactionDate: "10/01/2025",
	}
}

func sessionFixture() *memStore {
	return &memStore{
		receipts: []matching.PixReceiptInput{
			pix("r-1", "150,00", "E123...789"),
			pix("r-2", "80,00", ""),
		},
		transactions: []matching.BankTransactionInput{
			bank("bt-1", "150.00", "PIX RECEBIDO E123...789"),
			bank("bt-2", "75.00", "TED RECEBIDA"),
		},
	}
}

func newTestService(t *testing.T, store Store, cfg matching.Config, notifier Notifier) *Service {
	t.Helper()
	engine, err := matching.NewEngine(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	svc := NewService(store, engine, notifier, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 1, 12, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestRunReconciliationStoresResultAndNotifies(t *testing.T) {
	store := sessionFixture()
	var notified []matching.Counts
	notifier := NotifierFunc(func(_ context.Context, sessionID string, counts matching.Counts) error {
		if sessionID != "s-1" {
			t.Errorf("expected session s-1, got %s", sessionID)
		}
		notified = append(notified, counts)
		return nil
	})
	svc := newTestService(t, store, matching.DefaultConfig(), notifier)

	res, err := svc.RunReconciliation(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AutoMatched != 1 || res.Unmatched != 1 {
		t.Fatalf("expected 1 auto and 1 unmatched, got %+v", res.Counts())
	}

	stored, err := svc.GetResult(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stored.Matches) != 2 {
		t.Errorf("expected 2 stored matches, got %d", len(stored.Matches))
	}
	if len(notified) != 1 || notified[0].AutoMatched != 1 {
		t.Errorf("expected one notification with 1 auto match, got %+v", notified)
	}

	run, err := svc.LatestRun(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != models.RunStatusCompleted || run.AutoMatchedCount != 1 {
		t.Errorf("expected completed run with 1 auto match, got %+v", run)
	}

	auto, stats, err := svc.ListMatches(context.Background(), "s-1", matching.StatusAutoMatched)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(auto) != 1 || auto[0].PixReceiptID != "r-1" {
		t.Errorf("expected r-1 as the only auto match, got %+v", auto)
	}
	if stats.Unmatched != 1 {
		t.Errorf("expected stats over the whole result, got %+v", stats)
	}
}

func TestRunReconciliationCapacityFailsRun(t *testing.T) {
	store := sessionFixture()
	cfg := matching.DefaultConfig()
	cfg.MaxBankTransactions = 1
	svc := newTestService(t, store, cfg, nil)

	_, err := svc.RunReconciliation(context.Background(), "s-1")
	var capErr *matching.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityError, got %v", err)
	}
	if _, err := svc.GetResult(context.Background(), "s-1"); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("expected no stored result, got %v", err)
	}
	run, err := svc.LatestRun(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != models.RunStatusFailed || run.Error == "" {
		t.Errorf("expected failed run with error, got %+v", run)
	}
}

func TestRunReconciliationRequiresSession(t *testing.T) {
	svc := newTestService(t, &memStore{}, matching.DefaultConfig(), nil)
	if _, err := svc.RunReconciliation(context.Background(), ""); !errors.Is(err, ErrMissingSession) {
		t.Fatalf("expected ErrMissingSession, got %v", err)
	}
	if _, err := svc.LatestRun(context.Background(), "s-1"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func reconciled(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := sessionFixture()
	svc := newTestService(t, store, matching.DefaultConfig(), nil)
	if _, err := svc.RunReconciliation(context.Background(), "s-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc, store
}

func TestConfirmMatchWritesAudit(t *testing.T) {
	svc, store := reconciled(t)
	ctx := context.Background()
	id := matching.MatchID("s-1", "r-1")

	m, err := svc.ConfirmMatch(ctx, "s-1", id, ReviewRequest{PerformedBy: "ana", Reason: "checked"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Status != matching.StatusConfirmed || m.ReviewedBy != "ana" || m.ReviewedAt == nil {
		t.Fatalf("expected confirmed match reviewed by ana, got %+v", m)
	}

	res, _ := svc.GetResult(ctx, "s-1")
	if res.Confirmed != 1 || res.AutoMatched != 0 {
		t.Errorf("expected counts to move to confirmed, got %+v", res.Counts())
	}
	if len(store.audit) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(store.audit))
	}
	entry := store.audit[0]
	if entry.Action != ActionConfirm || entry.PreviousStatus != string(matching.StatusAutoMatched) || entry.MatchID != id {
		t.Errorf("unexpected audit row %+v", entry)
	}

	if _, err := svc.ConfirmMatch(ctx, "s-1", id, ReviewRequest{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on second confirm, got %v", err)
	}
	if _, err := svc.ConfirmMatch(ctx, "s-1", matching.MatchID("s-1", "r-2"), ReviewRequest{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for a match without bank line, got %v", err)
	}
	if _, err := svc.ConfirmMatch(ctx, "s-1", uuid.New(), ReviewRequest{}); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestRejectedMatchSurvivesRerun(t *testing.T) {
	svc, _ := reconciled(t)
	ctx := context.Background()
	id := matching.MatchID("s-1", "r-1")

	if _, err := svc.RejectMatch(ctx, "s-1", id, ReviewRequest{PerformedBy: "ana"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := svc.RunReconciliation(ctx, "s-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	i := res.FindMatch(id)
	if i < 0 || res.Matches[i].Status != matching.StatusRejected {
		t.Fatalf("expected r-1 to stay rejected after a re-run, got %+v", res.Matches)
	}
	if _, err := svc.RejectMatch(ctx, "s-1", id, ReviewRequest{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestManualMatch(t *testing.T) {
	svc, store := reconciled(t)
	ctx := context.Background()
	req := ReviewRequest{PerformedBy: "ana"}

	if _, err := svc.ManualMatch(ctx, "s-1", "r-2", "bt-1", req); !errors.Is(err, ErrBankTransactionTaken) {
		t.Fatalf("expected ErrBankTransactionTaken, got %v", err)
	}
	if _, err := svc.ManualMatch(ctx, "s-1", "r-2", "bt-9", req); !errors.Is(err, ErrBankTransactionNotFound) {
		t.Fatalf("expected ErrBankTransactionNotFound, got %v", err)
	}
	if _, err := svc.ManualMatch(ctx, "s-1", "r-9", "bt-2", req); !errors.Is(err, ErrReceiptNotFound) {
		t.Fatalf("expected ErrReceiptNotFound, got %v", err)
	}

	m, err := svc.ManualMatch(ctx, "s-1", "r-2", "bt-2", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Status != matching.StatusConfirmed || m.BankTransactionID == nil || *m.BankTransactionID != "bt-2" {
		t.Fatalf("expected r-2 confirmed on bt-2, got %+v", m)
	}
	if m.ScoreBreakdown == nil {
		t.Errorf("expected the pair to be scored")
	}
	if len(store.audit) != 1 || store.audit[0].PreviousStatus != string(matching.StatusNoMatch) || store.audit[0].PreviousBankTransaction != nil {
		t.Errorf("unexpected audit rows %+v", store.audit)
	}

	res, err := svc.RunReconciliation(ctx, "s-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Confirmed != 1 || res.Unmatched != 0 || res.AutoMatched != 1 {
		t.Errorf("expected manual match to hold across runs, got %+v", res.Counts())
	}

	if _, err := svc.ManualMatch(ctx, "s-1", "r-2", "bt-2", req); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on a confirmed receipt, got %v", err)
	}
}

func TestReviewBeforeRunFails(t *testing.T) {
	svc := newTestService(t, sessionFixture(), matching.DefaultConfig(), nil)
	_, err := svc.ConfirmMatch(context.Background(), "s-1", matching.MatchID("s-1", "r-1"), ReviewRequest{})
	if !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("expected ErrResultNotFound, got %v", err)
	}
}

func TestManualMatchPinsVersionCurrentUnderLock(t *testing.T) {
	svc, store := reconciled(t)
	store.listed = make(chan struct{}, 1)

	unlock := svc.lock("s-1")
	done := make(chan *matching.Match, 1)
	go func() {
		m, err := svc.ManualMatch(context.Background(), "s-1", "r-2", "bt-2", ReviewRequest{PerformedBy: "ana"})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		done <- m
	}()

	select {
	case <-store.listed:
		t.Fatal("records were read before the session lock was taken")
	case <-time.After(50 * time.Millisecond):
	}

	store.mu.Lock()
	corrected := pix("r-2", "75,00", "")
	corrected.Version = 2
	store.receipts[1] = corrected
	store.mu.Unlock()
	unlock()

	m := <-done
	if m == nil {
		t.Fatal("expected a match")
	}
	if m.PixReceiptVersion != 2 {
		t.Errorf("expected the version current at review time, got %d", m.PixReceiptVersion)
	}
}
