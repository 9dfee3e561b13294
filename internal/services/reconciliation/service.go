package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pix-reconciliation-backend/internal/models"
	"pix-reconciliation-backend/internal/services/matching"
)

var ErrMissingSession = errors.New("session id is required")

// DocumentStore provides the extracted records of a session, latest version
// of each record only.
type DocumentStore interface {
	ListExtractedPixReceipts(ctx context.Context, sessionID string) ([]matching.PixReceiptInput, error)
	ListExtractedBankTransactions(ctx context.Context, sessionID string) ([]matching.BankTransactionInput, error)
}

// ResultStore holds the current result of every session. ReplaceResult must
// swap the whole result atomically.
type ResultStore interface {
	LoadResult(ctx context.Context, sessionID string) (*matching.Result, error)
	ReplaceResult(ctx context.Context, sessionID string, res *matching.Result) error
}

// SnapshotReader is implemented by stores able to read records and the
// previous result in one consistent transaction.
type SnapshotReader interface {
	ReadSnapshot(ctx context.Context, sessionID string) (*matching.Snapshot, error)
}

type RunLog interface {
	StartRun(ctx context.Context, sessionID string) (uuid.UUID, error)
	FinishRun(ctx context.Context, runID uuid.UUID, res *matching.Result, runErr error) error
	LatestRun(ctx context.Context, sessionID string) (*models.ReconciliationRun, error)
}

type ReviewStore interface {
	ApplyReview(ctx context.Context, sessionID string, res *matching.Result, entry *models.MatchAuditLog) error
	ListAuditLog(ctx context.Context, sessionID string) ([]models.MatchAuditLog, error)
}

type Store interface {
	DocumentStore
	ResultStore
	RunLog
	ReviewStore
}

type Service struct {
	store    Store
	engine   *matching.Engine
	notifier Notifier
	logger   *zap.Logger
	locks    sync.Map // sessionID -> *sync.Mutex
	now      func() time.Time
}

func NewService(store Store, engine *matching.Engine, notifier Notifier, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &Service{
		store:    store,
		engine:   engine,
		notifier: notifier,
		logger:   logger.With(zap.String("component", "reconciliation")),
		now:      time.Now,
	}
}

func (s *Service) lock(sessionID string) func() {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// RunReconciliation reads a snapshot of the session, computes a fresh result
// and stores it in place of the previous one. Runs of one session are
// serialised; different sessions run in parallel.
func (s *Service) RunReconciliation(ctx context.Context, sessionID string) (*matching.Result, error) {
	if sessionID == "" {
		return nil, ErrMissingSession
	}
	if err := s.engine.Config().Validate(); err != nil {
		return nil, err
	}

	unlock := s.lock(sessionID)
	defer unlock()

	runID, err := s.store.StartRun(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	started := time.Now()
	res, err := s.run(ctx, sessionID)

	// bookkeeping must land even when the caller went away
	bg := context.WithoutCancel(ctx)
	if ferr := s.store.FinishRun(bg, runID, res, err); ferr != nil {
		s.logger.Error("failed to finish run", zap.String("run_id", runID.String()), zap.Error(ferr))
	}
	if err != nil {
		s.logger.Warn("reconciliation failed",
			zap.String("session_id", sessionID),
			zap.String("run_id", runID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("reconciliation stored",
		zap.String("session_id", sessionID),
		zap.String("run_id", runID.String()),
		zap.Duration("took", time.Since(started)),
	)
	if nerr := s.notifier.NotifyReconciled(bg, sessionID, res.Counts()); nerr != nil {
		s.logger.Warn("notification failed", zap.String("session_id", sessionID), zap.Error(nerr))
	}
	return res, nil
}

func (s *Service) run(ctx context.Context, sessionID string) (*matching.Result, error) {
	snap, err := s.snapshot(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	snap.Now = s.now()

	res, err := s.engine.Run(*snap)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceResult(ctx, sessionID, res); err != nil {
		return nil, fmt.Errorf("store result: %w", err)
	}
	return res, nil
}

func (s *Service) snapshot(ctx context.Context, sessionID string) (*matching.Snapshot, error) {
	if reader, ok := s.store.(SnapshotReader); ok {
		return reader.ReadSnapshot(ctx, sessionID)
	}
	receipts, err := s.store.ListExtractedPixReceipts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	transactions, err := s.store.ListExtractedBankTransactions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	previous, err := s.store.LoadResult(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &matching.Snapshot{
		SessionID:        sessionID,
		PixReceipts:      receipts,
		BankTransactions: transactions,
		Previous:         previous,
	}, nil
}

// GetResult returns the stored result, or ErrResultNotFound.
func (s *Service) GetResult(ctx context.Context, sessionID string) (*matching.Result, error) {
	res, err := s.store.LoadResult(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrResultNotFound
	}
	return res, nil
}

// ListMatches returns the stored matches, optionally only those in status,
// along with the counts of the whole result.
func (s *Service) ListMatches(ctx context.Context, sessionID string, status matching.Status) ([]matching.Match, matching.Counts, error) {
	res, err := s.GetResult(ctx, sessionID)
	if err != nil {
		return nil, matching.Counts{}, err
	}
	if status == "" {
		return res.Matches, res.Counts(), nil
	}
	out := []matching.Match{}
	for _, m := range res.Matches {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out, res.Counts(), nil
}

func (s *Service) LatestRun(ctx context.Context, sessionID string) (*models.ReconciliationRun, error) {
	run, err := s.store.LatestRun(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func (s *Service) AuditLog(ctx context.Context, sessionID string) ([]models.MatchAuditLog, error) {
	return s.store.ListAuditLog(ctx, sessionID)
}
