package reconciliation

import (
	"context"

	"go.uber.org/zap"

	"pix-reconciliation-backend/internal/services/matching"
)

// Notifier is told about every stored result.
type Notifier interface {
	NotifyReconciled(ctx context.Context, sessionID string, counts matching.Counts) error
}

type NotifierFunc func(ctx context.Context, sessionID string, counts matching.Counts) error

func (f NotifierFunc) NotifyReconciled(ctx context.Context, sessionID string, counts matching.Counts) error {
	return f(ctx, sessionID, counts)
}

// LogNotifier writes the counts to the log. It is used when nothing else
// listens for results.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyReconciled(_ context.Context, sessionID string, counts matching.Counts) error {
	n.logger.Info("session reconciled",
		zap.String("session_id", sessionID),
		zap.Int("auto_matched", counts.AutoMatched),
		zap.Int("manual_review", counts.ManualReview),
		zap.Int("unmatched", counts.Unmatched),
		zap.Int("confirmed", counts.Confirmed),
		zap.Int("rejected", counts.Rejected),
	)
	return nil
}
