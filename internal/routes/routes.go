package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"pix-reconciliation-backend/internal/config"
	handler "pix-reconciliation-backend/internal/handlers"
	"pix-reconciliation-backend/internal/repository"
	"pix-reconciliation-backend/internal/services/ingestion"
	"pix-reconciliation-backend/internal/services/matching"
	service "pix-reconciliation-backend/internal/services/reconciliation"
)

// RegisterRoutes wires the services on top of db and mounts them under /api.
// Runs scheduled by ingestion stop being started once ctx is done; callers
// wait for the ones in flight through the returned scheduler.
func RegisterRoutes(ctx context.Context, r *gin.Engine, db *gorm.DB, cfg *config.Config, logger *zap.Logger) (*service.Scheduler, error) {
	store := repository.NewSessionStore(db)

	engine, err := matching.NewEngine(cfg.Matching, logger.With(zap.String("component", "engine")))
	if err != nil {
		return nil, err
	}
	reconService := service.NewService(store, engine, nil, logger)
	scheduler := service.NewScheduler(ctx, reconService, cfg.RerunDebounce, logger)

	ingestService, err := ingestion.NewService(store, scheduler, logger)
	if err != nil {
		return nil, err
	}

	reconHandler := handler.NewReconciliationHandler(reconService, ingestService, logger)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	sessions := api.Group("/sessions/:sessionId")
	sessions.POST("/pix-receipts", reconHandler.IngestPixReceipts)
	sessions.POST("/bank-transactions", reconHandler.IngestBankTransactions)
	sessions.POST("/reconcile", reconHandler.Reconcile)
	sessions.GET("/result", reconHandler.GetResult)
	sessions.GET("/matches", reconHandler.ListMatches)
	sessions.GET("/runs/latest", reconHandler.LatestRun)
	sessions.GET("/audit", reconHandler.AuditLog)

	// Review routes
	sessions.POST("/matches/:matchId/confirm", reconHandler.ConfirmMatch)
	sessions.POST("/matches/:matchId/reject", reconHandler.RejectMatch)
	sessions.POST("/receipts/:receiptId/match", reconHandler.ManualMatch)

	return scheduler, nil
}
