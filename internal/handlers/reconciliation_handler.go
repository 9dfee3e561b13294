package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"pix-reconciliation-backend/internal/services/ingestion"
	"pix-reconciliation-backend/internal/services/matching"
	service "pix-reconciliation-backend/internal/services/reconciliation"
)

// maxPayloadBytes bounds one ingestion upload.
const maxPayloadBytes = 64 << 20

type ReconciliationHandler struct {
	service   *service.Service
	ingestion *ingestion.Service
	logger    *zap.Logger
}

func NewReconciliationHandler(s *service.Service, ing *ingestion.Service, logger *zap.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{
		service:   s,
		ingestion: ing,
		logger:    logger.With(zap.String("component", "http")),
	}
}

// IngestPixReceipts stores a batch of extracted receipts for the session.
func (h *ReconciliationHandler) IngestPixReceipts(c *gin.Context) {
	payload, ok := h.readPayload(c)
	if !ok {
		return
	}
	counts, err := h.ingestion.IngestPixReceipts(c.Request.Context(), c.Param("sessionId"), payload)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "pix receipts received", "counts": counts})
}

// IngestBankTransactions stores a batch of extracted statement lines.
func (h *ReconciliationHandler) IngestBankTransactions(c *gin.Context) {
	payload, ok := h.readPayload(c)
	if !ok {
		return
	}
	counts, err := h.ingestion.IngestBankTransactions(c.Request.Context(), c.Param("sessionId"), payload)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "bank transactions received", "counts": counts})
}

func (h *ReconciliationHandler) readPayload(c *gin.Context) ([]byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPayloadBytes)
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read payload"})
		return nil, false
	}
	return payload, true
}

// Reconcile runs the engine synchronously and returns the stored result.
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	res, err := h.service.RunReconciliation(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ReconciliationHandler) GetResult(c *gin.Context) {
	res, err := h.service.GetResult(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListMatches returns the matches of a session with the counts per status.
func (h *ReconciliationHandler) ListMatches(c *gin.Context) {
	status := matching.Status(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
		return
	}
	items, stats, err := h.service.ListMatches(c.Request.Context(), c.Param("sessionId"), status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"stats": stats,
	})
}

func (h *ReconciliationHandler) LatestRun(c *gin.Context) {
	run, err := h.service.LatestRun(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *ReconciliationHandler) AuditLog(c *gin.Context) {
	entries, err := h.service.AuditLog(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}

func (h *ReconciliationHandler) ConfirmMatch(c *gin.Context) {
	id, req, ok := h.reviewInput(c)
	if !ok {
		return
	}
	m, err := h.service.ConfirmMatch(c.Request.Context(), c.Param("sessionId"), id, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "match confirmed", "match": m})
}

func (h *ReconciliationHandler) RejectMatch(c *gin.Context) {
	id, req, ok := h.reviewInput(c)
	if !ok {
		return
	}
	m, err := h.service.RejectMatch(c.Request.Context(), c.Param("sessionId"), id, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "match rejected", "match": m})
}

// ManualMatch pairs a receipt with a bank line chosen by the reviewer.
func (h *ReconciliationHandler) ManualMatch(c *gin.Context) {
	var payload struct {
		BankTransactionID string `json:"bank_transaction_id"`
		PerformedBy       string `json:"performed_by"`
		Reason            string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if payload.BankTransactionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bank_transaction_id is required"})
		return
	}

	m, err := h.service.ManualMatch(c.Request.Context(), c.Param("sessionId"), c.Param("receiptId"), payload.BankTransactionID,
		service.ReviewRequest{PerformedBy: payload.PerformedBy, Reason: payload.Reason})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "receipt manually matched", "match": m})
}

func (h *ReconciliationHandler) reviewInput(c *gin.Context) (uuid.UUID, service.ReviewRequest, bool) {
	var req service.ReviewRequest
	id, err := uuid.Parse(c.Param("matchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match ID"})
		return uuid.Nil, req, false
	}
	// the body is optional
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return uuid.Nil, req, false
		}
	}
	return id, req, true
}

func (h *ReconciliationHandler) writeError(c *gin.Context, err error) {
	var (
		capErr *matching.CapacityError
		cfgErr *matching.ConfigurationError
	)
	switch {
	case errors.As(err, &capErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retryable": true})
	case errors.As(err, &cfgErr):
		h.logger.Error("configuration error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "retryable": false})
	case errors.Is(err, ingestion.ErrInvalidPayload),
		errors.Is(err, ingestion.ErrMissingSession),
		errors.Is(err, service.ErrMissingSession):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrResultNotFound),
		errors.Is(err, service.ErrRunNotFound),
		errors.Is(err, service.ErrMatchNotFound),
		errors.Is(err, service.ErrReceiptNotFound),
		errors.Is(err, service.ErrBankTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrBankTransactionTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
