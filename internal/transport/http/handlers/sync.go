package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/uzswlu/campus-iam/internal/infra/telemetry"
	"github.com/uzswlu/campus-iam/internal/usecase"
)

// SyncHandler triggers directory reconciliation runs.
type SyncHandler struct {
	reconciler *usecase.ReconcilerService
	metrics    *telemetry.Metrics
	logger     *zap.Logger
}

// NewSyncHandler builds the sync handler.
func NewSyncHandler(reconciler *usecase.ReconcilerService, metrics *telemetry.Metrics, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{reconciler: reconciler, metrics: metrics, logger: logger}
}

// Trigger runs one reconciliation pass for the provider synchronously and
// returns the run report.
func (h *SyncHandler) Trigger(c *gin.Context) {
	provider := c.Param("provider")

	report, err := h.reconciler.SyncProvider(c.Request.Context(), provider)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrProviderNotFound, Status: http.StatusNotFound, Message: "unknown identity provider"},
			{Err: usecase.ErrNotDirectoryProvider, Status: http.StatusBadRequest, Message: "provider has no directory feed"},
			{Err: usecase.ErrSyncAlreadyRunning, Status: http.StatusConflict, Message: "a reconciliation run is already in progress"},
		}, http.StatusInternalServerError, "reconciliation failed")
		return
	}

	h.recordMetrics(report)

	c.JSON(http.StatusOK, SyncRunResponse{
		Provider:    report.Provider,
		Processed:   report.Processed,
		Created:     report.Created,
		Updated:     report.Updated,
		Failed:      report.Failed,
		Pages:       report.Pages,
		Partial:     report.Partial,
		Errors:      report.Errors,
		StartedAt:   report.StartedAt,
		CompletedAt: report.CompletedAt,
	})
}

func (h *SyncHandler) recordMetrics(report *usecase.SyncReport) {
	if h.metrics == nil {
		return
	}

	result := "completed"
	if report.Partial {
		result = "partial"
	}

	h.metrics.SyncRuns.WithLabelValues(report.Provider, result).Inc()
	h.metrics.SyncRecords.WithLabelValues(report.Provider, "created").Add(float64(report.Created))
	h.metrics.SyncRecords.WithLabelValues(report.Provider, "updated").Add(float64(report.Updated))
	h.metrics.SyncRecords.WithLabelValues(report.Provider, "failed").Add(float64(report.Failed))
	h.metrics.SyncDuration.Observe(report.CompletedAt.Sub(report.StartedAt).Seconds())
}
