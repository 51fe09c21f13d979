package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/infra/telemetry"
	"github.com/uzswlu/campus-iam/internal/repository"
	"github.com/uzswlu/campus-iam/internal/usecase"
)

// MergeHandler serves administrative merge and identity link endpoints.
type MergeHandler struct {
	merges    *usecase.MergeService
	providers port.ProviderRepository
	metrics   *telemetry.Metrics
}

// NewMergeHandler builds the merge handler.
func NewMergeHandler(merges *usecase.MergeService, providers port.ProviderRepository, metrics *telemetry.Metrics) *MergeHandler {
	return &MergeHandler{merges: merges, providers: providers, metrics: metrics}
}

var mergeErrorCases = []ErrorCase{
	{Err: usecase.ErrSameUser, Status: http.StatusBadRequest, Message: "cannot merge a user into itself"},
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: usecase.ErrAlreadyMerged, Status: http.StatusConflict, Message: "user was already merged"},
	{Err: usecase.ErrMergeConflict, Status: http.StatusConflict, Message: "merge conflicts with a concurrent operation"},
	{Err: usecase.ErrMergeChainCorrupt, Status: http.StatusConflict, Message: "account lineage requires administrator attention"},
}

// Merge absorbs one account into another.
func (h *MergeHandler) Merge(c *gin.Context) {
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid merge payload"))
		return
	}

	outcome, err := h.merges.Merge(c.Request.Context(), req.MainUserID, req.MergedUserID, adminActor(c))
	if err != nil {
		if h.metrics != nil {
			h.metrics.MergesTotal.WithLabelValues("error").Inc()
		}
		RespondWithMappedError(c, err, mergeErrorCases, http.StatusInternalServerError, "merge failed")
		return
	}

	if h.metrics != nil {
		h.metrics.MergesTotal.WithLabelValues("merged").Inc()
	}

	c.JSON(http.StatusOK, MergeResponse{
		MainUserID:       outcome.Record.MainUserID,
		MergedUserID:     outcome.Record.MergedUserID,
		IdentitiesMoved:  outcome.IdentitiesMoved,
		RolesTransferred: outcome.RolesTransferred,
		MergedAt:         outcome.Record.CreatedAt,
	})
}

// LinkIdentity attaches an external identity to the user, merging the
// subject's previous owner when necessary.
func (h *MergeHandler) LinkIdentity(c *gin.Context) {
	userID := c.Param("id")

	var req LinkIdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid identity payload"))
		return
	}

	provider, err := h.providers.GetByName(c.Request.Context(), req.Provider)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "unknown identity provider"},
		}, http.StatusInternalServerError, "failed to load provider")
		return
	}

	identity, outcome, err := h.merges.LinkOrMerge(
		c.Request.Context(), userID, provider, req.SubjectID, req.Attributes, adminActor(c))
	if err != nil {
		RespondWithMappedError(c, err, mergeErrorCases, http.StatusInternalServerError, "identity link failed")
		return
	}

	resp := LinkIdentityResponse{Identity: newIdentitySummary(identity)}
	if outcome != nil {
		resp.Merged = &MergeResponse{
			MainUserID:       outcome.Record.MainUserID,
			MergedUserID:     outcome.Record.MergedUserID,
			IdentitiesMoved:  outcome.IdentitiesMoved,
			RolesTransferred: outcome.RolesTransferred,
			MergedAt:         outcome.Record.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, resp)
}

func adminActor(c *gin.Context) string {
	if actor := c.GetHeader("X-Admin-Actor"); actor != "" {
		return actor
	}
	return "admin-api"
}
