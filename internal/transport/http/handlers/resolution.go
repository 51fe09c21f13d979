package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/extract"
	"github.com/uzswlu/campus-iam/internal/infra/telemetry"
	"github.com/uzswlu/campus-iam/internal/usecase"
)

// ResolutionHandler serves external identity resolution (login) requests.
type ResolutionHandler struct {
	resolver *usecase.ResolverService
	roles    port.RoleRepository
	metrics  *telemetry.Metrics
}

// NewResolutionHandler builds the resolution handler.
func NewResolutionHandler(resolver *usecase.ResolverService, roles port.RoleRepository, metrics *telemetry.Metrics) *ResolutionHandler {
	return &ResolutionHandler{resolver: resolver, roles: roles, metrics: metrics}
}

// RegisterRoutes wires resolution endpoints onto the auth group.
func (h *ResolutionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/external/:provider/login", h.ExternalLogin)
}

// ExternalLogin resolves a verified external assertion to a local account,
// provisioning one when nothing matches.
func (h *ResolutionHandler) ExternalLogin(c *gin.Context) {
	provider := c.Param("provider")

	var req ExternalLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.resolver.Resolve(c.Request.Context(), provider, req.Attributes, "login")
	if err != nil {
		if h.metrics != nil {
			h.metrics.Resolutions.WithLabelValues(provider, "error").Inc()
		}
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrProviderNotFound, Status: http.StatusNotFound, Message: "unknown identity provider"},
			{Err: usecase.ErrProviderDisabled, Status: http.StatusForbidden, Message: "identity provider is disabled"},
			{Err: extract.ErrMissingSubject, Status: http.StatusBadRequest, Message: "assertion carries no subject identifier"},
			{Err: usecase.ErrUserNotResolvable, Status: http.StatusForbidden, Message: "account is no longer available"},
			{Err: usecase.ErrMergeChainCorrupt, Status: http.StatusConflict, Message: "account lineage requires administrator attention"},
		}, http.StatusInternalServerError, "identity resolution failed")
		return
	}

	if h.metrics != nil {
		h.metrics.Resolutions.WithLabelValues(provider, result.Outcome).Inc()
	}

	roles, err := h.roles.ListByUser(c.Request.Context(), result.User.ID)
	if err != nil {
		roles = nil
	}

	status := http.StatusOK
	if result.Outcome == usecase.OutcomeProvisioned {
		status = http.StatusCreated
	}

	c.JSON(status, ResolutionResponse{
		User:          newUserSummary(result.User, roles),
		Identity:      newIdentitySummary(result.Identity),
		Outcome:       result.Outcome,
		SkippedFields: result.SkippedFields,
	})
}
