package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/uzswlu/campus-iam/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary describes a minimal view of a user returned by the API.
type UserSummary struct {
	ID        string            `json:"id"`
	Username  string            `json:"username"`
	Email     string            `json:"email,omitempty"`
	Status    domain.UserStatus `json:"status"`
	Roles     []string          `json:"roles,omitempty"`
	LastLogin *time.Time        `json:"last_login,omitempty"`
}

// IdentitySummary is the API view of one linked identity.
type IdentitySummary struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	SubjectID  string    `json:"subject_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// ExternalLoginRequest carries the raw attribute bag asserted by an
// external identity provider.
type ExternalLoginRequest struct {
	Attributes map[string]any `json:"attributes" binding:"required"`
}

// ResolutionResponse is returned by the external login endpoint.
type ResolutionResponse struct {
	User          UserSummary     `json:"user"`
	Identity      IdentitySummary `json:"identity"`
	Outcome       string          `json:"outcome"`
	SkippedFields []string        `json:"skipped_fields,omitempty"`
}

// MergeRequest names the two accounts to merge.
type MergeRequest struct {
	MainUserID   string `json:"main_user_id" binding:"required"`
	MergedUserID string `json:"merged_user_id" binding:"required"`
}

// MergeResponse summarizes an executed merge.
type MergeResponse struct {
	MainUserID       string    `json:"main_user_id"`
	MergedUserID     string    `json:"merged_user_id"`
	IdentitiesMoved  int       `json:"identities_moved"`
	RolesTransferred int       `json:"roles_transferred"`
	MergedAt         time.Time `json:"merged_at"`
}

// LinkIdentityRequest attaches an external identity to an existing user.
type LinkIdentityRequest struct {
	Provider   string         `json:"provider" binding:"required"`
	SubjectID  string         `json:"subject_id" binding:"required"`
	Attributes map[string]any `json:"attributes"`
}

// LinkIdentityResponse is returned by the identity link endpoint. Merged
// is set when linking absorbed a duplicate account.
type LinkIdentityResponse struct {
	Identity IdentitySummary `json:"identity"`
	Merged   *MergeResponse  `json:"merged,omitempty"`
}

// SyncRunResponse summarizes one reconciliation run.
type SyncRunResponse struct {
	Provider    string    `json:"provider"`
	Processed   int       `json:"processed"`
	Created     int       `json:"created"`
	Updated     int       `json:"updated"`
	Failed      int       `json:"failed"`
	Pages       int       `json:"pages"`
	Partial     bool      `json:"partial"`
	Errors      []string  `json:"errors,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports dependency readiness.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func newUserSummary(user *domain.User, roles []domain.Role) UserSummary {
	summary := UserSummary{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Status:    user.Status,
		LastLogin: user.LastLogin,
	}
	for _, role := range roles {
		summary.Roles = append(summary.Roles, role.Name)
	}
	return summary
}

func newIdentitySummary(identity *domain.LinkedIdentity) IdentitySummary {
	return IdentitySummary{
		ID:         identity.ID,
		ProviderID: identity.ProviderID,
		SubjectID:  identity.SubjectID,
		CreatedAt:  identity.CreatedAt,
		LastSeenAt: identity.LastSeenAt,
	}
}
