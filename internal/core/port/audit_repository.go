package port

import (
	"context"

	"github.com/uzswlu/campus-iam/internal/core/domain"
)

// AuditRepository appends identity-relevant audit events.
type AuditRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) error
}

// ProfileRepository upserts the denormalized per-user profile.
type ProfileRepository interface {
	Upsert(ctx context.Context, profile domain.Profile) error
	GetByUser(ctx context.Context, userID string) (*domain.Profile, error)
}
