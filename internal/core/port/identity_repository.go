package port

import (
	"context"

	"github.com/uzswlu/campus-iam/internal/core/domain"
)

// IdentityRepository exposes persistence behavior for linked identities.
type IdentityRepository interface {
	Create(ctx context.Context, identity domain.LinkedIdentity) error
	GetBySubject(ctx context.Context, providerID, subjectID string) (*domain.LinkedIdentity, error)
	// ListBySubjects returns all identities matching any of the candidate
	// subject ids for the provider.
	ListBySubjects(ctx context.Context, providerID string, subjectIDs []string) ([]domain.LinkedIdentity, error)
	ListByUser(ctx context.Context, userID string) ([]domain.LinkedIdentity, error)
	// Refresh stores the verbatim raw attribute snapshot, bumps
	// last_seen_at, and re-points the directory record reference.
	Refresh(ctx context.Context, id string, attributes map[string]any, directoryRecordID *string) error
	Reassign(ctx context.Context, id, userID string) error
}
