package port

import (
	"context"

	"github.com/uzswlu/campus-iam/internal/core/domain"
)

// EventPublisher publishes identity lifecycle events. Publishing is
// best-effort; callers log and continue on failure.
type EventPublisher interface {
	PublishUserProvisioned(ctx context.Context, event domain.UserProvisionedEvent) error
	PublishAccountsMerged(ctx context.Context, event domain.AccountsMergedEvent) error
	PublishRolesAssigned(ctx context.Context, event domain.RolesAssignedEvent) error
	PublishDirectorySyncCompleted(ctx context.Context, event domain.DirectorySyncCompletedEvent) error
}
