package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserProvisioned logs iam.user.provisioned events.
func (p *StubPublisher) PublishUserProvisioned(_ context.Context, event domain.UserProvisionedEvent) error {
	payload := map[string]any{
		"user_id":        event.UserID,
		"username":       event.Username,
		"email":          event.Email,
		"provider":       event.Provider,
		"source":         event.Source,
		"provisioned_at": event.ProvisionedAt,
		"metadata":       event.Metadata,
	}
	p.logEvent("iam.user.provisioned", event.UserID, event.ProvisionedAt, payload)
	return nil
}

// PublishAccountsMerged logs iam.accounts.merged events.
func (p *StubPublisher) PublishAccountsMerged(_ context.Context, event domain.AccountsMergedEvent) error {
	payload := map[string]any{
		"main_user_id":      event.MainUserID,
		"merged_user_id":    event.MergedUserID,
		"identities_moved":  event.IdentitiesMoved,
		"roles_transferred": event.RolesTransferred,
		"merged_at":         event.MergedAt,
		"metadata":          event.Metadata,
	}
	p.logEvent("iam.accounts.merged", event.MainUserID, event.MergedAt, payload)
	return nil
}

// PublishRolesAssigned logs iam.user.roles.assigned events.
func (p *StubPublisher) PublishRolesAssigned(_ context.Context, event domain.RolesAssignedEvent) error {
	payload := map[string]any{
		"user_id":     event.UserID,
		"roles_added": event.RolesAdded,
		"assigned_by": event.AssignedBy,
		"assigned_at": event.AssignedAt,
		"metadata":    event.Metadata,
	}
	p.logEvent("iam.user.roles.assigned", event.UserID, event.AssignedAt, payload)
	return nil
}

// PublishDirectorySyncCompleted logs iam.directory.sync.completed events.
func (p *StubPublisher) PublishDirectorySyncCompleted(_ context.Context, event domain.DirectorySyncCompletedEvent) error {
	payload := map[string]any{
		"provider":     event.Provider,
		"processed":    event.Processed,
		"created":      event.Created,
		"updated":      event.Updated,
		"failed":       event.Failed,
		"started_at":   event.StartedAt,
		"completed_at": event.CompletedAt,
		"partial":      event.Partial,
		"metadata":     event.Metadata,
	}
	p.logEvent("iam.directory.sync.completed", "", event.CompletedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
