package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserProvisioned publishes iam.user.provisioned events.
func (p *EventPublisher) PublishUserProvisioned(ctx context.Context, event domain.UserProvisionedEvent) error {
	payload := struct {
		UserID        string         `json:"user_id"`
		Username      string         `json:"username"`
		Email         *string        `json:"email,omitempty"`
		Provider      string         `json:"provider"`
		Source        string         `json:"source"`
		ProvisionedAt time.Time      `json:"provisioned_at"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		UserID:        event.UserID,
		Username:      event.Username,
		Email:         event.Email,
		Provider:      event.Provider,
		Source:        event.Source,
		ProvisionedAt: event.ProvisionedAt.UTC(),
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, "iam.user.provisioned", event.UserID, event.ProvisionedAt, payload)
}

// PublishAccountsMerged publishes iam.accounts.merged events.
func (p *EventPublisher) PublishAccountsMerged(ctx context.Context, event domain.AccountsMergedEvent) error {
	payload := struct {
		MainUserID       string         `json:"main_user_id"`
		MergedUserID     string         `json:"merged_user_id"`
		IdentitiesMoved  int            `json:"identities_moved"`
		RolesTransferred int            `json:"roles_transferred"`
		MergedAt         time.Time      `json:"merged_at"`
		Metadata         map[string]any `json:"metadata,omitempty"`
	}{
		MainUserID:       event.MainUserID,
		MergedUserID:     event.MergedUserID,
		IdentitiesMoved:  event.IdentitiesMoved,
		RolesTransferred: event.RolesTransferred,
		MergedAt:         event.MergedAt.UTC(),
		Metadata:         event.Metadata,
	}

	return p.publish(ctx, event.EventID, "iam.accounts.merged", event.MainUserID, event.MergedAt, payload)
}

// PublishRolesAssigned publishes iam.user.roles.assigned events.
func (p *EventPublisher) PublishRolesAssigned(ctx context.Context, event domain.RolesAssignedEvent) error {
	roles := make([]map[string]string, 0, len(event.RolesAdded))
	for _, assignment := range event.RolesAdded {
		role := map[string]string{
			"role_id":   assignment.RoleID,
			"role_name": assignment.RoleName,
		}
		roles = append(roles, role)
	}

	payload := struct {
		UserID     string              `json:"user_id"`
		RolesAdded []map[string]string `json:"roles_added"`
		AssignedBy string              `json:"assigned_by"`
		AssignedAt time.Time           `json:"assigned_at"`
		Metadata   map[string]any      `json:"metadata,omitempty"`
	}{
		UserID:     event.UserID,
		RolesAdded: roles,
		AssignedBy: event.AssignedBy,
		AssignedAt: event.AssignedAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "iam.user.roles.assigned", event.UserID, event.AssignedAt, payload)
}

// PublishDirectorySyncCompleted publishes iam.directory.sync.completed events.
func (p *EventPublisher) PublishDirectorySyncCompleted(ctx context.Context, event domain.DirectorySyncCompletedEvent) error {
	payload := struct {
		Provider    string         `json:"provider"`
		Processed   int            `json:"processed"`
		Created     int            `json:"created"`
		Updated     int            `json:"updated"`
		Failed      int            `json:"failed"`
		StartedAt   time.Time      `json:"started_at"`
		CompletedAt time.Time      `json:"completed_at"`
		Partial     bool           `json:"partial"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		Provider:    event.Provider,
		Processed:   event.Processed,
		Created:     event.Created,
		Updated:     event.Updated,
		Failed:      event.Failed,
		StartedAt:   event.StartedAt.UTC(),
		CompletedAt: event.CompletedAt.UTC(),
		Partial:     event.Partial,
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "iam.directory.sync.completed", "", event.CompletedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
