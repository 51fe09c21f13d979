package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/core/port"
)

// AuditRepository implements port.AuditRepository using PostgreSQL.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository wires a PostgreSQL-backed audit log.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append inserts one audit event. The log is append-only; there is no
// update or delete path.
func (r *AuditRepository) Append(ctx context.Context, event domain.AuditEvent) error {
	var ipValue any
	if event.IP != nil && *event.IP != "" {
		ipValue = *event.IP
	}

	var uaValue any
	if event.UserAgent != nil && *event.UserAgent != "" {
		uaValue = *event.UserAgent
	}

	stmt, args, err := r.builder.Insert("iam.audit_events").
		Columns("id", "user_id", "action", "description", "ip", "user_agent", "created_at").
		Values(event.ID, event.UserID, event.Action, event.Description, ipValue, uaValue, event.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
