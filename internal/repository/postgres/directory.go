package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/repository"
)

var directoryColumns = []string{
	"id",
	"kind",
	"external_id",
	"human_id",
	"full_name",
	"birth_date",
	"department",
	"attributes",
	"synced_at",
}

// DirectoryRepository implements port.DirectoryRepository using PostgreSQL.
type DirectoryRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewDirectoryRepository wires a PostgreSQL-backed directory record mirror.
func NewDirectoryRepository(exec pgExecutor) *DirectoryRepository {
	return &DirectoryRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByExternalID looks a record up by canonical external id first, then
// by the human-readable id.
func (r *DirectoryRepository) GetByExternalID(ctx context.Context, kind, externalID string) (*domain.DirectoryRecord, error) {
	record, err := r.getBy(ctx, squirrel.Eq{"kind": kind, "external_id": externalID})
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return r.getBy(ctx, squirrel.Eq{"kind": kind, "human_id": externalID})
}

func (r *DirectoryRepository) getBy(ctx context.Context, pred squirrel.Eq) (*domain.DirectoryRecord, error) {
	stmt, args, err := r.builder.
		Select(directoryColumns...).
		From("iam.directory_records").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select directory record sql: %w", err)
	}

	return scanDirectoryRecord(r.exec.QueryRow(ctx, stmt, args...))
}

// Upsert stores the latest snapshot for (kind, external_id) and returns
// the persisted row.
func (r *DirectoryRepository) Upsert(ctx context.Context, record domain.DirectoryRecord) (*domain.DirectoryRecord, error) {
	attrs, err := json.Marshal(record.Attributes)
	if err != nil {
		return nil, fmt.Errorf("marshal directory attributes: %w", err)
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.SyncedAt.IsZero() {
		record.SyncedAt = time.Now().UTC()
	}

	stmt, args, err := r.builder.Insert("iam.directory_records").
		Columns(directoryColumns...).
		Values(
			record.ID,
			record.Kind,
			record.ExternalID,
			record.HumanID,
			record.FullName,
			record.BirthDate,
			record.Department,
			attrs,
			record.SyncedAt,
		).
		Suffix(`ON CONFLICT (kind, external_id) DO UPDATE SET
			human_id = EXCLUDED.human_id,
			full_name = EXCLUDED.full_name,
			birth_date = EXCLUDED.birth_date,
			department = EXCLUDED.department,
			attributes = EXCLUDED.attributes,
			synced_at = EXCLUDED.synced_at
		RETURNING ` + "id, kind, external_id, human_id, full_name, birth_date, department, attributes, synced_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert directory record sql: %w", err)
	}

	return scanDirectoryRecord(r.exec.QueryRow(ctx, stmt, args...))
}

func scanDirectoryRecord(row pgx.Row) (*domain.DirectoryRecord, error) {
	var (
		record    domain.DirectoryRecord
		humanID   sql.NullString
		birthDate *time.Time
		attrs     []byte
	)

	if err := row.Scan(
		&record.ID,
		&record.Kind,
		&record.ExternalID,
		&humanID,
		&record.FullName,
		&birthDate,
		&record.Department,
		&attrs,
		&record.SyncedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan directory record: %w", err)
	}

	if humanID.Valid {
		record.HumanID = humanID.String
	}
	record.BirthDate = birthDate
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &record.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal directory attributes: %w", err)
		}
	}

	return &record, nil
}

var _ port.DirectoryRepository = (*DirectoryRepository)(nil)
