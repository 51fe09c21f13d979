package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/repository"
)

var identityColumns = []string{
	"id",
	"user_id",
	"provider_id",
	"subject_id",
	"attributes",
	"directory_record_id",
	"created_at",
	"last_seen_at",
}

// IdentityRepository implements port.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewIdentityRepository wires a PostgreSQL-backed linked identity repository.
func NewIdentityRepository(exec pgExecutor) *IdentityRepository {
	repo := &IdentityRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *IdentityRepository) WithTx(tx pgx.Tx) *IdentityRepository {
	if tx == nil {
		return r
	}
	return &IdentityRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a linked identity row. The raw attribute snapshot is
// stored verbatim as jsonb. A (provider, subject) collision maps to
// repository.ErrConflict.
func (r *IdentityRepository) Create(ctx context.Context, identity domain.LinkedIdentity) error {
	attrs, err := json.Marshal(identity.Attributes)
	if err != nil {
		return fmt.Errorf("marshal identity attributes: %w", err)
	}

	stmt, args, err := r.builder.Insert("iam.linked_identities").
		Columns(identityColumns...).
		Values(
			identity.ID,
			identity.UserID,
			identity.ProviderID,
			identity.SubjectID,
			attrs,
			identity.DirectoryRecordID,
			identity.CreatedAt,
			identity.LastSeenAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert identity sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert identity: %w", err)
	}

	return nil
}

// GetBySubject retrieves the identity bound to (provider, subject id).
func (r *IdentityRepository) GetBySubject(ctx context.Context, providerID, subjectID string) (*domain.LinkedIdentity, error) {
	stmt, args, err := r.builder.
		Select(identityColumns...).
		From("iam.linked_identities").
		Where(squirrel.Eq{"provider_id": providerID, "subject_id": subjectID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select identity sql: %w", err)
	}

	return scanIdentity(r.exec.QueryRow(ctx, stmt, args...))
}

// ListBySubjects returns identities matching any candidate subject id.
func (r *IdentityRepository) ListBySubjects(ctx context.Context, providerID string, subjectIDs []string) ([]domain.LinkedIdentity, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}

	stmt, args, err := r.builder.
		Select(identityColumns...).
		From("iam.linked_identities").
		Where(squirrel.Eq{"provider_id": providerID, "subject_id": subjectIDs}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select identities sql: %w", err)
	}

	return r.queryIdentities(ctx, stmt, args)
}

// ListByUser returns all identities owned by the user.
func (r *IdentityRepository) ListByUser(ctx context.Context, userID string) ([]domain.LinkedIdentity, error) {
	stmt, args, err := r.builder.
		Select(identityColumns...).
		From("iam.linked_identities").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user identities sql: %w", err)
	}

	return r.queryIdentities(ctx, stmt, args)
}

// Refresh stores a new attribute snapshot, bumps last_seen_at, and
// re-points the directory record reference when provided.
func (r *IdentityRepository) Refresh(ctx context.Context, id string, attributes map[string]any, directoryRecordID *string) error {
	attrs, err := json.Marshal(attributes)
	if err != nil {
		return fmt.Errorf("marshal identity attributes: %w", err)
	}

	builder := r.builder.Update("iam.linked_identities").
		Set("attributes", attrs).
		Set("last_seen_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id})
	if directoryRecordID != nil {
		builder = builder.Set("directory_record_id", *directoryRecordID)
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build refresh identity sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("refresh identity: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Reassign moves the identity to another user.
func (r *IdentityRepository) Reassign(ctx context.Context, id, userID string) error {
	stmt, args, err := r.builder.Update("iam.linked_identities").
		Set("user_id", userID).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reassign identity sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("reassign identity: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *IdentityRepository) queryIdentities(ctx context.Context, stmt string, args []any) ([]domain.LinkedIdentity, error) {
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	identities := make([]domain.LinkedIdentity, 0)
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, *identity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}

	return identities, nil
}

func scanIdentity(row pgx.Row) (*domain.LinkedIdentity, error) {
	var (
		identity    domain.LinkedIdentity
		attrs       []byte
		directoryID sql.NullString
	)

	if err := row.Scan(
		&identity.ID,
		&identity.UserID,
		&identity.ProviderID,
		&identity.SubjectID,
		&attrs,
		&directoryID,
		&identity.CreatedAt,
		&identity.LastSeenAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}

	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &identity.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal identity attributes: %w", err)
		}
	}
	if directoryID.Valid {
		val := directoryID.String
		identity.DirectoryRecordID = &val
	}

	return &identity, nil
}

var _ port.IdentityRepository = (*IdentityRepository)(nil)
