package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/repository"
)

// MergeRepository implements port.MergeRepository using PostgreSQL.
type MergeRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewMergeRepository wires a PostgreSQL-backed merge lineage repository.
func NewMergeRepository(exec pgExecutor) *MergeRepository {
	repo := &MergeRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// GetByPair returns the lineage row for (main, merged).
func (r *MergeRepository) GetByPair(ctx context.Context, mainUserID, mergedUserID string) (*domain.MergeRecord, error) {
	return r.getBy(ctx, squirrel.Eq{"main_user_id": mainUserID, "merged_user_id": mergedUserID})
}

// GetByMerged returns the lineage row where the user is the merged side.
func (r *MergeRepository) GetByMerged(ctx context.Context, mergedUserID string) (*domain.MergeRecord, error) {
	return r.getBy(ctx, squirrel.Eq{"merged_user_id": mergedUserID})
}

func (r *MergeRepository) getBy(ctx context.Context, pred squirrel.Eq) (*domain.MergeRecord, error) {
	stmt, args, err := r.builder.
		Select("id", "main_user_id", "merged_user_id", "created_at").
		From("iam.merge_history").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select merge sql: %w", err)
	}

	var record domain.MergeRecord
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&record.ID,
		&record.MainUserID,
		&record.MergedUserID,
		&record.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan merge: %w", err)
	}

	return &record, nil
}

// ExecuteMerge applies one merge as a single transaction: record lineage,
// move linked identities, transfer role grants, block the losing user.
// The losing user row is locked for the duration so two concurrent merge
// attempts cannot double-transfer grants; the loser of the race observes
// repository.ErrConflict.
func (r *MergeRepository) ExecuteMerge(ctx context.Context, mainUserID, mergedUserID string) (*domain.MergeOutcome, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("merge repository requires a pool for transactions")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin merge tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status domain.UserStatus
	if err := tx.QueryRow(ctx,
		`SELECT status FROM iam.users WHERE id = $1 FOR UPDATE`,
		mergedUserID,
	).Scan(&status); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("lock merged user: %w", err)
	}
	if status == domain.UserStatusBlocked {
		return nil, repository.ErrConflict
	}

	now := time.Now().UTC()
	record := domain.MergeRecord{
		ID:           uuid.NewString(),
		MainUserID:   mainUserID,
		MergedUserID: mergedUserID,
		CreatedAt:    now,
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO iam.merge_history (id, main_user_id, merged_user_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		record.ID, record.MainUserID, record.MergedUserID, record.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrConflict
		}
		return nil, fmt.Errorf("insert merge history: %w", err)
	}

	moved, err := tx.Exec(ctx,
		`UPDATE iam.linked_identities SET user_id = $1 WHERE user_id = $2`,
		mainUserID, mergedUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("move linked identities: %w", err)
	}

	transferred, err := tx.Exec(ctx,
		`INSERT INTO iam.user_roles (user_id, role_id, assigned_at)
		 SELECT $1, role_id, $3 FROM iam.user_roles WHERE user_id = $2
		 ON CONFLICT DO NOTHING`,
		mainUserID, mergedUserID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("transfer role grants: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM iam.user_roles WHERE user_id = $1`,
		mergedUserID,
	); err != nil {
		return nil, fmt.Errorf("clear merged user grants: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE iam.users SET status = $1 WHERE id = $2`,
		domain.UserStatusBlocked, mergedUserID,
	); err != nil {
		return nil, fmt.Errorf("block merged user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit merge tx: %w", err)
	}

	return &domain.MergeOutcome{
		Record:           record,
		IdentitiesMoved:  int(moved.RowsAffected()),
		RolesTransferred: int(transferred.RowsAffected()),
	}, nil
}

var _ port.MergeRepository = (*MergeRepository)(nil)
