package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/repository"
)

// ProfileRepository implements port.ProfileRepository using PostgreSQL.
type ProfileRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewProfileRepository wires a PostgreSQL-backed profile repository.
func NewProfileRepository(exec pgExecutor) *ProfileRepository {
	return &ProfileRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Upsert refreshes the per-user profile; one row per user.
func (r *ProfileRepository) Upsert(ctx context.Context, profile domain.Profile) error {
	updatedAt := profile.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	stmt, args, err := r.builder.Insert("iam.profiles").
		Columns("id", "user_id", "full_name", "first_name", "last_name", "avatar_url", "birth_date", "department", "updated_at").
		Values(
			profile.ID,
			profile.UserID,
			profile.FullName,
			profile.FirstName,
			profile.LastName,
			profile.AvatarURL,
			profile.BirthDate,
			profile.Department,
			updatedAt,
		).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			avatar_url = EXCLUDED.avatar_url,
			birth_date = EXCLUDED.birth_date,
			department = EXCLUDED.department,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert profile sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	return nil
}

// GetByUser retrieves the profile owned by a user.
func (r *ProfileRepository) GetByUser(ctx context.Context, userID string) (*domain.Profile, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "full_name", "first_name", "last_name", "avatar_url", "birth_date", "department", "updated_at").
		From("iam.profiles").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select profile sql: %w", err)
	}

	var (
		profile   domain.Profile
		birthDate *time.Time
		avatar    sql.NullString
	)

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.FullName,
		&profile.FirstName,
		&profile.LastName,
		&avatar,
		&birthDate,
		&profile.Department,
		&profile.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}

	if avatar.Valid {
		profile.AvatarURL = avatar.String
	}
	profile.BirthDate = birthDate

	return &profile, nil
}

var _ port.ProfileRepository = (*ProfileRepository)(nil)
