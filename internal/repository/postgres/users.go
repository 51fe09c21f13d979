package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/repository"
)

var userColumns = []string{
	"id",
	"username",
	"email",
	"phone",
	"password_hash",
	"password_algo",
	"status",
	"email_verified",
	"phone_verified",
	"company_id",
	"registered_at",
	"last_login",
	"deleted_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	repo := &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new user row. Unique collisions map to
// repository.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	var emailValue any
	if user.Email != "" {
		emailValue = user.Email
	}

	var phoneValue any
	if user.Phone != nil && *user.Phone != "" {
		phoneValue = *user.Phone
	}

	stmt, args, err := r.builder.Insert("iam.users").
		Columns(userColumns...).
		Values(
			user.ID,
			user.Username,
			emailValue,
			phoneValue,
			user.PasswordHash,
			user.PasswordAlgo,
			user.Status,
			user.EmailVerified,
			user.PhoneVerified,
			user.CompanyID,
			user.RegisteredAt,
			user.LastLogin,
			user.DeletedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("iam.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// GetActiveByEmail retrieves the non-blocked, non-deleted user holding the
// email.
func (r *UserRepository) GetActiveByEmail(ctx context.Context, email string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("iam.users").
		Where(squirrel.Eq{"email": email}).
		Where(squirrel.NotEq{"status": domain.UserStatusBlocked}).
		Where("deleted_at IS NULL").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by email sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// UsernameTaken reports whether any user holds the username.
func (r *UserRepository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	stmt, args, err := r.builder.
		Select("1").
		From("iam.users").
		Where(squirrel.Eq{"username": username}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build username lookup sql: %w", err)
	}

	var one int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&one); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("scan username lookup: %w", err)
	}
	return true, nil
}

// UpdateContact refreshes email/phone and verification flags one field at
// a time; a unique collision skips just that field and resolution
// continues with the prior value.
func (r *UserRepository) UpdateContact(ctx context.Context, update domain.User) ([]string, error) {
	var skipped []string

	if update.Email != "" {
		if err := r.updateField(ctx, update.ID, map[string]any{
			"email":          update.Email,
			"email_verified": update.EmailVerified,
		}); err != nil {
			if !errors.Is(err, repository.ErrConflict) {
				return nil, fmt.Errorf("update email: %w", err)
			}
			skipped = append(skipped, "email")
		}
	}

	if update.Phone != nil && *update.Phone != "" {
		if err := r.updateField(ctx, update.ID, map[string]any{
			"phone":          *update.Phone,
			"phone_verified": update.PhoneVerified,
		}); err != nil {
			if !errors.Is(err, repository.ErrConflict) {
				return nil, fmt.Errorf("update phone: %w", err)
			}
			skipped = append(skipped, "phone")
		}
	}

	return skipped, nil
}

func (r *UserRepository) updateField(ctx context.Context, id string, fields map[string]any) error {
	builder := r.builder.Update("iam.users").Where(squirrel.Eq{"id": id})
	for column, value := range fields {
		builder = builder.Set(column, value)
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// TouchLastLogin stamps the last successful resolution time.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("iam.users").
		Set("last_login", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch last login sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Count returns the total number of users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	stmt, args, err := r.builder.Select("COUNT(*)").From("iam.users").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count users sql: %w", err)
	}

	var count int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("scan users count: %w", err)
	}
	return int(count), nil
}

func (r *UserRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user      domain.User
		email     sql.NullString
		phone     sql.NullString
		companyID sql.NullString
		lastLogin *time.Time
		deletedAt *time.Time
	)

	if err := row.Scan(
		&user.ID,
		&user.Username,
		&email,
		&phone,
		&user.PasswordHash,
		&user.PasswordAlgo,
		&user.Status,
		&user.EmailVerified,
		&user.PhoneVerified,
		&companyID,
		&user.RegisteredAt,
		&lastLogin,
		&deletedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if email.Valid {
		user.Email = email.String
	}
	if phone.Valid {
		val := phone.String
		user.Phone = &val
	}
	if companyID.Valid {
		val := companyID.String
		user.CompanyID = &val
	}
	user.LastLogin = lastLogin
	user.DeletedAt = deletedAt

	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
