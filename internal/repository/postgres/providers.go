package postgres

import (
	"context"
	"database/sql"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/repository"
)

var providerColumns = []string{
	"id",
	"name",
	"active",
	"default_role_id",
	"directory_kind",
}

// ProviderRepository implements port.ProviderRepository using PostgreSQL.
type ProviderRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewProviderRepository wires a PostgreSQL-backed provider repository.
func NewProviderRepository(exec pgExecutor) *ProviderRepository {
	repo := &ProviderRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// GetByID retrieves a provider by identifier.
func (r *ProviderRepository) GetByID(ctx context.Context, id string) (*domain.Provider, error) {
	return r.getBy(ctx, squirrel.Eq{"id": id})
}

// GetByName retrieves a provider by its unique name.
func (r *ProviderRepository) GetByName(ctx context.Context, name string) (*domain.Provider, error) {
	return r.getBy(ctx, squirrel.Eq{"name": name})
}

// GetByDirectoryKind retrieves the provider backed by the given directory
// feed.
func (r *ProviderRepository) GetByDirectoryKind(ctx context.Context, kind string) (*domain.Provider, error) {
	return r.getBy(ctx, squirrel.Eq{"directory_kind": kind})
}

// ListEnabled returns every active provider ordered by name.
func (r *ProviderRepository) ListEnabled(ctx context.Context) ([]domain.Provider, error) {
	stmt, args, err := r.builder.
		Select(providerColumns...).
		From("iam.providers").
		Where(squirrel.Eq{"active": true}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select providers sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}
	defer rows.Close()

	providers := make([]domain.Provider, 0)
	for rows.Next() {
		var (
			provider      domain.Provider
			defaultRoleID sql.NullString
			directoryKind sql.NullString
		)
		if err := rows.Scan(
			&provider.ID,
			&provider.Name,
			&provider.Active,
			&defaultRoleID,
			&directoryKind,
		); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		if defaultRoleID.Valid {
			val := defaultRoleID.String
			provider.DefaultRoleID = &val
		}
		if directoryKind.Valid {
			provider.DirectoryKind = directoryKind.String
		}
		providers = append(providers, provider)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}

	return providers, nil
}

func (r *ProviderRepository) getBy(ctx context.Context, pred squirrel.Eq) (*domain.Provider, error) {
	stmt, args, err := r.builder.
		Select(providerColumns...).
		From("iam.providers").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select provider sql: %w", err)
	}

	var (
		provider      domain.Provider
		defaultRoleID sql.NullString
		directoryKind sql.NullString
	)

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&provider.ID,
		&provider.Name,
		&provider.Active,
		&defaultRoleID,
		&directoryKind,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan provider: %w", err)
	}

	if defaultRoleID.Valid {
		val := defaultRoleID.String
		provider.DefaultRoleID = &val
	}
	if directoryKind.Valid {
		provider.DirectoryKind = directoryKind.String
	}

	return &provider, nil
}

var _ port.ProviderRepository = (*ProviderRepository)(nil)

// RuleRepository implements port.RuleRepository using PostgreSQL.
type RuleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRuleRepository wires a PostgreSQL-backed auto-role rule repository.
func NewRuleRepository(exec pgExecutor) *RuleRepository {
	return &RuleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ListActiveByProvider returns the active rules for a provider in
// evaluation order.
func (r *RuleRepository) ListActiveByProvider(ctx context.Context, providerID string) ([]domain.AutoRoleRule, error) {
	stmt, args, err := r.builder.
		Select("id", "provider_id", "role_id", "field_path", "operator", "value", "active").
		From("iam.auto_role_rules").
		Where(squirrel.Eq{"provider_id": providerID, "active": true}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select rules sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	rules := make([]domain.AutoRoleRule, 0)
	for rows.Next() {
		var rule domain.AutoRoleRule
		if err := rows.Scan(
			&rule.ID,
			&rule.ProviderID,
			&rule.RoleID,
			&rule.FieldPath,
			&rule.Operator,
			&rule.Value,
			&rule.Active,
		); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}

	return rules, nil
}

var _ port.RuleRepository = (*RuleRepository)(nil)
