package port

import (
	"context"

	"github.com/uzswlu/campus-iam/internal/core/domain"
)

// ProviderRepository exposes read access to provider configuration.
type ProviderRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Provider, error)
	GetByName(ctx context.Context, name string) (*domain.Provider, error)
	GetByDirectoryKind(ctx context.Context, kind string) (*domain.Provider, error)
	ListEnabled(ctx context.Context) ([]domain.Provider, error)
}

// RuleRepository exposes read access to auto-role rules.
type RuleRepository interface {
	ListActiveByProvider(ctx context.Context, providerID string) ([]domain.AutoRoleRule, error)
}
