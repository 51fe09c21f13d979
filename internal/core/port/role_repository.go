package port

import (
	"context"

	"github.com/uzswlu/campus-iam/internal/core/domain"
)

// RoleRepository exposes persistence behavior for roles and grants.
type RoleRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Role, error)
	// AssignRoles grants the roles to the user, ignoring duplicates.
	AssignRoles(ctx context.Context, userID string, roleIDs []string) error
}
