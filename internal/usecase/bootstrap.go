package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/repository"
)

const bootstrapLockName = "bootstrap:founder"

// BootstrapService grants the founder role to the very first account in
// the system. The check runs under an advisory lock so concurrent first
// logins cannot both observe an empty directory.
type BootstrapService struct {
	users       port.UserRepository
	roles       port.RoleRepository
	locks       port.LockStore
	logger      *zap.Logger
	founderRole string
}

// NewBootstrapService constructs the founder bootstrap.
func NewBootstrapService(
	users port.UserRepository,
	roles port.RoleRepository,
	locks port.LockStore,
	founderRole string,
	logger *zap.Logger,
) *BootstrapService {
	return &BootstrapService{
		users:       users,
		roles:       roles,
		locks:       locks,
		logger:      logger,
		founderRole: founderRole,
	}
}

// EnsureFounder grants the founder role to the user when it is the only
// account in the system. Returns true when the grant happened.
func (s *BootstrapService) EnsureFounder(ctx context.Context, userID string) (bool, error) {
	if s.founderRole == "" {
		return false, nil
	}

	acquired, err := s.locks.Acquire(ctx, bootstrapLockName, 30*time.Second)
	if err != nil {
		return false, fmt.Errorf("acquire bootstrap lock: %w", err)
	}
	if !acquired {
		// Another instance is mid-bootstrap; it will handle the grant.
		return false, nil
	}
	defer func() {
		if err := s.locks.Release(ctx, bootstrapLockName); err != nil {
			s.logger.Warn("failed to release bootstrap lock", zap.Error(err))
		}
	}()

	count, err := s.users.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if count != 1 {
		return false, nil
	}

	role, err := s.roles.GetByName(ctx, s.founderRole)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("founder role is not configured in the database",
				zap.String("role", s.founderRole),
			)
			return false, nil
		}
		return false, fmt.Errorf("load founder role: %w", err)
	}

	if err := s.roles.AssignRoles(ctx, userID, []string{role.ID}); err != nil {
		return false, fmt.Errorf("assign founder role: %w", err)
	}

	s.logger.Info("granted founder role to first user",
		zap.String("user_id", userID),
		zap.String("role", s.founderRole),
	)

	return true, nil
}
