package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/extract"
	"github.com/uzswlu/campus-iam/internal/repository"
)

// ErrNoRoleResolved indicates neither rules, the provider default, nor the
// global default produced a role for a freshly provisioned user.
var ErrNoRoleResolved = errors.New("no role resolved for user")

// AutoRoleService evaluates auto-role rules against external attributes
// and grants the resulting roles.
type AutoRoleService struct {
	rules           port.RuleRepository
	roles           port.RoleRepository
	publisher       port.EventPublisher
	logger          *zap.Logger
	defaultRoleName string
}

// NewAutoRoleService constructs the rule engine.
func NewAutoRoleService(
	rules port.RuleRepository,
	roles port.RoleRepository,
	publisher port.EventPublisher,
	defaultRoleName string,
	logger *zap.Logger,
) *AutoRoleService {
	return &AutoRoleService{
		rules:           rules,
		roles:           roles,
		publisher:       publisher,
		logger:          logger,
		defaultRoleName: defaultRoleName,
	}
}

// EvaluateAndAssign runs every active rule of the provider against the raw
// attribute bag and grants each matching rule's role. When no rule matches
// and the user holds no grants at all, it falls back to the provider's
// default role, then to the global default role name. Granting is
// idempotent.
func (s *AutoRoleService) EvaluateAndAssign(
	ctx context.Context,
	user *domain.User,
	provider *domain.Provider,
	attrs map[string]any,
) ([]domain.RoleAssignment, error) {
	rules, err := s.rules.ListActiveByProvider(ctx, provider.ID)
	if err != nil {
		return nil, fmt.Errorf("list auto-role rules: %w", err)
	}

	roleIDs := make([]string, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		value := ""
		if v, ok := extract.Lookup(attrs, rule.FieldPath); ok {
			value = extract.AsString(v)
		}

		if !rule.Matches(value) {
			continue
		}

		if _, dup := seen[rule.RoleID]; dup {
			continue
		}
		seen[rule.RoleID] = struct{}{}
		roleIDs = append(roleIDs, rule.RoleID)
	}

	if len(roleIDs) == 0 {
		held, err := s.roles.ListByUser(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("list user roles: %w", err)
		}
		if len(held) > 0 {
			return nil, nil
		}

		fallbackID, err := s.fallbackRoleID(ctx, provider)
		if err != nil {
			return nil, err
		}
		roleIDs = append(roleIDs, fallbackID)
	}

	if err := s.roles.AssignRoles(ctx, user.ID, roleIDs); err != nil {
		return nil, fmt.Errorf("assign roles: %w", err)
	}

	assignments := make([]domain.RoleAssignment, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		assignment := domain.RoleAssignment{RoleID: roleID}
		if role, err := s.roles.GetByID(ctx, roleID); err == nil {
			assignment.RoleName = role.Name
		}
		assignments = append(assignments, assignment)
	}

	s.publishAssigned(ctx, user.ID, provider.Name, assignments)

	return assignments, nil
}

func (s *AutoRoleService) fallbackRoleID(ctx context.Context, provider *domain.Provider) (string, error) {
	if provider.DefaultRoleID != nil && *provider.DefaultRoleID != "" {
		return *provider.DefaultRoleID, nil
	}

	if s.defaultRoleName == "" {
		return "", ErrNoRoleResolved
	}

	role, err := s.roles.GetByName(ctx, s.defaultRoleName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNoRoleResolved
		}
		return "", fmt.Errorf("load default role: %w", err)
	}

	return role.ID, nil
}

func (s *AutoRoleService) publishAssigned(ctx context.Context, userID, providerName string, assignments []domain.RoleAssignment) {
	if s.publisher == nil || len(assignments) == 0 {
		return
	}

	event := domain.RolesAssignedEvent{
		UserID:     userID,
		RolesAdded: assignments,
		AssignedBy: "auto-role-engine",
		AssignedAt: time.Now().UTC(),
		Metadata:   map[string]any{"provider": providerName},
	}

	if err := s.publisher.PublishRolesAssigned(ctx, event); err != nil {
		s.logger.Warn("failed to publish roles assigned event",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
