package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/repository"
)

// maxMergeChainDepth bounds merge-chain traversal. Chains longer than
// this indicate corrupted lineage and resolution fails closed.
const maxMergeChainDepth = 16

var (
	// ErrSameUser indicates a merge request naming one account twice.
	ErrSameUser = errors.New("cannot merge a user into itself")
	// ErrUserNotFound indicates a merge side does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrAlreadyMerged indicates the losing account was absorbed before.
	ErrAlreadyMerged = errors.New("user is already merged")
	// ErrMergeConflict indicates a concurrent merge won the race.
	ErrMergeConflict = errors.New("merge conflicts with a concurrent operation")
	// ErrMergeChainCorrupt indicates lineage traversal exceeded the depth
	// bound or looped.
	ErrMergeChainCorrupt = errors.New("merge chain is corrupt")
)

// MergeService coordinates account merges and merge-chain resolution.
type MergeService struct {
	users      port.UserRepository
	identities port.IdentityRepository
	merges     port.MergeRepository
	audits     port.AuditRepository
	publisher  port.EventPublisher
	logger     *zap.Logger
}

// NewMergeService constructs the merge coordinator.
func NewMergeService(
	users port.UserRepository,
	identities port.IdentityRepository,
	merges port.MergeRepository,
	audits port.AuditRepository,
	publisher port.EventPublisher,
	logger *zap.Logger,
) *MergeService {
	return &MergeService{
		users:      users,
		identities: identities,
		merges:     merges,
		audits:     audits,
		publisher:  publisher,
		logger:     logger,
	}
}

// Merge absorbs mergedUserID into mainUserID: lineage is recorded, linked
// identities and role grants move to the winner, and the losing account is
// blocked. The whole state change commits in one transaction.
func (s *MergeService) Merge(ctx context.Context, mainUserID, mergedUserID, initiatedBy string) (*domain.MergeOutcome, error) {
	if mainUserID == mergedUserID {
		return nil, ErrSameUser
	}

	main, err := s.users.GetByID(ctx, mainUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("main user: %w", ErrUserNotFound)
		}
		return nil, fmt.Errorf("load main user: %w", err)
	}

	// A blocked winner would orphan the moved identities; follow its
	// lineage to the live account instead of failing the request.
	if main.IsBlocked() {
		main, err = s.ResolveCurrentOwner(ctx, main.ID)
		if err != nil {
			return nil, err
		}
		if main.ID == mergedUserID {
			return nil, ErrSameUser
		}
	}

	merged, err := s.users.GetByID(ctx, mergedUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("merged user: %w", ErrUserNotFound)
		}
		return nil, fmt.Errorf("load merged user: %w", err)
	}

	if merged.IsBlocked() {
		return nil, ErrAlreadyMerged
	}

	outcome, err := s.merges.ExecuteMerge(ctx, main.ID, merged.ID)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrMergeConflict
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("execute merge: %w", err)
	}

	s.recordMergeAudit(ctx, main.ID, merged.ID, initiatedBy, outcome)
	s.publishMerged(ctx, outcome, initiatedBy)

	s.logger.Info("accounts merged",
		zap.String("main_user_id", main.ID),
		zap.String("merged_user_id", merged.ID),
		zap.Int("identities_moved", outcome.IdentitiesMoved),
		zap.Int("roles_transferred", outcome.RolesTransferred),
	)

	return outcome, nil
}

// ResolveCurrentOwner follows merge lineage from the given user to the
// account that currently owns its identities. Non-blocked users resolve to
// themselves. Traversal is bounded and fails closed on loops.
func (s *MergeService) ResolveCurrentOwner(ctx context.Context, userID string) (*domain.User, error) {
	visited := make(map[string]struct{}, 4)
	currentID := userID

	for depth := 0; depth < maxMergeChainDepth; depth++ {
		if _, looped := visited[currentID]; looped {
			return nil, fmt.Errorf("%w: loop at user %s", ErrMergeChainCorrupt, currentID)
		}
		visited[currentID] = struct{}{}

		user, err := s.users.GetByID(ctx, currentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: chain member %s missing", ErrMergeChainCorrupt, currentID)
			}
			return nil, fmt.Errorf("load chain member: %w", err)
		}

		if !user.IsBlocked() {
			return user, nil
		}

		record, err := s.merges.GetByMerged(ctx, currentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: blocked user %s has no lineage", ErrMergeChainCorrupt, currentID)
			}
			return nil, fmt.Errorf("load merge lineage: %w", err)
		}

		currentID = record.MainUserID
	}

	return nil, fmt.Errorf("%w: depth exceeds %d", ErrMergeChainCorrupt, maxMergeChainDepth)
}

// LinkOrMerge attaches the external identity to the user. When the subject
// is already linked to a different account, that account is merged into
// the user instead of failing the request.
func (s *MergeService) LinkOrMerge(
	ctx context.Context,
	userID string,
	provider *domain.Provider,
	subjectID string,
	attributes map[string]any,
	initiatedBy string,
) (*domain.LinkedIdentity, *domain.MergeOutcome, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	if user.IsBlocked() {
		return nil, nil, ErrAlreadyMerged
	}

	existing, err := s.identities.GetBySubject(ctx, provider.ID, subjectID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("lookup identity: %w", err)
	}

	if existing != nil {
		if existing.UserID == user.ID {
			return existing, nil, nil
		}

		owner, err := s.ResolveCurrentOwner(ctx, existing.UserID)
		if err != nil {
			return nil, nil, err
		}
		if owner.ID == user.ID {
			return existing, nil, nil
		}

		outcome, err := s.Merge(ctx, user.ID, owner.ID, initiatedBy)
		if err != nil {
			return nil, nil, err
		}

		moved, err := s.identities.GetBySubject(ctx, provider.ID, subjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("reload identity after merge: %w", err)
		}
		return moved, outcome, nil
	}

	now := time.Now().UTC()
	identity := domain.LinkedIdentity{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		ProviderID: provider.ID,
		SubjectID:  subjectID,
		Attributes: attributes,
		CreatedAt:  now,
		LastSeenAt: now,
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, nil, ErrMergeConflict
		}
		return nil, nil, fmt.Errorf("create identity: %w", err)
	}

	created, err := s.identities.GetBySubject(ctx, provider.ID, subjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("reload created identity: %w", err)
	}

	s.appendAudit(ctx, user.ID, domain.AuditActionIdentityLink,
		fmt.Sprintf("linked %s identity %s", provider.Name, subjectID))

	return created, nil, nil
}

func (s *MergeService) recordMergeAudit(ctx context.Context, mainID, mergedID, initiatedBy string, outcome *domain.MergeOutcome) {
	s.appendAudit(ctx, mainID, domain.AuditActionMerge,
		fmt.Sprintf("absorbed user %s (%d identities, %d roles) by %s",
			mergedID, outcome.IdentitiesMoved, outcome.RolesTransferred, initiatedBy))
	s.appendAudit(ctx, mergedID, domain.AuditActionMergeAbsorbed,
		fmt.Sprintf("merged into user %s by %s", mainID, initiatedBy))
}

func (s *MergeService) appendAudit(ctx context.Context, userID string, action domain.AuditAction, description string) {
	if s.audits == nil {
		return
	}

	event := domain.AuditEvent{
		ID:          uuid.NewString(),
		UserID:      userID,
		Action:      action,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.audits.Append(ctx, event); err != nil {
		s.logger.Warn("failed to append audit event",
			zap.String("user_id", userID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

func (s *MergeService) publishMerged(ctx context.Context, outcome *domain.MergeOutcome, initiatedBy string) {
	if s.publisher == nil {
		return
	}

	event := domain.AccountsMergedEvent{
		MainUserID:       outcome.Record.MainUserID,
		MergedUserID:     outcome.Record.MergedUserID,
		IdentitiesMoved:  outcome.IdentitiesMoved,
		RolesTransferred: outcome.RolesTransferred,
		MergedAt:         outcome.Record.CreatedAt,
		Metadata:         map[string]any{"initiated_by": initiatedBy},
	}

	if err := s.publisher.PublishAccountsMerged(ctx, event); err != nil {
		s.logger.Warn("failed to publish accounts merged event",
			zap.String("main_user_id", outcome.Record.MainUserID),
			zap.Error(err),
		)
	}
}
