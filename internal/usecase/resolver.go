package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/extract"
	"github.com/uzswlu/campus-iam/internal/infra/logger"
	"github.com/uzswlu/campus-iam/internal/infra/security"
	"github.com/uzswlu/campus-iam/internal/repository"
)

var (
	// ErrProviderNotFound indicates the named provider is not configured.
	ErrProviderNotFound = errors.New("provider not found")
	// ErrProviderDisabled indicates the provider exists but is inactive.
	ErrProviderDisabled = errors.New("provider is disabled")
	// ErrUserNotResolvable indicates the resolved account is soft-deleted.
	ErrUserNotResolvable = errors.New("user account is not resolvable")
)

// Resolution outcomes.
const (
	OutcomeExisting    = "existing"
	OutcomeLinked      = "linked"
	OutcomeProvisioned = "provisioned"
)

// ResolutionResult is the outcome of one identity resolution.
type ResolutionResult struct {
	User     *domain.User
	Identity *domain.LinkedIdentity
	// Outcome is existing, linked, or provisioned.
	Outcome string
	// SkippedFields lists contact fields dropped because another account
	// already holds the value.
	SkippedFields []string
}

// ResolverOptions carries provisioning defaults.
type ResolverOptions struct {
	PlaceholderDomain      string
	UsernameSuffixAttempts int
}

// ResolverService implements find-or-create identity resolution: an
// external identity assertion maps to exactly one local account, creating
// it when nothing matches.
type ResolverService struct {
	users      port.UserRepository
	identities port.IdentityRepository
	providers  port.ProviderRepository
	profiles   port.ProfileRepository
	directory  port.DirectoryRepository
	audits     port.AuditRepository
	publisher  port.EventPublisher
	merges     *MergeService
	autoRoles  *AutoRoleService
	bootstrap  *BootstrapService
	logger     *zap.Logger
	opts       ResolverOptions
}

// NewResolverService constructs the resolution engine.
func NewResolverService(
	users port.UserRepository,
	identities port.IdentityRepository,
	providers port.ProviderRepository,
	profiles port.ProfileRepository,
	directory port.DirectoryRepository,
	audits port.AuditRepository,
	publisher port.EventPublisher,
	merges *MergeService,
	autoRoles *AutoRoleService,
	bootstrap *BootstrapService,
	opts ResolverOptions,
	log *zap.Logger,
) *ResolverService {
	if opts.UsernameSuffixAttempts <= 0 {
		opts.UsernameSuffixAttempts = 5
	}
	if opts.PlaceholderDomain == "" {
		opts.PlaceholderDomain = "sync.invalid"
	}

	return &ResolverService{
		users:      users,
		identities: identities,
		providers:  providers,
		profiles:   profiles,
		directory:  directory,
		audits:     audits,
		publisher:  publisher,
		merges:     merges,
		autoRoles:  autoRoles,
		bootstrap:  bootstrap,
		logger:     log,
		opts:       opts,
	}
}

// Resolve maps the raw external attribute bag to exactly one local user.
// The same assertion always lands on the same account: by linked identity
// first, then by email, and only then by provisioning a fresh account.
func (s *ResolverService) Resolve(ctx context.Context, providerName string, attrs map[string]any, source string) (*ResolutionResult, error) {
	provider, err := s.loadProvider(ctx, providerName)
	if err != nil {
		return nil, err
	}

	ext, err := extract.ForProvider(provider.Name).Extract(attrs)
	if err != nil {
		return nil, fmt.Errorf("extract %s identity: %w", provider.Name, err)
	}

	identity, err := s.identities.GetBySubject(ctx, provider.ID, ext.SubjectID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	if identity != nil {
		return s.resolveExisting(ctx, provider, identity, ext, attrs)
	}

	if ext.Email != "" {
		user, err := s.users.GetActiveByEmail(ctx, ext.Email)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup user by email: %w", err)
		}
		if user != nil {
			return s.linkToExisting(ctx, provider, user, ext, attrs, source)
		}
	}

	return s.provision(ctx, provider, ext, attrs, source)
}

func (s *ResolverService) loadProvider(ctx context.Context, name string) (*domain.Provider, error) {
	provider, err := s.providers.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}

	if !provider.Active {
		return nil, ErrProviderDisabled
	}

	return provider, nil
}

// resolveExisting handles the fast path: the identity is known, so follow
// merge lineage to the current owner and refresh the snapshot.
func (s *ResolverService) resolveExisting(
	ctx context.Context,
	provider *domain.Provider,
	identity *domain.LinkedIdentity,
	ext extract.Identity,
	attrs map[string]any,
) (*ResolutionResult, error) {
	owner, err := s.merges.ResolveCurrentOwner(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}

	if owner.DeletedAt != nil {
		return nil, ErrUserNotResolvable
	}

	// Repair stale ownership left by an interrupted chain walk.
	if owner.ID != identity.UserID {
		if err := s.identities.Reassign(ctx, identity.ID, owner.ID); err != nil {
			return nil, fmt.Errorf("repoint identity to chain head: %w", err)
		}
		identity.UserID = owner.ID
	}

	dirRecordID := s.directoryRecordID(ctx, provider, ext)
	if err := s.identities.Refresh(ctx, identity.ID, attrs, dirRecordID); err != nil {
		return nil, fmt.Errorf("refresh identity: %w", err)
	}

	skipped := s.refreshContact(ctx, owner, ext)
	s.upsertProfile(ctx, owner.ID, ext)

	now := time.Now().UTC()
	if err := s.users.TouchLastLogin(ctx, owner.ID, now); err != nil {
		s.logger.Warn("failed to touch last login",
			zap.String("user_id", owner.ID),
			zap.Error(err),
		)
	} else {
		owner.LastLogin = &now
	}

	// Rules may have changed since the last login.
	if _, err := s.autoRoles.EvaluateAndAssign(ctx, owner, provider, attrs); err != nil {
		s.logger.Error("auto-role evaluation failed",
			zap.String("user_id", owner.ID),
			zap.String("provider", provider.Name),
			zap.Error(err),
		)
	}

	s.appendAudit(ctx, owner.ID, domain.AuditActionLogin,
		fmt.Sprintf("resolved %s identity %s", provider.Name, ext.SubjectID))

	return &ResolutionResult{
		User:          owner,
		Identity:      identity,
		Outcome:       OutcomeExisting,
		SkippedFields: skipped,
	}, nil
}

// linkToExisting attaches a first-seen external identity to the account
// already holding the asserted email.
func (s *ResolverService) linkToExisting(
	ctx context.Context,
	provider *domain.Provider,
	user *domain.User,
	ext extract.Identity,
	attrs map[string]any,
	source string,
) (*ResolutionResult, error) {
	now := time.Now().UTC()
	identity := domain.LinkedIdentity{
		ID:                uuid.NewString(),
		UserID:            user.ID,
		ProviderID:        provider.ID,
		SubjectID:         ext.SubjectID,
		Attributes:        attrs,
		DirectoryRecordID: s.directoryRecordID(ctx, provider, ext),
		CreatedAt:         now,
		LastSeenAt:        now,
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Lost a race with a concurrent resolution of the same
			// assertion; the winner's row is authoritative.
			return s.Resolve(ctx, provider.Name, attrs, source)
		}
		return nil, fmt.Errorf("link identity: %w", err)
	}

	skipped := s.refreshContact(ctx, user, ext)
	s.upsertProfile(ctx, user.ID, ext)

	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to touch last login",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	} else {
		user.LastLogin = &now
	}

	if _, err := s.autoRoles.EvaluateAndAssign(ctx, user, provider, attrs); err != nil {
		s.logger.Error("auto-role evaluation failed",
			zap.String("user_id", user.ID),
			zap.String("provider", provider.Name),
			zap.Error(err),
		)
	}

	s.appendAudit(ctx, user.ID, domain.AuditActionIdentityLink,
		fmt.Sprintf("linked %s identity %s by email match", provider.Name, ext.SubjectID))

	return &ResolutionResult{
		User:          user,
		Identity:      &identity,
		Outcome:       OutcomeLinked,
		SkippedFields: skipped,
	}, nil
}

// provision creates a fresh account for a never-seen identity.
func (s *ResolverService) provision(
	ctx context.Context,
	provider *domain.Provider,
	ext extract.Identity,
	attrs map[string]any,
	source string,
) (*ResolutionResult, error) {
	username, err := s.uniqueUsername(ctx, usernameBase(ext))
	if err != nil {
		return nil, err
	}

	passwordHash, err := security.GenerateUnusablePassword()
	if err != nil {
		return nil, fmt.Errorf("generate placeholder credentials: %w", err)
	}

	email := ext.Email
	if email == "" {
		email = fmt.Sprintf("%s@%s", strings.ToLower(ext.SubjectID), s.opts.PlaceholderDomain)
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         email,
		PasswordHash:  passwordHash,
		PasswordAlgo:  "argon2id",
		Status:        domain.UserStatusActive,
		EmailVerified: ext.EmailVerified,
		RegisteredAt:  now,
	}
	if ext.Phone != "" {
		phone := ext.Phone
		user.Phone = &phone
		user.PhoneVerified = ext.PhoneVerified
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Email or username landed concurrently; re-run resolution so
			// the assertion converges on the winning account.
			return s.Resolve(ctx, provider.Name, attrs, source)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	identity := domain.LinkedIdentity{
		ID:                uuid.NewString(),
		UserID:            user.ID,
		ProviderID:        provider.ID,
		SubjectID:         ext.SubjectID,
		Attributes:        attrs,
		DirectoryRecordID: s.directoryRecordID(ctx, provider, ext),
		CreatedAt:         now,
		LastSeenAt:        now,
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return s.Resolve(ctx, provider.Name, attrs, source)
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}

	founder, err := s.bootstrap.EnsureFounder(ctx, user.ID)
	if err != nil {
		s.logger.Warn("founder bootstrap failed",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	// The founder grant stands on its own; rule evaluation starts with the
	// second account.
	if !founder {
		if _, err := s.autoRoles.EvaluateAndAssign(ctx, &user, provider, attrs); err != nil {
			s.logger.Error("auto-role evaluation failed",
				zap.String("user_id", user.ID),
				zap.String("provider", provider.Name),
				zap.Error(err),
			)
		}
	}

	s.upsertProfile(ctx, user.ID, ext)
	s.publishProvisioned(ctx, &user, provider.Name, source)
	s.appendAudit(ctx, user.ID, domain.AuditActionProvisioned,
		fmt.Sprintf("provisioned from %s identity %s via %s", provider.Name, ext.SubjectID, source))

	s.logger.Info("provisioned user from external identity",
		zap.String("user_id", user.ID),
		zap.String("username", user.Username),
		zap.String("provider", provider.Name),
		zap.String("email", logger.MaskEmail(email)),
		zap.String("source", source),
	)

	return &ResolutionResult{
		User:     &user,
		Identity: &identity,
		Outcome:  OutcomeProvisioned,
	}, nil
}

// refreshContact pushes asserted contact details onto the account. Fields
// colliding with another resolvable account are skipped, not failed.
func (s *ResolverService) refreshContact(ctx context.Context, user *domain.User, ext extract.Identity) []string {
	update := *user
	changed := false

	if ext.Email != "" && ext.Email != user.Email {
		update.Email = ext.Email
		update.EmailVerified = ext.EmailVerified
		changed = true
	}
	if ext.Phone != "" && (user.Phone == nil || *user.Phone != ext.Phone) {
		phone := ext.Phone
		update.Phone = &phone
		update.PhoneVerified = ext.PhoneVerified
		changed = true
	}

	if !changed {
		return nil
	}

	skipped, err := s.users.UpdateContact(ctx, update)
	if err != nil {
		s.logger.Warn("failed to refresh contact fields",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return nil
	}

	if len(skipped) > 0 {
		s.logger.Info("skipped conflicting contact fields",
			zap.String("user_id", user.ID),
			zap.Strings("fields", skipped),
		)
	}

	return skipped
}

// directoryRecordID resolves the directory record backing the assertion,
// when the provider is directory-backed. Best effort.
func (s *ResolverService) directoryRecordID(ctx context.Context, provider *domain.Provider, ext extract.Identity) *string {
	if provider.DirectoryKind == "" || s.directory == nil {
		return nil
	}

	lookupID := ext.DirectoryID
	if lookupID == "" {
		lookupID = ext.SubjectID
	}

	record, err := s.directory.GetByExternalID(ctx, provider.DirectoryKind, lookupID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("directory record lookup failed",
				zap.String("kind", provider.DirectoryKind),
				zap.Error(err),
			)
		}
		return nil
	}

	return &record.ID
}

func (s *ResolverService) upsertProfile(ctx context.Context, userID string, ext extract.Identity) {
	if s.profiles == nil {
		return
	}

	if ext.FullName == "" && ext.FirstName == "" && ext.LastName == "" && ext.AvatarURL == "" {
		return
	}

	profile := domain.Profile{
		ID:         uuid.NewString(),
		UserID:     userID,
		FullName:   ext.FullName,
		FirstName:  ext.FirstName,
		LastName:   ext.LastName,
		AvatarURL:  ext.AvatarURL,
		Department: ext.Department,
		UpdatedAt:  time.Now().UTC(),
	}

	if ext.BirthDate != "" {
		if parsed, err := time.Parse("2006-01-02", ext.BirthDate); err == nil {
			profile.BirthDate = &parsed
		}
	}

	if err := s.profiles.Upsert(ctx, profile); err != nil {
		s.logger.Warn("failed to upsert profile",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

func (s *ResolverService) publishProvisioned(ctx context.Context, user *domain.User, providerName, source string) {
	if s.publisher == nil {
		return
	}

	var email *string
	if user.Email != "" {
		value := user.Email
		email = &value
	}

	event := domain.UserProvisionedEvent{
		UserID:        user.ID,
		Username:      user.Username,
		Email:         email,
		Provider:      providerName,
		Source:        source,
		ProvisionedAt: user.RegisteredAt,
	}

	if err := s.publisher.PublishUserProvisioned(ctx, event); err != nil {
		s.logger.Warn("failed to publish user provisioned event",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}
}

func (s *ResolverService) appendAudit(ctx context.Context, userID string, action domain.AuditAction, description string) {
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

// usernameBase derives the preferred username from asserted attributes.
func usernameBase(ext extract.Identity) string {
	if ext.Username != "" {
		return sanitizeUsername(ext.Username)
	}
	if ext.Email != "" {
		if at := strings.Index(ext.Email, "@"); at > 0 {
			return sanitizeUsername(ext.Email[:at])
		}
	}
	return sanitizeUsername(ext.SubjectID)
}

func sanitizeUsername(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}

// uniqueUsername finds an unused username: the base, then numbered
// suffixes, then a timestamp suffix that cannot realistically collide.
func (s *ResolverService) uniqueUsername(ctx context.Context, base string) (string, error) {
	taken, err := s.users.UsernameTaken(ctx, base)
	if err != nil {
		return "", fmt.Errorf("check username: %w", err)
	}
	if !taken {
		return base, nil
	}

	for i := 1; i <= s.opts.UsernameSuffixAttempts; i++ {
		candidate := fmt.Sprintf("%s%d", base, i)
		taken, err := s.users.UsernameTaken(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check username: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}

	return fmt.Sprintf("%s%d", base, time.Now().UnixNano()), nil
}
