package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/core/port"
	"github.com/uzswlu/campus-iam/internal/repository"
)

type stubUserRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	skipped []string
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func (r *stubUserRepo) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Username == user.Username {
			return repository.ErrConflict
		}
		if user.Email != "" && existing.Email == user.Email && existing.IsResolvable() {
			return repository.ErrConflict
		}
	}

	clone := user
	r.users[user.ID] = &clone
	return nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *stubUserRepo) GetActiveByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.Email == email && user.IsResolvable() {
			clone := *user
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) UsernameTaken(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubUserRepo) UpdateContact(_ context.Context, update domain.User) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[update.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	user.Email = update.Email
	user.EmailVerified = update.EmailVerified
	user.Phone = update.Phone
	user.PhoneVerified = update.PhoneVerified
	return r.skipped, nil
}

func (r *stubUserRepo) UpdateStatus(_ context.Context, id string, status domain.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.Status = status
	return nil
}

func (r *stubUserRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.LastLogin = &at
	return nil
}

func (r *stubUserRepo) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), nil
}

func (r *stubUserRepo) add(user domain.User) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := user
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.Status == "" {
		clone.Status = domain.UserStatusActive
	}
	r.users[clone.ID] = &clone
	return &clone
}

type stubIdentityRepo struct {
	mu         sync.Mutex
	identities map[string]*domain.LinkedIdentity
}

func newStubIdentityRepo() *stubIdentityRepo {
	return &stubIdentityRepo{identities: make(map[string]*domain.LinkedIdentity)}
}

func identityKey(providerID, subjectID string) string {
	return providerID + "/" + subjectID
}

func (r *stubIdentityRepo) Create(_ context.Context, identity domain.LinkedIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := identityKey(identity.ProviderID, identity.SubjectID)
	if _, exists := r.identities[key]; exists {
		return repository.ErrConflict
	}
	clone := identity
	r.identities[key] = &clone
	return nil
}

func (r *stubIdentityRepo) GetBySubject(_ context.Context, providerID, subjectID string) (*domain.LinkedIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.identities[identityKey(providerID, subjectID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *identity
	return &clone, nil
}

func (r *stubIdentityRepo) ListBySubjects(_ context.Context, providerID string, subjectIDs []string) ([]domain.LinkedIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.LinkedIdentity
	for _, subjectID := range subjectIDs {
		if identity, ok := r.identities[identityKey(providerID, subjectID)]; ok {
			out = append(out, *identity)
		}
	}
	return out, nil
}

func (r *stubIdentityRepo) ListByUser(_ context.Context, userID string) ([]domain.LinkedIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.LinkedIdentity
	for _, identity := range r.identities {
		if identity.UserID == userID {
			out = append(out, *identity)
		}
	}
	return out, nil
}

func (r *stubIdentityRepo) Refresh(_ context.Context, id string, attributes map[string]any, directoryRecordID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, identity := range r.identities {
		if identity.ID == id {
			identity.Attributes = attributes
			identity.LastSeenAt = time.Now().UTC()
			if directoryRecordID != nil {
				identity.DirectoryRecordID = directoryRecordID
			}
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubIdentityRepo) Reassign(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, identity := range r.identities {
		if identity.ID == id {
			identity.UserID = userID
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubIdentityRepo) add(identity domain.LinkedIdentity) *domain.LinkedIdentity {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := identity
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	r.identities[identityKey(clone.ProviderID, clone.SubjectID)] = &clone
	return &clone
}

type stubProviderRepo struct {
	providers map[string]*domain.Provider
}

func newStubProviderRepo(providers ...domain.Provider) *stubProviderRepo {
	repo := &stubProviderRepo{providers: make(map[string]*domain.Provider)}
	for _, provider := range providers {
		clone := provider
		repo.providers[provider.Name] = &clone
	}
	return repo
}

func (r *stubProviderRepo) GetByID(_ context.Context, id string) (*domain.Provider, error) {
	for _, provider := range r.providers {
		if provider.ID == id {
			clone := *provider
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubProviderRepo) GetByName(_ context.Context, name string) (*domain.Provider, error) {
	provider, ok := r.providers[name]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *provider
	return &clone, nil
}

func (r *stubProviderRepo) ListEnabled(_ context.Context) ([]domain.Provider, error) {
	out := make([]domain.Provider, 0, len(r.providers))
	for _, provider := range r.providers {
		if provider.Active {
			out = append(out, *provider)
		}
	}
	return out, nil
}

func (r *stubProviderRepo) GetByDirectoryKind(_ context.Context, kind string) (*domain.Provider, error) {
	for _, provider := range r.providers {
		if provider.DirectoryKind == kind {
			clone := *provider
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

type stubRuleRepo struct {
	rules []domain.AutoRoleRule
}

func (r *stubRuleRepo) ListActiveByProvider(_ context.Context, providerID string) ([]domain.AutoRoleRule, error) {
	var out []domain.AutoRoleRule
	for _, rule := range r.rules {
		if rule.ProviderID == providerID && rule.Active {
			out = append(out, rule)
		}
	}
	return out, nil
}

type stubRoleRepo struct {
	mu     sync.Mutex
	roles  map[string]*domain.Role
	grants map[string][]string
}

func newStubRoleRepo(roles ...domain.Role) *stubRoleRepo {
	repo := &stubRoleRepo{
		roles:  make(map[string]*domain.Role),
		grants: make(map[string][]string),
	}
	for _, role := range roles {
		clone := role
		repo.roles[role.ID] = &clone
	}
	return repo
}

func (r *stubRoleRepo) GetByID(_ context.Context, id string) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *role
	return &clone, nil
}

func (r *stubRoleRepo) GetByName(_ context.Context, name string) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, role := range r.roles {
		if role.Name == name {
			clone := *role
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubRoleRepo) ListByUser(_ context.Context, userID string) ([]domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Role
	for _, roleID := range r.grants[userID] {
		if role, ok := r.roles[roleID]; ok {
			out = append(out, *role)
		}
	}
	return out, nil
}

func (r *stubRoleRepo) AssignRoles(_ context.Context, userID string, roleIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, roleID := range roleIDs {
		duplicate := false
		for _, held := range r.grants[userID] {
			if held == roleID {
				duplicate = true
				break
			}
		}
		if !duplicate {
			r.grants[userID] = append(r.grants[userID], roleID)
		}
	}
	return nil
}

type stubMergeRepo struct {
	mu         sync.Mutex
	records    []domain.MergeRecord
	users      *stubUserRepo
	identities *stubIdentityRepo
	roles      *stubRoleRepo
}

func newStubMergeRepo(users *stubUserRepo, identities *stubIdentityRepo, roles *stubRoleRepo) *stubMergeRepo {
	return &stubMergeRepo{users: users, identities: identities, roles: roles}
}

func (r *stubMergeRepo) GetByPair(_ context.Context, mainUserID, mergedUserID string) (*domain.MergeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range r.records {
		if record.MainUserID == mainUserID && record.MergedUserID == mergedUserID {
			clone := record
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubMergeRepo) GetByMerged(_ context.Context, mergedUserID string) (*domain.MergeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range r.records {
		if record.MergedUserID == mergedUserID {
			clone := record
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubMergeRepo) ExecuteMerge(ctx context.Context, mainUserID, mergedUserID string) (*domain.MergeOutcome, error) {
	r.mu.Lock()
	for _, record := range r.records {
		if record.MainUserID == mainUserID && record.MergedUserID == mergedUserID {
			r.mu.Unlock()
			return nil, repository.ErrConflict
		}
	}
	r.mu.Unlock()

	merged, err := r.users.GetByID(ctx, mergedUserID)
	if err != nil {
		return nil, err
	}
	if merged.IsBlocked() {
		return nil, repository.ErrConflict
	}

	moved := 0
	identities, _ := r.identities.ListByUser(ctx, mergedUserID)
	for _, identity := range identities {
		if err := r.identities.Reassign(ctx, identity.ID, mainUserID); err != nil {
			return nil, err
		}
		moved++
	}

	transferred := 0
	r.roles.mu.Lock()
	held := map[string]struct{}{}
	for _, roleID := range r.roles.grants[mainUserID] {
		held[roleID] = struct{}{}
	}
	for _, roleID := range r.roles.grants[mergedUserID] {
		if _, ok := held[roleID]; !ok {
			r.roles.grants[mainUserID] = append(r.roles.grants[mainUserID], roleID)
			transferred++
		}
	}
	delete(r.roles.grants, mergedUserID)
	r.roles.mu.Unlock()

	if err := r.users.UpdateStatus(ctx, mergedUserID, domain.UserStatusBlocked); err != nil {
		return nil, err
	}

	record := domain.MergeRecord{
		ID:           uuid.NewString(),
		MainUserID:   mainUserID,
		MergedUserID: mergedUserID,
		CreatedAt:    time.Now().UTC(),
	}

	r.mu.Lock()
	r.records = append(r.records, record)
	r.mu.Unlock()

	return &domain.MergeOutcome{
		Record:           record,
		IdentitiesMoved:  moved,
		RolesTransferred: transferred,
	}, nil
}

func (r *stubMergeRepo) addRecord(mainUserID, mergedUserID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, domain.MergeRecord{
		ID:           uuid.NewString(),
		MainUserID:   mainUserID,
		MergedUserID: mergedUserID,
		CreatedAt:    time.Now().UTC(),
	})
}

type stubAuditRepo struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *stubAuditRepo) Append(_ context.Context, event domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *stubAuditRepo) actions() []domain.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.AuditAction, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Action)
	}
	return out
}

type stubProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
}

func newStubProfileRepo() *stubProfileRepo {
	return &stubProfileRepo{profiles: make(map[string]domain.Profile)}
}

func (r *stubProfileRepo) Upsert(_ context.Context, profile domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.UserID] = profile
	return nil
}

func (r *stubProfileRepo) GetByUser(_ context.Context, userID string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &profile, nil
}

type stubDirectoryRepo struct {
	mu          sync.Mutex
	records     map[string]*domain.DirectoryRecord
	failUpserts int
}

func newStubDirectoryRepo() *stubDirectoryRepo {
	return &stubDirectoryRepo{records: make(map[string]*domain.DirectoryRecord)}
}

func (r *stubDirectoryRepo) GetByExternalID(_ context.Context, kind, externalID string) (*domain.DirectoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record, ok := r.records[kind+"/"+externalID]; ok {
		clone := *record
		return &clone, nil
	}
	for _, record := range r.records {
		if record.Kind == kind && record.HumanID == externalID {
			clone := *record
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubDirectoryRepo) Upsert(_ context.Context, record domain.DirectoryRecord) (*domain.DirectoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failUpserts > 0 {
		r.failUpserts--
		return nil, fmt.Errorf("simulated directory store outage")
	}

	key := record.Kind + "/" + record.ExternalID
	if existing, ok := r.records[key]; ok {
		record.ID = existing.ID
	}
	clone := record
	r.records[key] = &clone
	result := clone
	return &result, nil
}

type stubLockStore struct {
	mu     sync.Mutex
	held   map[string]bool
	denied map[string]bool
}

func newStubLockStore() *stubLockStore {
	return &stubLockStore{held: make(map[string]bool), denied: make(map[string]bool)}
}

func (s *stubLockStore) Acquire(_ context.Context, name string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.denied[name] || s.held[name] {
		return false, nil
	}
	s.held[name] = true
	return true, nil
}

func (s *stubLockStore) Release(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, name)
	return nil
}

type stubPublisher struct {
	mu          sync.Mutex
	provisioned []domain.UserProvisionedEvent
	merged      []domain.AccountsMergedEvent
	assigned    []domain.RolesAssignedEvent
	syncs       []domain.DirectorySyncCompletedEvent
}

func (p *stubPublisher) PublishUserProvisioned(_ context.Context, event domain.UserProvisionedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.provisioned = append(p.provisioned, event)
	return nil
}

func (p *stubPublisher) PublishAccountsMerged(_ context.Context, event domain.AccountsMergedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.merged = append(p.merged, event)
	return nil
}

func (p *stubPublisher) PublishRolesAssigned(_ context.Context, event domain.RolesAssignedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assigned = append(p.assigned, event)
	return nil
}

func (p *stubPublisher) PublishDirectorySyncCompleted(_ context.Context, event domain.DirectorySyncCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncs = append(p.syncs, event)
	return nil
}

type stubDirectoryClient struct {
	pages     []port.DirectoryPage
	failPages map[int]int
	calls     int
}

func (c *stubDirectoryClient) FetchPage(_ context.Context, _ string, page, _ int) (*port.DirectoryPage, error) {
	c.calls++

	if remaining, ok := c.failPages[page]; ok && remaining > 0 {
		c.failPages[page] = remaining - 1
		return nil, fmt.Errorf("simulated feed outage on page %d", page)
	}

	if page < 1 || page > len(c.pages) {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	result := c.pages[page-1]
	return &result, nil
}

var (
	_ port.UserRepository      = (*stubUserRepo)(nil)
	_ port.IdentityRepository  = (*stubIdentityRepo)(nil)
	_ port.ProviderRepository  = (*stubProviderRepo)(nil)
	_ port.RuleRepository      = (*stubRuleRepo)(nil)
	_ port.RoleRepository      = (*stubRoleRepo)(nil)
	_ port.MergeRepository     = (*stubMergeRepo)(nil)
	_ port.AuditRepository     = (*stubAuditRepo)(nil)
	_ port.ProfileRepository   = (*stubProfileRepo)(nil)
	_ port.DirectoryRepository = (*stubDirectoryRepo)(nil)
	_ port.LockStore           = (*stubLockStore)(nil)
	_ port.EventPublisher      = (*stubPublisher)(nil)
	_ port.DirectoryClient     = (*stubDirectoryClient)(nil)
)
