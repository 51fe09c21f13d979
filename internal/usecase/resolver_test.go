package usecase

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/uzswlu/campus-iam/internal/core/domain"
	"github.com/uzswlu/campus-iam/internal/extract"
)

type resolverFixture struct {
	users      *stubUserRepo
	identities *stubIdentityRepo
	providers  *stubProviderRepo
	roles      *stubRoleRepo
	profiles   *stubProfileRepo
	directory  *stubDirectoryRepo
	merges     *stubMergeRepo
	audits     *stubAuditRepo
	publisher  *stubPublisher
	svc        *ResolverService
}

func newResolverFixture(t *testing.T, providers ...domain.Provider) *resolverFixture {
	t.Helper()

	if len(providers) == 0 {
		providers = []domain.Provider{{ID: "prov-google", Name: "google", Active: true}}
	}

	users := newStubUserRepo()
	identities := newStubIdentityRepo()
	providerRepo := newStubProviderRepo(providers...)
	roles := newStubRoleRepo(domain.Role{ID: "role-user", Name: "user"})
	profiles := newStubProfileRepo()
	directory := newStubDirectoryRepo()
	merges := newStubMergeRepo(users, identities, roles)
	audits := &stubAuditRepo{}
	publisher := &stubPublisher{}
	locks := newStubLockStore()

	log := zaptest.NewLogger(t)
	mergeSvc := NewMergeService(users, identities, merges, audits, publisher, log)
	autoRoles := NewAutoRoleService(&stubRuleRepo{}, roles, publisher, "user", log)
	bootstrap := NewBootstrapService(users, roles, locks, "super-admin", log)

	svc := NewResolverService(
		users, identities, providerRepo, profiles, directory, audits, publisher,
		mergeSvc, autoRoles, bootstrap,
		ResolverOptions{PlaceholderDomain: "sync.invalid", UsernameSuffixAttempts: 3},
		log,
	)

	return &resolverFixture{
		users:      users,
		identities: identities,
		providers:  providerRepo,
		roles:      roles,
		profiles:   profiles,
		directory:  directory,
		merges:     merges,
		audits:     audits,
		publisher:  publisher,
		svc:        svc,
	}
}

func googleAssertion(sub, email, name string) map[string]any {
	return map[string]any{
		"sub":            sub,
		"email":          email,
		"email_verified": true,
		"name":           name,
	}
}

func TestResolveProvisionsNewUser(t *testing.T) {
	f := newResolverFixture(t)

	result, err := f.svc.Resolve(context.Background(), "google", googleAssertion("goog-1", "a.karimov@uzswlu.uz", "Aziz Karimov"), "login")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if result.Outcome != OutcomeProvisioned {
		t.Fatalf("expected provisioned outcome, got %s", result.Outcome)
	}

	if result.User.Username != "a.karimov" {
		t.Fatalf("username should derive from the email local part, got %s", result.User.Username)
	}

	if result.User.Status != domain.UserStatusActive {
		t.Fatalf("provisioned users must be active, got %s", result.User.Status)
	}

	if result.User.PasswordHash == "" {
		t.Fatal("provisioned users must carry an unusable password hash")
	}

	if result.Identity.SubjectID != "goog-1" {
		t.Fatalf("unexpected identity subject: %s", result.Identity.SubjectID)
	}

	granted, _ := f.roles.ListByUser(context.Background(), result.User.ID)
	if len(granted) != 1 || granted[0].Name != "user" {
		t.Fatalf("expected default role grant, got %+v", granted)
	}

	if len(f.publisher.provisioned) != 1 {
		t.Fatalf("expected 1 provisioned event, got %d", len(f.publisher.provisioned))
	}

	if _, err := f.profiles.GetByUser(context.Background(), result.User.ID); err != nil {
		t.Fatalf("expected profile upsert: %v", err)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	f := newResolverFixture(t)
	attrs := googleAssertion("goog-1", "a.karimov@uzswlu.uz", "Aziz Karimov")

	first, err := f.svc.Resolve(context.Background(), "google", attrs, "login")
	if err != nil {
		t.Fatalf("first Resolve returned error: %v", err)
	}

	second, err := f.svc.Resolve(context.Background(), "google", attrs, "login")
	if err != nil {
		t.Fatalf("second Resolve returned error: %v", err)
	}

	if second.Outcome != OutcomeExisting {
		t.Fatalf("expected existing outcome, got %s", second.Outcome)
	}

	if first.User.ID != second.User.ID {
		t.Fatal("the same assertion must always resolve to the same account")
	}

	if second.User.LastLogin == nil {
		t.Fatal("resolution must touch last login")
	}

	stored, _ := f.users.GetByID(context.Background(), second.User.ID)
	if stored.LastLogin == nil || !stored.LastLogin.Equal(*second.User.LastLogin) {
		t.Fatal("returned user must carry the stored last login stamp")
	}

	count, _ := f.users.Count(context.Background())
	if count != 1 {
		t.Fatalf("expected exactly one account, got %d", count)
	}
}

func TestResolveLinksByEmail(t *testing.T) {
	f := newResolverFixture(t)
	existing := f.users.add(domain.User{Username: "a.karimov", Email: "a.karimov@uzswlu.uz"})

	result, err := f.svc.Resolve(context.Background(), "google", googleAssertion("goog-9", "a.karimov@uzswlu.uz", "Aziz Karimov"), "login")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if result.Outcome != OutcomeLinked {
		t.Fatalf("expected linked outcome, got %s", result.Outcome)
	}

	if result.User.ID != existing.ID {
		t.Fatal("assertion should attach to the account holding the email")
	}

	linked, _ := f.identities.ListByUser(context.Background(), existing.ID)
	if len(linked) != 1 || linked[0].SubjectID != "goog-9" {
		t.Fatalf("unexpected linked identities: %+v", linked)
	}

	if result.User.LastLogin == nil {
		t.Fatal("linking must touch last login")
	}
}

func TestResolveFirstUserFounderGrantSkipsRules(t *testing.T) {
	f := newResolverFixture(t)
	f.roles.roles["role-super"] = &domain.Role{ID: "role-super", Name: "super-admin"}

	result, err := f.svc.Resolve(context.Background(), "google", googleAssertion("goog-0", "rector@uzswlu.uz", "First User"), "login")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	granted, _ := f.roles.ListByUser(context.Background(), result.User.ID)
	if len(granted) != 1 || granted[0].Name != "super-admin" {
		t.Fatalf("first user must hold only the founder grant, got %+v", granted)
	}
}

func TestResolveFollowsMergeChain(t *testing.T) {
	f := newResolverFixture(t)

	head := f.users.add(domain.User{Username: "winner", Email: "winner@uzswlu.uz"})
	absorbed := f.users.add(domain.User{Username: "loser", Status: domain.UserStatusBlocked})
	f.merges.addRecord(head.ID, absorbed.ID)
	stale := f.identities.add(domain.LinkedIdentity{UserID: absorbed.ID, ProviderID: "prov-google", SubjectID: "goog-5"})

	result, err := f.svc.Resolve(context.Background(), "google", googleAssertion("goog-5", "", "Any Name"), "login")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if result.User.ID != head.ID {
		t.Fatalf("expected resolution to land on the chain head, got %s", result.User.ID)
	}

	repointed, _ := f.identities.GetBySubject(context.Background(), "prov-google", stale.SubjectID)
	if repointed.UserID != head.ID {
		t.Fatal("stale identity ownership should be repaired during resolution")
	}
}

func TestResolveUnknownProvider(t *testing.T) {
	f := newResolverFixture(t)

	if _, err := f.svc.Resolve(context.Background(), "telegram", map[string]any{"sub": "x"}, "login"); !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestResolveDisabledProvider(t *testing.T) {
	f := newResolverFixture(t, domain.Provider{ID: "prov-google", Name: "google", Active: false})

	if _, err := f.svc.Resolve(context.Background(), "google", map[string]any{"sub": "x"}, "login"); !errors.Is(err, ErrProviderDisabled) {
		t.Fatalf("expected ErrProviderDisabled, got %v", err)
	}
}

func TestResolveMissingSubject(t *testing.T) {
	f := newResolverFixture(t)

	if _, err := f.svc.Resolve(context.Background(), "google", map[string]any{"email": "x@y.uz"}, "login"); !errors.Is(err, extract.ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestResolveUsernameCollision(t *testing.T) {
	f := newResolverFixture(t)
	f.users.add(domain.User{Username: "a.karimov", Email: "other@uzswlu.uz"})

	result, err := f.svc.Resolve(context.Background(), "google", googleAssertion("goog-2", "a.karimov@gmail.com", "Aziz Karimov"), "login")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if result.User.Username != "a.karimov1" {
		t.Fatalf("expected suffixed username, got %s", result.User.Username)
	}
}

func TestResolveWithoutEmailUsesPlaceholder(t *testing.T) {
	f := newResolverFixture(t)

	result, err := f.svc.Resolve(context.Background(), "google", map[string]any{"sub": "goog-3"}, "login")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if result.User.Email != "goog-3@sync.invalid" {
		t.Fatalf("expected placeholder email, got %s", result.User.Email)
	}
}

func TestResolveSoftDeletedOwner(t *testing.T) {
	f := newResolverFixture(t)

	owner := f.users.add(domain.User{Username: "gone"})
	f.identities.add(domain.LinkedIdentity{UserID: owner.ID, ProviderID: "prov-google", SubjectID: "goog-7"})

	f.users.mu.Lock()
	deletedAt := owner.RegisteredAt
	f.users.users[owner.ID].DeletedAt = &deletedAt
	f.users.mu.Unlock()

	if _, err := f.svc.Resolve(context.Background(), "google", map[string]any{"sub": "goog-7"}, "login"); !errors.Is(err, ErrUserNotResolvable) {
		t.Fatalf("expected ErrUserNotResolvable, got %v", err)
	}
}

func TestResolveReportsSkippedContactFields(t *testing.T) {
	f := newResolverFixture(t)
	f.users.skipped = []string{"email"}

	user := f.users.add(domain.User{Username: "holder", Email: "old@uzswlu.uz"})
	f.identities.add(domain.LinkedIdentity{UserID: user.ID, ProviderID: "prov-google", SubjectID: "goog-8"})

	result, err := f.svc.Resolve(context.Background(), "google", googleAssertion("goog-8", "taken@uzswlu.uz", "Holder"), "login")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if len(result.SkippedFields) != 1 || result.SkippedFields[0] != "email" {
		t.Fatalf("expected skipped email field, got %v", result.SkippedFields)
	}
}
