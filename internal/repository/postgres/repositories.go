package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users      *UserRepository
	Identities *IdentityRepository
	Providers  *ProviderRepository
	Rules      *RuleRepository
	Roles      *RoleRepository
	Merges     *MergeRepository
	Audits     *AuditRepository
	Profiles   *ProfileRepository
	Directory  *DirectoryRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:      NewUserRepository(pool),
		Identities: NewIdentityRepository(pool),
		Providers:  NewProviderRepository(pool),
		Rules:      NewRuleRepository(pool),
		Roles:      NewRoleRepository(pool),
		Merges:     NewMergeRepository(pool),
		Audits:     NewAuditRepository(pool),
		Profiles:   NewProfileRepository(pool),
		Directory:  NewDirectoryRepository(pool),
	}
}
