package domain

import "time"

// UserStatus enumerates possible account states.
type UserStatus string

const (
	UserStatusPending UserStatus = "pending"
	UserStatusActive  UserStatus = "active"
	// UserStatusBlocked marks an account absorbed by a merge. Blocked
	// accounts are never soft-deleted so merge chains stay resolvable.
	UserStatusBlocked UserStatus = "blocked"
)

// User mirrors the persisted representation in the users table.
type User struct {
	ID            string
	Username      string
	Email         string
	Phone         *string
	PasswordHash  string
	PasswordAlgo  string
	Status        UserStatus
	EmailVerified bool
	PhoneVerified bool
	CompanyID     *string
	RegisteredAt  time.Time
	LastLogin     *time.Time
	DeletedAt     *time.Time
}

// IsBlocked reports whether the account was absorbed by a merge.
func (u User) IsBlocked() bool {
	return u.Status == UserStatusBlocked
}

// IsResolvable reports whether the account can be the target of an
// identity resolution: not blocked and not soft-deleted.
func (u User) IsResolvable() bool {
	return u.Status != UserStatusBlocked && u.DeletedAt == nil
}

// Provider is the configuration of one external identity source.
type Provider struct {
	ID            string
	Name          string
	Active        bool
	DefaultRoleID *string
	// DirectoryKind is non-empty for providers backed by the external
	// directory (employee or student feeds); it selects the feed used
	// for profile enrichment and batch reconciliation.
	DirectoryKind string
}

// LinkedIdentity binds one external identity to one local user. The pair
// (ProviderID, SubjectID) is unique system-wide; ownership moves on merge,
// the row itself is never deleted by a merge.
type LinkedIdentity struct {
	ID                string
	UserID            string
	ProviderID        string
	SubjectID         string
	Attributes        map[string]any
	DirectoryRecordID *string
	CreatedAt         time.Time
	LastSeenAt        time.Time
}

// Profile is the denormalized per-user profile refreshed from external
// attributes on every resolution.
type Profile struct {
	ID         string
	UserID     string
	FullName   string
	FirstName  string
	LastName   string
	AvatarURL  string
	BirthDate  *time.Time
	Department string
	UpdatedAt  time.Time
}

// DirectoryRecord is a denormalized snapshot of one employee or student
// record synced from the external directory. It is referenced by
// LinkedIdentity.DirectoryRecordID.
type DirectoryRecord struct {
	ID         string
	Kind       string
	ExternalID string
	// HumanID is the secondary human-readable identifier (employee or
	// student number); historically either id may have been used as the
	// provider-side subject id.
	HumanID    string
	FullName   string
	BirthDate  *time.Time
	Department string
	Attributes map[string]any
	SyncedAt   time.Time
}

// SubjectCandidates returns the identifiers under which a linked identity
// for this record may have been created.
func (r DirectoryRecord) SubjectCandidates() []string {
	candidates := make([]string, 0, 2)
	if r.ExternalID != "" {
		candidates = append(candidates, r.ExternalID)
	}
	if r.HumanID != "" && r.HumanID != r.ExternalID {
		candidates = append(candidates, r.HumanID)
	}
	return candidates
}
