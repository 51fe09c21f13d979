package domain

import "time"

// MergeRecord is the immutable lineage row for one merge. The pair
// (MainUserID, MergedUserID) is unique; a blocked user has exactly one
// row where it is the merged side.
type MergeRecord struct {
	ID           string
	MainUserID   string
	MergedUserID string
	CreatedAt    time.Time
}

// MergeOutcome summarizes the state changes applied by one merge
// transaction, used for events and audit descriptions.
type MergeOutcome struct {
	Record           MergeRecord
	IdentitiesMoved  int
	RolesTransferred int
}

// AuditAction enumerates identity-relevant audit event types.
type AuditAction string

const (
	AuditActionLogin         AuditAction = "login"
	AuditActionLogout        AuditAction = "logout"
	AuditActionProvisioned   AuditAction = "provisioned"
	AuditActionMerge         AuditAction = "merge"
	AuditActionMergeAbsorbed AuditAction = "merge_absorbed"
	AuditActionIdentityLink  AuditAction = "identity_link"
	AuditActionSyncUpdate    AuditAction = "sync_update"
)

// AuditEvent is one append-only audit log row tied to a user.
type AuditEvent struct {
	ID          string
	UserID      string
	Action      AuditAction
	Description string
	IP          *string
	UserAgent   *string
	CreatedAt   time.Time
}
