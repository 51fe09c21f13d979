package domain

import "time"

// UserProvisionedEvent is published when resolution or reconciliation
// creates a new local account.
type UserProvisionedEvent struct {
	EventID       string
	UserID        string
	Username      string
	Email         *string
	Provider      string
	Source        string
	ProvisionedAt time.Time
	Metadata      map[string]any
}

// AccountsMergedEvent is published after a merge commits.
type AccountsMergedEvent struct {
	EventID          string
	MainUserID       string
	MergedUserID     string
	IdentitiesMoved  int
	RolesTransferred int
	MergedAt         time.Time
	Metadata         map[string]any
}

// RoleAssignment pairs a role id with its name for event payloads.
type RoleAssignment struct {
	RoleID   string
	RoleName string
}

// RolesAssignedEvent is published when the rule engine grants roles.
type RolesAssignedEvent struct {
	EventID    string
	UserID     string
	RolesAdded []RoleAssignment
	AssignedBy string
	AssignedAt time.Time
	Metadata   map[string]any
}

// DirectorySyncCompletedEvent is published when a reconciliation run ends,
// including partial runs halted by fetch failures.
type DirectorySyncCompletedEvent struct {
	EventID     string
	Provider    string
	Processed   int
	Created     int
	Updated     int
	Failed      int
	StartedAt   time.Time
	CompletedAt time.Time
	Partial     bool
	Metadata    map[string]any
}
