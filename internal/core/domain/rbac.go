package domain

import (
	"strings"
	"time"
)

// Role defines a named grant bucket.
type Role struct {
	ID          string
	Name        string
	Description *string
}

// UserRole assigns a role to a user. Grants are unique per (user, role).
type UserRole struct {
	UserID     string
	RoleID     string
	AssignedAt time.Time
}

// RuleOperator enumerates auto-role rule comparison operators.
type RuleOperator string

const (
	RuleOperatorEquals     RuleOperator = "equals"
	RuleOperatorContains   RuleOperator = "contains"
	RuleOperatorStartsWith RuleOperator = "starts_with"
	RuleOperatorEndsWith   RuleOperator = "ends_with"
	RuleOperatorIn         RuleOperator = "in"
)

// AutoRoleRule grants a role when an external attribute matches. An empty
// Value makes the rule a default rule that matches unconditionally.
type AutoRoleRule struct {
	ID         string
	ProviderID string
	RoleID     string
	FieldPath  string
	Operator   RuleOperator
	Value      string
	Active     bool
}

// Matches evaluates the rule against the string representation of the
// extracted attribute value.
func (r AutoRoleRule) Matches(extracted string) bool {
	if r.Value == "" {
		return true
	}

	switch r.Operator {
	case RuleOperatorEquals:
		return extracted == r.Value
	case RuleOperatorContains:
		return strings.Contains(extracted, r.Value)
	case RuleOperatorStartsWith:
		return strings.HasPrefix(extracted, r.Value)
	case RuleOperatorEndsWith:
		return strings.HasSuffix(extracted, r.Value)
	case RuleOperatorIn:
		for _, candidate := range strings.Split(r.Value, ",") {
			if strings.TrimSpace(candidate) == extracted {
				return true
			}
		}
		return false
	default:
		return false
	}
}
