package policies

import (
	apperrors "github.com/nodewire/nodewire/pkg/errors"

	"github.com/nodewire/nodewire/internal/models"
)

// AccessContext represents an authenticated caller. It is assembled once at
// authentication time and passed explicitly into every service operation;
// downstream checks are pure functions of this value and never re-derive the
// policy set from the role.
type AccessContext struct {
	UserID         string
	OrganizationID string
	Role           models.Role
	Email          string
	Status         models.UserStatus
	Policies       map[string]struct{}
}

// HasPolicy reports whether the context carries the named policy.
func (a AccessContext) HasPolicy(name string) bool {
	_, ok := a.Policies[name]
	return ok
}

// MatchMode selects how multiple policy names combine in an access check.
type MatchMode string

const (
	MatchAny MatchMode = "any"
	MatchAll MatchMode = "all"
)

// HasAccess reports whether the context satisfies the given policies under the
// supplied match mode. Pure, no side effects.
func HasAccess(access AccessContext, mode MatchMode, policyNames ...string) bool {
	if len(policyNames) == 0 {
		return false
	}

	switch mode {
	case MatchAll:
		for _, name := range policyNames {
			if !access.HasPolicy(name) {
				return false
			}
		}
		return true
	default:
		for _, name := range policyNames {
			if access.HasPolicy(name) {
				return true
			}
		}
		return false
	}
}

// CheckAccess is the guard-clause form of HasAccess: it fails with Forbidden
// instead of returning false, and additionally fails when the auxiliary
// condition is false.
func CheckAccess(access AccessContext, mode MatchMode, condition bool, policyNames ...string) error {
	if !condition {
		return apperrors.ErrForbidden
	}
	if !HasAccess(access, mode, policyNames...) {
		return apperrors.ErrForbidden
	}
	return nil
}
