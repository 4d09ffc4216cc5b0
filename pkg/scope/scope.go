// Package scope computes the role-scoped visibility predicate applied to
// every list, update, and delete. Paralegals see all firm records; advocates
// see only records they own. This asymmetry is the authorization policy.
package scope

import (
	"fmt"

	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/models"
)

// AuthContext is the identity attached to a request by the access guard.
type AuthContext struct {
	UserID string
	Role   models.Role
}

// OwnerOnly reports whether the caller is restricted to rows they own.
func OwnerOnly(ac AuthContext) bool {
	return ac.Role != models.RoleParalegal
}

// Clause renders the visibility predicate as a SQL fragment to be appended
// to a WHERE clause, with its bind arguments. nextArg is the ordinal of the
// next free placeholder. Paralegals get the match-all (empty) fragment.
func Clause(ac AuthContext, ownerColumn string, nextArg int) (string, []any) {
	if !OwnerOnly(ac) {
		return "", nil
	}
	return fmt.Sprintf(" AND %s = $%d", ownerColumn, nextArg), []any{ac.UserID}
}

// Allows reports whether a record owned by ownerID is visible to the caller.
func Allows(ac AuthContext, ownerID string) bool {
	if !OwnerOnly(ac) {
		return true
	}
	return ownerID == ac.UserID
}
