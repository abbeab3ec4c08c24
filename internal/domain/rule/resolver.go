package rule

import "context"

// Resolver answers org-hierarchy questions at evaluation time. Role
// steps ("submitter's manager", "Finance") are resolved through it on
// every evaluation rather than stored as foreign keys, so org changes
// never rewrite historical decisions.
type Resolver interface {
	// ManagerOf returns the user ID of the direct manager of userID, or
	// empty string when the user has no manager.
	ManagerOf(ctx context.Context, userID string) (string, error)

	// UsersWithRole returns the IDs of all company members holding the
	// given role.
	UsersWithRole(ctx context.Context, companyID, role string) ([]string, error)
}
