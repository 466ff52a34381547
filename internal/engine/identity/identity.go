// Package identity resolves who is acting and carries the typed errors
// the workflow engine returns for expected failure conditions.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"reforesta/internal/domain"
	"reforesta/internal/repo"
)

// Identity is the resolved caller for one request. Role is resolved once
// and treated as immutable for the request's duration.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Anonymous reports whether no authenticated user is acting.
func (id Identity) Anonymous() bool { return id.UserID == "" }

// Resolver maps an authenticated subject to its authoritative role.
type Resolver struct {
	Repo repo.Repo
}

// Resolve reads the user row for the subject. If the row is missing the
// claim role is used; if that is empty too the caller defaults to
// volunteer. A gateway failure yields an anonymous identity, never an
// error: callers treat anonymous as "sign in required".
func (r Resolver) Resolve(ctx context.Context, userID, email, claimRole string) Identity {
	if userID == "" {
		return Identity{}
	}
	u, err := r.Repo.GetUser(ctx, userID)
	if err == nil {
		return Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
	}
	if errors.Is(err, repo.ErrNotFound) {
		role := claimRole
		if !ValidRole(role) {
			role = domain.RoleVolunteer
		}
		return Identity{UserID: userID, Email: email, Role: role}
	}
	return Identity{}
}

// ValidRole reports whether role is one of the closed enumeration.
func ValidRole(role string) bool {
	switch role {
	case domain.RoleVolunteer, domain.RoleOrganizer, domain.RoleAdmin:
		return true
	}
	return false
}

// --- workflow error taxonomy ---

// ValidationError lists every failing field, not just the first.
type ValidationError struct {
	Fields map[string]string
}

func (e ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

// RoleError indicates the caller's role may not perform the operation.
type RoleError struct {
	Role      string
	Operation string
}

func (e RoleError) Error() string {
	return fmt.Sprintf("role %s may not %s", e.Role, e.Operation)
}

// CredentialsError indicates a failed sign-in or an invalid reset
// token. The message is deliberately uniform: it never reveals whether
// the email exists.
type CredentialsError struct{}

func (e CredentialsError) Error() string {
	return "unknown email or wrong password"
}

// DuplicateRegistrationError indicates an active registration already
// exists for the (user, project) pair.
type DuplicateRegistrationError struct {
	UserID    string
	ProjectID string
}

func (e DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("user %s already registered for project %s", e.UserID, e.ProjectID)
}

// NoRegistrationError indicates attendance without a confirmed registration.
type NoRegistrationError struct {
	UserID    string
	ProjectID string
}

func (e NoRegistrationError) Error() string {
	return fmt.Sprintf("user %s has no confirmed registration for project %s", e.UserID, e.ProjectID)
}

// ExceedsLimitError indicates trees planted above the project target.
type ExceedsLimitError struct {
	Trees  int
	Target int
}

func (e ExceedsLimitError) Error() string {
	return fmt.Sprintf("trees planted %d exceeds project target %d", e.Trees, e.Target)
}

// InvalidAmountError indicates a non-positive trees-planted count.
type InvalidAmountError struct {
	Trees int
}

func (e InvalidAmountError) Error() string {
	return fmt.Sprintf("trees planted must be positive, got %d", e.Trees)
}

// StateConflictError indicates a transition attempted on an entity
// already in a terminal state.
type StateConflictError struct {
	Entity string
	ID     string
	Status string
}

func (e StateConflictError) Error() string {
	return fmt.Sprintf("%s %s is already %s", e.Entity, e.ID, e.Status)
}

// UnavailableError wraps an unexpected gateway failure. The detail is
// preserved for logging; it is never silently swallowed into success.
type UnavailableError struct {
	Err error
}

func (e UnavailableError) Error() string {
	return fmt.Sprintf("persistence unavailable: %v", e.Err)
}

func (e UnavailableError) Unwrap() error { return e.Err }
