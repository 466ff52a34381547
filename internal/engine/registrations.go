package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"reforesta/internal/domain"
	"reforesta/internal/engine/identity"
	"reforesta/internal/events"
	"reforesta/internal/repo"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 \-]{5,19}$`)

func (e Engine) validateSnapshot(s domain.ProfileSnapshot) error {
	fields := map[string]string{}
	if strings.TrimSpace(s.Name) == "" {
		fields["name"] = "required"
	}
	if !phonePattern.MatchString(strings.TrimSpace(s.Phone)) {
		fields["phone"] = "must be a valid phone number"
	}
	minAge, maxAge := e.Config.MinAge(), e.Config.MaxAge()
	if s.Age < minAge || s.Age > maxAge {
		fields["age"] = fmt.Sprintf("must be between %d and %d", minAge, maxAge)
	}
	if len(fields) > 0 {
		return identity.ValidationError{Fields: fields}
	}
	return nil
}

// Register signs a volunteer up for a project, freezing the contact
// snapshot on the registration row. Only volunteers may register:
// operational roles are blocked. The duplicate lookup is a courtesy
// early exit; the partial unique index on confirmed registrations is
// what actually holds under concurrent submissions.
func (e Engine) Register(ctx context.Context, caller identity.Identity, projectID string, snapshot domain.ProfileSnapshot) (domain.Registration, error) {
	if caller.Role != domain.RoleVolunteer {
		return domain.Registration{}, identity.RoleError{Role: caller.Role, Operation: "register as a volunteer"}
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Registration{}, err
	}
	if _, err := e.Repo.FindConfirmedRegistration(ctx, caller.UserID, projectID); err == nil {
		return domain.Registration{}, identity.DuplicateRegistrationError{UserID: caller.UserID, ProjectID: projectID}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Registration{}, identity.UnavailableError{Err: err}
	}
	if err := e.validateSnapshot(snapshot); err != nil {
		return domain.Registration{}, err
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Registration{}, identity.UnavailableError{Err: err}
	}
	defer tx.Rollback()

	reg := domain.Registration{
		ID:        uuid.NewString(),
		UserID:    caller.UserID,
		ProjectID: projectID,
		Snapshot:  snapshot,
		Status:    domain.RegistrationConfirmed,
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertRegistration(ctx, tx, reg); err != nil {
		if repo.IsUniqueViolation(err) {
			// Concurrent submission won the index race.
			return domain.Registration{}, identity.DuplicateRegistrationError{UserID: caller.UserID, ProjectID: projectID}
		}
		return domain.Registration{}, identity.UnavailableError{Err: fmt.Errorf("insert registration: %w", err)}
	}
	if err := e.appendEvent(ctx, tx, events.TypeRegistrationCreated, "registration", reg.ID, caller.UserID,
		events.EventPayload{"project_id": projectID}); err != nil {
		return domain.Registration{}, identity.UnavailableError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.Registration{}, identity.DuplicateRegistrationError{UserID: caller.UserID, ProjectID: projectID}
		}
		return domain.Registration{}, identity.UnavailableError{Err: err}
	}
	e.notify(events.TypeRegistrationCreated, "registration", reg.ID, caller.UserID)
	return reg, nil
}

// CancelRegistration flips a confirmed registration to cancelled. Only
// the owner or an admin may cancel. Cancelling an already-cancelled
// registration is a state conflict, not a silent no-op.
func (e Engine) CancelRegistration(ctx context.Context, caller identity.Identity, registrationID string) (domain.Registration, error) {
	reg, err := e.Repo.GetRegistration(ctx, registrationID)
	if err != nil {
		return domain.Registration{}, err
	}
	if reg.UserID != caller.UserID && caller.Role != domain.RoleAdmin {
		return domain.Registration{}, identity.RoleError{Role: caller.Role, Operation: "cancel this registration"}
	}
	if reg.Status != domain.RegistrationConfirmed {
		return domain.Registration{}, identity.StateConflictError{Entity: "registration", ID: reg.ID, Status: reg.Status}
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Registration{}, identity.UnavailableError{Err: err}
	}
	defer tx.Rollback()

	now := e.timestamp()
	if err := e.Repo.CancelRegistration(ctx, tx, reg.ID, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Registration{}, identity.StateConflictError{Entity: "registration", ID: reg.ID, Status: domain.RegistrationCancelled}
		}
		return domain.Registration{}, identity.UnavailableError{Err: err}
	}
	if err := e.appendEvent(ctx, tx, events.TypeRegistrationCancel, "registration", reg.ID, caller.UserID,
		events.EventPayload{"project_id": reg.ProjectID}); err != nil {
		return domain.Registration{}, identity.UnavailableError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Registration{}, identity.UnavailableError{Err: err}
	}

	reg.Status = domain.RegistrationCancelled
	reg.CancelledAt = &now
	e.notify(events.TypeRegistrationCancel, "registration", reg.ID, caller.UserID)
	return reg, nil
}

// GetRegistration returns one registration, visible to its owner,
// organizers and admins.
func (e Engine) GetRegistration(ctx context.Context, caller identity.Identity, id string) (domain.Registration, error) {
	reg, err := e.Repo.GetRegistration(ctx, id)
	if err != nil {
		return domain.Registration{}, err
	}
	if reg.UserID != caller.UserID && caller.Role == domain.RoleVolunteer {
		return domain.Registration{}, repo.ErrNotFound
	}
	return reg, nil
}

// ListRegistrations returns registrations visible to the caller.
// Volunteers see only their own; organizers and admins may filter freely.
func (e Engine) ListRegistrations(ctx context.Context, caller identity.Identity, f repo.RegistrationFilters) ([]domain.Registration, error) {
	if caller.Role == domain.RoleVolunteer {
		f.UserID = caller.UserID
	}
	return e.Repo.ListRegistrations(ctx, f)
}
