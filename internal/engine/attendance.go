package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"reforesta/internal/domain"
	"reforesta/internal/engine/identity"
	"reforesta/internal/events"
	"reforesta/internal/repo"
)

// RecordAttendance writes the caller's current tree total for a project.
// The row is keyed by (project, user): a second submission overwrites
// the previous total instead of accumulating. Requires a confirmed
// registration, and the total may not exceed the project's tree target.
func (e Engine) RecordAttendance(ctx context.Context, caller identity.Identity, projectID string, treesPlanted int) (domain.Attendance, error) {
	proj, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Attendance{}, err
	}
	if treesPlanted <= 0 {
		return domain.Attendance{}, identity.InvalidAmountError{Trees: treesPlanted}
	}
	if treesPlanted > proj.TreeTarget {
		return domain.Attendance{}, identity.ExceedsLimitError{Trees: treesPlanted, Target: proj.TreeTarget}
	}
	reg, err := e.Repo.FindConfirmedRegistration(ctx, caller.UserID, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Attendance{}, identity.NoRegistrationError{UserID: caller.UserID, ProjectID: projectID}
		}
		return domain.Attendance{}, identity.UnavailableError{Err: err}
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Attendance{}, identity.UnavailableError{Err: err}
	}
	defer tx.Rollback()

	a := domain.Attendance{
		ID:             uuid.NewString(),
		ProjectID:      projectID,
		UserID:         caller.UserID,
		RegistrationID: reg.ID,
		TreesPlanted:   treesPlanted,
		RecordedAt:     e.timestamp(),
	}
	if err := e.Repo.UpsertAttendance(ctx, tx, a); err != nil {
		return domain.Attendance{}, identity.UnavailableError{Err: fmt.Errorf("upsert attendance: %w", err)}
	}
	if err := e.appendEvent(ctx, tx, events.TypeAttendanceRecorded, "attendance", a.ID, caller.UserID,
		events.EventPayload{"project_id": projectID, "trees_planted": treesPlanted}); err != nil {
		return domain.Attendance{}, identity.UnavailableError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Attendance{}, identity.UnavailableError{Err: err}
	}
	e.notify(events.TypeAttendanceRecorded, "attendance", a.ID, caller.UserID)

	// On overwrite the stored row keeps its original id; re-read so the
	// caller sees what persisted.
	stored, err := e.Repo.GetAttendance(ctx, caller.UserID, projectID)
	if err != nil {
		return a, nil
	}
	return stored, nil
}

// GetAttendance returns the caller's attendance for a project.
func (e Engine) GetAttendance(ctx context.Context, caller identity.Identity, projectID string) (domain.Attendance, error) {
	return e.Repo.GetAttendance(ctx, caller.UserID, projectID)
}

// ListProjectAttendances returns all attendance rows for a project.
// Restricted to organizers and admins.
func (e Engine) ListProjectAttendances(ctx context.Context, caller identity.Identity, projectID string) ([]domain.Attendance, error) {
	if caller.Role == domain.RoleVolunteer {
		return nil, identity.RoleError{Role: caller.Role, Operation: "list project attendances"}
	}
	return e.Repo.ListAttendancesByProject(ctx, projectID)
}

// ListMyAttendances returns the caller's attendance history.
func (e Engine) ListMyAttendances(ctx context.Context, caller identity.Identity) ([]domain.Attendance, error) {
	return e.Repo.ListAttendancesByUser(ctx, caller.UserID)
}
