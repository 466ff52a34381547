package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"reforesta/internal/domain"
	"reforesta/internal/engine/identity"
	"reforesta/internal/events"
	"reforesta/internal/repo"
)

func validProjectStatus(status string) bool {
	switch status {
	case domain.ProjectUpcoming, domain.ProjectActive, domain.ProjectCompleted:
		return true
	}
	return false
}

// CreateProject creates a project directly, bypassing the petition
// queue. Admin only.
func (e Engine) CreateProject(ctx context.Context, caller identity.Identity, opts PetitionOptions) (domain.Project, error) {
	if caller.Role != domain.RoleAdmin {
		return domain.Project{}, identity.RoleError{Role: caller.Role, Operation: "create projects"}
	}
	if err := validatePetitionFields(opts); err != nil {
		return domain.Project{}, err
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Project{}, identity.UnavailableError{Err: err}
	}
	defer tx.Rollback()

	p := domain.Project{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(opts.Name),
		LocationName:    strings.TrimSpace(opts.LocationName),
		Lat:             opts.Lat,
		Lng:             opts.Lng,
		Description:     strings.TrimSpace(opts.Description),
		TreeTarget:      opts.TreeTarget,
		VolunteerTarget: opts.VolunteerTarget,
		Species:         opts.Species,
		ScheduledDate:   opts.ScheduledDate,
		Status:          domain.ProjectUpcoming,
		CreatedBy:       caller.UserID,
		CreatedAt:       e.timestamp(),
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, identity.UnavailableError{Err: fmt.Errorf("insert project: %w", err)}
	}
	if err := e.appendEvent(ctx, tx, events.TypeProjectCreated, "project", p.ID, caller.UserID,
		events.EventPayload{"name": p.Name}); err != nil {
		return domain.Project{}, identity.UnavailableError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, identity.UnavailableError{Err: err}
	}
	e.notify(events.TypeProjectCreated, "project", p.ID, caller.UserID)
	return p, nil
}

// UpdateProject applies a partial edit. Status transitions are explicit
// admin actions carried in the same update; nothing moves a project
// between statuses on its own.
func (e Engine) UpdateProject(ctx context.Context, caller identity.Identity, id string, u repo.ProjectUpdate) (domain.Project, error) {
	if caller.Role != domain.RoleAdmin {
		return domain.Project{}, identity.RoleError{Role: caller.Role, Operation: "update projects"}
	}
	if u.Status != nil && !validProjectStatus(*u.Status) {
		return domain.Project{}, identity.ValidationError{Fields: map[string]string{"status": "must be upcoming, active or completed"}}
	}
	if u.TreeTarget != nil && *u.TreeTarget <= 0 {
		return domain.Project{}, identity.ValidationError{Fields: map[string]string{"tree_target": "must be positive"}}
	}
	if u.VolunteerTarget != nil && *u.VolunteerTarget <= 0 {
		return domain.Project{}, identity.ValidationError{Fields: map[string]string{"volunteer_target": "must be positive"}}
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Project{}, identity.UnavailableError{Err: err}
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateProject(ctx, tx, id, u); err != nil {
		return domain.Project{}, err
	}
	if err := e.appendEvent(ctx, tx, events.TypeProjectUpdated, "project", id, caller.UserID, nil); err != nil {
		return domain.Project{}, identity.UnavailableError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, identity.UnavailableError{Err: err}
	}
	e.notify(events.TypeProjectUpdated, "project", id, caller.UserID)
	return e.Repo.GetProject(ctx, id)
}

// DeleteProject removes a project and, through the schema's cascades,
// its registrations and attendances. Donations and the approving
// petition are detached, not erased. Admin only.
func (e Engine) DeleteProject(ctx context.Context, caller identity.Identity, id string) error {
	if caller.Role != domain.RoleAdmin {
		return identity.RoleError{Role: caller.Role, Operation: "delete projects"}
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return identity.UnavailableError{Err: err}
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteProject(ctx, tx, id); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, events.TypeProjectDeleted, "project", id, caller.UserID, nil); err != nil {
		return identity.UnavailableError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return identity.UnavailableError{Err: err}
	}
	e.notify(events.TypeProjectDeleted, "project", id, caller.UserID)
	return nil
}

// GetProject returns one project. Projects are public reads.
func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return e.Repo.GetProject(ctx, id)
}

// ListProjects returns projects, optionally filtered by status, newest
// first with cursor pagination.
func (e Engine) ListProjects(ctx context.Context, f repo.ProjectFilters) ([]domain.Project, error) {
	return e.Repo.ListProjects(ctx, f)
}
