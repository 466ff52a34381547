package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reforesta/internal/domain"
	"reforesta/internal/engine/identity"
	"reforesta/internal/events"
	"reforesta/internal/repo"
)

// PetitionOptions carries the proposed project fields for a new petition.
type PetitionOptions struct {
	Name            string
	LocationName    string
	Lat             float64
	Lng             float64
	Description     string
	TreeTarget      int
	VolunteerTarget int
	Species         []string
	ScheduledDate   string
}

// validatePetitionFields checks every field and reports all failures at
// once rather than stopping at the first.
func validatePetitionFields(opts PetitionOptions) error {
	fields := map[string]string{}
	if strings.TrimSpace(opts.Name) == "" {
		fields["name"] = "required"
	}
	if strings.TrimSpace(opts.LocationName) == "" {
		fields["location_name"] = "required"
	}
	if opts.Lat < -90 || opts.Lat > 90 {
		fields["lat"] = "must be between -90 and 90"
	}
	if opts.Lng < -180 || opts.Lng > 180 {
		fields["lng"] = "must be between -180 and 180"
	}
	if opts.TreeTarget <= 0 {
		fields["tree_target"] = "must be positive"
	}
	if opts.VolunteerTarget <= 0 {
		fields["volunteer_target"] = "must be positive"
	}
	if _, err := time.Parse("2006-01-02", opts.ScheduledDate); err != nil {
		fields["scheduled_date"] = "must be a valid date (YYYY-MM-DD)"
	}
	if len(fields) > 0 {
		return identity.ValidationError{Fields: fields}
	}
	return nil
}

// SubmitPetition files a project proposal for admin review. Admins
// create projects directly and do not go through the petition queue.
func (e Engine) SubmitPetition(ctx context.Context, requester identity.Identity, opts PetitionOptions) (domain.Petition, error) {
	if requester.Role != domain.RoleVolunteer && requester.Role != domain.RoleOrganizer {
		return domain.Petition{}, identity.RoleError{Role: requester.Role, Operation: "submit petitions"}
	}
	if err := validatePetitionFields(opts); err != nil {
		return domain.Petition{}, err
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Petition{}, identity.UnavailableError{Err: err}
	}
	defer tx.Rollback()

	p := domain.Petition{
		ID:              uuid.NewString(),
		RequesterID:     requester.UserID,
		Name:            strings.TrimSpace(opts.Name),
		LocationName:    strings.TrimSpace(opts.LocationName),
		Lat:             opts.Lat,
		Lng:             opts.Lng,
		Description:     strings.TrimSpace(opts.Description),
		TreeTarget:      opts.TreeTarget,
		VolunteerTarget: opts.VolunteerTarget,
		Species:         opts.Species,
		ScheduledDate:   opts.ScheduledDate,
		Status:          domain.PetitionPending,
		CreatedAt:       e.timestamp(),
	}
	if err := e.Repo.InsertPetition(ctx, tx, p); err != nil {
		return domain.Petition{}, identity.UnavailableError{Err: fmt.Errorf("insert petition: %w", err)}
	}
	if err := e.appendEvent(ctx, tx, events.TypePetitionSubmitted, "petition", p.ID, requester.UserID,
		events.EventPayload{"name": p.Name, "tree_target": p.TreeTarget}); err != nil {
		return domain.Petition{}, identity.UnavailableError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Petition{}, identity.UnavailableError{Err: err}
	}
	e.notify(events.TypePetitionSubmitted, "petition", p.ID, requester.UserID)
	return p, nil
}

// ApprovePetition creates the project and marks the petition approved in
// one transaction. The project insert runs first; if it fails the
// petition stays pending, so an approved petition always has its
// project.
func (e Engine) ApprovePetition(ctx context.Context, reviewer identity.Identity, petitionID string) (domain.Petition, domain.Project, error) {
	if reviewer.Role != domain.RoleAdmin {
		return domain.Petition{}, domain.Project{}, identity.RoleError{Role: reviewer.Role, Operation: "approve petitions"}
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Petition{}, domain.Project{}, identity.UnavailableError{Err: err}
	}
	defer tx.Rollback()

	pet, err := e.Repo.GetPetitionTx(ctx, tx, petitionID)
	if err != nil {
		return domain.Petition{}, domain.Project{}, err
	}
	if pet.Status != domain.PetitionPending {
		return domain.Petition{}, domain.Project{}, identity.StateConflictError{Entity: "petition", ID: pet.ID, Status: pet.Status}
	}

	now := e.timestamp()
	proj := domain.Project{
		ID:              uuid.NewString(),
		Name:            pet.Name,
		LocationName:    pet.LocationName,
		Lat:             pet.Lat,
		Lng:             pet.Lng,
		Description:     pet.Description,
		TreeTarget:      pet.TreeTarget,
		VolunteerTarget: pet.VolunteerTarget,
		Species:         pet.Species,
		ScheduledDate:   pet.ScheduledDate,
		Status:          domain.ProjectUpcoming,
		CreatedBy:       reviewer.UserID,
		CreatedAt:       now,
	}
	if err := e.Repo.InsertProject(ctx, tx, proj); err != nil {
		return domain.Petition{}, domain.Project{}, identity.UnavailableError{Err: fmt.Errorf("create project: %w", err)}
	}
	if err := e.Repo.MarkPetitionReviewed(ctx, tx, pet.ID, domain.PetitionApproved, reviewer.UserID, now, &proj.ID); err != nil {
		if err == repo.ErrNotFound {
			// Lost a race with another reviewer.
			return domain.Petition{}, domain.Project{}, identity.StateConflictError{Entity: "petition", ID: pet.ID, Status: "reviewed"}
		}
		return domain.Petition{}, domain.Project{}, identity.UnavailableError{Err: err}
	}
	if err := e.appendEvent(ctx, tx, events.TypePetitionApproved, "petition", pet.ID, reviewer.UserID,
		events.EventPayload{"project_id": proj.ID}); err != nil {
		return domain.Petition{}, domain.Project{}, identity.UnavailableError{Err: err}
	}
	if err := e.appendEvent(ctx, tx, events.TypeProjectCreated, "project", proj.ID, reviewer.UserID,
		events.EventPayload{"name": proj.Name, "from_petition": pet.ID}); err != nil {
		return domain.Petition{}, domain.Project{}, identity.UnavailableError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Petition{}, domain.Project{}, identity.UnavailableError{Err: err}
	}

	pet.Status = domain.PetitionApproved
	pet.ReviewerID = &reviewer.UserID
	pet.ReviewedAt = &now
	pet.CreatedProjectID = &proj.ID
	e.notify(events.TypePetitionApproved, "petition", pet.ID, reviewer.UserID)
	e.notify(events.TypeProjectCreated, "project", proj.ID, reviewer.UserID)
	return pet, proj, nil
}

// RejectPetition records a terminal rejection. No project is created.
func (e Engine) RejectPetition(ctx context.Context, reviewer identity.Identity, petitionID string) (domain.Petition, error) {
	if reviewer.Role != domain.RoleAdmin {
		return domain.Petition{}, identity.RoleError{Role: reviewer.Role, Operation: "reject petitions"}
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Petition{}, identity.UnavailableError{Err: err}
	}
	defer tx.Rollback()

	pet, err := e.Repo.GetPetitionTx(ctx, tx, petitionID)
	if err != nil {
		return domain.Petition{}, err
	}
	if pet.Status != domain.PetitionPending {
		return domain.Petition{}, identity.StateConflictError{Entity: "petition", ID: pet.ID, Status: pet.Status}
	}

	now := e.timestamp()
	if err := e.Repo.MarkPetitionReviewed(ctx, tx, pet.ID, domain.PetitionRejected, reviewer.UserID, now, nil); err != nil {
		if err == repo.ErrNotFound {
			return domain.Petition{}, identity.StateConflictError{Entity: "petition", ID: pet.ID, Status: "reviewed"}
		}
		return domain.Petition{}, identity.UnavailableError{Err: err}
	}
	if err := e.appendEvent(ctx, tx, events.TypePetitionRejected, "petition", pet.ID, reviewer.UserID, nil); err != nil {
		return domain.Petition{}, identity.UnavailableError{Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Petition{}, identity.UnavailableError{Err: err}
	}

	pet.Status = domain.PetitionRejected
	pet.ReviewerID = &reviewer.UserID
	pet.ReviewedAt = &now
	e.notify(events.TypePetitionRejected, "petition", pet.ID, reviewer.UserID)
	return pet, nil
}

// GetPetition returns one petition. Requesters see their own petitions;
// admins see all.
func (e Engine) GetPetition(ctx context.Context, caller identity.Identity, id string) (domain.Petition, error) {
	pet, err := e.Repo.GetPetition(ctx, id)
	if err != nil {
		return domain.Petition{}, err
	}
	if caller.Role != domain.RoleAdmin && pet.RequesterID != caller.UserID {
		return domain.Petition{}, repo.ErrNotFound
	}
	return pet, nil
}

// ListPetitions returns petitions visible to the caller. Non-admins are
// scoped to their own submissions.
func (e Engine) ListPetitions(ctx context.Context, caller identity.Identity, f repo.PetitionFilters) ([]domain.Petition, error) {
	if caller.Role != domain.RoleAdmin {
		f.RequesterID = caller.UserID
	}
	return e.Repo.ListPetitions(ctx, f)
}
