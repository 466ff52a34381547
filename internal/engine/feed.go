package engine

import (
	"context"

	"reforesta/internal/domain"
	"reforesta/internal/engine/identity"
)

// ListEvents returns the durable event log, newest first. Restricted to
// organizers and admins; the log carries actor IDs across all users.
func (e Engine) ListEvents(ctx context.Context, caller identity.Identity, limit int, cursor int64, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if caller.Role == domain.RoleVolunteer {
		return nil, identity.RoleError{Role: caller.Role, Operation: "read the event log"}
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return e.Repo.LatestEventsFrom(ctx, limit, cursor, evtType, entityKind, entityID)
}

// EventsAfter returns events past a cursor in ascending order, for
// pollers that tail the log.
func (e Engine) EventsAfter(ctx context.Context, caller identity.Identity, limit int, cursor int64) ([]domain.Event, error) {
	if caller.Role == domain.RoleVolunteer {
		return nil, identity.RoleError{Role: caller.Role, Operation: "read the event log"}
	}
	return e.Repo.EventsAfter(ctx, limit, cursor)
}
