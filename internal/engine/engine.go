// Package engine implements the volunteering workflows: petition review,
// registration, attendance, donations and the derived statistics. Every
// mutation runs in a single transaction that also appends to the event
// log, then publishes an in-process refresh notification after commit.
package engine

import (
	"context"
	"database/sql"
	"time"

	"reforesta/internal/config"
	"reforesta/internal/events"
	"reforesta/internal/repo"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Notifier *events.Notifier
	Config   *config.Config
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Notifier: events.NewNotifier(),
		Config:   cfg,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// notify publishes a refresh signal. Called only after the owning
// transaction has committed, so subscribers never observe uncommitted
// state.
func (e Engine) notify(evtType, entityKind, entityID, actorID string) {
	e.Notifier.Publish(events.Notification{
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
	})
}

func (e Engine) begin(ctx context.Context) (*sql.Tx, error) {
	return e.DB.BeginTx(ctx, nil)
}

// appendEvent writes a log row through the event writer with the
// engine's clock, so event timestamps and entity timestamps come from
// the same source.
func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.Now
	return w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload)
}
