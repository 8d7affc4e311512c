package engine

import (
	"context"
	"errors"
	"fmt"

	"cisline/internal/domain"
	"cisline/internal/events"
	"cisline/internal/repo"
)

// EventInput is a manual audit entry.
type EventInput struct {
	Message        string
	Importance     domain.Importance
	OrganizationID *int64
	ProfileID      *int64
	TaskID         *int64
}

// AppendEvent writes an audit record synchronously. Unlike the audit intents
// emitted by mutations, a failure here is returned to the caller.
func (e Engine) AppendEvent(ctx context.Context, in EventInput, actorID string) (_ domain.Event, err error) {
	ctx, span := e.span(ctx, "AppendEvent", actorAttr(actorID))
	defer finish(span, &err)

	ev := domain.Event{
		Message:        in.Message,
		Importance:     in.Importance,
		OrganizationID: in.OrganizationID,
		ProfileID:      in.ProfileID,
		TaskID:         in.TaskID,
		ActorID:        actorID,
	}
	w := e.Events
	w.Now = e.now
	if err := w.Append(ctx, nil, &ev); err != nil {
		if errors.Is(err, events.ErrInvalidEvent) {
			return domain.Event{}, ValidationError{Message: err.Error()}
		}
		return domain.Event{}, err
	}
	return ev, nil
}

// DefaultEventLimit caps ListEvents when no limit is given.
const DefaultEventLimit = 200

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	if f.Importance != "" && !f.Importance.Valid() {
		return nil, ValidationError{Field: "importance", Message: fmt.Sprintf("unknown importance %q", f.Importance)}
	}
	if f.Limit <= 0 || f.Limit > DefaultEventLimit {
		f.Limit = DefaultEventLimit
	}
	return e.Repo.ListEvents(ctx, f)
}
