package state

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	cislinesdk "cisline/sdk/go"
)

type EntityKind string

const (
	OrganizationEntity EntityKind = "organization"
	ProfileEntity      EntityKind = "profile"
	TaskEntity         EntityKind = "task"
)

// Ref names one entity whose audit trail can be viewed.
type Ref struct {
	Kind EntityKind
	ID   int64
}

func (r Ref) query() cislinesdk.EventQuery {
	switch r.Kind {
	case OrganizationEntity:
		return cislinesdk.EventQuery{OrganizationID: r.ID}
	case ProfileEntity:
		return cislinesdk.EventQuery{ProfileID: r.ID}
	default:
		return cislinesdk.EventQuery{TaskID: r.ID}
	}
}

type EventLister interface {
	Events(ctx context.Context, q cislinesdk.EventQuery) ([]cislinesdk.Event, error)
}

// Trail is the audit tab. While open it re-fetches after any mutation that
// touches its entity; while closed it does nothing.
type Trail struct {
	src EventLister
	log zerolog.Logger

	mu     sync.Mutex
	open   bool
	ref    Ref
	events []cislinesdk.Event
}

func NewTrail(src EventLister, log zerolog.Logger) *Trail {
	return &Trail{src: src, log: log}
}

// Open shows ref's trail and loads it.
func (t *Trail) Open(ctx context.Context, ref Ref) error {
	t.mu.Lock()
	t.open, t.ref, t.events = true, ref, nil
	t.mu.Unlock()
	return t.refresh(ctx, ref)
}

func (t *Trail) Close() {
	t.mu.Lock()
	t.open, t.events = false, nil
	t.mu.Unlock()
}

// Viewing returns the open ref.
func (t *Trail) Viewing() (Ref, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ref, t.open
}

func (t *Trail) Events() []cislinesdk.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]cislinesdk.Event(nil), t.events...)
}

// Touched reloads the trail if it is open on one of refs. Failures are
// logged only.
func (t *Trail) Touched(ctx context.Context, refs ...Ref) {
	t.mu.Lock()
	open, cur := t.open, t.ref
	t.mu.Unlock()
	if !open {
		return
	}
	for _, r := range refs {
		if r == cur {
			if err := t.refresh(ctx, cur); err != nil {
				t.log.Warn().Err(err).Str("kind", string(cur.Kind)).Int64("id", cur.ID).Msg("audit trail refresh failed")
			}
			return
		}
	}
}

func (t *Trail) refresh(ctx context.Context, ref Ref) error {
	evs, err := t.src.Events(ctx, ref.query())
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	// a response for a trail that was closed or switched meanwhile is dropped
	if t.open && t.ref == ref {
		t.events = evs
	}
	return nil
}
