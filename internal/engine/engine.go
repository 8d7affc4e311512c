package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cisline/internal/audit"
	"cisline/internal/blob"
	"cisline/internal/engine/auth"
	"cisline/internal/events"
	"cisline/internal/repo"
	"cisline/internal/telemetry"
)

// Auditor receives audit intents after a mutation commits. The returned
// channel closes once those intents are persisted or abandoned.
type Auditor interface {
	Enqueue(intents ...audit.Intent) <-chan struct{}
}

// DefaultAuditWait bounds how long a mutation waits for its own audit events.
const DefaultAuditWait = 2 * time.Second

// Engine runs every mutation: validate, write in one transaction, commit,
// then hand audit intents to the Auditor. Audit delivery never affects the
// mutation's result.
type Engine struct {
	DB          *sql.DB
	Repo        repo.Repo
	Events      events.Writer
	Credentials auth.Service
	Audit       Auditor
	Blobs       blob.Store
	Log         zerolog.Logger
	Now         func() time.Time
	// AuditWait is how long a mutation waits for its audit events to land
	// before returning, so a read right after it sees them. Zero returns
	// immediately. Running out of time is logged, never an error.
	AuditWait time.Duration
}

func New(db *sql.DB) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:          db,
		Repo:        r,
		Events:      events.Writer{Repo: r},
		Credentials: auth.Service{Repo: r},
		Log:         zerolog.Nop(),
		Now:         time.Now,
		AuditWait:   DefaultAuditWait,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// emit enqueues changes for the scope. It is called only after commit.
func (e Engine) emit(scope audit.Scope, changes ...audit.Change) {
	if len(changes) == 0 {
		return
	}
	if e.Audit == nil {
		e.Log.Debug().Int("changes", len(changes)).Msg("no auditor configured; audit changes discarded")
		return
	}
	done := e.Audit.Enqueue(scope.Intents(e.now(), changes...)...)
	if e.AuditWait <= 0 || done == nil {
		return
	}
	timer := time.NewTimer(e.AuditWait)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		e.Log.Warn().Int("changes", len(changes)).Dur("waited", e.AuditWait).Msg("audit events still pending; returning without them")
	}
}

func (e Engine) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(ctx, "engine."+op, trace.WithAttributes(attrs...))
}

// finish closes span, recording *errp when set.
func finish(span trace.Span, errp *error) {
	if errp != nil && *errp != nil {
		span.RecordError(*errp)
		span.SetStatus(codes.Error, (*errp).Error())
	}
	span.End()
}

// required trims v and fails when it ends up empty.
func required(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", ValidationError{Field: field, Message: "is required"}
	}
	return v, nil
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	return &s
}

var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// normalizeDate accepts RFC3339 or a bare date and returns it unchanged when valid.
func normalizeDate(field string, v *string) (*string, error) {
	v = trimPtr(v)
	if v == nil || *v == "" {
		return v, nil
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, *v); err == nil {
			return v, nil
		}
	}
	return nil, ValidationError{Field: field, Message: fmt.Sprintf("invalid date %q", *v)}
}

func actorAttr(actorID string) attribute.KeyValue {
	return attribute.String("cisline.actor", actorID)
}
