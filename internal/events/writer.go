package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cisline/internal/audit"
	"cisline/internal/domain"
	"cisline/internal/repo"
)

// Writer appends audit events. It never updates or deletes them.
type Writer struct {
	Repo repo.Repo
	Now  func() time.Time
}

var ErrInvalidEvent = errors.New("invalid event")

func (w Writer) Append(ctx context.Context, tx *sql.Tx, e *domain.Event) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	e.Message = strings.TrimSpace(e.Message)
	if e.Message == "" {
		return fmt.Errorf("%w: message required", ErrInvalidEvent)
	}
	if e.Importance == "" {
		e.Importance = domain.ImportanceLow
	}
	if !e.Importance.Valid() {
		return fmt.Errorf("%w: importance %q", ErrInvalidEvent, e.Importance)
	}
	if e.CreatedAt == "" {
		e.CreatedAt = w.Now().UTC().Format(time.RFC3339)
	}
	if err := w.Repo.InsertEvent(ctx, tx, e); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Write persists one event outside any transaction; it is the outbox sink.
func (w Writer) Write(ctx context.Context, e domain.Event) error {
	err := w.Append(ctx, nil, &e)
	if errors.Is(err, ErrInvalidEvent) {
		return audit.Permanent(err)
	}
	return err
}
