package repo

import (
	"context"
	"database/sql"
	"strings"

	"cisline/internal/domain"
)

const eventColumns = `id,message,importance,organization_id,profile_id,task_id,actor_id,created_at`

type EventFilters struct {
	OrganizationID *int64
	ProfileID      *int64
	TaskID         *int64
	Importance     domain.Importance
	// Before pages backwards: only ids lower than Before are returned.
	Before int64
	Limit  int
}

func scanEvent(row interface{ Scan(...any) error }) (domain.Event, error) {
	var (
		e       domain.Event
		orgID   sql.NullInt64
		profID  sql.NullInt64
		taskID  sql.NullInt64
		actorID sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Message, &e.Importance, &orgID, &profID, &taskID, &actorID, &e.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return e, ErrNotFound
		}
		return e, err
	}
	e.OrganizationID = int64Ptr(orgID)
	e.ProfileID = int64Ptr(profID)
	e.TaskID = int64Ptr(taskID)
	e.ActorID = actorID.String
	return e, nil
}

// InsertEvent appends an audit record. Events are never updated or deleted.
func (r Repo) InsertEvent(ctx context.Context, tx *sql.Tx, e *domain.Event) error {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO events(message,importance,organization_id,profile_id,task_id,actor_id,created_at) VALUES (?,?,?,?,?,?,?)`,
		e.Message, string(e.Importance), nullableInt64Ptr(e.OrganizationID), nullableInt64Ptr(e.ProfileID), nullableInt64Ptr(e.TaskID), nullable(e.ActorID), e.CreatedAt)
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (r Repo) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	return scanEvent(r.DB.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id=?`, id))
}

// ListEvents returns matching events newest first.
func (r Repo) ListEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	var (
		clauses []string
		args    []any
	)
	if f.OrganizationID != nil {
		clauses = append(clauses, "organization_id=?")
		args = append(args, *f.OrganizationID)
	}
	if f.ProfileID != nil {
		clauses = append(clauses, "profile_id=?")
		args = append(args, *f.ProfileID)
	}
	if f.TaskID != nil {
		clauses = append(clauses, "task_id=?")
		args = append(args, *f.TaskID)
	}
	if f.Importance != "" {
		clauses = append(clauses, "importance=?")
		args = append(args, string(f.Importance))
	}
	if f.Before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Before)
	}
	query := `SELECT ` + eventColumns + ` FROM events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with id > cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, cursor int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx, `SELECT `+eventColumns+` FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
