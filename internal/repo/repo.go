package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// Repo is the entity store. Every read filters soft-deleted rows.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q picks the transaction when one is given, the pool otherwise.
func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// setClause accumulates "col=?" fragments for partial updates.
type setClause struct {
	fields []string
	args   []any
}

func (s *setClause) add(col string, v any) {
	s.fields = append(s.fields, col+"=?")
	s.args = append(s.args, v)
}

func (s *setClause) empty() bool { return len(s.fields) == 0 }

func (s *setClause) sql() string { return strings.Join(s.fields, ",") }
