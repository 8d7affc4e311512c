package state

import (
	"context"
	"errors"

	cislinesdk "cisline/sdk/go"
)

// Outcome says how far a mutation got.
type Outcome int

const (
	// Skipped: a precondition did not hold; nothing was sent.
	Skipped Outcome = iota
	// Busy: the same key was already in flight.
	Busy
	// Applied: the request succeeded and local state was updated.
	Applied
	// Failed: the request failed; local state is untouched.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Busy:
		return "busy"
	case Applied:
		return "applied"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Mutation describes one user action against the API.
type Mutation[T any] struct {
	// Key names the in-flight slot, e.g. "save:task:4".
	Key string
	// Ready is the local precondition. A false result skips the mutation
	// without a notice.
	Ready func() bool
	// Request performs the network call.
	Request func(ctx context.Context) (T, error)
	// Apply updates local projections with the server's result.
	Apply func(T)
	// Success, when set, is posted as a notice after Apply.
	Success string
	// KeepDialog leaves the open dialog open on success.
	KeepDialog bool
}

// Run executes m against page. A failed request posts an error notice and
// leaves both local state and any open dialog as they were. The in-flight
// key is released on every path.
func Run[T any](ctx context.Context, page *Page, m Mutation[T]) (Outcome, T, error) {
	var zero T
	if m.Ready != nil && !m.Ready() {
		return Skipped, zero, nil
	}
	if m.Key != "" {
		if !page.Begin(m.Key) {
			return Busy, zero, nil
		}
		defer page.End(m.Key)
	}
	res, err := m.Request(ctx)
	if err != nil {
		page.Notify(NoticeError, errorText(err))
		return Failed, zero, err
	}
	if m.Apply != nil {
		m.Apply(res)
	}
	if m.Success != "" {
		page.Notify(NoticeSuccess, m.Success)
	}
	if !m.KeepDialog {
		page.CloseDialog()
	}
	return Applied, res, nil
}

func errorText(err error) string {
	var ae *cislinesdk.APIError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}
