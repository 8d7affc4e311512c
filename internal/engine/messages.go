package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"cisline/internal/domain"
	"cisline/internal/engine/auth"
)

type MessageInput struct {
	TaskID  int64
	Content string
	Type    domain.MessageType
}

func (e Engine) ListMessages(ctx context.Context, taskID int64) ([]domain.Message, error) {
	if _, err := e.Repo.GetTaskRow(ctx, nil, taskID); err != nil {
		return nil, err
	}
	return e.Repo.ListMessages(ctx, taskID)
}

// PostMessage appends a message to a task's thread; the sender is the actor.
func (e Engine) PostMessage(ctx context.Context, in MessageInput, sender string) (_ domain.Message, err error) {
	ctx, span := e.span(ctx, "PostMessage", actorAttr(sender), attribute.Int64("cisline.task_id", in.TaskID))
	defer finish(span, &err)

	content, err := required("content", in.Content)
	if err != nil {
		return domain.Message{}, err
	}
	if strings.TrimSpace(sender) == "" {
		return domain.Message{}, auth.ForbiddenError{Action: "post message", Reason: "no sender"}
	}
	typ := in.Type
	if typ == "" {
		typ = domain.MessageUser
	}
	if typ != domain.MessageUser && typ != domain.MessageSystem {
		return domain.Message{}, ValidationError{Field: "type", Message: fmt.Sprintf("unknown message type %q", typ)}
	}
	now := e.stamp()
	m := domain.Message{TaskID: in.TaskID, Content: content, Type: typ, Sender: sender, CreatedAt: now, UpdatedAt: now}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetTaskRow(ctx, tx, in.TaskID); err != nil {
			return err
		}
		return e.Repo.InsertMessage(ctx, tx, &m)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

// ownMessage loads the message and fails unless sender wrote it.
func (e Engine) ownMessage(ctx context.Context, tx *sql.Tx, id int64, sender, action string) (domain.Message, error) {
	m, err := e.Repo.GetMessage(ctx, tx, id)
	if err != nil {
		return m, err
	}
	if sender == "" || m.Sender != sender {
		return m, auth.ForbiddenError{Action: action, Reason: "only the sender may do this"}
	}
	return m, nil
}

func (e Engine) EditMessage(ctx context.Context, id int64, content, sender string) (_ domain.Message, err error) {
	ctx, span := e.span(ctx, "EditMessage", actorAttr(sender), attribute.Int64("cisline.message_id", id))
	defer finish(span, &err)

	content, err = required("content", content)
	if err != nil {
		return domain.Message{}, err
	}
	var m domain.Message
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.ownMessage(ctx, tx, id, sender, "edit message"); err != nil {
			return err
		}
		if err := e.Repo.UpdateMessageContent(ctx, tx, id, content, e.stamp()); err != nil {
			return err
		}
		var err error
		m, err = e.Repo.GetMessage(ctx, tx, id)
		return err
	})
	return m, err
}

// MarkMessageRead may be done by anyone reading the thread.
func (e Engine) MarkMessageRead(ctx context.Context, id int64, actorID string) (_ domain.Message, err error) {
	ctx, span := e.span(ctx, "MarkMessageRead", actorAttr(actorID), attribute.Int64("cisline.message_id", id))
	defer finish(span, &err)

	var m domain.Message
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.MarkMessageRead(ctx, tx, id, e.stamp()); err != nil {
			return err
		}
		var err error
		m, err = e.Repo.GetMessage(ctx, tx, id)
		return err
	})
	return m, err
}

func (e Engine) DeleteMessage(ctx context.Context, id int64, sender string) (err error) {
	ctx, span := e.span(ctx, "DeleteMessage", actorAttr(sender), attribute.Int64("cisline.message_id", id))
	defer finish(span, &err)

	return e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.ownMessage(ctx, tx, id, sender, "delete message"); err != nil {
			return err
		}
		return e.Repo.DeleteMessage(ctx, tx, id)
	})
}
