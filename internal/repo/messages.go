package repo

import (
	"context"
	"database/sql"

	"cisline/internal/domain"
)

const messageColumns = `id,task_id,content,type,is_read,sender,created_at,updated_at`

func scanMessage(row interface{ Scan(...any) error }) (domain.Message, error) {
	var m domain.Message
	err := row.Scan(&m.ID, &m.TaskID, &m.Content, &m.Type, &m.IsRead, &m.Sender, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m *domain.Message) error {
	if m.Type == "" {
		m.Type = domain.MessageUser
	}
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO messages(task_id,content,type,is_read,sender,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		m.TaskID, m.Content, string(m.Type), m.IsRead, m.Sender, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return err
	}
	m.ID, err = res.LastInsertId()
	return err
}

func (r Repo) GetMessage(ctx context.Context, tx *sql.Tx, id int64) (domain.Message, error) {
	return scanMessage(r.q(tx).QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=?`, id))
}

// ListMessages returns a task's messages oldest first.
func (r Repo) ListMessages(ctx context.Context, taskID int64) ([]domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE task_id=? ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) UpdateMessageContent(ctx context.Context, tx *sql.Tx, id int64, content, updatedAt string) error {
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `UPDATE messages SET content=?, updated_at=? WHERE id=?`, content, updatedAt, id))
}

func (r Repo) MarkMessageRead(ctx context.Context, tx *sql.Tx, id int64, updatedAt string) error {
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `UPDATE messages SET is_read=1, updated_at=? WHERE id=?`, updatedAt, id))
}

// DeleteMessage is a hard delete; messages are not audit records.
func (r Repo) DeleteMessage(ctx context.Context, tx *sql.Tx, id int64) error {
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `DELETE FROM messages WHERE id=?`, id))
}
