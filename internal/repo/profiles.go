package repo

import (
	"context"
	"database/sql"
	"strings"

	"cisline/internal/domain"
)

const profileSelect = `SELECT p.id,p.name,p.description,p.organization_id,p.created_at,
u.id,u.email,u.login_name,u.nickname,u.role,u.work_function
FROM profiles p LEFT JOIN users u ON u.id=p.user_id AND u.active=1`

type ProfileFilters struct {
	OrganizationID *int64
	Unassigned     bool
}

type ProfilePatch struct {
	Name         *string
	Description  *string
	Nickname     *string
	Role         *domain.Role
	WorkFunction *string
}

func scanProfile(row interface{ Scan(...any) error }) (domain.Profile, error) {
	var (
		p        domain.Profile
		orgID    sql.NullInt64
		userID   sql.NullInt64
		email    sql.NullString
		login    sql.NullString
		nickname sql.NullString
		role     sql.NullString
		function sql.NullString
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &orgID, &p.CreatedAt,
		&userID, &email, &login, &nickname, &role, &function)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.OrganizationID = int64Ptr(orgID)
	if userID.Valid {
		p.User = &domain.User{
			ID:           userID.Int64,
			Email:        email.String,
			LoginName:    login.String,
			Nickname:     nickname.String,
			Role:         domain.Role(role.String),
			WorkFunction: function.String,
		}
	}
	return p, nil
}

// EmailTaken compares case-insensitively against active users.
func (r Repo) EmailTaken(ctx context.Context, email string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE lower(email)=? AND active=1`, strings.ToLower(strings.TrimSpace(email))).Scan(&n)
	return n > 0, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u *domain.User, passwordHash, createdAt string) error {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(email,login_name,nickname,role,work_function,password_hash,created_at) VALUES (?,?,?,?,?,?,?)`,
		u.Email, u.LoginName, u.Nickname, string(u.Role), u.WorkFunction, passwordHash, createdAt)
	if err != nil {
		return err
	}
	u.ID, err = res.LastInsertId()
	return err
}

// PasswordHash returns the stored hash for an active user by email.
func (r Repo) PasswordHash(ctx context.Context, email string) (int64, string, error) {
	var (
		id   int64
		hash string
	)
	err := r.DB.QueryRowContext(ctx, `SELECT id,password_hash FROM users WHERE lower(email)=? AND active=1`, strings.ToLower(email)).Scan(&id, &hash)
	if err == sql.ErrNoRows {
		return 0, "", ErrNotFound
	}
	return id, hash, err
}

func (r Repo) InsertProfile(ctx context.Context, tx *sql.Tx, p *domain.Profile) error {
	var userID any
	if p.User != nil {
		userID = p.User.ID
	}
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO profiles(name,description,user_id,organization_id,created_at) VALUES (?,?,?,?,?)`,
		p.Name, p.Description, userID, nullableInt64Ptr(p.OrganizationID), p.CreatedAt)
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

// GetProfileRow loads the profile and its user without task links.
func (r Repo) GetProfileRow(ctx context.Context, tx *sql.Tx, id int64) (domain.Profile, error) {
	return scanProfile(r.q(tx).QueryRowContext(ctx, profileSelect+` WHERE p.id=? AND p.active=1`, id))
}

// ProfileByUser finds the active profile owning userID.
func (r Repo) ProfileByUser(ctx context.Context, userID int64) (domain.Profile, error) {
	return scanProfile(r.DB.QueryRowContext(ctx, profileSelect+` WHERE p.user_id=? AND p.active=1`, userID))
}

func (r Repo) GetProfile(ctx context.Context, tx *sql.Tx, id int64) (domain.Profile, error) {
	p, err := r.GetProfileRow(ctx, tx, id)
	if err != nil {
		return p, err
	}
	if p.TaskProfiles, err = r.profileTasks(ctx, tx, p.ID); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

func (r Repo) ListProfiles(ctx context.Context, tx *sql.Tx, f ProfileFilters) ([]domain.Profile, error) {
	clauses := []string{"p.active=1"}
	var args []any
	if f.OrganizationID != nil {
		clauses = append(clauses, "p.organization_id=?")
		args = append(args, *f.OrganizationID)
	}
	if f.Unassigned {
		clauses = append(clauses, "p.organization_id IS NULL")
	}
	rows, err := r.q(tx).QueryContext(ctx, profileSelect+` WHERE `+strings.Join(clauses, " AND ")+` ORDER BY p.id`, args...)
	if err != nil {
		return nil, err
	}
	res := []domain.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].TaskProfiles, err = r.profileTasks(ctx, tx, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) profileTasks(ctx context.Context, tx *sql.Tx, profileID int64) ([]domain.TaskProfile, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+taskColumnsT+` FROM task_profiles tp JOIN tasks t ON t.id=tp.task_id AND t.active=1
WHERE tp.profile_id=? ORDER BY t.id`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TaskProfile{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, domain.TaskProfile{TaskID: t.ID, ProfileID: profileID, Task: &t})
	}
	return res, rows.Err()
}

func (r Repo) UpdateProfile(ctx context.Context, tx *sql.Tx, id int64, patch ProfilePatch) error {
	q := r.q(tx)
	var set setClause
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Description != nil {
		set.add("description", *patch.Description)
	}
	if !set.empty() {
		args := append(set.args, id)
		if err := affectedOrNotFound(q.ExecContext(ctx, `UPDATE profiles SET `+set.sql()+` WHERE id=? AND active=1`, args...)); err != nil {
			return err
		}
	}
	var userSet setClause
	if patch.Nickname != nil {
		userSet.add("nickname", *patch.Nickname)
	}
	if patch.Role != nil {
		userSet.add("role", string(*patch.Role))
	}
	if patch.WorkFunction != nil {
		userSet.add("work_function", *patch.WorkFunction)
	}
	if userSet.empty() {
		if set.empty() {
			// confirm the profile exists for an empty patch
			_, err := r.GetProfileRow(ctx, tx, id)
			return err
		}
		return nil
	}
	args := append(userSet.args, id)
	return affectedOrNotFound(q.ExecContext(ctx, `UPDATE users SET `+userSet.sql()+` WHERE id=(SELECT user_id FROM profiles WHERE id=? AND active=1)`, args...))
}

// SetProfileOrganization assigns the profile to orgID, or unassigns it when nil.
func (r Repo) SetProfileOrganization(ctx context.Context, tx *sql.Tx, profileID int64, orgID *int64) error {
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `UPDATE profiles SET organization_id=? WHERE id=? AND active=1`, nullableInt64Ptr(orgID), profileID))
}

// SoftDeleteProfile deactivates the profile and its user so the email frees up.
func (r Repo) SoftDeleteProfile(ctx context.Context, tx *sql.Tx, id int64) error {
	q := r.q(tx)
	if err := affectedOrNotFound(q.ExecContext(ctx, `UPDATE profiles SET active=0 WHERE id=? AND active=1`, id)); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `UPDATE users SET active=0 WHERE id=(SELECT user_id FROM profiles WHERE id=?)`, id)
	return err
}
