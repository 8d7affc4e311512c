package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"cisline/internal/audit"
	"cisline/internal/domain"
	"cisline/internal/engine/auth"
	"cisline/internal/repo"
)

// ProfileInput creates a profile together with its login-capable user.
type ProfileInput struct {
	Name           string
	Description    string
	Email          string
	LoginName      string
	Nickname       string
	Password       string
	Role           domain.Role
	WorkFunction   string
	OrganizationID *int64
}

func profileScope(p domain.Profile, actorID string) audit.Scope {
	return audit.Scope{OrganizationID: p.OrganizationID, ProfileID: audit.Int64(p.ID), ActorID: actorID}
}

func (e Engine) GetProfile(ctx context.Context, id int64) (domain.Profile, error) {
	return e.Repo.GetProfile(ctx, nil, id)
}

func (e Engine) ListProfiles(ctx context.Context, f repo.ProfileFilters) ([]domain.Profile, error) {
	return e.Repo.ListProfiles(ctx, nil, f)
}

func (e Engine) CheckEmail(ctx context.Context, email string) (auth.EmailCheck, error) {
	return e.Credentials.CheckEmail(ctx, email)
}

func (e Engine) CheckPassword(password string, userInputs ...string) auth.PasswordCheck {
	return auth.CheckPassword(password, userInputs...)
}

// CreateProfile is the only operation behind the credential gate: the email
// must be well formed and free, and the password strong enough.
func (e Engine) CreateProfile(ctx context.Context, in ProfileInput, actorID string) (_ domain.Profile, err error) {
	ctx, span := e.span(ctx, "CreateProfile", actorAttr(actorID))
	defer finish(span, &err)

	name, err := required("name", in.Name)
	if err != nil {
		return domain.Profile{}, err
	}
	email, err := auth.NormalizeEmail(in.Email)
	if err != nil {
		return domain.Profile{}, ValidationError{Field: "email", Message: "is not a valid address"}
	}
	login := strings.TrimSpace(in.LoginName)
	if login == "" {
		login = email
	}
	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return domain.Profile{}, ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}
	if pw := auth.CheckPassword(in.Password, email, login, in.Nickname); !pw.Strong {
		return domain.Profile{}, ValidationError{Field: "password", Message: "is too weak: " + pw.Reason}
	}
	taken, err := e.Repo.EmailTaken(ctx, email)
	if err != nil {
		return domain.Profile{}, err
	}
	if taken {
		return domain.Profile{}, ConflictError{Message: fmt.Sprintf("email %s is already registered", email)}
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	now := e.stamp()
	p := domain.Profile{
		Name:           name,
		Description:    strings.TrimSpace(in.Description),
		OrganizationID: in.OrganizationID,
		CreatedAt:      now,
		User: &domain.User{
			Email:        email,
			LoginName:    login,
			Nickname:     strings.TrimSpace(in.Nickname),
			Role:         role,
			WorkFunction: strings.TrimSpace(in.WorkFunction),
		},
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if p.OrganizationID != nil {
			if _, err := e.Repo.GetOrganizationRow(ctx, tx, *p.OrganizationID); err != nil {
				return err
			}
		}
		if err := e.Repo.InsertUser(ctx, tx, p.User, hash, now); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return e.Repo.InsertProfile(ctx, tx, &p)
	})
	if err != nil {
		return domain.Profile{}, err
	}
	span.SetAttributes(attribute.Int64("cisline.profile_id", p.ID))
	changes := []audit.Change{audit.Lifecycle(audit.ProfileCreated, p.Name)}
	if p.OrganizationID != nil {
		changes = append(changes, audit.Lifecycle(audit.ProfileAdded, p.Name))
	}
	e.emit(profileScope(p, actorID), changes...)
	return e.Repo.GetProfile(ctx, nil, p.ID)
}

// UpdateProfile patches non-credential fields; there is no gate here.
func (e Engine) UpdateProfile(ctx context.Context, id int64, patch repo.ProfilePatch, actorID string) (_ domain.Profile, err error) {
	ctx, span := e.span(ctx, "UpdateProfile", actorAttr(actorID), attribute.Int64("cisline.profile_id", id))
	defer finish(span, &err)

	if patch.Name != nil {
		name, err := required("name", *patch.Name)
		if err != nil {
			return domain.Profile{}, err
		}
		patch.Name = &name
	}
	patch.Description = trimPtr(patch.Description)
	patch.Nickname = trimPtr(patch.Nickname)
	patch.WorkFunction = trimPtr(patch.WorkFunction)
	if patch.Role != nil && !patch.Role.Valid() {
		return domain.Profile{}, ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", *patch.Role)}
	}

	var before, after domain.Profile
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if before, err = e.Repo.GetProfileRow(ctx, tx, id); err != nil {
			return err
		}
		if err := e.Repo.UpdateProfile(ctx, tx, id, patch); err != nil {
			return err
		}
		after, err = e.Repo.GetProfileRow(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.Profile{}, err
	}
	e.emit(profileScope(after, actorID), audit.Diff(audit.KindProfile, profileSnapshot(before), profileSnapshot(after))...)
	return e.Repo.GetProfile(ctx, nil, id)
}

func (e Engine) DeleteProfile(ctx context.Context, id int64, actorID string) (err error) {
	ctx, span := e.span(ctx, "DeleteProfile", actorAttr(actorID), attribute.Int64("cisline.profile_id", id))
	defer finish(span, &err)

	var p domain.Profile
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if p, err = e.Repo.GetProfileRow(ctx, tx, id); err != nil {
			return err
		}
		return e.Repo.SoftDeleteProfile(ctx, tx, id)
	})
	if err != nil {
		return err
	}
	e.emit(profileScope(p, actorID), audit.Lifecycle(audit.ProfileDeleted, p.Name))
	return nil
}

// Authenticate verifies an email/password pair and returns the user's profile.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.Profile, error) {
	norm, err := auth.NormalizeEmail(email)
	if err != nil {
		return domain.Profile{}, auth.ForbiddenError{Action: "login", Reason: "invalid credentials"}
	}
	userID, hash, err := e.Repo.PasswordHash(ctx, norm)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !auth.VerifyPassword(hash, password)) {
		return domain.Profile{}, auth.ForbiddenError{Action: "login", Reason: "invalid credentials"}
	}
	if err != nil {
		return domain.Profile{}, err
	}
	return e.Repo.ProfileByUser(ctx, userID)
}
