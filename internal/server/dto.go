package server

import (
	"cisline/internal/domain"
	"cisline/internal/engine"
	"cisline/internal/repo"
)

// Request payloads. Optional fields are pointers so PATCH bodies can carry
// any subset.

type OrganizationRequest struct {
	Name        string `json:"name" minLength:"1"`
	Description string `json:"description,omitempty"`
}

type OrganizationPatchRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (r OrganizationPatchRequest) patch() repo.OrganizationPatch {
	return repo.OrganizationPatch{Name: r.Name, Description: r.Description}
}

type SettingsRequest struct {
	UploadDirectory   *string `json:"upload_directory,omitempty"`
	DownloadDirectory *string `json:"download_directory,omitempty"`
	ArtifactDirectory *string `json:"artifact_directory,omitempty"`
}

type MembershipRequest struct {
	ProfileID int64 `json:"profile_id" minimum:"1"`
}

type ProfileRequest struct {
	Name           string      `json:"name" minLength:"1"`
	Description    string      `json:"description,omitempty"`
	Email          string      `json:"email"`
	LoginName      string      `json:"login_name,omitempty"`
	Nickname       string      `json:"nickname,omitempty"`
	Password       string      `json:"password" minLength:"1"`
	Role           domain.Role `json:"role,omitempty" enum:"ADMIN,MANAGER,AUDITOR,USER"`
	WorkFunction   string      `json:"work_function,omitempty"`
	OrganizationID *int64      `json:"organization_id,omitempty"`
}

func (r ProfileRequest) input() engine.ProfileInput {
	return engine.ProfileInput{
		Name:           r.Name,
		Description:    r.Description,
		Email:          r.Email,
		LoginName:      r.LoginName,
		Nickname:       r.Nickname,
		Password:       r.Password,
		Role:           r.Role,
		WorkFunction:   r.WorkFunction,
		OrganizationID: r.OrganizationID,
	}
}

type ProfilePatchRequest struct {
	Name         *string      `json:"name,omitempty"`
	Description  *string      `json:"description,omitempty"`
	Nickname     *string      `json:"nickname,omitempty"`
	Role         *domain.Role `json:"role,omitempty" enum:"ADMIN,MANAGER,AUDITOR,USER"`
	WorkFunction *string      `json:"work_function,omitempty"`
}

func (r ProfilePatchRequest) patch() repo.ProfilePatch {
	return repo.ProfilePatch{Name: r.Name, Description: r.Description, Nickname: r.Nickname, Role: r.Role, WorkFunction: r.WorkFunction}
}

type TaskRequest struct {
	OrganizationID   int64             `json:"organization_id" minimum:"1"`
	Name             string            `json:"name" minLength:"1"`
	Description      string            `json:"description,omitempty"`
	ExpectedEvidence string            `json:"expected_evidence,omitempty"`
	StartAt          *string           `json:"start_at,omitempty"`
	EndAt            *string           `json:"end_at,omitempty"`
	Status           domain.TaskStatus `json:"status,omitempty" enum:"NOT_STARTED,OPEN,COMPLETED,CLOSED"`
	Safeguards       []string          `json:"safeguards,omitempty"`
	ProfileIDs       []int64           `json:"profile_ids,omitempty"`
}

func (r TaskRequest) input() engine.TaskInput {
	return engine.TaskInput{
		OrganizationID:   r.OrganizationID,
		Name:             r.Name,
		Description:      r.Description,
		ExpectedEvidence: r.ExpectedEvidence,
		StartAt:          r.StartAt,
		EndAt:            r.EndAt,
		Status:           r.Status,
		Safeguards:       r.Safeguards,
		ProfileIDs:       r.ProfileIDs,
	}
}

// TaskPatchRequest clears a date when it is sent as "".
type TaskPatchRequest struct {
	Name             *string            `json:"name,omitempty"`
	Description      *string            `json:"description,omitempty"`
	ExpectedEvidence *string            `json:"expected_evidence,omitempty"`
	StartAt          *string            `json:"start_at,omitempty"`
	EndAt            *string            `json:"end_at,omitempty"`
	Status           *domain.TaskStatus `json:"status,omitempty" enum:"NOT_STARTED,OPEN,COMPLETED,CLOSED"`
}

func (r TaskPatchRequest) update() engine.TaskUpdate {
	return engine.TaskUpdate{
		Name:             r.Name,
		Description:      r.Description,
		ExpectedEvidence: r.ExpectedEvidence,
		StartAt:          r.StartAt,
		EndAt:            r.EndAt,
		Status:           r.Status,
	}
}

type ArtifactRequest struct {
	Name        string `json:"name" minLength:"1"`
	Description string `json:"description,omitempty"`
	TaskID      *int64 `json:"task_id,omitempty"`
}

type ArtifactPatchRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type TaskProfileRequest struct {
	TaskID    int64 `json:"task_id" minimum:"1"`
	ProfileID int64 `json:"profile_id" minimum:"1"`
}

type TaskArtifactRequest struct {
	TaskID     int64 `json:"task_id" minimum:"1"`
	ArtifactID int64 `json:"artifact_id" minimum:"1"`
}

type TaskSafeguardRequest struct {
	TaskID      int64  `json:"task_id" minimum:"1"`
	SafeguardID string `json:"safeguard_id" minLength:"1"`
}

type EventRequest struct {
	Message        string            `json:"message" minLength:"1"`
	Importance     domain.Importance `json:"importance,omitempty" enum:"LOW,MIDDLE,HIGH"`
	OrganizationID *int64            `json:"organization_id,omitempty"`
	ProfileID      *int64            `json:"profile_id,omitempty"`
	TaskID         *int64            `json:"task_id,omitempty"`
}

type MessageRequest struct {
	TaskID  int64              `json:"task_id" minimum:"1"`
	Content string             `json:"content" minLength:"1"`
	Type    domain.MessageType `json:"type,omitempty" enum:"SYSTEM,USER"`
}

// MessagePatchRequest edits content (sender only) or marks the message read.
type MessagePatchRequest struct {
	Content *string `json:"content,omitempty"`
	IsRead  *bool   `json:"is_read,omitempty"`
}

type CheckEmailRequest struct {
	Email string `json:"email"`
}

type CheckPasswordRequest struct {
	Password   string   `json:"password"`
	UserInputs []string `json:"user_inputs,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Response payloads

type DeletedResponse struct {
	ID int64 `json:"id"`
}

type TokenResponse struct {
	Token     string         `json:"token"`
	ExpiresAt string         `json:"expires_at" format:"date-time"`
	Profile   domain.Profile `json:"profile"`
}
