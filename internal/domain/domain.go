package domain

type TaskStatus string

const (
	TaskNotStarted TaskStatus = "NOT_STARTED"
	TaskOpen       TaskStatus = "OPEN"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskClosed     TaskStatus = "CLOSED"
)

// Valid reports whether s is one of the known task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskNotStarted, TaskOpen, TaskCompleted, TaskClosed:
		return true
	}
	return false
}

type Importance string

const (
	ImportanceLow    Importance = "LOW"
	ImportanceMiddle Importance = "MIDDLE"
	ImportanceHigh   Importance = "HIGH"
)

func (i Importance) Valid() bool {
	switch i {
	case ImportanceLow, ImportanceMiddle, ImportanceHigh:
		return true
	}
	return false
}

// Rank orders importances LOW < MIDDLE < HIGH; unknown values rank 0.
func (i Importance) Rank() int {
	switch i {
	case ImportanceLow:
		return 1
	case ImportanceMiddle:
		return 2
	case ImportanceHigh:
		return 3
	}
	return 0
}

type MessageType string

const (
	MessageSystem MessageType = "SYSTEM"
	MessageUser   MessageType = "USER"
)

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleAuditor Role = "AUDITOR"
	RoleUser    Role = "USER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleAuditor, RoleUser:
		return true
	}
	return false
}

type Organization struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Settings    *Settings `json:"settings"`
	Profiles    []Profile `json:"profiles"`
	Tasks       []Task    `json:"tasks"`
	CreatedAt   string    `json:"created_at" format:"date-time"`
	UpdatedAt   string    `json:"updated_at" format:"date-time"`
}

// Settings is optional per organization; a nil *Settings means no row exists.
type Settings struct {
	OrganizationID    int64  `json:"organization_id"`
	UploadDirectory   string `json:"upload_directory"`
	DownloadDirectory string `json:"download_directory"`
	ArtifactDirectory string `json:"artifact_directory"`
}

type User struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	LoginName    string `json:"login_name"`
	Nickname     string `json:"nickname,omitempty"`
	Role         Role   `json:"role" enum:"ADMIN,MANAGER,AUDITOR,USER"`
	WorkFunction string `json:"work_function,omitempty"`
}

type Profile struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	User           *User         `json:"user,omitempty"`
	OrganizationID *int64        `json:"organization_id,omitempty"`
	TaskProfiles   []TaskProfile `json:"task_profiles"`
	CreatedAt      string        `json:"created_at" format:"date-time"`
}

type Task struct {
	ID               int64          `json:"id"`
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	ExpectedEvidence string         `json:"expected_evidence"`
	StartAt          *string        `json:"start_at,omitempty" format:"date-time"`
	EndAt            *string        `json:"end_at,omitempty" format:"date-time"`
	Status           TaskStatus     `json:"status" enum:"NOT_STARTED,OPEN,COMPLETED,CLOSED"`
	OrganizationID   int64          `json:"organization_id"`
	TaskProfiles     []TaskProfile  `json:"task_profiles"`
	TaskArtifacts    []TaskArtifact `json:"task_artifacts"`
	Safeguards       []string       `json:"safeguards"`
	CreatedAt        string         `json:"created_at" format:"date-time"`
	UpdatedAt        string         `json:"updated_at" format:"date-time"`
}

// TaskProfile is the task<->profile join row. Profile or Task is populated
// depending on which side the row was loaded from.
type TaskProfile struct {
	TaskID    int64    `json:"task_id"`
	ProfileID int64    `json:"profile_id"`
	Profile   *Profile `json:"profile,omitempty"`
	Task      *Task    `json:"task,omitempty"`
}

type TaskArtifact struct {
	TaskID     int64     `json:"task_id"`
	ArtifactID int64     `json:"artifact_id"`
	Artifact   *Artifact `json:"artifact,omitempty"`
}

type Artifact struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	BlobKey     string `json:"blob_key,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Event is an append-only audit record.
type Event struct {
	ID             int64      `json:"id"`
	Message        string     `json:"message"`
	Importance     Importance `json:"importance" enum:"LOW,MIDDLE,HIGH"`
	OrganizationID *int64     `json:"organization_id,omitempty"`
	ProfileID      *int64     `json:"profile_id,omitempty"`
	TaskID         *int64     `json:"task_id,omitempty"`
	ActorID        string     `json:"actor_id,omitempty"`
	CreatedAt      string     `json:"created_at" format:"date-time"`
}

type Message struct {
	ID        int64       `json:"id"`
	TaskID    int64       `json:"task_id"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type" enum:"SYSTEM,USER"`
	IsRead    bool        `json:"is_read"`
	Sender    string      `json:"sender"`
	CreatedAt string      `json:"created_at" format:"date-time"`
	UpdatedAt string      `json:"updated_at" format:"date-time"`
}
