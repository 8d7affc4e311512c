package cislinesdk

// Models mirror the API's JSON. Optional fields are pointers.

type Organization struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Settings    *Settings `json:"settings"`
	Profiles    []Profile `json:"profiles"`
	Tasks       []Task    `json:"tasks"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

func (o Organization) Key() int64 { return o.ID }

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
	Role         string `json:"role"`
	WorkFunction string `json:"work_function,omitempty"`
}

type Profile struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	User           *User         `json:"user,omitempty"`
	OrganizationID *int64        `json:"organization_id,omitempty"`
	TaskProfiles   []TaskProfile `json:"task_profiles"`
	CreatedAt      string        `json:"created_at"`
}

func (p Profile) Key() int64 { return p.ID }

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

type Task struct {
	ID               int64          `json:"id"`
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	ExpectedEvidence string         `json:"expected_evidence"`
	StartAt          *string        `json:"start_at,omitempty"`
	EndAt            *string        `json:"end_at,omitempty"`
	Status           string         `json:"status"`
	OrganizationID   int64          `json:"organization_id"`
	TaskProfiles     []TaskProfile  `json:"task_profiles"`
	TaskArtifacts    []TaskArtifact `json:"task_artifacts"`
	Safeguards       []string       `json:"safeguards"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
}

func (t Task) Key() int64 { return t.ID }

type Artifact struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	CreatedAt   string `json:"created_at"`
}

func (a Artifact) Key() int64 { return a.ID }

type Event struct {
	ID             int64  `json:"id"`
	Message        string `json:"message"`
	Importance     string `json:"importance"`
	OrganizationID *int64 `json:"organization_id,omitempty"`
	ProfileID      *int64 `json:"profile_id,omitempty"`
	TaskID         *int64 `json:"task_id,omitempty"`
	ActorID        string `json:"actor_id,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type Message struct {
	ID        int64  `json:"id"`
	TaskID    int64  `json:"task_id"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	IsRead    bool   `json:"is_read"`
	Sender    string `json:"sender"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type Safeguard struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	AssetType           string `json:"asset_type"`
	SecurityFunction    string `json:"security_function"`
	ImplementationGroup int    `json:"implementation_group"`
	ControlID           string `json:"control_id"`
	ControlTitle        string `json:"control_title"`
}

type Control struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Safeguards []Safeguard `json:"safeguards"`
}

type EmailCheck struct {
	Email     string `json:"email"`
	Valid     bool   `json:"valid"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type PasswordCheck struct {
	Score     int     `json:"score"`
	Strong    bool    `json:"strong"`
	Entropy   float64 `json:"entropy"`
	CrackTime string  `json:"crack_time"`
	Reason    string  `json:"reason,omitempty"`
}

type Token struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expires_at"`
	Profile   Profile `json:"profile"`
}

// Request bodies

type OrganizationPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type SettingsPatch struct {
	UploadDirectory   *string `json:"upload_directory,omitempty"`
	DownloadDirectory *string `json:"download_directory,omitempty"`
	ArtifactDirectory *string `json:"artifact_directory,omitempty"`
}

type ProfileCreate struct {
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Email          string `json:"email"`
	LoginName      string `json:"login_name,omitempty"`
	Nickname       string `json:"nickname,omitempty"`
	Password       string `json:"password"`
	Role           string `json:"role,omitempty"`
	WorkFunction   string `json:"work_function,omitempty"`
	OrganizationID *int64 `json:"organization_id,omitempty"`
}

type ProfilePatch struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	Nickname     *string `json:"nickname,omitempty"`
	Role         *string `json:"role,omitempty"`
	WorkFunction *string `json:"work_function,omitempty"`
}

type ProfileQuery struct {
	OrganizationID int64
	Unassigned     bool
}

type TaskCreate struct {
	OrganizationID   int64    `json:"organization_id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	ExpectedEvidence string   `json:"expected_evidence,omitempty"`
	StartAt          *string  `json:"start_at,omitempty"`
	EndAt            *string  `json:"end_at,omitempty"`
	Status           string   `json:"status,omitempty"`
	Safeguards       []string `json:"safeguards,omitempty"`
	ProfileIDs       []int64  `json:"profile_ids,omitempty"`
}

// TaskPatch clears StartAt/EndAt when they point at "".
type TaskPatch struct {
	Name             *string `json:"name,omitempty"`
	Description      *string `json:"description,omitempty"`
	ExpectedEvidence *string `json:"expected_evidence,omitempty"`
	StartAt          *string `json:"start_at,omitempty"`
	EndAt            *string `json:"end_at,omitempty"`
	Status           *string `json:"status,omitempty"`
}

type TaskQuery struct {
	OrganizationID int64
	Status         string
}

type ArtifactCreate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TaskID      *int64 `json:"task_id,omitempty"`
}

type ArtifactPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type EventCreate struct {
	Message        string `json:"message"`
	Importance     string `json:"importance,omitempty"`
	OrganizationID *int64 `json:"organization_id,omitempty"`
	ProfileID      *int64 `json:"profile_id,omitempty"`
	TaskID         *int64 `json:"task_id,omitempty"`
}

type EventQuery struct {
	OrganizationID int64
	ProfileID      int64
	TaskID         int64
	Importance     string
	Before         int64
	Limit          int
}

// String returns a pointer to s, for patch fields.
func String(s string) *string { return &s }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
