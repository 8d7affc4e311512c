// Package audit turns entity changes into human-readable audit events.
//
// Field changes are described by a fixed per-kind table; fields absent from
// the table are never audited. Lifecycle actions (create, delete, link...)
// have their own messages. Persisting the resulting intents is the job of the
// Outbox, which is best-effort and never fails the mutation that produced them.
package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cisline/internal/domain"
)

type Kind string

const (
	KindOrganization Kind = "organization"
	KindSettings     Kind = "settings"
	KindProfile      Kind = "profile"
	KindTask         Kind = "task"
	KindArtifact     Kind = "artifact"
)

// Snapshot is the audited view of an entity: field name to display value.
type Snapshot map[string]string

type rule struct {
	field      string
	message    string
	importance domain.Importance
}

// table lists audited fields per kind in emission order. Artifact description
// is intentionally absent.
var table = map[Kind][]rule{
	KindOrganization: {
		{"name", "Organization name changed", domain.ImportanceLow},
		{"description", "Organization description changed", domain.ImportanceLow},
	},
	KindSettings: {
		{"upload_directory", "Upload directory changed", domain.ImportanceMiddle},
		{"download_directory", "Download directory changed", domain.ImportanceMiddle},
		{"artifact_directory", "Artifact directory changed", domain.ImportanceMiddle},
	},
	KindProfile: {
		{"name", "Profile name changed", domain.ImportanceLow},
		{"description", "Profile description changed", domain.ImportanceLow},
		{"role", "Profile role changed", domain.ImportanceHigh},
		{"work_function", "Profile work function changed", domain.ImportanceMiddle},
		{"nickname", "Profile nickname changed", domain.ImportanceLow},
	},
	KindTask: {
		{"name", "Task name changed", domain.ImportanceLow},
		{"description", "Task description changed", domain.ImportanceLow},
		{"expected_evidence", "Task expected evidence changed", domain.ImportanceLow},
		{"status", "Task status changed", domain.ImportanceHigh},
		{"start_at", "Task start date changed", domain.ImportanceMiddle},
		{"end_at", "Task end date changed", domain.ImportanceMiddle},
	},
	KindArtifact: {
		{"name", "Artifact name changed", domain.ImportanceLow},
	},
}

// Change is one audited difference or lifecycle action.
type Change struct {
	Field      string            `json:"field,omitempty"`
	Message    string            `json:"message"`
	Importance domain.Importance `json:"importance"`
	Before     string            `json:"before,omitempty"`
	After      string            `json:"after,omitempty"`
}

// Audited reports whether kind/field has an importance mapping.
func Audited(kind Kind, field string) bool {
	for _, r := range table[kind] {
		if r.field == field {
			return true
		}
	}
	return false
}

// Diff compares two snapshots. It returns one Change per mapped field whose
// trimmed values differ, in table order. A missing key reads as "".
func Diff(kind Kind, before, after Snapshot) []Change {
	var out []Change
	for _, r := range table[kind] {
		b := strings.TrimSpace(before[r.field])
		a := strings.TrimSpace(after[r.field])
		if a == b {
			continue
		}
		out = append(out, Change{Field: r.field, Message: r.message, Importance: r.importance, Before: b, After: a})
	}
	return out
}

type Action string

const (
	OrganizationCreated Action = "organization.created"
	OrganizationDeleted Action = "organization.deleted"
	SettingsCreated     Action = "settings.created"
	SettingsRemoved     Action = "settings.removed"
	ProfileAdded        Action = "profile.added"
	ProfileRemoved      Action = "profile.removed"
	ProfileCreated      Action = "profile.created"
	ProfileDeleted      Action = "profile.deleted"
	TaskCreated         Action = "task.created"
	TaskDeleted         Action = "task.deleted"
	ProfileAssigned     Action = "task.profile_assigned"
	ProfileUnassigned   Action = "task.profile_unassigned"
	ArtifactAdded       Action = "task.artifact_added"
	ArtifactRemoved     Action = "task.artifact_removed"
	ArtifactDeleted     Action = "artifact.deleted"
	SafeguardLinked     Action = "task.safeguard_linked"
	SafeguardUnlinked   Action = "task.safeguard_unlinked"
)

var lifecycle = map[Action]rule{
	OrganizationCreated: {message: "Organization created", importance: domain.ImportanceHigh},
	OrganizationDeleted: {message: "Organization deleted", importance: domain.ImportanceHigh},
	SettingsCreated:     {message: "Settings created", importance: domain.ImportanceMiddle},
	SettingsRemoved:     {message: "Settings removed", importance: domain.ImportanceMiddle},
	ProfileAdded:        {message: "Profile added", importance: domain.ImportanceHigh},
	ProfileRemoved:      {message: "Profile removed", importance: domain.ImportanceHigh},
	ProfileCreated:      {message: "Profile created", importance: domain.ImportanceHigh},
	ProfileDeleted:      {message: "Profile deleted", importance: domain.ImportanceHigh},
	TaskCreated:         {message: "Task created", importance: domain.ImportanceHigh},
	TaskDeleted:         {message: "Task deleted", importance: domain.ImportanceHigh},
	ProfileAssigned:     {message: "Profile assigned", importance: domain.ImportanceMiddle},
	ProfileUnassigned:   {message: "Profile unassigned", importance: domain.ImportanceMiddle},
	ArtifactAdded:       {message: "Artifact added", importance: domain.ImportanceMiddle},
	ArtifactRemoved:     {message: "Artifact removed", importance: domain.ImportanceMiddle},
	ArtifactDeleted:     {message: "Artifact deleted", importance: domain.ImportanceMiddle},
	SafeguardLinked:     {message: "Safeguard linked", importance: domain.ImportanceMiddle},
	SafeguardUnlinked:   {message: "Safeguard unlinked", importance: domain.ImportanceMiddle},
}

// Lifecycle describes an action on a named subject, e.g.
// `Organization created: "Acme"`. An empty subject drops the suffix.
func Lifecycle(action Action, subject string) Change {
	r, ok := lifecycle[action]
	if !ok {
		panic(fmt.Sprintf("audit: unknown action %q", action))
	}
	msg := r.message
	if subject != "" {
		msg = fmt.Sprintf("%s: %q", r.message, subject)
	}
	return Change{Message: msg, Importance: r.importance}
}

// Scope ties intents to the entities they describe and the acting principal.
type Scope struct {
	OrganizationID *int64
	ProfileID      *int64
	TaskID         *int64
	ActorID        string
}

// Intent is an audit event waiting to be persisted.
type Intent struct {
	ID         string
	Change     Change
	Scope      Scope
	OccurredAt time.Time
}

// Intents stamps changes with the scope and time.
func (s Scope) Intents(at time.Time, changes ...Change) []Intent {
	out := make([]Intent, 0, len(changes))
	for _, c := range changes {
		out = append(out, Intent{ID: uuid.NewString(), Change: c, Scope: s, OccurredAt: at})
	}
	return out
}

// Event renders the intent as the persisted record.
func (i Intent) Event() domain.Event {
	return domain.Event{
		Message:        i.Change.Message,
		Importance:     i.Change.Importance,
		OrganizationID: i.Scope.OrganizationID,
		ProfileID:      i.Scope.ProfileID,
		TaskID:         i.Scope.TaskID,
		ActorID:        i.Scope.ActorID,
		CreatedAt:      i.OccurredAt.UTC().Format(time.RFC3339),
	}
}

// Int64 is a convenience for building Scopes.
func Int64(v int64) *int64 { return &v }
