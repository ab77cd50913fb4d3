package domain

type Client struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID          string `json:"id"`
	ClientID    string `json:"client_id"`
	Name        string `json:"name"`
	Status      string `json:"status" enum:"active,on_hold,archived"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Room struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Stage statuses.
const (
	StageNotStarted    = "not_started"
	StageInProgress    = "in_progress"
	StageCompleted     = "completed"
	StageNotApplicable = "not_applicable"
)

type Stage struct {
	ID         string  `json:"id"`
	RoomID     string  `json:"room_id"`
	Type       string  `json:"type" enum:"design,three_d,drawings,ffe,client_approval"`
	Status     string  `json:"status" enum:"not_started,in_progress,completed,not_applicable"`
	AssigneeID *string `json:"assignee_id,omitempty"`
	DueDate    *string `json:"due_date,omitempty" format:"date"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	UpdatedAt  string  `json:"updated_at" format:"date-time"`
}

// Version workflows. Rendering versions hang off a three_d stage; floorplan
// versions hang off the project and keep exactly one current version.
const (
	WorkflowRendering = "rendering"
	WorkflowFloorplan = "floorplan"
)

// VersionStatus is the unified deliverable lifecycle shared by both
// workflows.
type VersionStatus string

const (
	VersionInProgress        VersionStatus = "in_progress"
	VersionCompleted         VersionStatus = "completed"
	VersionPushedToClient    VersionStatus = "pushed_to_client"
	VersionClientApproved    VersionStatus = "client_approved"
	VersionRevisionRequested VersionStatus = "revision_requested"
)

// Locked reports whether the version has been handed to the client. Locked
// versions refuse asset mutations.
func (s VersionStatus) Locked() bool {
	switch s {
	case VersionPushedToClient, VersionClientApproved, VersionRevisionRequested:
		return true
	}
	return false
}

// Terminal reports whether no further workflow transition exists.
func (s VersionStatus) Terminal() bool {
	return s == VersionClientApproved
}

type Version struct {
	ID          string        `json:"id"`
	OwnerKind   string        `json:"owner_kind" enum:"stage,project"`
	OwnerID     string        `json:"owner_id"`
	Workflow    string        `json:"workflow" enum:"rendering,floorplan"`
	Seq         int           `json:"seq"`
	Label       string        `json:"label"`
	Name        string        `json:"name,omitempty"`
	Status      VersionStatus `json:"status" enum:"in_progress,completed,pushed_to_client,client_approved,revision_requested"`
	Rev         int64         `json:"rev"`
	SourceFile  string        `json:"source_file,omitempty"`
	IsCurrent   bool          `json:"is_current"`
	CreatedBy   string        `json:"created_by"`
	CreatedAt   string        `json:"created_at" format:"date-time"`
	CompletedBy *string       `json:"completed_by,omitempty"`
	CompletedAt *string       `json:"completed_at,omitempty" format:"date-time"`
	PushedAt    *string       `json:"pushed_at,omitempty" format:"date-time"`
}

type Asset struct {
	ID             string `json:"id"`
	VersionID      string `json:"version_id"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	ContentType    string `json:"content_type,omitempty"`
	SizeBytes      int64  `json:"size_bytes,omitempty"`
	Description    string `json:"description,omitempty"`
	IncludeInEmail bool   `json:"include_in_email"`
	CreatedBy      string `json:"created_by"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type Note struct {
	ID        string    `json:"id"`
	ScopeKind string    `json:"scope_kind" enum:"version,stage,chat"`
	ScopeID   string    `json:"scope_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	Edited    bool      `json:"edited"`
	Mentions  []Mention `json:"mentions,omitempty"`
	CreatedAt string    `json:"created_at" format:"date-time"`
	UpdatedAt string    `json:"updated_at" format:"date-time"`
}

// Mention is a resolved @token inside a note body.
type Mention struct {
	MemberID    string `json:"member_id"`
	DisplayName string `json:"display_name"`
	Position    int    `json:"position"`
}

// Client approval decisions.
const (
	ApprovalPending           = "pending"
	ApprovalApproved          = "approved"
	ApprovalRevisionRequested = "revision_requested"
)

type ClientApproval struct {
	ID            string   `json:"id"`
	VersionID     string   `json:"version_id"`
	Token         string   `json:"token"`
	Status        string   `json:"status" enum:"pending,approved,revision_requested"`
	ClientMessage string   `json:"client_message,omitempty"`
	AssetIDs      []string `json:"asset_ids"`
	DecidedAt     *string  `json:"decided_at,omitempty" format:"date-time"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
}

type ActivityEntry struct {
	ID         int64   `json:"id"`
	TS         string  `json:"ts" format:"date-time"`
	Action     string  `json:"action"`
	EntityKind string  `json:"entity_kind"`
	EntityID   string  `json:"entity_id"`
	ActorID    *string `json:"actor_id,omitempty"`
	Detail     string  `json:"detail_json"`
}

type TeamMember struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type TimeEntry struct {
	ID        string `json:"id"`
	StageID   string `json:"stage_id"`
	MemberID  string `json:"member_id"`
	Minutes   int    `json:"minutes"`
	EntryDate string `json:"entry_date" format:"date"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	MemberID  string `json:"member_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
