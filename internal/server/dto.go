package server

// Request DTOs. Responses reuse the domain types, which carry the JSON
// schema tags huma needs.

type CreateClientRequest struct {
	Name  string `json:"name" minLength:"1"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type CreateProjectRequest struct {
	ClientID    string `json:"client_id" minLength:"1"`
	Name        string `json:"name" minLength:"1"`
	Description string `json:"description,omitempty"`
}

type UpdateProjectRequest struct {
	Status      string  `json:"status,omitempty" enum:"active,on_hold,archived"`
	Description *string `json:"description,omitempty"`
}

type CreateRoomRequest struct {
	Name string `json:"name" minLength:"1"`
}

type AssignStageRequest struct {
	AssigneeID string `json:"assignee_id"`
}

type StageDueRequest struct {
	DueDate string `json:"due_date"`
}

type CreateVersionRequest struct {
	Name       string `json:"name,omitempty"`
	SourceFile string `json:"source_file,omitempty"`
}

// RevRequest carries the optional optimistic-concurrency token; zero skips
// the check.
type RevRequest struct {
	Rev int64 `json:"rev,omitempty"`
}

type PushVersionRequest struct {
	AssetIDs []string `json:"asset_ids"`
	Rev      int64    `json:"rev,omitempty"`
}

type AddAssetRequest struct {
	Title          string `json:"title" minLength:"1"`
	URL            string `json:"url" minLength:"1"`
	ContentType    string `json:"content_type,omitempty"`
	SizeBytes      int64  `json:"size_bytes,omitempty"`
	Description    string `json:"description,omitempty"`
	IncludeInEmail bool   `json:"include_in_email,omitempty"`
}

type PatchAssetRequest struct {
	Title          *string `json:"title,omitempty"`
	Description    *string `json:"description,omitempty"`
	IncludeInEmail *bool   `json:"include_in_email,omitempty"`
}

type NoteRequest struct {
	Body string `json:"body" minLength:"1"`
}

type ClientDecisionRequest struct {
	Decision string `json:"decision" enum:"approved,revision_requested"`
	Message  string `json:"message,omitempty"`
}

type CreateTeamMemberRequest struct {
	Name  string `json:"name" minLength:"1"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

type MintAPIKeyRequest struct {
	MemberID string `json:"member_id" minLength:"1"`
	Name     string `json:"name,omitempty"`
}

type MintAPIKeyResponse struct {
	ID       string `json:"id"`
	MemberID string `json:"member_id"`
	Name     string `json:"name,omitempty"`
	Key      string `json:"key"`
	// Key is shown once; only its hash is stored.
	CreatedAt string `json:"created_at" format:"date-time"`
}

type LogTimeRequest struct {
	MemberID  string `json:"member_id" minLength:"1"`
	Minutes   int    `json:"minutes" minimum:"1"`
	EntryDate string `json:"entry_date,omitempty" format:"date"`
	Note      string `json:"note,omitempty"`
}

type IssueTokenRequest struct {
	MemberID string `json:"member_id" minLength:"1"`
}

type IssueTokenResponse struct {
	Token string `json:"token"`
}
