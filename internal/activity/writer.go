package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Action tags form a fixed vocabulary; every state-changing operation
// appends exactly one entry. Entries are never edited or deleted.
const (
	ActionCreate         = "create"
	ActionUpload         = "upload"
	ActionComplete       = "complete"
	ActionReopen         = "reopen"
	ActionPushToClient   = "push_to_client"
	ActionClientDecision = "client_decision"
	ActionDelete         = "delete"
	ActionUpdate         = "update"
	ActionStageStatus    = "stage_status"
	ActionAssign         = "assign"
	ActionComment        = "comment"
	ActionTimeLogged     = "time_logged"
)

// One detail record per action tag.

type CreateDetail struct {
	Label    string `json:"label"`
	Workflow string `json:"workflow,omitempty"`
	Name     string `json:"name,omitempty"`
}

type UploadDetail struct {
	AssetID   string `json:"asset_id"`
	Title     string `json:"title"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

type CompleteDetail struct {
	Label string `json:"label"`
}

type ReopenDetail struct {
	Label string `json:"label"`
	From  string `json:"from"`
}

type PushDetail struct {
	Label      string   `json:"label"`
	ApprovalID string   `json:"approval_id"`
	AssetIDs   []string `json:"asset_ids"`
}

type DecisionDetail struct {
	ApprovalID string `json:"approval_id"`
	Decision   string `json:"decision"`
	Message    string `json:"message,omitempty"`
}

type DeleteDetail struct {
	Label  string `json:"label"`
	Status string `json:"status"`
}

type AssetDeleteDetail struct {
	AssetID string `json:"asset_id"`
	Title   string `json:"title"`
}

type ProjectUpdateDetail struct {
	Status             string `json:"status,omitempty"`
	DescriptionChanged bool   `json:"description_changed,omitempty"`
}

type AssetUpdateDetail struct {
	AssetID string   `json:"asset_id"`
	Fields  []string `json:"fields,omitempty"`
}

type DueDetail struct {
	DueDate string `json:"due_date,omitempty"`
}

type StageStatusDetail struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type AssignDetail struct {
	AssigneeID string `json:"assignee_id,omitempty"`
}

type CommentDetail struct {
	NoteID   string   `json:"note_id"`
	Mentions []string `json:"mentions,omitempty"`
}

type TimeLoggedDetail struct {
	MemberID string `json:"member_id"`
	Minutes  int    `json:"minutes"`
}

// Writer appends activity entries inside the caller's transaction.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append writes one immutable entry. actorID may be empty for client or
// system events; it is stored as NULL.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, action, entityKind, entityID, actorID string, detail any) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if detail == nil {
		detail = struct{}{}
	}
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal activity detail: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO activity_log(ts,action,entity_kind,entity_id,actor_id,detail_json) VALUES (?,?,?,?,?,?)`,
		ts, action, entityKind, entityID, nullable(actorID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
