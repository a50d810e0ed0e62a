package domain

// Approval sub-states for tasks flagged requires_approval.
const (
	ApprovalNotApplicable = "not_applicable"
	ApprovalPending       = "pending"
	ApprovalApproved      = "approved"
	ApprovalRejected      = "rejected"
)

// Status is a workflow status catalog entry. The kanban column is a property
// of the status, so moving a task between columns is a status change.
type Status struct {
	ID           int64  `json:"id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	KanbanColumn string `json:"kanban_column"`
	IsCancelled  bool   `json:"is_cancelled"`
	IsTerminal   bool   `json:"is_terminal"`
	SortOrder    int    `json:"sort_order"`
}

// RelationType is a catalog entry for typed task-to-task edges.
type RelationType struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type Tag struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Person is a referenced identity from the people module. RoutingID is the
// notification-routing identity handed to the dispatcher.
type Person struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	RoutingID string `json:"routing_id,omitempty"`
	Active    bool   `json:"active"`
}

type Client struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Task is the aggregate root. Child collections are hydrated by get-by-id;
// list endpoints return the bare row plus the computed boost score.
type Task struct {
	ID               int64   `json:"id"`
	ClientID         int64   `json:"client_id"`
	MilestoneID      *int64  `json:"milestone_id,omitempty"`
	ParentID         *int64  `json:"parent_id,omitempty"`
	Title            string  `json:"title"`
	Description      string  `json:"description,omitempty"`
	StatusID         int64   `json:"status_id"`
	KanbanColumn     string  `json:"kanban_column,omitempty"`
	KanbanOrder      int     `json:"kanban_order"`
	StartDate        *string `json:"start_date,omitempty" format:"date"`
	DueDate          *string `json:"due_date,omitempty" format:"date"`
	Completion       int     `json:"completion"`
	Impact           int     `json:"impact"`
	Urgency          int     `json:"urgency"`
	ManualBoost      bool    `json:"manual_boost"`
	Boost            int     `json:"boost"`
	RequiresApproval bool    `json:"requires_approval"`
	ApprovalStatus   string  `json:"approval_status" enum:"not_applicable,pending,approved,rejected"`
	RejectionReason  *string `json:"rejection_reason,omitempty"`
	CancelReason     *string `json:"cancel_reason,omitempty"`
	IsArchived       bool    `json:"is_archived"`
	DeletedAt        *string `json:"deleted_at,omitempty" format:"date-time"`
	CreatedBy        int64   `json:"created_by"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`

	Responsibles  []Responsible   `json:"responsables,omitempty"`
	Collaborators []Collaborator  `json:"colaboradores,omitempty"`
	Tags          []Tag           `json:"tags,omitempty"`
	Checklist     []ChecklistItem `json:"checklist,omitempty"`
	Relations     []Relation      `json:"relations,omitempty"`
	Attachments   []Attachment    `json:"attachments,omitempty"`
}

// Responsible joins a task to a person. At most one row per task carries
// es_lider.
type Responsible struct {
	TaskID    int64  `json:"task_id"`
	PersonID  int64  `json:"feder_id"`
	IsLeader  bool   `json:"es_lider"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Collaborator struct {
	TaskID    int64  `json:"task_id"`
	PersonID  int64  `json:"feder_id"`
	Role      string `json:"role,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ChecklistItem struct {
	ID        int64  `json:"id"`
	TaskID    int64  `json:"task_id"`
	Title     string `json:"title"`
	IsDone    bool   `json:"is_done"`
	SortOrder int    `json:"sort_order"`
}

// Comment optionally replies to another comment on the same task. Read-side
// fields (AuthorName, IsMine, reaction summaries, parent preview) are computed
// per viewer and never persisted.
type Comment struct {
	ID        int64  `json:"id"`
	TaskID    int64  `json:"task_id"`
	AuthorID  int64  `json:"author_id"`
	Content   string `json:"content"`
	ReplyToID *int64 `json:"reply_to_id,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`

	AuthorName   string            `json:"author_name,omitempty"`
	IsMine       bool              `json:"is_mine"`
	ReplyPreview *string           `json:"reply_preview,omitempty"`
	Mentions     []int64           `json:"mentions,omitempty"`
	Attachments  []Attachment      `json:"attachments,omitempty"`
	Reactions    []ReactionSummary `json:"reactions,omitempty"`
}

type Reaction struct {
	CommentID int64  `json:"comment_id"`
	PersonID  int64  `json:"person_id"`
	Emoji     string `json:"emoji"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ReactionSummary aggregates reactions per emoji for one comment, with a
// viewer-relative Mine flag.
type ReactionSummary struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
	Mine  bool   `json:"mine"`
}

// Attachment metadata as returned by the storage bridge. Exactly one of
// TaskID/CommentID is set.
type Attachment struct {
	ID         int64  `json:"id"`
	TaskID     *int64 `json:"task_id,omitempty"`
	CommentID  *int64 `json:"comment_id,omitempty"`
	Name       string `json:"name"`
	Mime       string `json:"mime"`
	Size       int64  `json:"size"`
	URL        string `json:"url,omitempty"`
	DriveID    string `json:"drive_id,omitempty"`
	IsEmbedded bool   `json:"is_embedded"`
	UploaderID int64  `json:"uploader_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Relation is a directed, typed edge between two tasks.
type Relation struct {
	ID            int64  `json:"id"`
	TaskID        int64  `json:"task_id"`
	RelatedTaskID int64  `json:"related_task_id"`
	TypeCode      string `json:"type"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// HistoryEntry is an immutable audit row. Payload is a small JSON object
// holding the before/after values relevant to the kind.
type HistoryEntry struct {
	ID      int64  `json:"id"`
	TaskID  int64  `json:"task_id"`
	ActorID int64  `json:"actor_id"`
	Kind    string `json:"kind"`
	Payload string `json:"payload_json"`
	TS      string `json:"ts" format:"date-time"`
}
