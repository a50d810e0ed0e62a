// Package engine implements the task workflow: lifecycle, approval, kanban,
// membership, checklist, relations, attachments, and the audit trail. Every
// mutation runs in one transaction together with its history entry;
// notifications fire only after commit.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"intraops/internal/config"
	"intraops/internal/domain"
	"intraops/internal/history"
	"intraops/internal/notify"
	"intraops/internal/repo"
)

// Ancestor walks longer than this are treated as corrupt hierarchies.
const maxHierarchyDepth = 64

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	History  history.Writer
	Config   *config.Config
	Notifier *notify.Sender

	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time
}

func New(db *sql.DB, cfg *config.Config, notifier *notify.Sender) *Engine {
	return &Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		History:  history.Writer{DB: db},
		Config:   cfg,
		Notifier: notifier,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// liveTask loads a task and rejects mutations on trashed ones. Restore is the
// only operation that bypasses this.
func (e *Engine) liveTask(ctx context.Context, id int64) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	if t.DeletedAt != nil {
		return t, invariant("task_trashed", "task %d is in the trash", id)
	}
	return t, nil
}

// EnsureLive reports whether a task exists outside the trash. Callers with
// side effects of their own (file uploads) check this before doing work that
// a failed mutation would not undo.
func (e *Engine) EnsureLive(ctx context.Context, id int64) error {
	_, err := e.liveTask(ctx, id)
	return err
}

func (e *Engine) link(taskID int64) string {
	if e.Config.Notify.LinkBase == "" {
		return ""
	}
	return fmt.Sprintf("%s/tareas/%d", e.Config.Notify.LinkBase, taskID)
}

// memberDestinations resolves responsibles plus collaborators of a task into
// notification destinations, excluding the acting person.
func (e *Engine) memberDestinations(ctx context.Context, taskID, exclude int64) ([]notify.Destination, error) {
	responsibles, err := e.Repo.ListResponsibles(ctx, taskID)
	if err != nil {
		return nil, err
	}
	collaborators, err := e.Repo.ListCollaborators(ctx, taskID)
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{exclude: true}
	var ids []int64
	for _, r := range responsibles {
		if !seen[r.PersonID] {
			seen[r.PersonID] = true
			ids = append(ids, r.PersonID)
		}
	}
	for _, c := range collaborators {
		if !seen[c.PersonID] {
			seen[c.PersonID] = true
			ids = append(ids, c.PersonID)
		}
	}
	return e.personDestinations(ctx, ids)
}

func (e *Engine) personDestinations(ctx context.Context, ids []int64) ([]notify.Destination, error) {
	persons, err := e.Repo.ListPersonsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	dests := make([]notify.Destination, 0, len(persons))
	for _, p := range persons {
		dests = append(dests, notify.Destination{PersonID: p.ID, RoutingID: p.RoutingID})
	}
	return dests, nil
}

func (e *Engine) notifyTask(kind, title, body string, taskID int64, dests []notify.Destination) {
	e.Notifier.Send(notify.Notification{
		Kind:         kind,
		Title:        title,
		Body:         body,
		Payload:      map[string]any{"task_id": taskID},
		LinkURL:      e.link(taskID),
		Channels:     e.Config.Notify.Channels,
		Destinations: dests,
	})
}

type ResponsibleInput struct {
	PersonID int64 `json:"feder_id"`
	IsLeader bool  `json:"es_lider"`
}

type CollaboratorInput struct {
	PersonID int64  `json:"feder_id"`
	Role     string `json:"role,omitempty"`
}

type CreateTaskInput struct {
	ClientID         int64               `json:"client_id"`
	Title            string              `json:"title"`
	Description      string              `json:"description,omitempty"`
	MilestoneID      *int64              `json:"milestone_id,omitempty"`
	ParentID         *int64              `json:"parent_id,omitempty"`
	StatusCode       string              `json:"status,omitempty"`
	StartDate        *string             `json:"start_date,omitempty"`
	DueDate          *string             `json:"due_date,omitempty"`
	Impact           int                 `json:"impact,omitempty"`
	Urgency          int                 `json:"urgency,omitempty"`
	ManualBoost      bool                `json:"manual_boost,omitempty"`
	RequiresApproval bool                `json:"requires_approval,omitempty"`
	Responsibles     []ResponsibleInput  `json:"responsables,omitempty"`
	Collaborators    []CollaboratorInput `json:"colaboradores,omitempty"`
	Tags             []int64             `json:"tags,omitempty"`
}

// Create inserts a task with its initial members and tags, writes the creation
// history entry, and notifies the initial members after commit.
func (e *Engine) Create(ctx context.Context, actorID int64, in CreateTaskInput) (domain.Task, error) {
	if in.Title == "" {
		return domain.Task{}, validation("title", "title is required")
	}
	if in.ClientID == 0 {
		return domain.Task{}, validation("client_id", "client_id is required")
	}
	if _, err := e.Repo.GetClient(ctx, in.ClientID); err != nil {
		if err == repo.ErrNotFound {
			return domain.Task{}, validation("client_id", "unknown client %d", in.ClientID)
		}
		return domain.Task{}, err
	}
	if in.MilestoneID != nil {
		ok, err := e.Repo.MilestoneExists(ctx, *in.MilestoneID)
		if err != nil {
			return domain.Task{}, err
		}
		if !ok {
			return domain.Task{}, validation("milestone_id", "unknown milestone %d", *in.MilestoneID)
		}
	}
	if in.ParentID != nil {
		if _, err := e.liveTask(ctx, *in.ParentID); err != nil {
			if err == repo.ErrNotFound {
				return domain.Task{}, validation("parent_id", "unknown parent task %d", *in.ParentID)
			}
			return domain.Task{}, err
		}
	}
	impact, err := levelOrDefault("impact", in.Impact)
	if err != nil {
		return domain.Task{}, err
	}
	urgency, err := levelOrDefault("urgency", in.Urgency)
	if err != nil {
		return domain.Task{}, err
	}
	statusCode := in.StatusCode
	if statusCode == "" {
		statusCode = "pendiente"
	}
	status, err := e.Repo.GetStatusByCode(ctx, statusCode)
	if err != nil {
		if err == repo.ErrNotFound {
			return domain.Task{}, validation("status", "unknown status %q", statusCode)
		}
		return domain.Task{}, err
	}
	leaders := 0
	for _, r := range in.Responsibles {
		if r.IsLeader {
			leaders++
		}
		if _, err := e.Repo.GetPerson(ctx, r.PersonID); err != nil {
			if err == repo.ErrNotFound {
				return domain.Task{}, validation("responsables", "unknown person %d", r.PersonID)
			}
			return domain.Task{}, err
		}
	}
	if leaders > 1 {
		return domain.Task{}, invariant("leader_exclusive", "a task can have at most one responsible leader")
	}
	for _, c := range in.Collaborators {
		if _, err := e.Repo.GetPerson(ctx, c.PersonID); err != nil {
			if err == repo.ErrNotFound {
				return domain.Task{}, validation("colaboradores", "unknown person %d", c.PersonID)
			}
			return domain.Task{}, err
		}
	}
	for _, tagID := range in.Tags {
		if _, err := e.Repo.GetTag(ctx, tagID); err != nil {
			if err == repo.ErrNotFound {
				return domain.Task{}, validation("tags", "unknown tag %d", tagID)
			}
			return domain.Task{}, err
		}
	}

	ts := e.timestamp()
	approval := domain.ApprovalNotApplicable
	if in.RequiresApproval {
		approval = domain.ApprovalPending
	}
	t := domain.Task{
		ClientID:         in.ClientID,
		MilestoneID:      in.MilestoneID,
		ParentID:         in.ParentID,
		Title:            in.Title,
		Description:      in.Description,
		StatusID:         status.ID,
		StartDate:        in.StartDate,
		DueDate:          in.DueDate,
		Impact:           impact,
		Urgency:          urgency,
		ManualBoost:      in.ManualBoost,
		RequiresApproval: in.RequiresApproval,
		ApprovalStatus:   approval,
		CreatedBy:        actorID,
		CreatedAt:        ts,
		UpdatedAt:        ts,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return domain.Task{}, err
	}
	for _, r := range in.Responsibles {
		err := e.Repo.UpsertResponsible(ctx, tx, domain.Responsible{
			TaskID: id, PersonID: r.PersonID, IsLeader: r.IsLeader, CreatedAt: ts,
		})
		if err != nil {
			return domain.Task{}, err
		}
	}
	for _, c := range in.Collaborators {
		err := e.Repo.UpsertCollaborator(ctx, tx, domain.Collaborator{
			TaskID: id, PersonID: c.PersonID, Role: c.Role, CreatedAt: ts,
		})
		if err != nil {
			return domain.Task{}, err
		}
	}
	for _, tagID := range in.Tags {
		if err := e.Repo.AssignTag(ctx, tx, id, tagID); err != nil {
			return domain.Task{}, err
		}
	}
	err = e.History.Append(ctx, tx, id, actorID, history.KindCreacion, history.Payload{
		"title": in.Title, "client_id": in.ClientID, "status": status.Code,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	if dests, err := e.memberDestinations(ctx, id, actorID); err == nil {
		e.notifyTask(notify.KindTaskCreated, "Nueva tarea", in.Title, id, dests)
	}
	return e.Get(ctx, id)
}

func levelOrDefault(field string, v int) (int, error) {
	if v == 0 {
		return 1, nil
	}
	if v < 1 || v > 3 {
		return 0, validation(field, "%s must be between 1 and 3", field)
	}
	return v, nil
}

// TaskPatch carries optional field updates. Pointer semantics: nil leaves the
// field alone; for nullable references a zero value clears them.
type TaskPatch struct {
	Title            *string `json:"title,omitempty"`
	Description      *string `json:"description,omitempty"`
	ClientID         *int64  `json:"client_id,omitempty"`
	MilestoneID      *int64  `json:"milestone_id,omitempty"`
	ParentID         *int64  `json:"parent_id,omitempty"`
	StartDate        *string `json:"start_date,omitempty"`
	DueDate          *string `json:"due_date,omitempty"`
	Completion       *int    `json:"completion,omitempty"`
	Impact           *int    `json:"impact,omitempty"`
	Urgency          *int    `json:"urgency,omitempty"`
	ManualBoost      *bool   `json:"manual_boost,omitempty"`
	RequiresApproval *bool   `json:"requires_approval,omitempty"`
}

func (p TaskPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.ClientID == nil &&
		p.MilestoneID == nil && p.ParentID == nil && p.StartDate == nil &&
		p.DueDate == nil && p.Completion == nil && p.Impact == nil &&
		p.Urgency == nil && p.ManualBoost == nil && p.RequiresApproval == nil
}

// Patch applies a partial update. An empty patch is rejected rather than
// silently committing a no-op history entry.
func (e *Engine) Patch(ctx context.Context, actorID, taskID int64, p TaskPatch) (domain.Task, error) {
	if p.empty() {
		return domain.Task{}, validation("", "empty patch")
	}
	t, err := e.liveTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	var changed []string
	if p.Title != nil {
		if *p.Title == "" {
			return domain.Task{}, validation("title", "title cannot be blank")
		}
		t.Title = *p.Title
		changed = append(changed, "title")
	}
	if p.Description != nil {
		t.Description = *p.Description
		changed = append(changed, "description")
	}
	if p.ClientID != nil {
		if _, err := e.Repo.GetClient(ctx, *p.ClientID); err != nil {
			if err == repo.ErrNotFound {
				return domain.Task{}, validation("client_id", "unknown client %d", *p.ClientID)
			}
			return domain.Task{}, err
		}
		t.ClientID = *p.ClientID
		changed = append(changed, "client_id")
	}
	if p.MilestoneID != nil {
		if *p.MilestoneID == 0 {
			t.MilestoneID = nil
		} else {
			ok, err := e.Repo.MilestoneExists(ctx, *p.MilestoneID)
			if err != nil {
				return domain.Task{}, err
			}
			if !ok {
				return domain.Task{}, validation("milestone_id", "unknown milestone %d", *p.MilestoneID)
			}
			t.MilestoneID = p.MilestoneID
		}
		changed = append(changed, "milestone_id")
	}
	if p.ParentID != nil {
		if *p.ParentID == 0 {
			t.ParentID = nil
		} else {
			if *p.ParentID == taskID {
				return domain.Task{}, invariant("hierarchy_cycle", "a task cannot be its own parent")
			}
			if _, err := e.liveTask(ctx, *p.ParentID); err != nil {
				if err == repo.ErrNotFound {
					return domain.Task{}, validation("parent_id", "unknown parent task %d", *p.ParentID)
				}
				return domain.Task{}, err
			}
			if err := e.ensureNoCycle(ctx, taskID, *p.ParentID); err != nil {
				return domain.Task{}, err
			}
			t.ParentID = p.ParentID
		}
		changed = append(changed, "parent_id")
	}
	if p.StartDate != nil {
		if *p.StartDate == "" {
			t.StartDate = nil
		} else {
			t.StartDate = p.StartDate
		}
		changed = append(changed, "start_date")
	}
	if p.DueDate != nil {
		if *p.DueDate == "" {
			t.DueDate = nil
		} else {
			t.DueDate = p.DueDate
		}
		changed = append(changed, "due_date")
	}
	if p.Completion != nil {
		if *p.Completion < 0 || *p.Completion > 100 {
			return domain.Task{}, validation("completion", "completion must be between 0 and 100")
		}
		t.Completion = *p.Completion
		changed = append(changed, "completion")
	}
	if p.Impact != nil {
		v, err := levelOrDefault("impact", *p.Impact)
		if err != nil {
			return domain.Task{}, err
		}
		t.Impact = v
		changed = append(changed, "impact")
	}
	if p.Urgency != nil {
		v, err := levelOrDefault("urgency", *p.Urgency)
		if err != nil {
			return domain.Task{}, err
		}
		t.Urgency = v
		changed = append(changed, "urgency")
	}
	if p.ManualBoost != nil {
		t.ManualBoost = *p.ManualBoost
		changed = append(changed, "manual_boost")
	}
	if p.RequiresApproval != nil {
		t.RequiresApproval = *p.RequiresApproval
		if *p.RequiresApproval {
			if t.ApprovalStatus == domain.ApprovalNotApplicable {
				t.ApprovalStatus = domain.ApprovalPending
			}
		} else {
			t.ApprovalStatus = domain.ApprovalNotApplicable
			t.RejectionReason = nil
		}
		changed = append(changed, "requires_approval")
	}
	t.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	err = e.History.Append(ctx, tx, taskID, actorID, history.KindEdicion, history.Payload{"fields": changed})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Get(ctx, taskID)
}

// ensureNoCycle walks the ancestor chain from parentID and fails if it reaches
// taskID. The walk is bounded; a chain deeper than the bound is rejected as
// corrupt rather than looping.
func (e *Engine) ensureNoCycle(ctx context.Context, taskID, parentID int64) error {
	cur := parentID
	for depth := 0; depth < maxHierarchyDepth; depth++ {
		if cur == taskID {
			return invariant("hierarchy_cycle", "task %d is an ancestor of itself through %d", taskID, parentID)
		}
		t, err := e.Repo.GetTask(ctx, cur)
		if err != nil {
			return err
		}
		if t.ParentID == nil {
			return nil
		}
		cur = *t.ParentID
	}
	return invariant("hierarchy_depth", "ancestor chain exceeds %d levels", maxHierarchyDepth)
}

// Get returns a fully hydrated live task: members, tags, checklist, relations,
// attachments, kanban column, and the computed boost score.
func (e *Engine) Get(ctx context.Context, id int64) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	if t.DeletedAt != nil {
		return domain.Task{}, repo.ErrNotFound
	}
	return e.hydrate(ctx, t)
}

func (e *Engine) hydrate(ctx context.Context, t domain.Task) (domain.Task, error) {
	status, err := e.Repo.GetStatus(ctx, t.StatusID)
	if err != nil {
		return t, err
	}
	t.KanbanColumn = status.KanbanColumn
	t.Boost = Score(t, e.now(), e.Config)
	if t.Responsibles, err = e.Repo.ListResponsibles(ctx, t.ID); err != nil {
		return t, err
	}
	if t.Collaborators, err = e.Repo.ListCollaborators(ctx, t.ID); err != nil {
		return t, err
	}
	if t.Tags, err = e.Repo.ListTaskTags(ctx, t.ID); err != nil {
		return t, err
	}
	if t.Checklist, err = e.Repo.ListChecklist(ctx, t.ID); err != nil {
		return t, err
	}
	if t.Relations, err = e.Repo.ListRelations(ctx, t.ID); err != nil {
		return t, err
	}
	if t.Attachments, err = e.Repo.ListTaskAttachments(ctx, t.ID); err != nil {
		return t, err
	}
	return t, nil
}

// Sort modes for List. The default is priority: boost descending, then due
// date ascending with nulls last, then id.
const (
	SortPriority  = "priority"
	SortDueDate   = "due_date"
	SortCreatedAt = "created_at"
)

// List returns bare task rows in the requested order. The whole filtered set
// is ordered first and Limit/Offset cut a window out of it afterwards, so the
// first page always holds the top of the ordering.
func (e *Engine) List(ctx context.Context, f repo.TaskFilters, sortBy string) ([]domain.Task, error) {
	f.TrashOnly = false
	limit, offset := f.Limit, f.Offset
	tasks, err := e.Repo.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	if err := e.fillColumns(ctx, tasks); err != nil {
		return nil, err
	}
	switch sortBy {
	case "", SortPriority:
		SortByPriority(tasks, e.now(), e.Config)
	case SortDueDate:
		fillBoost(tasks, e.now(), e.Config)
		sortByDueDate(tasks)
	case SortCreatedAt:
		fillBoost(tasks, e.now(), e.Config)
		sortByCreatedAt(tasks)
	default:
		return nil, validation("sort", "unknown sort %q", sortBy)
	}
	if offset > 0 {
		if offset >= len(tasks) {
			return nil, nil
		}
		tasks = tasks[offset:]
	}
	if limit > 0 && limit < len(tasks) {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (e *Engine) fillColumns(ctx context.Context, tasks []domain.Task) error {
	statuses, err := e.Repo.ListStatuses(ctx)
	if err != nil {
		return err
	}
	columns := make(map[int64]string, len(statuses))
	for _, s := range statuses {
		columns[s.ID] = s.KanbanColumn
	}
	for i := range tasks {
		tasks[i].KanbanColumn = columns[tasks[i].StatusID]
	}
	return nil
}

// BoardColumn is one kanban lane: a status plus its tasks in board order.
type BoardColumn struct {
	Status domain.Status `json:"status"`
	Tasks  []domain.Task `json:"tasks"`
}

func (e *Engine) Board(ctx context.Context) ([]BoardColumn, error) {
	statuses, err := e.Repo.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}
	board := make([]BoardColumn, 0, len(statuses))
	for _, s := range statuses {
		tasks, err := e.Repo.ListKanbanColumn(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		for i := range tasks {
			tasks[i].KanbanColumn = s.KanbanColumn
			tasks[i].Boost = Score(tasks[i], e.now(), e.Config)
		}
		board = append(board, BoardColumn{Status: s, Tasks: tasks})
	}
	return board, nil
}

func (e *Engine) ListTrash(ctx context.Context) ([]domain.Task, error) {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{TrashOnly: true})
	if err != nil {
		return nil, err
	}
	return tasks, e.fillColumns(ctx, tasks)
}

func (e *Engine) HistoryOf(ctx context.Context, f repo.HistoryFilters) ([]domain.HistoryEntry, error) {
	return e.Repo.ListHistory(ctx, f)
}
