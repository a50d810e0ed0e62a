package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"intraops/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const taskColumns = `id,client_id,milestone_id,parent_id,title,description,status_id,kanban_order,start_date,due_date,completion,impact,urgency,manual_boost,requires_approval,approval_status,rejection_reason,cancel_reason,is_archived,deleted_at,created_by,created_at,updated_at`

type taskRow interface {
	Scan(dest ...any) error
}

func scanTask(row taskRow) (domain.Task, error) {
	var t domain.Task
	var milestoneID, parentID sql.NullInt64
	var description, startDate, dueDate, rejectionReason, cancelReason, deletedAt sql.NullString
	err := row.Scan(&t.ID, &t.ClientID, &milestoneID, &parentID, &t.Title, &description, &t.StatusID,
		&t.KanbanOrder, &startDate, &dueDate, &t.Completion, &t.Impact, &t.Urgency, &t.ManualBoost,
		&t.RequiresApproval, &t.ApprovalStatus, &rejectionReason, &cancelReason, &t.IsArchived,
		&deletedAt, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if milestoneID.Valid {
		t.MilestoneID = &milestoneID.Int64
	}
	if parentID.Valid {
		t.ParentID = &parentID.Int64
	}
	if description.Valid {
		t.Description = description.String
	}
	if startDate.Valid {
		t.StartDate = &startDate.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if rejectionReason.Valid {
		t.RejectionReason = &rejectionReason.String
	}
	if cancelReason.Valid {
		t.CancelReason = &cancelReason.String
	}
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(client_id,milestone_id,parent_id,title,description,status_id,kanban_order,start_date,due_date,completion,impact,urgency,manual_boost,requires_approval,approval_status,rejection_reason,cancel_reason,is_archived,deleted_at,created_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ClientID, nullableInt64Ptr(t.MilestoneID), nullableInt64Ptr(t.ParentID), t.Title, nullable(t.Description),
		t.StatusID, t.KanbanOrder, nullableStringPtr(t.StartDate), nullableStringPtr(t.DueDate), t.Completion,
		t.Impact, t.Urgency, t.ManualBoost, t.RequiresApproval, t.ApprovalStatus,
		nullableStringPtr(t.RejectionReason), nullableStringPtr(t.CancelReason), t.IsArchived,
		nullableStringPtr(t.DeletedAt), t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET client_id=?, milestone_id=?, parent_id=?, title=?, description=?, status_id=?, kanban_order=?, start_date=?, due_date=?, completion=?, impact=?, urgency=?, manual_boost=?, requires_approval=?, approval_status=?, rejection_reason=?, cancel_reason=?, is_archived=?, deleted_at=?, updated_at=? WHERE id=?`,
		t.ClientID, nullableInt64Ptr(t.MilestoneID), nullableInt64Ptr(t.ParentID), t.Title, nullable(t.Description),
		t.StatusID, t.KanbanOrder, nullableStringPtr(t.StartDate), nullableStringPtr(t.DueDate), t.Completion,
		t.Impact, t.Urgency, t.ManualBoost, t.RequiresApproval, t.ApprovalStatus,
		nullableStringPtr(t.RejectionReason), nullableStringPtr(t.CancelReason), t.IsArchived,
		nullableStringPtr(t.DeletedAt), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// TaskFilters narrows list queries. Deleted tasks are excluded unless
// TrashOnly is set; archived tasks are excluded unless IncludeArchived or
// TrashOnly is set. Limit and Offset are not applied here: pagination happens
// after the in-memory ordering in the engine, so a page is a window into the
// fully ordered result.
type TaskFilters struct {
	ClientID        int64
	StatusID        int64
	ParentID        int64
	MineFor         int64
	IncludeArchived bool
	TrashOnly       bool
	Limit           int
	Offset          int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.TrashOnly {
		clauses = append(clauses, "deleted_at IS NOT NULL")
	} else {
		clauses = append(clauses, "deleted_at IS NULL")
		if !f.IncludeArchived {
			clauses = append(clauses, "is_archived=0")
		}
	}
	if f.ClientID != 0 {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.StatusID != 0 {
		clauses = append(clauses, "status_id=?")
		args = append(args, f.StatusID)
	}
	if f.ParentID != 0 {
		clauses = append(clauses, "parent_id=?")
		args = append(args, f.ParentID)
	}
	if f.MineFor != 0 {
		clauses = append(clauses, `(created_by=?
			OR EXISTS (SELECT 1 FROM task_responsibles tr WHERE tr.task_id=tasks.id AND tr.person_id=?)
			OR EXISTS (SELECT 1 FROM task_collaborators tc WHERE tc.task_id=tasks.id AND tc.person_id=?))`)
		args = append(args, f.MineFor, f.MineFor, f.MineFor)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListKanbanColumn returns live tasks for one status ordered for the board.
func (r Repo) ListKanbanColumn(ctx context.Context, statusID int64) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE deleted_at IS NULL AND is_archived=0 AND status_id=? ORDER BY kanban_order, id`, statusID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func oneAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
