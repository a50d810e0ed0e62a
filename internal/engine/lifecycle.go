package engine

import (
	"context"

	"intraops/internal/domain"
	"intraops/internal/history"
	"intraops/internal/notify"
	"intraops/internal/repo"
)

// SetStatus moves a task to another workflow status. There is no adjacency
// graph: any status may follow any other. A cancelling status requires a
// reason; leaving a cancelled status clears it.
func (e *Engine) SetStatus(ctx context.Context, actorID, taskID, statusID int64, reason string) (domain.Task, error) {
	t, err := e.liveTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	to, err := e.Repo.GetStatus(ctx, statusID)
	if err != nil {
		if err == repo.ErrNotFound {
			return domain.Task{}, validation("status_id", "unknown status %d", statusID)
		}
		return domain.Task{}, err
	}
	from, err := e.Repo.GetStatus(ctx, t.StatusID)
	if err != nil {
		return domain.Task{}, err
	}
	if to.IsCancelled && reason == "" {
		return domain.Task{}, validation("reason", "cancelling requires a reason")
	}

	t.StatusID = to.ID
	if to.IsCancelled {
		t.CancelReason = &reason
	} else {
		t.CancelReason = nil
	}
	if to.IsTerminal && !to.IsCancelled {
		t.Completion = 100
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
	payload := history.Payload{"from": from.Code, "to": to.Code}
	if reason != "" {
		payload["reason"] = reason
	}
	if err := e.History.Append(ctx, tx, taskID, actorID, history.KindEstado, payload); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	if to.IsCancelled {
		if dests, err := e.memberDestinations(ctx, taskID, actorID); err == nil {
			e.notifyTask(notify.KindTaskCancelled, "Tarea cancelada", t.Title, taskID, dests)
		}
	}
	return e.Get(ctx, taskID)
}

// SetApproval drives the approval sub-workflow. The engine persists the
// target state even on tasks without requires_approval; whether to expose the
// action there is the caller's call. Rejection demands a reason; any
// transition away from rejected clears the stored reason.
func (e *Engine) SetApproval(ctx context.Context, actorID, taskID int64, state, reason string) (domain.Task, error) {
	switch state {
	case domain.ApprovalPending, domain.ApprovalApproved, domain.ApprovalRejected:
	default:
		return domain.Task{}, validation("approval_status", "unknown approval state %q", state)
	}
	t, err := e.liveTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if state == domain.ApprovalRejected && reason == "" {
		return domain.Task{}, validation("reason", "rejecting requires a reason")
	}

	from := t.ApprovalStatus
	t.ApprovalStatus = state
	if state == domain.ApprovalRejected {
		t.RejectionReason = &reason
	} else {
		t.RejectionReason = nil
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
	payload := history.Payload{"from": from, "to": state}
	if reason != "" {
		payload["reason"] = reason
	}
	if err := e.History.Append(ctx, tx, taskID, actorID, history.KindAprobacion, payload); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Get(ctx, taskID)
}

// MoveKanban repositions a task on the board. The column is the status, so a
// cross-column move is a status change plus the new in-column order, applied
// as one update.
func (e *Engine) MoveKanban(ctx context.Context, actorID, taskID, statusID int64, order int) (domain.Task, error) {
	t, err := e.liveTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	to, err := e.Repo.GetStatus(ctx, statusID)
	if err != nil {
		if err == repo.ErrNotFound {
			return domain.Task{}, validation("status_id", "unknown status %d", statusID)
		}
		return domain.Task{}, err
	}
	if to.IsCancelled {
		return domain.Task{}, invariant("kanban_cancel", "cancelling through the board is not allowed")
	}
	if order < 0 {
		return domain.Task{}, validation("order", "order must be non-negative")
	}
	from, err := e.Repo.GetStatus(ctx, t.StatusID)
	if err != nil {
		return domain.Task{}, err
	}

	t.StatusID = to.ID
	t.KanbanOrder = order
	t.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	err = e.History.Append(ctx, tx, taskID, actorID, history.KindKanban, history.Payload{
		"from": from.KanbanColumn, "to": to.KanbanColumn, "order": order,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Get(ctx, taskID)
}

// SetArchived hides a task from default lists without touching its status.
func (e *Engine) SetArchived(ctx context.Context, actorID, taskID int64, archived bool) (domain.Task, error) {
	t, err := e.liveTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.IsArchived == archived {
		return e.Get(ctx, taskID)
	}
	t.IsArchived = archived
	t.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	err = e.History.Append(ctx, tx, taskID, actorID, history.KindArchivado, history.Payload{"archived": archived})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Get(ctx, taskID)
}

// MoveToTrash soft-deletes a task. Children, comments, and attachments stay in
// place; the task just stops appearing outside the trash view. Members are
// notified after commit.
func (e *Engine) MoveToTrash(ctx context.Context, actorID, taskID int64) error {
	t, err := e.liveTask(ctx, taskID)
	if err != nil {
		return err
	}
	dests, derr := e.memberDestinations(ctx, taskID, actorID)

	ts := e.timestamp()
	t.DeletedAt = &ts
	t.UpdatedAt = ts

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return err
	}
	if err := e.History.Append(ctx, tx, taskID, actorID, history.KindPapelera, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if derr == nil {
		e.notifyTask(notify.KindTaskTrashed, "Tarea enviada a la papelera", t.Title, taskID, dests)
	}
	return nil
}

// Restore brings a trashed task back. Its references must still resolve: the
// client, the parent (live), and every responsible person. A dangling
// reference blocks the restore.
func (e *Engine) Restore(ctx context.Context, actorID, taskID int64) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if t.DeletedAt == nil {
		return domain.Task{}, validation("", "task %d is not in the trash", taskID)
	}
	if _, err := e.Repo.GetClient(ctx, t.ClientID); err != nil {
		if err == repo.ErrNotFound {
			return domain.Task{}, invariant("restore_reference", "client %d no longer exists", t.ClientID)
		}
		return domain.Task{}, err
	}
	if t.ParentID != nil {
		parent, err := e.Repo.GetTask(ctx, *t.ParentID)
		if err != nil {
			if err == repo.ErrNotFound {
				return domain.Task{}, invariant("restore_reference", "parent task %d no longer exists", *t.ParentID)
			}
			return domain.Task{}, err
		}
		if parent.DeletedAt != nil {
			return domain.Task{}, invariant("restore_reference", "parent task %d is in the trash", *t.ParentID)
		}
	}
	responsibles, err := e.Repo.ListResponsibles(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	for _, r := range responsibles {
		if _, err := e.Repo.GetPerson(ctx, r.PersonID); err != nil {
			if err == repo.ErrNotFound {
				return domain.Task{}, invariant("restore_reference", "person %d no longer exists", r.PersonID)
			}
			return domain.Task{}, err
		}
	}

	t.DeletedAt = nil
	t.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.History.Append(ctx, tx, taskID, actorID, history.KindRestauracion, nil); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Get(ctx, taskID)
}
