package engine

import (
	"context"

	"intraops/internal/domain"
	"intraops/internal/history"
	"intraops/internal/repo"
)

func (e *Engine) AddChecklistItem(ctx context.Context, actorID, taskID int64, title string) (domain.ChecklistItem, error) {
	if title == "" {
		return domain.ChecklistItem{}, validation("title", "title is required")
	}
	if _, err := e.liveTask(ctx, taskID); err != nil {
		return domain.ChecklistItem{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	defer tx.Rollback()
	order, err := e.Repo.NextChecklistOrder(ctx, tx, taskID)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	item := domain.ChecklistItem{TaskID: taskID, Title: title, SortOrder: order}
	id, err := e.Repo.InsertChecklistItem(ctx, tx, item)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	err = e.History.Append(ctx, tx, taskID, actorID, history.KindChecklist, history.Payload{
		"item_id": id, "title": title,
	})
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ChecklistItem{}, err
	}
	item.ID = id
	return item, nil
}

func (e *Engine) UpdateChecklistItem(ctx context.Context, actorID, taskID, itemID int64, title *string, done *bool) error {
	if title == nil && done == nil {
		return validation("", "empty patch")
	}
	if title != nil && *title == "" {
		return validation("title", "title cannot be blank")
	}
	if _, err := e.liveTask(ctx, taskID); err != nil {
		return err
	}
	items, err := e.Repo.ListChecklist(ctx, taskID)
	if err != nil {
		return err
	}
	var item *domain.ChecklistItem
	for i := range items {
		if items[i].ID == itemID {
			item = &items[i]
			break
		}
	}
	if item == nil {
		return repo.ErrNotFound
	}
	if title != nil {
		item.Title = *title
	}
	if done != nil {
		item.IsDone = *done
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateChecklistItem(ctx, tx, *item); err != nil {
		return err
	}
	payload := history.Payload{"item_id": itemID}
	if done != nil {
		payload["done"] = *done
	}
	if err := e.History.Append(ctx, tx, taskID, actorID, history.KindChecklist, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (e *Engine) DeleteChecklistItem(ctx context.Context, actorID, taskID, itemID int64) error {
	if _, err := e.liveTask(ctx, taskID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteChecklistItem(ctx, tx, taskID, itemID); err != nil {
		return err
	}
	err = e.History.Append(ctx, tx, taskID, actorID, history.KindChecklist, history.Payload{
		"item_id": itemID, "removed": true,
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ChecklistOrder is one entry of a bulk reorder.
type ChecklistOrder struct {
	ItemID int64 `json:"item_id"`
	Order  int   `json:"order"`
}

// ReorderChecklist applies a bulk reorder in one transaction. Every id must
// belong to the task, and after applying, sort orders must be unique across
// the whole checklist; otherwise nothing changes. Re-applying the same set is
// a no-op.
func (e *Engine) ReorderChecklist(ctx context.Context, actorID, taskID int64, entries []ChecklistOrder) ([]domain.ChecklistItem, error) {
	if len(entries) == 0 {
		return nil, validation("items", "at least one entry is required")
	}
	if _, err := e.liveTask(ctx, taskID); err != nil {
		return nil, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	for _, entry := range entries {
		if err := e.Repo.SetChecklistOrder(ctx, tx, taskID, entry.ItemID, entry.Order); err != nil {
			if err == repo.ErrNotFound {
				return nil, validation("items", "item %d does not belong to task %d", entry.ItemID, taskID)
			}
			return nil, err
		}
	}
	items, err := e.Repo.ListChecklistTx(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	seen := map[int]int64{}
	for _, it := range items {
		if other, dup := seen[it.SortOrder]; dup {
			return nil, invariant("checklist_order", "items %d and %d would share order %d", other, it.ID, it.SortOrder)
		}
		seen[it.SortOrder] = it.ID
	}
	if err := e.History.Append(ctx, tx, taskID, actorID, history.KindChecklist, history.Payload{"reordered": len(entries)}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return items, nil
}

// AddRelation creates a typed edge between two live tasks. Self-relations and
// exact duplicates of the (task, related, type) triple are rejected.
func (e *Engine) AddRelation(ctx context.Context, actorID, taskID, relatedID int64, typeCode string) (domain.Relation, error) {
	if taskID == relatedID {
		return domain.Relation{}, invariant("relation_self", "a task cannot relate to itself")
	}
	if _, err := e.liveTask(ctx, taskID); err != nil {
		return domain.Relation{}, err
	}
	if _, err := e.liveTask(ctx, relatedID); err != nil {
		if err == repo.ErrNotFound {
			return domain.Relation{}, validation("related_task_id", "unknown task %d", relatedID)
		}
		return domain.Relation{}, err
	}
	rt, err := e.Repo.GetRelationTypeByCode(ctx, typeCode)
	if err != nil {
		if err == repo.ErrNotFound {
			return domain.Relation{}, validation("type", "unknown relation type %q", typeCode)
		}
		return domain.Relation{}, err
	}

	ts := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Relation{}, err
	}
	defer tx.Rollback()
	exists, err := e.Repo.RelationExists(ctx, tx, taskID, relatedID, rt.ID)
	if err != nil {
		return domain.Relation{}, err
	}
	if exists {
		return domain.Relation{}, invariant("relation_duplicate", "tasks %d and %d are already related as %s", taskID, relatedID, typeCode)
	}
	id, err := e.Repo.InsertRelation(ctx, tx, taskID, relatedID, rt.ID, ts)
	if err != nil {
		return domain.Relation{}, err
	}
	err = e.History.Append(ctx, tx, taskID, actorID, history.KindRelacion, history.Payload{
		"related_task_id": relatedID, "type": typeCode,
	})
	if err != nil {
		return domain.Relation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Relation{}, err
	}
	return domain.Relation{ID: id, TaskID: taskID, RelatedTaskID: relatedID, TypeCode: typeCode, CreatedAt: ts}, nil
}

func (e *Engine) RemoveRelation(ctx context.Context, actorID, taskID, relationID int64) error {
	if _, err := e.liveTask(ctx, taskID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteRelation(ctx, tx, taskID, relationID); err != nil {
		return err
	}
	err = e.History.Append(ctx, tx, taskID, actorID, history.KindRelacion, history.Payload{
		"relation_id": relationID, "removed": true,
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// AttachmentInput carries storage metadata as returned by the file bridge.
type AttachmentInput struct {
	Name       string `json:"name"`
	Mime       string `json:"mime"`
	Size       int64  `json:"size"`
	URL        string `json:"url,omitempty"`
	DriveID    string `json:"drive_id,omitempty"`
	IsEmbedded bool   `json:"is_embedded,omitempty"`
}

// AddTaskAttachment records stored-file metadata against a task. The bytes
// live with the bridge; the engine persists only the descriptor.
func (e *Engine) AddTaskAttachment(ctx context.Context, actorID, taskID int64, in AttachmentInput) (domain.Attachment, error) {
	if in.Name == "" {
		return domain.Attachment{}, validation("name", "name is required")
	}
	if _, err := e.liveTask(ctx, taskID); err != nil {
		return domain.Attachment{}, err
	}
	a := domain.Attachment{
		TaskID:     &taskID,
		Name:       in.Name,
		Mime:       in.Mime,
		Size:       in.Size,
		URL:        in.URL,
		DriveID:    in.DriveID,
		IsEmbedded: in.IsEmbedded,
		UploaderID: actorID,
		CreatedAt:  e.timestamp(),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Attachment{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertAttachment(ctx, tx, a)
	if err != nil {
		return domain.Attachment{}, err
	}
	err = e.History.Append(ctx, tx, taskID, actorID, history.KindAdjunto, history.Payload{
		"attachment_id": id, "name": in.Name,
	})
	if err != nil {
		return domain.Attachment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Attachment{}, err
	}
	a.ID = id
	return a, nil
}

// RemoveAttachment deletes the metadata row of a task or comment attachment.
// The history entry always lands on the owning task.
func (e *Engine) RemoveAttachment(ctx context.Context, actorID, attachmentID int64) error {
	a, err := e.Repo.GetAttachment(ctx, attachmentID)
	if err != nil {
		return err
	}
	var taskID int64
	switch {
	case a.TaskID != nil:
		taskID = *a.TaskID
	case a.CommentID != nil:
		c, err := e.Repo.GetComment(ctx, *a.CommentID)
		if err != nil {
			return err
		}
		taskID = c.TaskID
	}
	if _, err := e.liveTask(ctx, taskID); err != nil {
		return err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAttachment(ctx, tx, attachmentID); err != nil {
		return err
	}
	err = e.History.Append(ctx, tx, taskID, actorID, history.KindAdjunto, history.Payload{
		"attachment_id": attachmentID, "name": a.Name, "removed": true,
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}
