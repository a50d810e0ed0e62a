package repo

import (
	"context"
	"database/sql"

	"intraops/internal/domain"
)

func (r Repo) ListChecklist(ctx context.Context, taskID int64) ([]domain.ChecklistItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,title,is_done,sort_order FROM checklist_items WHERE task_id=? ORDER BY sort_order, id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistItem
	for rows.Next() {
		var item domain.ChecklistItem
		if err := rows.Scan(&item.ID, &item.TaskID, &item.Title, &item.IsDone, &item.SortOrder); err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

func (r Repo) ListChecklistTx(ctx context.Context, tx *sql.Tx, taskID int64) ([]domain.ChecklistItem, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,task_id,title,is_done,sort_order FROM checklist_items WHERE task_id=? ORDER BY sort_order, id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistItem
	for rows.Next() {
		var item domain.ChecklistItem
		if err := rows.Scan(&item.ID, &item.TaskID, &item.Title, &item.IsDone, &item.SortOrder); err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

// NextChecklistOrder returns the sort order after the current maximum, read
// inside the caller's transaction so concurrent appends cannot hand out the
// same slot.
func (r Repo) NextChecklistOrder(ctx context.Context, tx *sql.Tx, taskID int64) (int, error) {
	var order int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sort_order)+1,0) FROM checklist_items WHERE task_id=?`, taskID).Scan(&order)
	return order, err
}

func (r Repo) InsertChecklistItem(ctx context.Context, tx *sql.Tx, item domain.ChecklistItem) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO checklist_items(task_id,title,is_done,sort_order) VALUES (?,?,?,?)`,
		item.TaskID, item.Title, item.IsDone, item.SortOrder)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) UpdateChecklistItem(ctx context.Context, tx *sql.Tx, item domain.ChecklistItem) error {
	return oneAffected(tx.ExecContext(ctx, `UPDATE checklist_items SET title=?, is_done=? WHERE id=? AND task_id=?`,
		item.Title, item.IsDone, item.ID, item.TaskID))
}

func (r Repo) SetChecklistOrder(ctx context.Context, tx *sql.Tx, taskID, itemID int64, order int) error {
	return oneAffected(tx.ExecContext(ctx, `UPDATE checklist_items SET sort_order=? WHERE id=? AND task_id=?`, order, itemID, taskID))
}

func (r Repo) DeleteChecklistItem(ctx context.Context, tx *sql.Tx, taskID, itemID int64) error {
	return oneAffected(tx.ExecContext(ctx, `DELETE FROM checklist_items WHERE id=? AND task_id=?`, itemID, taskID))
}
