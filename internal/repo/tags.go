package repo

import (
	"context"
	"database/sql"

	"intraops/internal/domain"
)

// AssignTag is a no-op if the tag is already on the task.
func (r Repo) AssignTag(ctx context.Context, tx *sql.Tx, taskID, tagID int64) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_tags(task_id,tag_id) VALUES (?,?)`, taskID, tagID)
	return err
}

func (r Repo) UnassignTag(ctx context.Context, tx *sql.Tx, taskID, tagID int64) error {
	return oneAffected(tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id=? AND tag_id=?`, taskID, tagID))
}

func (r Repo) ListTaskTags(ctx context.Context, taskID int64) ([]domain.Tag, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT t.id, t.name, t.color FROM task_tags tt
JOIN tags t ON t.id=tt.tag_id WHERE tt.task_id=? ORDER BY t.name`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Tag
	for rows.Next() {
		var t domain.Tag
		var color sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &color); err != nil {
			return nil, err
		}
		if color.Valid {
			t.Color = color.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
